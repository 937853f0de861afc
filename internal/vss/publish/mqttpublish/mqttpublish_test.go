package mqttpublish

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldPublish_NoFilterAllowsEverything(t *testing.T) {
	p := &Publisher{}
	assert.True(t, p.shouldPublish("Vehicle/Speed"))
}

func TestShouldPublish_FilterRestrictsToConfiguredPaths(t *testing.T) {
	p := &Publisher{allow: map[string]struct{}{"Vehicle/Speed": {}}}
	assert.True(t, p.shouldPublish("Vehicle/Speed"))
	assert.False(t, p.shouldPublish("Vehicle/OBD/RPM"))
}

func TestTopicFor_AppliesPrefixAndTrimsLeadingSlash(t *testing.T) {
	p := &Publisher{cfg: Config{Prefix: "vehicle/"}}
	assert.Equal(t, "vehicle/Vehicle/Speed", p.topicFor("/Vehicle/Speed"))
}
