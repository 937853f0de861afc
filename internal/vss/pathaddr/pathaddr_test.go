package pathaddr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDotted(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantDotted string
		wantSlash  string
		wantJSON   string
	}{
		{"simple", "Vehicle.Speed", "Vehicle.Speed", "Vehicle/Speed", "$['Vehicle']['children']['Speed']"},
		{"wildcard end", "Vehicle.*", "Vehicle.*", "Vehicle/*", "$['Vehicle']['children'][*]"},
		{"wildcard middle", "Vehicle.*.Speed", "Vehicle.*.Speed", "Vehicle/*/Speed", "$['Vehicle']['children'][*]['children']['Speed']"},
		{"empty", "", "", "", "$['']"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromDotted(tt.input)
			assert.Equal(t, tt.wantDotted, p.AsDotted())
			assert.Equal(t, tt.wantSlash, p.AsSlashed())
			assert.Equal(t, tt.wantJSON, p.AsJSONQuery())
			assert.True(t, p.IsGen1Origin())
		})
	}
}

func TestFromSlashed(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantDotted string
		wantJSON   string
	}{
		{"simple", "Vehicle/Speed", "Vehicle.Speed", "$['Vehicle']['children']['Speed']"},
		{"wildcard end", "Vehicle/*", "Vehicle.*", "$['Vehicle']['children'][*]"},
		{"wildcard middle", "Vehicle/*/Speed", "Vehicle.*.Speed", "$['Vehicle']['children'][*]['children']['Speed']"},
		{"empty", "", "", "$['']"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromSlashed(tt.input)
			assert.Equal(t, tt.wantDotted, p.AsDotted())
			assert.Equal(t, tt.input, p.AsSlashed())
			assert.Equal(t, tt.wantJSON, p.AsJSONQuery())
			assert.False(t, p.IsGen1Origin())
		})
	}
}

func TestFromJSONQuery(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantDot   string
		wantSlash string
	}{
		{"simple", "$['Vehicle']['children']['Speed']", "Vehicle.Speed", "Vehicle/Speed"},
		{"wildcard end", "$['Vehicle']['children'][*]", "Vehicle.*", "Vehicle/*"},
		{"wildcard middle", "$['Vehicle']['children'][*]['children']['Speed']", "Vehicle.*.Speed", "Vehicle/*/Speed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := FromJSONQuery(tt.input)
			assert.Equal(t, tt.wantDot, p.AsDotted())
			assert.Equal(t, tt.wantSlash, p.AsSlashed())
			assert.Equal(t, tt.input, p.AsJSONQuery())
			assert.False(t, p.IsGen1Origin())
		})
	}
}

func TestFromAuto(t *testing.T) {
	t.Run("dotted input is gen1 origin", func(t *testing.T) {
		p := FromAuto("Vehicle.Speed")
		assert.True(t, p.IsGen1Origin())
		assert.Equal(t, "Vehicle/Speed", p.AsSlashed())
	})
	t.Run("slashed input is not gen1 origin", func(t *testing.T) {
		p := FromAuto("Vehicle/Speed")
		assert.False(t, p.IsGen1Origin())
		assert.Equal(t, "Vehicle.Speed", p.AsDotted())
	})
	t.Run("json query input", func(t *testing.T) {
		p := FromAuto("$['Vehicle']['children']['Speed']")
		assert.False(t, p.IsGen1Origin())
		assert.Equal(t, "Vehicle.Speed", p.AsDotted())
	})
	t.Run("empty input is not gen1 origin", func(t *testing.T) {
		p := FromAuto("")
		assert.False(t, p.IsGen1Origin())
	})
}

func TestAsOrigin(t *testing.T) {
	assert.Equal(t, "Vehicle.Speed", FromDotted("Vehicle.Speed").AsOrigin())
	assert.Equal(t, "Vehicle/Speed", FromSlashed("Vehicle/Speed").AsOrigin())
}

func TestEquals_IgnoresOrigin(t *testing.T) {
	a := FromDotted("Vehicle.Speed")
	b := FromSlashed("Vehicle/Speed")
	assert.True(t, a.Equals(b))
	assert.NotEqual(t, a.IsGen1Origin(), b.IsGen1Origin())
	assert.Equal(t, a.Key(), b.Key())
}

func TestIsConcrete(t *testing.T) {
	assert.True(t, FromDotted("Vehicle.Speed").IsConcrete())
	assert.False(t, FromDotted("Vehicle.*").IsConcrete())
	assert.True(t, FromDotted("Vehicle.*").HasWildcard())
}

func TestMatchesPattern(t *testing.T) {
	leaf := FromDotted("Vehicle.OBD.EngineSpeed")

	tests := []struct {
		name    string
		pattern string
		want    bool
	}{
		{"exact match", "Vehicle.OBD.EngineSpeed", true},
		{"wildcard middle matches", "Vehicle.*.EngineSpeed", true},
		{"wildcard last matches", "Vehicle.OBD.*", true},
		{"different segment count", "Vehicle.OBD", false},
		{"different leaf name", "Vehicle.OBD.Speed", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pattern := FromDotted(tt.pattern)
			assert.Equal(t, tt.want, leaf.MatchesPattern(pattern))
		})
	}
}

func TestParse_RejectsMalformedPath(t *testing.T) {
	_, err := Parse("Vehicle..Speed")
	require.Error(t, err)

	_, err = Parse("Vehicle.Spe*ed")
	require.Error(t, err)

	p, err := Parse("Vehicle.Speed")
	require.NoError(t, err)
	assert.Equal(t, "Vehicle/Speed", p.AsSlashed())
}

func TestSegments(t *testing.T) {
	assert.Equal(t, []string{"Vehicle", "OBD", "EngineSpeed"}, FromDotted("Vehicle.OBD.EngineSpeed").Segments())
	assert.Equal(t, []string{""}, FromDotted("").Segments())
}
