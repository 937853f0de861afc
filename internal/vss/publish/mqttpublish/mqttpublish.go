// Package mqttpublish implements a subscribe.Publisher that mirrors the
// signal updates the subscription engine delivers (one call per
// subscriber notification) onto an MQTT broker, grounded on
// original_source/include/MQTTPublisher.hpp (host/port/qos/keepalive/
// prefix/path-filter knobs, one publish per call, retained only when
// Config.Retained is set).
package mqttpublish

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"vssbroker/internal/shared/logger"
)

// Config mirrors MQTTPublisher's constructor parameters.
type Config struct {
	ClientID string
	Broker   string // e.g. "tcp://localhost:1883"
	Username string
	Password string
	Keepalive time.Duration
	QoS       byte
	Prefix    string
	// Paths restricts publishing to this set of slash-form paths; an
	// empty set publishes every update (MQTTPublisher's addPublishPath
	// default of "publish everything" when unconfigured).
	Paths []string
	Retained bool
}

// Publisher implements subscribe.Publisher over an MQTT connection.
type Publisher struct {
	client mqtt.Client
	cfg    Config
	allow  map[string]struct{}
	log    logger.Interface
}

// New connects to the configured broker and returns a ready Publisher.
func New(cfg Config, log logger.Interface) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.Keepalive).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warnw("mqtt connection lost", "error", err)
	}
	opts.OnConnect = func(_ mqtt.Client) {
		log.Infow("mqtt connected", "broker", cfg.Broker)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqttpublish: connect: %w", token.Error())
	}

	var allow map[string]struct{}
	if len(cfg.Paths) > 0 {
		allow = make(map[string]struct{}, len(cfg.Paths))
		for _, p := range cfg.Paths {
			allow[p] = struct{}{}
		}
	}

	return &Publisher{client: client, cfg: cfg, allow: allow, log: log}, nil
}

// SendPathValue implements subscribe.Publisher. path is already in
// slash form (PathAddress.AsSlashed); topic is prefix + path with the
// leading slash trimmed so "Vehicle/Speed" becomes "<prefix>Vehicle/Speed".
func (p *Publisher) SendPathValue(path string, value any) error {
	if !p.shouldPublish(path) {
		return nil
	}

	topic := p.topicFor(path)
	payload := fmt.Sprintf("%v", value)

	token := p.client.Publish(topic, p.cfg.QoS, p.cfg.Retained, payload)
	if token.Wait() && token.Error() != nil {
		p.log.Warnw("mqtt publish failed", "topic", topic, "error", token.Error())
		return token.Error()
	}
	return nil
}

func (p *Publisher) shouldPublish(path string) bool {
	if p.allow == nil {
		return true
	}
	_, ok := p.allow[path]
	return ok
}

func (p *Publisher) topicFor(path string) string {
	return p.cfg.Prefix + strings.TrimPrefix(path, "/")
}

// Close disconnects the underlying MQTT client.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
