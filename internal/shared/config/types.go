package config

import "fmt"

// ServerConfig configures the broker's inbound transports.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	TLSCertFile    string   `mapstructure:"tls_cert_file"`
	TLSKeyFile     string   `mapstructure:"tls_key_file"`
	Insecure       bool     `mapstructure:"insecure"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatasetConfig locates the VSS tree spec and its overlays.
type DatasetConfig struct {
	SpecFile    string `mapstructure:"spec_file"`
	OverlayDir  string `mapstructure:"overlay_dir"`
}

// LoggerConfig configures the zap-backed structured logger.
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// AuthConfig configures bearer-token verification.
type AuthConfig struct {
	JWTPublicKeyFile string `mapstructure:"jwt_public_key_file"`
}

// MQTTConfig configures the optional MQTT mirror publisher.
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BrokerURL   string `mapstructure:"broker_url"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Insecure    bool   `mapstructure:"insecure"`
}

// RedisConfig configures the optional cross-instance mirror publisher.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SubscriptionConfig tunes the subscription engine's ingestion queue.
type SubscriptionConfig struct {
	QueueCapacity int `mapstructure:"queue_capacity"`
}
