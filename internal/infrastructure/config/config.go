package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "vssbroker/internal/shared/config"
)

// Config is the root configuration for the broker process.
type Config struct {
	Server       sharedConfig.ServerConfig       `mapstructure:"server"`
	Dataset      sharedConfig.DatasetConfig       `mapstructure:"dataset"`
	Logger       sharedConfig.LoggerConfig        `mapstructure:"logger"`
	Auth         sharedConfig.AuthConfig          `mapstructure:"auth"`
	MQTT         sharedConfig.MQTTConfig          `mapstructure:"mqtt"`
	Redis        sharedConfig.RedisConfig         `mapstructure:"redis"`
	Subscription sharedConfig.SubscriptionConfig  `mapstructure:"subscription"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load loads configuration from file and environment variables.
// If configPath is provided, it is used instead of the default search paths.
// The config file is optional - if not found, defaults and environment
// variables are used.
func Load(env string, configPath ...string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if len(configPath) > 0 && configPath[0] != "" {
		viper.SetConfigFile(configPath[0])
	} else {
		viper.AddConfigPath("./configs")
		viper.AddConfigPath("../configs")
		viper.AddConfigPath("../../configs")
	}

	viper.SetEnvPrefix("VSSBROKER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if env != "" && env != "default" {
		viper.Set("server.mode", env)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	appConfigMu.Lock()
	appConfig = &cfg
	appConfigMu.Unlock()

	return &cfg, nil
}

// Get returns the most recently loaded configuration, or nil if Load has
// not been called yet.
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8090)
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("server.allowed_origins", []string{})
	viper.SetDefault("server.insecure", true)

	viper.SetDefault("dataset.spec_file", "./vss/vss.json")
	viper.SetDefault("dataset.overlay_dir", "./vss/overlays")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.output_path", "stdout")

	viper.SetDefault("auth.jwt_public_key_file", "./certs/jwt.pub.pem")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker_url", "tcp://localhost:1883")
	viper.SetDefault("mqtt.client_id", "vssbroker")
	viper.SetDefault("mqtt.topic_prefix", "vehicle")
	viper.SetDefault("mqtt.qos", 0)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("subscription.queue_capacity", 1024)
}
