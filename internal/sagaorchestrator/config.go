// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package sagaorchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the orchestrator service configuration, loaded from
// saga-orchestrator.yaml and SAGA_* environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Storage   StorageConfig   `mapstructure:"storage" validate:"required"`
	Dedup     DedupConfig     `mapstructure:"dedup" validate:"required"`
	Messaging MessagingConfig `mapstructure:"messaging" validate:"required"`
	Retry     RetryConfig     `mapstructure:"retry" validate:"required"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the audit store backend.
type StorageConfig struct {
	// Type is "memory" or "postgres".
	Type string `mapstructure:"type" validate:"oneof=memory postgres"`

	// DSN is the PostgreSQL connection string, required for type=postgres.
	DSN string `mapstructure:"dsn" validate:"required_if=Type postgres"`
}

// DedupConfig selects the event dedup cache.
type DedupConfig struct {
	// Type is "memory" or "redis".
	Type string `mapstructure:"type" validate:"oneof=memory redis"`

	// Addr is the Redis host:port, required for type=redis.
	Addr     string        `mapstructure:"addr" validate:"required_if=Type redis"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db" validate:"min=0"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// MessagingConfig selects the participant gateway.
type MessagingConfig struct {
	// Mode is "inproc" or "kafka". inproc runs simulated participants in
	// process, for development and demos.
	Mode string `mapstructure:"mode" validate:"oneof=inproc kafka"`

	// Brokers lists Kafka bootstrap addresses, required for mode=kafka.
	Brokers []string `mapstructure:"brokers" validate:"required_if=Mode kafka"`

	// TopicPrefix namespaces command and event topics.
	TopicPrefix string `mapstructure:"topic_prefix"`

	// GroupID is the event consumer group.
	GroupID string `mapstructure:"group_id"`
}

// RetryConfig configures the default command dispatch retry policy.
type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"min=1"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	// Development switches to the human-readable console encoder.
	Development bool `mapstructure:"development"`
}

// LoadConfig reads the configuration from the given file (optional), the
// working directory and SAGA_* environment variables, applies defaults and
// validates the result.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("saga-orchestrator")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	v.SetEnvPrefix("SAGA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("storage.type", "memory")
	v.SetDefault("dedup.type", "memory")
	v.SetDefault("dedup.db", 0)
	v.SetDefault("dedup.ttl", 24*time.Hour)
	v.SetDefault("messaging.mode", "inproc")
	v.SetDefault("messaging.topic_prefix", "saga")
	v.SetDefault("messaging.group_id", "saga-orchestrator")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_delay", 100*time.Millisecond)
	v.SetDefault("retry.max_delay", 5*time.Second)
	v.SetDefault("logging.development", false)

	if err := v.ReadInConfig(); err != nil {
		// The file is optional; defaults plus env vars are a valid setup.
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validator.New().Struct(&config); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &config, nil
}
