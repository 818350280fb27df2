// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SSLModes lists the libpq sslmode values accepted for Lakebase connections.
var SSLModes = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}

// Config holds application configuration loaded from the environment.
type Config struct {
	// EnableHeaderAuth installs proxy header-trust authentication. When false the
	// middleware and interceptor are not registered and no forwarded header is read.
	EnableHeaderAuth bool `mapstructure:"ENABLE_HEADER_AUTH"`
	// HTTPAddr is the address the chat front door listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTLPEndpoint is the OTLP collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext gRPC to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// AuditKafkaBrokers is a comma-separated list of Kafka brokers for audit events (optional).
	AuditKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuditKafkaTopic is the Kafka topic for audit events.
	AuditKafkaTopic string `mapstructure:"AUDIT_KAFKA_TOPIC"`

	// Provisioning (cmd/provision).
	// InstanceName is the Lakebase database instance to provision.
	InstanceName string `mapstructure:"LAKEBASE_INSTANCE_NAME"`
	// Port is the Postgres port of the instance.
	Port int `mapstructure:"LAKEBASE_PORT"`
	// Database is the Postgres database holding the chat schema.
	Database string `mapstructure:"LAKEBASE_DATABASE"`
	// AppName is the app whose service principal receives table grants.
	AppName string `mapstructure:"LAKEBASE_APP_NAME"`
	// SSLMode is the libpq sslmode; one of SSLModes.
	SSLMode string `mapstructure:"LAKEBASE_SSLMODE"`
	// ProvisionStepTimeout bounds each provisioning step (e.g. "5m"). "0" disables the bound.
	ProvisionStepTimeout string `mapstructure:"PROVISION_STEP_TIMEOUT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("ENABLE_HEADER_AUTH", false)
	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUDIT_KAFKA_TOPIC", "lakechat-audit")
	v.SetDefault("LAKEBASE_INSTANCE_NAME", "")
	v.SetDefault("LAKEBASE_PORT", 5432)
	v.SetDefault("LAKEBASE_DATABASE", "")
	v.SetDefault("LAKEBASE_APP_NAME", "bi-agent")
	v.SetDefault("LAKEBASE_SSLMODE", "require")
	v.SetDefault("PROVISION_STEP_TIMEOUT", "5m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if err := ValidateSSLMode(cfg.SSLMode); err != nil {
		return nil, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, errors.New("config: LAKEBASE_PORT must be between 1 and 65535")
	}
	if _, err := cfg.StepTimeout(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateSSLMode returns an error unless mode is one of SSLModes.
func ValidateSSLMode(mode string) error {
	for _, m := range SSLModes {
		if mode == m {
			return nil
		}
	}
	return fmt.Errorf("config: LAKEBASE_SSLMODE must be one of %s, got %q", strings.Join(SSLModes, ", "), mode)
}

// StepTimeout parses ProvisionStepTimeout. Zero means no bound.
func (c *Config) StepTimeout() (time.Duration, error) {
	s := strings.TrimSpace(c.ProvisionStepTimeout)
	if s == "" || s == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: PROVISION_STEP_TIMEOUT must be a non-negative duration, got %q", c.ProvisionStepTimeout)
	}
	return d, nil
}

// AuditKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the Kafka audit sink.
func (c *Config) AuditKafkaBrokersList() []string {
	if c == nil || c.AuditKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.AuditKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
