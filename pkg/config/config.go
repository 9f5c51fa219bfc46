// Package config provides configuration structures and loading logic for the exposure layer.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultHost          = "localhost"
	DefaultPort          = 3000
	DefaultConsulAddress = "http://localhost:8500"
	DefaultTLSMinVersion = "TLSv1.2"
	DefaultServiceName   = "polis-expose"
)

// Config holds the global configuration for the exposure layer.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Exposure  ExposureConfig  `yaml:"exposure"`
	TLS       TLSConfig       `yaml:"tls"`
	Consul    ConsulConfig    `yaml:"consul"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds the bind address and per-server timeouts.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	HeadersTimeout time.Duration `yaml:"headers_timeout"`
}

// ExposureConfig selects the encryption policy and discovery mode.
type ExposureConfig struct {
	TLSUnprotected   string `yaml:"tls_unprotected"`
	ServiceDiscovery string `yaml:"service_discovery"`
}

// TLSConfig locates certificate material. Dir feeds the default certificate
// provider; CertFile/KeyFile/CAFile form an explicit override.
type TLSConfig struct {
	Dir        string `yaml:"dir"`
	MinVersion string `yaml:"min_version"`
	Ciphers    string `yaml:"ciphers"`
	CertFile   string `yaml:"cert_file,omitempty"`
	KeyFile    string `yaml:"key_file,omitempty"`
	CAFile     string `yaml:"ca_file,omitempty"`
}

// HasOverride reports whether any override file is configured.
func (c TLSConfig) HasOverride() bool {
	return c.CertFile != "" || c.KeyFile != "" || c.CAFile != ""
}

// ConsulConfig configures the registry agent used for address discovery.
type ConsulConfig struct {
	Address    string `yaml:"address"`
	Token      string `yaml:"token"`
	Datacenter string `yaml:"datacenter"`
}

// TelemetryConfig holds configuration for OpenTelemetry.
type TelemetryConfig struct {
	ServiceName        string            `yaml:"service_name"`
	OTLPEndpoint       string            `yaml:"otlp_endpoint"`
	Insecure           bool              `yaml:"insecure"`
	Environment        string            `yaml:"environment"`
	Headers            map[string]string `yaml:"headers"`
	ResourceAttributes map[string]string `yaml:"resource_attributes"`
}

// LoggingConfig holds configuration for logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns a configuration populated with built-in defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		TLS: TLSConfig{
			MinVersion: DefaultTLSMinVersion,
		},
		Consul: ConsulConfig{
			Address: DefaultConsulAddress,
		},
		Telemetry: TelemetryConfig{
			ServiceName: DefaultServiceName,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, OSEnv{})
}

// LoadWithEnv is Load with an explicit environment source.
func LoadWithEnv(path string, env Env) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // Config file path is controlled by admin/operator
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg, env); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config, env Env) error {
	cfg.Server.Host = env.Get(EnvServiceHost, cfg.Server.Host)
	if val := env.Get(EnvServicePort, ""); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return NewConfigValidationError("server.port", val, "port must be an integer")
		}
		cfg.Server.Port = port
	}
	if val := env.Get(EnvRequestTimeout, ""); val != "" {
		d, err := parseTimeout(val)
		if err != nil {
			return NewConfigValidationError("server.request_timeout", val, err.Error())
		}
		cfg.Server.RequestTimeout = d
	}
	if val := env.Get(EnvHeadersTimeout, ""); val != "" {
		d, err := parseTimeout(val)
		if err != nil {
			return NewConfigValidationError("server.headers_timeout", val, err.Error())
		}
		cfg.Server.HeadersTimeout = d
	}

	cfg.Exposure.TLSUnprotected = env.Get(EnvTLSUnprotected, cfg.Exposure.TLSUnprotected)
	cfg.Exposure.ServiceDiscovery = env.Get(EnvServiceDiscovery, cfg.Exposure.ServiceDiscovery)

	cfg.TLS.Dir = env.Get(EnvTLSDir, cfg.TLS.Dir)
	cfg.TLS.MinVersion = env.Get(EnvTLSMinVersion, cfg.TLS.MinVersion)
	cfg.TLS.Ciphers = env.Get(EnvTLSCiphers, cfg.TLS.Ciphers)
	cfg.TLS.CertFile = env.Get(EnvTLSCertFile, cfg.TLS.CertFile)
	cfg.TLS.KeyFile = env.Get(EnvTLSKeyFile, cfg.TLS.KeyFile)
	cfg.TLS.CAFile = env.Get(EnvTLSCAFile, cfg.TLS.CAFile)

	cfg.Consul.Address = env.Get(EnvConsulURL, cfg.Consul.Address)
	cfg.Consul.Token = env.Get(EnvConsulToken, cfg.Consul.Token)
	cfg.Consul.Datacenter = env.Get(EnvConsulDatacenter, cfg.Consul.Datacenter)

	cfg.Telemetry.OTLPEndpoint = env.Get(EnvOTLPEndpoint, cfg.Telemetry.OTLPEndpoint)
	if val := env.Get(EnvOTLPInsecure, ""); val == "true" {
		cfg.Telemetry.Insecure = true
	}
	cfg.Telemetry.Environment = env.Get(EnvDeploymentEnvironment, cfg.Telemetry.Environment)
	if val := env.Get(EnvOTLPHeaders, ""); val != "" {
		headers, err := parseKeyValues(val)
		if err != nil {
			return NewConfigValidationError("telemetry.headers", val, err.Error())
		}
		cfg.Telemetry.Headers = mergeKeyValues(cfg.Telemetry.Headers, headers)
	}
	if val := env.Get(EnvOTelResourceAttributes, ""); val != "" {
		attrs, err := parseKeyValues(val)
		if err != nil {
			return NewConfigValidationError("telemetry.resource_attributes", val, err.Error())
		}
		cfg.Telemetry.ResourceAttributes = mergeKeyValues(cfg.Telemetry.ResourceAttributes, attrs)
	}

	cfg.Logging.Level = env.Get(EnvLogLevel, cfg.Logging.Level)
	if val := env.Get(EnvLogPretty, ""); val == "true" {
		cfg.Logging.Pretty = true
	}

	return nil
}

// parseKeyValues parses the OTel list format "k1=v1,k2=v2". Blank entries
// are skipped.
func parseKeyValues(val string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(val, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid key=value pair %q", pair)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}

// mergeKeyValues copies overrides on top of base without mutating base.
func mergeKeyValues(base, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// parseTimeout accepts Go durations and bare integers in milliseconds.
func parseTimeout(val string) (time.Duration, error) {
	if ms, err := strconv.Atoi(val); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", val)
	}
	return d, nil
}

// Env exposes the resolved configuration through the Env lookup so that
// components reading keys at runtime observe file values as well as the
// process environment.
func (c *Config) Env() Env {
	return MapEnv{
		EnvTLSUnprotected:   c.Exposure.TLSUnprotected,
		EnvServiceDiscovery: c.Exposure.ServiceDiscovery,
		EnvTLSCiphers:       c.TLS.Ciphers,
		EnvTLSDir:           c.TLS.Dir,
		EnvTLSMinVersion:    c.TLS.MinVersion,
	}
}

// Validate performs validation of the entire configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server configuration: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}

	return nil
}

// Validate performs validation of server configuration
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return NewConfigValidationError("server.port", c.Port, "port must be between 1 and 65535")
	}
	if c.RequestTimeout < 0 {
		return NewConfigValidationError("server.request_timeout", c.RequestTimeout, "timeout must not be negative")
	}
	if c.HeadersTimeout < 0 {
		return NewConfigValidationError("server.headers_timeout", c.HeadersTimeout, "timeout must not be negative")
	}
	return nil
}

// Validate performs validation of logging configuration
func (c *LoggingConfig) Validate() error {
	if strings.TrimSpace(c.Level) == "" {
		c.Level = "info"
	}

	level := strings.TrimSpace(strings.ToLower(c.Level))
	switch level {
	case "debug", "info", "warn", "error":
		c.Level = level
		return nil
	default:
		return NewConfigValidationError("logging.level", c.Level, "supported levels: debug, info, warn, error")
	}
}
