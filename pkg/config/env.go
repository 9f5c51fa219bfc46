package config

import "os"

// Environment keys recognised by the exposure layer.
const (
	EnvTLSUnprotected   = "TLS_UNPROTECTED"
	EnvServiceDiscovery = "SERVICE_DISCOVERY"
	EnvTLSCiphers       = "TLS_CIPHERS"
	EnvTLSDir           = "TLS_DIR"
	EnvTLSMinVersion    = "TLS_MIN_VERSION"
	EnvTLSCertFile      = "TLS_CERT_FILE"
	EnvTLSKeyFile       = "TLS_KEY_FILE"
	EnvTLSCAFile        = "TLS_CA_FILE"
	EnvServiceHost      = "SERVICE_HOST"
	EnvServicePort      = "SERVICE_PORT"
	EnvRequestTimeout   = "REQUEST_TIMEOUT"
	EnvHeadersTimeout   = "HEADERS_TIMEOUT"
	EnvConsulURL        = "CONSUL_URL"
	EnvConsulToken      = "CONSUL_TOKEN"
	EnvConsulDatacenter = "CONSUL_DATACENTER"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogPretty        = "LOG_PRETTY"
	EnvOTLPEndpoint     = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure     = "OTEL_EXPORTER_OTLP_INSECURE"
	EnvOTLPHeaders      = "OTEL_EXPORTER_OTLP_HEADERS"

	EnvOTelResourceAttributes = "OTEL_RESOURCE_ATTRIBUTES"
	EnvDeploymentEnvironment  = "DEPLOYMENT_ENVIRONMENT"
)

// Env is a key lookup with a fallback for unset keys.
type Env interface {
	Get(key, fallback string) string
}

// OSEnv reads the process environment. Empty values count as unset.
type OSEnv struct{}

func (OSEnv) Get(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

// MapEnv is a fixed set of values, typically used in tests.
type MapEnv map[string]string

func (m MapEnv) Get(key, fallback string) string {
	if val, ok := m[key]; ok && val != "" {
		return val
	}
	return fallback
}
