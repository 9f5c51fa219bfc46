package tls

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"github.com/polisai/polis-expose/pkg/config"
)

// Material sources reported in logs and metrics.
const (
	SourceOverride = "override"
	SourceProvider = "provider"
)

// Resolver produces the TLS configuration shared by all encrypted listeners.
//
// The first successful Resolve call fixes the configuration for the lifetime
// of the Resolver; every later call returns the same *TLSConfig whatever
// override it is given. Failed resolutions are not cached.
type Resolver struct {
	provider CertificateProvider
	env      config.Env
	logger   *TLSLogger
	metrics  *TLSMetricsCollector

	mu       sync.Mutex
	resolved *TLSConfig
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLogger sets the logger used for resolution events.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = NewTLSLogger(logger)
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *TLSMetricsCollector) ResolverOption {
	return func(r *Resolver) {
		r.metrics = metrics
	}
}

// NewResolver creates a Resolver backed by provider. env supplies the
// TLS_CIPHERS override; a nil env reads the process environment.
func NewResolver(provider CertificateProvider, env config.Env, opts ...ResolverOption) *Resolver {
	if env == nil {
		env = config.OSEnv{}
	}
	r := &Resolver{
		provider: provider,
		env:      env,
		logger:   NewTLSLogger(nil),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the process TLS configuration, building it on first use.
//
// An override must carry both key and certificate; a missing key is reported
// before a missing certificate. Without an override the material comes from
// the certificate provider. A CA in the material turns on mutual TLS.
func (r *Resolver) Resolve(ctx context.Context, override *CertificateMaterial) (*TLSConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved != nil {
		return r.resolved, nil
	}

	if override != nil {
		if len(override.Key) == 0 {
			return nil, missingMaterialError("tls_key", "TLS key is missing")
		}
		if len(override.Cert) == 0 {
			return nil, missingMaterialError("tls_cert", "TLS certificate is missing")
		}
	}

	if r.provider == nil {
		return nil, config.NewConfigMissingError("certificate_provider")
	}

	var material CertificateMaterial
	source := SourceOverride
	if override != nil {
		material = CertificateMaterial{
			Cert: bytes.Clone(override.Cert),
			Key:  bytes.Clone(override.Key),
			CA:   bytes.Clone(override.CA),
		}
	} else {
		source = SourceProvider
		var err error
		material, err = r.provider.DefaultCertificate(ctx)
		if err != nil {
			r.metrics.RecordProviderError(ctx, "default_certificate")
			return nil, err
		}
	}

	ciphers := r.env.Get(config.EnvTLSCiphers, "")
	if ciphers != "" {
		var warnings []string
		if ids, err := ParseCipherSuites(ciphers); err == nil {
			warnings = CipherSecurityWarnings(ids)
		}
		r.logger.LogCiphersOverride(ctx, ciphers, warnings)
	}

	minVersion, err := r.provider.MinimumTLSVersion(ctx)
	if err != nil {
		r.metrics.RecordProviderError(ctx, "minimum_tls_version")
		return nil, err
	}

	cfg := &TLSConfig{
		Cert:       material.Cert,
		Key:        material.Key,
		CA:         material.CA,
		Ciphers:    ciphers,
		MinVersion: minVersion,
	}

	if material.HasCA() {
		cfg.RejectUnauthorized = true
		cfg.RequestCert = true
	}

	r.resolved = cfg
	r.logger.LogConfigResolved(ctx, cfg, source)
	r.metrics.RecordResolution(ctx, source)

	return cfg, nil
}

// Resolved returns the cached configuration, if any.
func (r *Resolver) Resolved() (*TLSConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved, r.resolved != nil
}

func missingMaterialError(field, reason string) *config.ConfigError {
	return &config.ConfigError{
		Field:       field,
		Reason:      reason,
		Suggestions: []string{"Provide both the certificate and the private key when overriding TLS material"},
	}
}
