package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/polisai/polis-expose/internal/exposure"
	tlsres "github.com/polisai/polis-expose/internal/tls"
	"github.com/polisai/polis-expose/pkg/config"
	"github.com/polisai/polis-expose/pkg/discovery"
	"github.com/polisai/polis-expose/pkg/logging"
)

// loadConfig loads the dotenv file, the YAML file and the environment, then
// applies the command line flags on top.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	if cli.EnvFile != "" {
		if err := godotenv.Load(cli.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", cli.EnvFile, err)
		}
	}

	cfg, err := config.Load(cli.ConfigPath)
	if err != nil {
		return nil, err
	}

	if cli.Host != "" {
		cfg.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		cfg.Server.Port = cli.Port
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = cli.LogLevel
	}
	if cli.TLSCert != "" {
		cfg.TLS.CertFile = cli.TLSCert
	}
	if cli.TLSKey != "" {
		cfg.TLS.KeyFile = cli.TLSKey
	}
	if cli.TLSCA != "" {
		cfg.TLS.CAFile = cli.TLSCA
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.SetupLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
}

// loadOverride reads the certificate override files. A partial override is
// returned as is so the resolver reports what is missing.
func loadOverride(cfg config.TLSConfig) (*tlsres.CertificateMaterial, error) {
	if !cfg.HasOverride() {
		return nil, nil
	}

	var material tlsres.CertificateMaterial
	for _, f := range []struct {
		path string
		dst  *[]byte
	}{
		{cfg.CertFile, &material.Cert},
		{cfg.KeyFile, &material.Key},
		{cfg.CAFile, &material.CA},
	} {
		if f.path == "" {
			continue
		}
		//nolint:gosec // Certificate paths are controlled by the operator
		data, err := os.ReadFile(f.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read certificate override: %w", err)
		}
		*f.dst = data
	}

	return &material, nil
}

// components is everything a plan needs, built from configuration.
type components struct {
	cfg        *config.Config
	logger     *slog.Logger
	provider   *tlsres.FileProvider
	resolver   *tlsres.Resolver
	tlsMetrics *tlsres.TLSMetricsCollector
	discovery  discovery.Resolver
	metrics    *exposure.Metrics
	planner    *exposure.Planner
	override   *tlsres.CertificateMaterial
}

func buildComponents(cfg *config.Config, logger *slog.Logger, transport exposure.Transport) (*components, error) {
	tlsMetrics, err := tlsres.GetTLSMetricsCollector(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS metrics: %w", err)
	}

	override, err := loadOverride(cfg.TLS)
	if err != nil {
		return nil, err
	}

	env := cfg.Env()
	provider := tlsres.NewFileProvider(cfg.TLS.Dir, cfg.TLS.MinVersion, logger)
	resolver := tlsres.NewResolver(provider, env,
		tlsres.WithLogger(logger),
		tlsres.WithMetrics(tlsMetrics),
	)

	disc, err := discovery.New(discovery.ParseMode(cfg.Exposure.ServiceDiscovery), cfg.Consul, logger)
	if err != nil {
		return nil, err
	}

	metrics := exposure.NewMetrics()
	planner, err := exposure.NewPlanner(disc, resolver, transport, exposure.OptionsFromEnv(env),
		exposure.WithLogger(logger),
		exposure.WithMetrics(metrics),
		exposure.WithTLSMetrics(tlsMetrics),
	)
	if err != nil {
		return nil, err
	}

	return &components{
		cfg:        cfg,
		logger:     logger,
		provider:   provider,
		resolver:   resolver,
		tlsMetrics: tlsMetrics,
		discovery:  disc,
		metrics:    metrics,
		planner:    planner,
		override:   override,
	}, nil
}

func (c *components) planRequest(handler http.Handler) exposure.PlanRequest {
	return exposure.PlanRequest{
		Handler:        handler,
		Host:           c.cfg.Server.Host,
		Port:           c.cfg.Server.Port,
		TLSCert:        c.override,
		RequestTimeout: c.cfg.Server.RequestTimeout,
		HeadersTimeout: c.cfg.Server.HeadersTimeout,
	}
}
