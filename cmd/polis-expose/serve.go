package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"

	"github.com/polisai/polis-expose/internal/exposure"
	tlsres "github.com/polisai/polis-expose/internal/tls"
	"github.com/polisai/polis-expose/pkg/discovery"
	"github.com/polisai/polis-expose/pkg/telemetry"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Plan the exposure, start the listeners and serve until interrupted",
		RunE:  runServe,
	}
	addPlanFlags(cmd)
	cmd.Flags().Bool("register", false, "Register the external interface with the Consul agent (registry mode only)")
	cmd.Flags().Duration("shutdown-timeout", defaultShutdownTimeout, "Graceful shutdown deadline")
	return cmd
}

// newHandler is the demo application served on every interface.
func newHandler(metrics *exposure.Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "version": version})
	})
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		encrypted := r.TLS != nil
		fmt.Fprintf(w, "polis-expose %s (encrypted=%t)\n", version, encrypted)
	})

	return otelhttp.NewHandler(metrics.Middleware(mux), "polis-expose")
}

func runServe(cmd *cobra.Command, args []string) error {
	cli, err := parseCLIConfig(cmd)
	if err != nil {
		return err
	}
	register, err := cmd.Flags().GetBool("register")
	if err != nil {
		return fmt.Errorf("failed to get register flag: %w", err)
	}
	shutdownTimeout, err := cmd.Flags().GetDuration("shutdown-timeout")
	if err != nil {
		return fmt.Errorf("failed to get shutdown-timeout flag: %w", err)
	}

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupProvider(ctx, telemetry.FromConfig(cfg.Telemetry))
	if err != nil {
		logger.Error("Failed to initialise tracing", "error", err)
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", "error", err)
		}
	}()

	c, err := buildComponents(cfg, logger, exposure.NewHTTPTransport(logger))
	if err != nil {
		logger.Error("Failed to build exposure components", "error", err)
		return err
	}

	started := time.Now()
	ifaces, err := c.plan(ctx, cli.StartupTimeout, newHandler(c.metrics))
	if err != nil {
		c.recordStartup(ctx, nil, telemetry.OutcomePlanFailed, started)
		logger.Error("Failed to plan network interfaces", "error", err)
		return err
	}

	if err := exposure.Start(ctx, ifaces, logger, c.metrics); err != nil {
		c.recordStartup(ctx, ifaces, telemetry.OutcomeBindFailed, started)
		// Start leaves already bound listeners running.
		_ = closeInterfaces(ifaces, c, shutdownTimeout)
		return err
	}
	c.recordStartup(ctx, ifaces, telemetry.OutcomeStarted, started)

	watcher, err := c.watchCertificates(ctx, ifaces)
	if err != nil {
		logger.Warn("Certificate directory is not watched", "error", err)
	}
	if watcher != nil {
		defer func() { _ = watcher.Stop() }()
	}

	var serviceID string
	if register {
		serviceID, err = c.register(ctx, ifaces)
		if err != nil {
			logger.Error("Failed to register service", "error", err)
			_ = closeInterfaces(ifaces, c, shutdownTimeout)
			return err
		}
	}

	logger.Info("polis-expose is running", "interfaces", len(ifaces))
	<-ctx.Done()
	logger.Info("Received shutdown signal")

	if serviceID != "" {
		c.deregister(serviceID, shutdownTimeout)
	}

	if err := closeInterfaces(ifaces, c, shutdownTimeout); err != nil {
		logger.Error("Error during shutdown", "error", err)
		return err
	}

	logger.Info("polis-expose stopped")
	return nil
}

// plan runs the planner under the startup deadline inside a trace span.
func (c *components) plan(ctx context.Context, timeout time.Duration, handler http.Handler) (exposure.NetworkInterfaces, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx, span := otel.Tracer("polis-expose").Start(ctx, "exposure.plan")
	defer span.End()

	ifaces, err := c.planner.Plan(ctx, c.planRequest(handler))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	report := exposure.NewReport(c.planner.Policy(), c.planner.Mode(), ifaces)
	decision := telemetry.ExposureDecision{
		Policy:    string(report.Policy),
		Discovery: string(report.Discovery),
		Topology:  report.Topology,
	}
	if resolved, ok := c.resolver.Resolved(); ok {
		decision.MutualTLS = resolved.RequestCert
	}
	for _, iface := range report.Interfaces {
		decision.Interfaces = append(decision.Interfaces, string(iface.Name))
		if iface.Encrypted {
			decision.Encrypted = append(decision.Encrypted, string(iface.Name))
		}
		if iface.Name == exposure.InterfaceExternal {
			decision.Address = iface.Address
		}
	}
	telemetry.RecordExposureDecision(span, decision)

	return ifaces, nil
}

func (c *components) recordStartup(ctx context.Context, ifaces exposure.NetworkInterfaces, outcome string, started time.Time) {
	metrics := telemetry.StartupMetrics{
		Policy:    string(c.planner.Policy()),
		Discovery: string(c.planner.Mode()),
		Outcome:   outcome,
		Duration:  time.Since(started),
	}
	if ifaces != nil {
		metrics.Topology = exposure.NewReport(c.planner.Policy(), c.planner.Mode(), ifaces).Topology
		for _, name := range ifaces.Ordered() {
			metrics.Interfaces = append(metrics.Interfaces, telemetry.InterfaceMetrics{
				Name:      string(name),
				Encrypted: ifaces[name].Server.Encrypted(),
			})
		}
	}
	telemetry.RecordStartup(ctx, metrics)
}

// watchCertificates watches the provider directory when an encrypted
// interface uses the provider's material.
func (c *components) watchCertificates(ctx context.Context, ifaces exposure.NetworkInterfaces) (*tlsres.CertificateWatcher, error) {
	if c.provider.Dir() == "" || c.override != nil {
		return nil, nil
	}

	encrypted := false
	for _, plan := range ifaces {
		encrypted = encrypted || plan.Server.Encrypted()
	}
	if !encrypted {
		return nil, nil
	}

	watcher, err := tlsres.NewCertificateWatcher(c.provider.Dir(), nil, c.tlsMetrics, c.logger)
	if err != nil {
		return nil, err
	}
	if err := watcher.Start(ctx); err != nil {
		return nil, err
	}
	return watcher, nil
}

// register announces the external interface to the Consul agent.
func (c *components) register(ctx context.Context, ifaces exposure.NetworkInterfaces) (string, error) {
	consul, ok := c.discovery.(*discovery.Consul)
	if !ok {
		return "", fmt.Errorf("service registration requires %s discovery", discovery.ModeRegistry)
	}

	plan, ok := ifaces.External()
	if !ok {
		c.logger.Info("No external interface, skipping service registration")
		return "", nil
	}

	scheme := "http"
	if plan.Server.Encrypted() {
		scheme = "https"
	}

	reg := discovery.Registration{
		ID:        fmt.Sprintf("%s-%s", c.cfg.Telemetry.ServiceName, uuid.NewString()),
		Name:      c.cfg.Telemetry.ServiceName,
		Address:   plan.Host,
		Port:      plan.Port,
		Tags:      []string{string(c.planner.Policy())},
		HealthURL: fmt.Sprintf("%s://%s/health", scheme, plan.Address()),
		Encrypted: plan.Server.Encrypted(),
	}

	err := consul.Register(ctx, reg)
	telemetry.RecordRegistration(ctx, "register", err)
	if err != nil {
		return "", err
	}
	return reg.ID, nil
}

func (c *components) deregister(serviceID string, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	consul, ok := c.discovery.(*discovery.Consul)
	if !ok {
		return
	}
	err := consul.Deregister(ctx, serviceID)
	telemetry.RecordRegistration(ctx, "deregister", err)
	if err != nil {
		c.logger.Warn("Failed to deregister service", "service_id", serviceID, "error", err)
	}
}

func closeInterfaces(ifaces exposure.NetworkInterfaces, c *components, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return exposure.Close(ctx, ifaces, c.metrics)
}
