package exposure

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	tlsres "github.com/polisai/polis-expose/internal/tls"
	"github.com/polisai/polis-expose/pkg/config"
	"github.com/polisai/polis-expose/pkg/discovery"
)

// InterfacePlan is one interface ready to be started.
type InterfacePlan struct {
	Host   string
	Port   int
	Server Server
}

// Address returns host:port for Listen.
func (p InterfacePlan) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// NetworkInterfaces maps interface names to plans. Dropped interfaces are
// absent, and a successful plan always holds at least one entry.
type NetworkInterfaces map[Interface]InterfacePlan

// External returns the external plan if present.
func (n NetworkInterfaces) External() (InterfacePlan, bool) {
	p, ok := n[InterfaceExternal]
	return p, ok
}

// Local returns the local plan if present.
func (n NetworkInterfaces) Local() (InterfacePlan, bool) {
	p, ok := n[InterfaceLocal]
	return p, ok
}

// Ordered returns the interfaces in start order: external, then local.
func (n NetworkInterfaces) Ordered() []Interface {
	order := make([]Interface, 0, 2)
	for _, name := range []Interface{InterfaceExternal, InterfaceLocal} {
		if _, ok := n[name]; ok {
			order = append(order, name)
		}
	}
	return order
}

// PlanRequest holds the per-call inputs of Plan.
type PlanRequest struct {
	Handler http.Handler
	Host    string
	Port    int
	// TLSCert overrides the provider's default certificate material.
	TLSCert *tlsres.CertificateMaterial

	// Zero means no timeout.
	RequestTimeout time.Duration
	HeadersTimeout time.Duration
}

// Planner decides which interfaces to expose and creates their servers.
type Planner struct {
	discovery discovery.Resolver
	resolver  TLSResolver
	transport Transport

	policy Policy
	mode   discovery.Mode

	logger     *slog.Logger
	tlsLogger  *tlsres.TLSLogger
	metrics    *Metrics
	tlsMetrics *tlsres.TLSMetricsCollector
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithLogger sets the planner logger.
func WithLogger(logger *slog.Logger) PlannerOption {
	return func(p *Planner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMetrics enables Prometheus metrics.
func WithMetrics(m *Metrics) PlannerOption {
	return func(p *Planner) {
		p.metrics = m
	}
}

// WithTLSMetrics also counts client TLS errors in the OpenTelemetry
// collector.
func WithTLSMetrics(m *tlsres.TLSMetricsCollector) PlannerOption {
	return func(p *Planner) {
		p.tlsMetrics = m
	}
}

// NewPlanner creates a planner. disc is required. resolver may be nil when
// no encrypted interface is ever planned. A nil transport uses
// HTTPTransport.
func NewPlanner(disc discovery.Resolver, resolver TLSResolver, transport Transport, opts Options, plannerOpts ...PlannerOption) (*Planner, error) {
	if disc == nil {
		return nil, config.NewConfigMissingError("discovery")
	}

	policy, err := ParsePolicy(opts.Policy)
	if err != nil {
		return nil, err
	}

	p := &Planner{
		discovery: disc,
		resolver:  resolver,
		transport: transport,
		policy:    policy,
		mode:      discovery.ParseMode(opts.Discovery),
		logger:    slog.Default(),
	}
	for _, opt := range plannerOpts {
		opt(p)
	}

	p.tlsLogger = tlsres.NewTLSLogger(p.logger)
	p.logger = p.logger.With("component", "exposure")
	if p.transport == nil {
		p.transport = NewHTTPTransport(p.logger)
	}

	return p, nil
}

// Policy returns the parsed encryption policy.
func (p *Planner) Policy() Policy {
	return p.policy
}

// Mode returns the discovery mode.
func (p *Planner) Mode() discovery.Mode {
	return p.mode
}

// Plan resolves the external address, decides the topology and creates one
// server per surviving interface. Collaborator errors are returned as is.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) (NetworkInterfaces, error) {
	ifaces, err := p.plan(ctx, req)
	p.metrics.RecordPlan(p.policy, string(p.mode), err)
	return ifaces, err
}

func (p *Planner) plan(ctx context.Context, req PlanRequest) (NetworkInterfaces, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	logger := p.logger.With("plan_id", uuid.NewString())

	host := req.Host
	if ListenToAllInterfaces(p.policy, p.mode) {
		host = WildcardHost
	}

	address, err := p.discovery.ExternalAddress(ctx, host)
	if err != nil {
		return nil, err
	}

	topo, err := DecideTopology(p.policy, p.mode, ClassifyAddress(address))
	if err != nil {
		return nil, err
	}
	logger.Debug("Exposure topology decided",
		"policy", p.policy,
		"mode", p.mode,
		"address", address,
		"topology", topo.Name())

	p.logPolicy(ctx, logger)

	var tlsConfig *tlsres.TLSConfig
	if (topo.External && topo.ExternalTLS) || (topo.Local && topo.LocalTLS) {
		if p.resolver == nil {
			return nil, config.NewConfigMissingError("tls_resolver")
		}
		tlsConfig, err = p.resolver.Resolve(ctx, req.TLSCert)
		if err != nil {
			return nil, err
		}
	}

	ifaces := make(NetworkInterfaces, 2)

	if topo.External {
		server, err := p.newServer(ctx, logger, InterfaceExternal, req, topo.ExternalTLS, tlsConfig)
		if err != nil {
			return nil, err
		}
		ifaces[InterfaceExternal] = InterfacePlan{Host: address, Port: req.Port, Server: server}
	} else {
		logger.InfoContext(ctx, "Only local connections are allowed. Do not start external http server.")
	}

	if topo.Local {
		server, err := p.newServer(ctx, logger, InterfaceLocal, req, topo.LocalTLS, tlsConfig)
		if err != nil {
			return nil, err
		}
		ifaces[InterfaceLocal] = InterfacePlan{Host: LoopbackHost, Port: req.Port, Server: server}
	} else {
		logger.InfoContext(ctx, "Listen to all network interfaces. Do not start extra local http server.")
	}

	return ifaces, nil
}

func validateRequest(req PlanRequest) error {
	if req.Handler == nil {
		return config.NewConfigMissingError("app")
	}
	if req.Port == 0 {
		return config.NewConfigMissingError("port")
	}
	if req.Port < 0 || req.Port > 65535 {
		return config.NewConfigValidationError("port", req.Port, "port must be between 1 and 65535")
	}
	if req.RequestTimeout < 0 {
		return config.NewConfigValidationError("request_timeout", req.RequestTimeout, "timeout must not be negative")
	}
	if req.HeadersTimeout < 0 {
		return config.NewConfigValidationError("headers_timeout", req.HeadersTimeout, "timeout must not be negative")
	}
	return nil
}

func (p *Planner) logPolicy(ctx context.Context, logger *slog.Logger) {
	switch p.policy {
	case PolicyEncryptedOnly:
		logger.InfoContext(ctx, "All connections are encrypted via HTTPS.")
	case PolicyLoopbackPlaintext:
		logger.InfoContext(ctx, "HTTP and HTTPS is used. Local connections are not encrypted!")
	case PolicyAllPlaintext:
		logger.WarnContext(ctx, "Only HTTP is used. No connection is encrypted!")
	}
}

func (p *Planner) newServer(ctx context.Context, logger *slog.Logger, iface Interface, req PlanRequest, encrypted bool, cfg *tlsres.TLSConfig) (Server, error) {
	var (
		server Server
		err    error
	)
	if encrypted {
		server, err = p.transport.NewTLSServer(req.Handler, cfg)
	} else {
		server, err = p.transport.NewPlainServer(req.Handler)
	}
	if err != nil {
		return nil, err
	}

	server.SetRequestTimeout(req.RequestTimeout)
	server.SetHeadersTimeout(req.HeadersTimeout)

	if encrypted {
		server.OnClientError(p.clientErrorObserver(iface))
	}

	p.metrics.RecordInterface(iface, encrypted)
	logger.DebugContext(ctx, "Server created", "interface", iface, "encrypted", encrypted)
	return server, nil
}

// clientErrorObserver logs and counts client TLS failures. They never reach
// the caller.
func (p *Planner) clientErrorObserver(iface Interface) ClientErrorHandler {
	return func(remoteAddr string, err error) {
		ctx := context.Background()
		p.tlsLogger.LogClientError(ctx, string(iface), remoteAddr, err)
		p.tlsMetrics.RecordClientError(ctx, string(iface))
		p.metrics.RecordClientError(iface)
	}
}
