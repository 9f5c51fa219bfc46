package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	consulapi "github.com/hashicorp/consul/api"

	"github.com/polisai/polis-expose/pkg/config"
)

// Consul resolves addresses through the local Consul agent.
type Consul struct {
	client *consulapi.Client
	logger *slog.Logger
}

// NewConsul creates a Consul-backed resolver. No request is made until the
// first lookup.
func NewConsul(cfg config.ConsulConfig, logger *slog.Logger) (*Consul, error) {
	if logger == nil {
		logger = slog.Default()
	}

	apiCfg := consulapi.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	if cfg.Token != "" {
		apiCfg.Token = cfg.Token
	}
	if cfg.Datacenter != "" {
		apiCfg.Datacenter = cfg.Datacenter
	}

	client, err := consulapi.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create consul client: %w", err)
	}

	return &Consul{
		client: client,
		logger: logger.With("component", "discovery", "mode", string(ModeRegistry)),
	}, nil
}

// ExternalAddress returns preferredHost when it names a concrete host.
// Otherwise it asks the agent for the address it advertises to the cluster.
func (c *Consul) ExternalAddress(ctx context.Context, preferredHost string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Mode: ModeRegistry, Host: preferredHost, Cause: err}
	}

	if preferredHost != "" && !IsWildcard(preferredHost) {
		return preferredHost, nil
	}

	var self map[string]map[string]interface{}
	q := (&consulapi.QueryOptions{}).WithContext(ctx)
	if _, err := c.client.Raw().Query("/v1/agent/self", &self, q); err != nil {
		return "", &Error{Mode: ModeRegistry, Host: preferredHost, Cause: err}
	}

	address := advertiseAddress(self)
	if address == "" {
		return "", &Error{Mode: ModeRegistry, Host: preferredHost, Cause: errors.New("agent reported no advertise address")}
	}

	c.logger.Debug("Resolved external address from consul agent", "address", address)
	return address, nil
}

// advertiseAddress extracts the LAN address from an /v1/agent/self response.
func advertiseAddress(self map[string]map[string]interface{}) string {
	if member, ok := self["Member"]; ok {
		if addr, ok := member["Addr"].(string); ok && addr != "" {
			return addr
		}
	}
	for _, section := range []string{"DebugConfig", "Config"} {
		values, ok := self[section]
		if !ok {
			continue
		}
		for _, key := range []string{"AdvertiseAddrLAN", "AdvertiseAddr"} {
			if addr, ok := values[key].(string); ok && addr != "" {
				return addr
			}
		}
	}
	return ""
}

// Registration describes a service instance announced to the registry.
type Registration struct {
	ID      string
	Name    string
	Address string
	Port    int
	Tags    []string
	// HealthURL, when set, is polled by the agent.
	HealthURL string
	Encrypted bool
}

// Register announces the service to the local agent.
func (c *Consul) Register(ctx context.Context, reg Registration) error {
	if err := ctx.Err(); err != nil {
		return &Error{Mode: ModeRegistry, Op: "register", Service: reg.ID, Cause: err}
	}

	service := &consulapi.AgentServiceRegistration{
		ID:      reg.ID,
		Name:    reg.Name,
		Address: reg.Address,
		Port:    reg.Port,
		Tags:    reg.Tags,
		Meta: map[string]string{
			"encrypted": strconv.FormatBool(reg.Encrypted),
		},
	}
	if reg.HealthURL != "" {
		service.Check = &consulapi.AgentServiceCheck{
			HTTP:                           reg.HealthURL,
			TLSSkipVerify:                  reg.Encrypted,
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		}
	}

	opts := consulapi.ServiceRegisterOpts{}.WithContext(ctx)
	if err := c.client.Agent().ServiceRegisterOpts(service, opts); err != nil {
		return &Error{Mode: ModeRegistry, Op: "register", Service: reg.ID, Cause: err}
	}

	c.logger.Info("Service registered", "service_id", reg.ID, "address", reg.Address, "port", reg.Port)
	return nil
}

// Deregister removes a previously registered service instance.
func (c *Consul) Deregister(ctx context.Context, serviceID string) error {
	q := (&consulapi.QueryOptions{}).WithContext(ctx)
	if err := c.client.Agent().ServiceDeregisterOpts(serviceID, q); err != nil {
		return &Error{Mode: ModeRegistry, Op: "deregister", Service: serviceID, Cause: err}
	}

	c.logger.Info("Service deregistered", "service_id", serviceID)
	return nil
}
