// Package discovery resolves the address under which a service is reachable
// from outside the host.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/polisai/polis-expose/pkg/config"
)

// Mode selects how the external address is resolved.
type Mode string

const (
	// ModeRegistry resolves through the Consul agent. Services are bound
	// per interface so that they can be registered explicitly.
	ModeRegistry Mode = "registry"
	// ModeDirect uses the configured host as is.
	ModeDirect Mode = "direct"
)

// ParseMode maps a SERVICE_DISCOVERY value to a Mode. Empty, "registry" and
// "consul" select the registry; every other value selects direct mode.
func ParseMode(value string) Mode {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "registry", "consul":
		return ModeRegistry
	default:
		return ModeDirect
	}
}

// Resolver resolves the externally reachable address of this service.
type Resolver interface {
	ExternalAddress(ctx context.Context, preferredHost string) (string, error)
}

// Error is returned when the registry cannot resolve an address or
// cannot (de)register a service. Op is empty for address lookups.
type Error struct {
	Mode    Mode
	Op      string
	Host    string
	Service string
	Cause   error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("discovery (%s) failed to %s service %q: %v", e.Mode, e.Op, e.Service, e.Cause)
	}
	return fmt.Sprintf("discovery (%s) failed to resolve external address for host %q: %v", e.Mode, e.Host, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New returns the resolver for mode.
func New(mode Mode, cfg config.ConsulConfig, logger *slog.Logger) (Resolver, error) {
	switch mode {
	case ModeRegistry:
		return NewConsul(cfg, logger)
	default:
		return Direct{}, nil
	}
}

// Direct returns the preferred host verbatim, or "localhost" when empty.
type Direct struct{}

// ExternalAddress implements Resolver.
func (Direct) ExternalAddress(ctx context.Context, preferredHost string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &Error{Mode: ModeDirect, Host: preferredHost, Cause: err}
	}
	if preferredHost == "" {
		return "localhost", nil
	}
	return preferredHost, nil
}

// IsWildcard reports whether host binds every interface.
func IsWildcard(host string) bool {
	switch host {
	case "0.0.0.0", "::", "[::]":
		return true
	}
	return false
}
