package exposure

import (
	"strings"

	"github.com/polisai/polis-expose/pkg/config"
	"github.com/polisai/polis-expose/pkg/discovery"
)

// Policy decides which interfaces carry TLS.
type Policy string

const (
	// PolicyEncryptedOnly encrypts every interface.
	PolicyEncryptedOnly Policy = "encrypted-only"
	// PolicyLoopbackPlaintext encrypts the external interface only.
	PolicyLoopbackPlaintext Policy = "loopback-plaintext"
	// PolicyAllPlaintext encrypts nothing.
	PolicyAllPlaintext Policy = "all-plaintext"

	DefaultPolicy = PolicyLoopbackPlaintext
)

// Legacy TLS_UNPROTECTED values name what is left unprotected.
var policyAliases = map[string]Policy{
	"none":     PolicyEncryptedOnly,
	"loopback": PolicyLoopbackPlaintext,
	"world":    PolicyAllPlaintext,
}

// ParsePolicy parses a TLS_UNPROTECTED value. Empty selects DefaultPolicy.
func ParsePolicy(value string) (Policy, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return DefaultPolicy, nil
	}

	switch p := Policy(normalized); p {
	case PolicyEncryptedOnly, PolicyLoopbackPlaintext, PolicyAllPlaintext:
		return p, nil
	}
	if p, ok := policyAliases[normalized]; ok {
		return p, nil
	}

	return "", config.NewConfigValidationError("tls_unprotected", value, "invalid encryption policy").
		WithSuggestion("Use one of encrypted-only, loopback-plaintext, all-plaintext")
}

// Options carries the raw policy and discovery selectors.
type Options struct {
	Policy    string
	Discovery string
}

// OptionsFromEnv reads TLS_UNPROTECTED and SERVICE_DISCOVERY.
func OptionsFromEnv(env config.Env) Options {
	return Options{
		Policy:    env.Get(config.EnvTLSUnprotected, string(DefaultPolicy)),
		Discovery: env.Get(config.EnvServiceDiscovery, string(discovery.ModeRegistry)),
	}
}
