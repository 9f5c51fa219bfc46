package exposure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/polisai/polis-expose/pkg/config"
	"github.com/polisai/polis-expose/pkg/discovery"
)

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected Policy
	}{
		{"", PolicyLoopbackPlaintext},
		{"encrypted-only", PolicyEncryptedOnly},
		{"loopback-plaintext", PolicyLoopbackPlaintext},
		{"all-plaintext", PolicyAllPlaintext},
		{" All-Plaintext ", PolicyAllPlaintext},
		{"none", PolicyEncryptedOnly},
		{"loopback", PolicyLoopbackPlaintext},
		{"world", PolicyAllPlaintext},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			policy, err := ParsePolicy(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, policy)
		})
	}
}

func TestParsePolicy_Invalid(t *testing.T) {
	_, err := ParsePolicy("sometimes")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfgErr, ok := config.AsConfigError(err)
	require.True(t, ok)
	assert.Equal(t, "tls_unprotected", cfgErr.Field)
	assert.Contains(t, cfgErr.Reason, "invalid encryption policy")
}

func TestOptionsFromEnv(t *testing.T) {
	opts := OptionsFromEnv(config.MapEnv{})
	assert.Equal(t, string(PolicyLoopbackPlaintext), opts.Policy)
	assert.Equal(t, string(discovery.ModeRegistry), opts.Discovery)

	opts = OptionsFromEnv(config.MapEnv{
		config.EnvTLSUnprotected:   "world",
		config.EnvServiceDiscovery: "direct",
	})
	assert.Equal(t, "world", opts.Policy)
	assert.Equal(t, "direct", opts.Discovery)
}

func TestClassifyAddress(t *testing.T) {
	assert.Equal(t, AddressLoopback, ClassifyAddress("localhost"))
	assert.Equal(t, AddressLoopback, ClassifyAddress("127.0.0.1"))
	assert.Equal(t, AddressRoutable, ClassifyAddress("127.0.0.2"))
	assert.Equal(t, AddressRoutable, ClassifyAddress("::1"))
	assert.Equal(t, AddressRoutable, ClassifyAddress("0.0.0.0"))
	assert.Equal(t, AddressRoutable, ClassifyAddress("10.1.2.3"))
}

func TestDecideTopology_AllCases(t *testing.T) {
	type want struct {
		wildcard    bool
		external    bool
		externalTLS bool
		local       bool
		localTLS    bool
	}

	tests := []struct {
		policy Policy
		mode   discovery.Mode
		class  AddressClass
		want   want
	}{
		{PolicyEncryptedOnly, discovery.ModeRegistry, AddressRoutable, want{external: true, externalTLS: true, local: true, localTLS: true}},
		{PolicyEncryptedOnly, discovery.ModeRegistry, AddressLoopback, want{local: true, externalTLS: true, localTLS: true}},
		{PolicyEncryptedOnly, discovery.ModeDirect, AddressRoutable, want{wildcard: true, external: true, externalTLS: true, localTLS: true}},
		{PolicyEncryptedOnly, discovery.ModeDirect, AddressLoopback, want{wildcard: true, local: true, externalTLS: true, localTLS: true}},

		{PolicyLoopbackPlaintext, discovery.ModeRegistry, AddressRoutable, want{external: true, externalTLS: true, local: true}},
		{PolicyLoopbackPlaintext, discovery.ModeRegistry, AddressLoopback, want{local: true, externalTLS: true}},
		{PolicyLoopbackPlaintext, discovery.ModeDirect, AddressRoutable, want{external: true, externalTLS: true, local: true}},
		{PolicyLoopbackPlaintext, discovery.ModeDirect, AddressLoopback, want{local: true, externalTLS: true}},

		{PolicyAllPlaintext, discovery.ModeRegistry, AddressRoutable, want{external: true, local: true}},
		{PolicyAllPlaintext, discovery.ModeRegistry, AddressLoopback, want{local: true}},
		{PolicyAllPlaintext, discovery.ModeDirect, AddressRoutable, want{wildcard: true, external: true}},
		{PolicyAllPlaintext, discovery.ModeDirect, AddressLoopback, want{wildcard: true, local: true}},
	}

	for _, tt := range tests {
		name := string(tt.policy) + "/" + string(tt.mode) + "/" + tt.class.String()
		t.Run(name, func(t *testing.T) {
			topo, err := DecideTopology(tt.policy, tt.mode, tt.class)
			require.NoError(t, err)

			assert.Equal(t, tt.want.wildcard, topo.Wildcard, "wildcard")
			assert.Equal(t, tt.want.external, topo.External, "external")
			assert.Equal(t, tt.want.externalTLS, topo.ExternalTLS, "external TLS")
			assert.Equal(t, tt.want.local, topo.Local, "local")
			assert.Equal(t, tt.want.localTLS, topo.LocalTLS, "local TLS")
		})
	}
}

func TestDecideTopology_InvalidPolicy(t *testing.T) {
	_, err := DecideTopology("bogus", discovery.ModeRegistry, AddressRoutable)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

// For any policy, discovery mode and address class, exactly one of
// external only, local only or both is chosen.
func TestDecideTopologyProperty(t *testing.T) {
	policies := []string{"encrypted-only", "loopback-plaintext", "all-plaintext", "none", "loopback", "world", ""}
	modes := []discovery.Mode{discovery.ModeRegistry, discovery.ModeDirect}

	rapid.Check(t, func(t *rapid.T) {
		policy := Policy(rapid.SampledFrom(policies).Draw(t, "policy"))
		mode := rapid.SampledFrom(modes).Draw(t, "mode")
		class := AddressClass(rapid.IntRange(0, 1).Draw(t, "class"))

		topo, err := DecideTopology(policy, mode, class)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !topo.External && !topo.Local {
			t.Fatalf("no interface chosen for %s/%s/%s", policy, mode, class)
		}
		if class == AddressLoopback && topo.External {
			t.Fatalf("loopback address must not be exposed externally")
		}
		if topo.Wildcard && class == AddressRoutable && topo.Local {
			t.Fatalf("wildcard binding must not start a local listener")
		}

		parsed, _ := ParsePolicy(string(policy))
		switch parsed {
		case PolicyEncryptedOnly:
			assert.True(t, topo.ExternalTLS)
			assert.True(t, topo.LocalTLS)
		case PolicyLoopbackPlaintext:
			assert.True(t, topo.ExternalTLS)
			assert.False(t, topo.LocalTLS)
		case PolicyAllPlaintext:
			assert.False(t, topo.ExternalTLS)
			assert.False(t, topo.LocalTLS)
		}

		name := topo.Name()
		if name != "both" && name != "external_only" && name != "local_only" {
			t.Fatalf("unexpected topology name %q", name)
		}
	})
}
