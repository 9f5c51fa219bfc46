package exposure

import (
	"github.com/polisai/polis-expose/pkg/discovery"
)

// Interface names a logical network interface.
type Interface string

const (
	InterfaceExternal Interface = "external"
	InterfaceLocal    Interface = "local"
)

// Well-known hosts.
const (
	WildcardHost = "0.0.0.0"
	LoopbackHost = "127.0.0.1"
)

// AddressClass tells whether the resolved external address is loopback.
type AddressClass int

const (
	AddressRoutable AddressClass = iota
	AddressLoopback
)

func (c AddressClass) String() string {
	if c == AddressLoopback {
		return "loopback"
	}
	return "routable"
}

// ClassifyAddress treats exactly "localhost" and "127.0.0.1" as loopback.
func ClassifyAddress(address string) AddressClass {
	switch address {
	case "localhost", LoopbackHost:
		return AddressLoopback
	}
	return AddressRoutable
}

// Topology is the set of interfaces to start and their encryption.
type Topology struct {
	// Wildcard binds the external interface on every address.
	Wildcard    bool
	External    bool
	ExternalTLS bool
	Local       bool
	LocalTLS    bool
}

// Name summarises the topology for logs and metrics.
func (t Topology) Name() string {
	switch {
	case t.External && t.Local:
		return "both"
	case t.External:
		return "external_only"
	default:
		return "local_only"
	}
}

type encryption struct {
	external bool
	local    bool
}

var policyEncryption = map[Policy]encryption{
	PolicyEncryptedOnly:     {external: true, local: true},
	PolicyLoopbackPlaintext: {external: true, local: false},
	PolicyAllPlaintext:      {external: false, local: false},
}

// ListenToAllInterfaces reports whether a single wildcard listener replaces
// the per-interface listeners. Registry discovery needs explicit per
// interface binding for registration, so it never binds the wildcard.
func ListenToAllInterfaces(policy Policy, mode discovery.Mode) bool {
	return (policy == PolicyAllPlaintext || policy == PolicyEncryptedOnly) && mode != discovery.ModeRegistry
}

// DecideTopology maps policy, discovery mode and address class to the
// interfaces to start. The local interface is dropped when binding the
// wildcard; the external interface is dropped when the address is loopback.
// If both rules apply the local interface is kept, so a topology always has
// at least one interface.
func DecideTopology(policy Policy, mode discovery.Mode, class AddressClass) (Topology, error) {
	policy, err := ParsePolicy(string(policy))
	if err != nil {
		return Topology{}, err
	}
	enc := policyEncryption[policy]

	wildcard := ListenToAllInterfaces(policy, mode)
	topo := Topology{
		Wildcard:    wildcard,
		External:    class != AddressLoopback,
		ExternalTLS: enc.external,
		Local:       !wildcard,
		LocalTLS:    enc.local,
	}

	if !topo.External && !topo.Local {
		topo.Local = true
	}

	return topo, nil
}
