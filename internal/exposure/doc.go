// Package exposure decides how a service is exposed on the network.
//
// A Planner combines the encryption policy (TLS_UNPROTECTED), the discovery
// mode (SERVICE_DISCOVERY) and the externally reachable address reported by
// a discovery.Resolver into a set of interfaces:
//
//	Policy               external   local
//	encrypted-only       TLS        TLS
//	loopback-plaintext   TLS        plaintext
//	all-plaintext        plaintext  plaintext
//
// The local interface is dropped when a single wildcard listener is used.
// The external interface is dropped when the resolved address is loopback.
// Each surviving interface gets its own Server from a Transport; Start binds
// them and Close shuts them down.
package exposure
