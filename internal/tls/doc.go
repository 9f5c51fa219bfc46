// Package tls resolves the TLS configuration used by encrypted listeners.
//
// A Resolver builds the configuration once, from caller supplied material or
// from a CertificateProvider, and hands the same instance to every later
// caller. The package also converts that configuration into a crypto/tls
// server config, generates certificates for development and watches
// certificate directories for changes.
package tls
