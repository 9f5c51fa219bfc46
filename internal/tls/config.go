package tls

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"

	"github.com/polisai/polis-expose/pkg/config"
)

// CertificateMaterial is PEM encoded certificate material. CA is optional.
type CertificateMaterial struct {
	Cert []byte
	Key  []byte
	CA   []byte
}

// HasCA reports whether a CA bundle is present.
func (m CertificateMaterial) HasCA() bool {
	return len(bytes.TrimSpace(m.CA)) > 0
}

// TLSConfig is the resolved TLS configuration shared by every encrypted
// listener of the process. It is immutable once returned by a Resolver.
type TLSConfig struct {
	Cert       []byte
	Key        []byte
	CA         []byte
	Ciphers    string
	MinVersion string

	// Both flags are set together whenever a CA is present.
	RejectUnauthorized bool
	RequestCert        bool
}

// Material returns the certificate material of the configuration.
func (c *TLSConfig) Material() CertificateMaterial {
	return CertificateMaterial{Cert: c.Cert, Key: c.Key, CA: c.CA}
}

// ServerConfig converts the configuration into a crypto/tls server config.
// A CA bundle yields mandatory, verified client certificates.
func (c *TLSConfig) ServerConfig() (*tls.Config, error) {
	cert, err := tls.X509KeyPair(c.Cert, c.Key)
	if err != nil {
		return nil, config.NewConfigValidationError("tls_cert", "<redacted>", "certificate and key do not form a valid pair: "+err.Error()).
			WithSuggestion("Check that the certificate and private key match and are PEM encoded")
	}

	minVersion, err := ParseMinVersion(c.MinVersion)
	if err != nil {
		return nil, err
	}

	cipherSuites, err := ParseCipherSuites(c.Ciphers)
	if err != nil {
		return nil, err
	}

	serverConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   minVersion,
		CipherSuites: cipherSuites,
	}

	if len(bytes.TrimSpace(c.CA)) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(c.CA) {
			return nil, config.NewConfigValidationError("tls_ca", "<redacted>", "no certificates could be parsed from CA bundle")
		}
		serverConfig.ClientCAs = pool
	}

	switch {
	case c.RequestCert && c.RejectUnauthorized:
		serverConfig.ClientAuth = tls.RequireAndVerifyClientCert
	case c.RequestCert:
		serverConfig.ClientAuth = tls.RequestClientCert
	default:
		serverConfig.ClientAuth = tls.NoClientCert
	}

	return serverConfig, nil
}
