package tls

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// File names used inside a certificate directory.
const (
	CertFileName   = "cert.pem"
	KeyFileName    = "key.pem"
	CAFileName     = "ca.pem"
	CAKeyFileName  = "ca-key.pem"
	ClientCertName = "client.pem"
	ClientKeyName  = "client-key.pem"
)

const (
	defaultKeySize    = 2048
	defaultValidity   = 365 * 24 * time.Hour
	defaultCAValidity = 10 * 365 * 24 * time.Hour
)

// CertificateGenerationOptions contains options for generating certificates
type CertificateGenerationOptions struct {
	CommonName   string
	Organization []string
	DNSNames     []string
	IPAddresses  []net.IP
	ValidFor     time.Duration
	IsCA         bool
	IsClientCert bool
	KeySize      int
	SerialNumber *big.Int
	ParentCert   *x509.Certificate
	ParentKey    interface{}
}

// CertificateInfo summarises a parsed certificate for logging.
type CertificateInfo struct {
	Subject     string
	Issuer      string
	NotBefore   time.Time
	NotAfter    time.Time
	DNSNames    []string
	IPAddresses []net.IP
}

// GenerateSelfSignedCertificate generates a certificate, self-signed unless a
// parent certificate and key are given.
func GenerateSelfSignedCertificate(opts CertificateGenerationOptions) (certPEM, keyPEM []byte, err error) {
	if opts.ValidFor == 0 {
		opts.ValidFor = defaultValidity
	}
	if opts.KeySize == 0 {
		opts.KeySize = defaultKeySize
	}
	if opts.SerialNumber == nil {
		opts.SerialNumber, err = rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
		}
	}
	if opts.CommonName == "" {
		opts.CommonName = "localhost"
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, opts.KeySize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: opts.SerialNumber,
		Subject: pkix.Name{
			CommonName:   opts.CommonName,
			Organization: opts.Organization,
		},
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(opts.ValidFor),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              opts.DNSNames,
		IPAddresses:           opts.IPAddresses,
	}

	if len(template.DNSNames) == 0 && len(template.IPAddresses) == 0 && !opts.IsCA {
		template.DNSNames = []string{"localhost"}
		template.IPAddresses = []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}
	}

	if opts.IsCA {
		template.IsCA = true
		template.KeyUsage |= x509.KeyUsageCertSign
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}
	} else if opts.IsClientCert {
		template.ExtKeyUsage = []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	}

	parentCert := &template
	var parentKey interface{} = privateKey
	if opts.ParentCert != nil && opts.ParentKey != nil {
		parentCert = opts.ParentCert
		parentKey = opts.ParentKey
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, parentCert, &privateKey.PublicKey, parentKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})

	privateKeyDER, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateKeyDER})

	return certPEM, keyPEM, nil
}

// WriteCertificateFiles writes certificate and key to files
func WriteCertificateFiles(certPEM, keyPEM []byte, certFile, keyFile string) error {
	if err := os.WriteFile(certFile, certPEM, 0644); err != nil {
		return fmt.Errorf("failed to write certificate file: %w", err)
	}

	// Key files stay private to the owner.
	if err := os.WriteFile(keyFile, keyPEM, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}

	return nil
}

// CertificateSetOptions controls GenerateCertificateSet.
type CertificateSetOptions struct {
	Hosts    []string
	WithCA   bool
	ValidFor time.Duration
}

// GenerateCertificateSet writes a certificate directory in the layout read by
// FileProvider. With WithCA the server certificate is signed by a fresh CA,
// ca.pem is written (which turns on mutual TLS) and a client certificate
// signed by the same CA is added for testing.
func GenerateCertificateSet(dir string, opts CertificateSetOptions) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create certificate directory: %w", err)
	}

	hosts := opts.Hosts
	if len(hosts) == 0 {
		hosts = []string{"localhost", "127.0.0.1", "::1"}
	}
	var dnsNames []string
	var ips []net.IP
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			ips = append(ips, ip)
		} else {
			dnsNames = append(dnsNames, host)
		}
	}
	commonName := hosts[0]

	serverOpts := CertificateGenerationOptions{
		CommonName:   commonName,
		Organization: []string{"polis-expose"},
		DNSNames:     dnsNames,
		IPAddresses:  ips,
		ValidFor:     opts.ValidFor,
	}

	if !opts.WithCA {
		certPEM, keyPEM, err := GenerateSelfSignedCertificate(serverOpts)
		if err != nil {
			return fmt.Errorf("failed to generate server certificate: %w", err)
		}
		return WriteCertificateFiles(certPEM, keyPEM, filepath.Join(dir, CertFileName), filepath.Join(dir, KeyFileName))
	}

	caCertPEM, caKeyPEM, err := GenerateSelfSignedCertificate(CertificateGenerationOptions{
		CommonName:   "polis-expose CA",
		Organization: []string{"polis-expose"},
		IsCA:         true,
		ValidFor:     defaultCAValidity,
	})
	if err != nil {
		return fmt.Errorf("failed to generate CA certificate: %w", err)
	}
	if err := WriteCertificateFiles(caCertPEM, caKeyPEM, filepath.Join(dir, CAFileName), filepath.Join(dir, CAKeyFileName)); err != nil {
		return fmt.Errorf("failed to write CA certificate: %w", err)
	}

	caCert, caKey, err := parseCertificateAndKey(caCertPEM, caKeyPEM)
	if err != nil {
		return fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	serverOpts.ParentCert = caCert
	serverOpts.ParentKey = caKey
	serverCertPEM, serverKeyPEM, err := GenerateSelfSignedCertificate(serverOpts)
	if err != nil {
		return fmt.Errorf("failed to generate server certificate: %w", err)
	}
	if err := WriteCertificateFiles(serverCertPEM, serverKeyPEM, filepath.Join(dir, CertFileName), filepath.Join(dir, KeyFileName)); err != nil {
		return fmt.Errorf("failed to write server certificate: %w", err)
	}

	clientCertPEM, clientKeyPEM, err := GenerateSelfSignedCertificate(CertificateGenerationOptions{
		CommonName:   "polis-expose client",
		Organization: []string{"polis-expose"},
		IsClientCert: true,
		ValidFor:     opts.ValidFor,
		ParentCert:   caCert,
		ParentKey:    caKey,
	})
	if err != nil {
		return fmt.Errorf("failed to generate client certificate: %w", err)
	}
	if err := WriteCertificateFiles(clientCertPEM, clientKeyPEM, filepath.Join(dir, ClientCertName), filepath.Join(dir, ClientKeyName)); err != nil {
		return fmt.Errorf("failed to write client certificate: %w", err)
	}

	return nil
}

func parseCertificateAndKey(certPEM, keyPEM []byte) (*x509.Certificate, interface{}, error) {
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode certificate PEM block")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, err
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode key PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, err
	}

	return cert, key, nil
}

// ParseCertificateInfo extracts information from the first certificate of a PEM bundle
func ParseCertificateInfo(certPEM []byte) (*CertificateInfo, error) {
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	if block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("PEM block is not a certificate (type: %s)", block.Type)
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &CertificateInfo{
		Subject:     cert.Subject.String(),
		Issuer:      cert.Issuer.String(),
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
		DNSNames:    cert.DNSNames,
		IPAddresses: cert.IPAddresses,
	}, nil
}
