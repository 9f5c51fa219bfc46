package tls

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCertificateSet_WithCA(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, GenerateCertificateSet(tempDir, CertificateSetOptions{
		Hosts:    []string{"svc.internal", "10.1.2.3"},
		WithCA:   true,
		ValidFor: 24 * time.Hour,
	}))

	caPEM, err := os.ReadFile(filepath.Join(tempDir, CAFileName))
	require.NoError(t, err)
	certPEM, err := os.ReadFile(filepath.Join(tempDir, CertFileName))
	require.NoError(t, err)

	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(caPEM))

	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	_, err = cert.Verify(x509.VerifyOptions{DNSName: "svc.internal", Roots: pool})
	assert.NoError(t, err)
	assert.Equal(t, "10.1.2.3", cert.IPAddresses[0].String())

	info, err := os.Stat(filepath.Join(tempDir, KeyFileName))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestParseCertificateInfo_Errors(t *testing.T) {
	_, err := ParseCertificateInfo([]byte("garbage"))
	assert.Error(t, err)

	_, keyPEM, err := GenerateSelfSignedCertificate(CertificateGenerationOptions{KeySize: 1024})
	require.NoError(t, err)
	_, err = ParseCertificateInfo(keyPEM)
	assert.ErrorContains(t, err, "not a certificate")
}
