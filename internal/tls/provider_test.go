package tls

import (
	"context"
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileProvider_ReadsDirectory(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, GenerateCertificateSet(tempDir, CertificateSetOptions{}))

	provider := NewFileProvider(tempDir, "", testLogger())

	material, err := provider.DefaultCertificate(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, material.Cert)
	assert.NotEmpty(t, material.Key)
	assert.False(t, material.HasCA())

	_, err = tls.X509KeyPair(material.Cert, material.Key)
	assert.NoError(t, err)

	version, err := provider.MinimumTLSVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TLSv1.2", version)
}

func TestFileProvider_ReadsCA(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, GenerateCertificateSet(tempDir, CertificateSetOptions{WithCA: true}))

	material, err := NewFileProvider(tempDir, "TLSv1.3", testLogger()).DefaultCertificate(context.Background())
	require.NoError(t, err)
	assert.True(t, material.HasCA())

	for _, name := range []string{CAKeyFileName, ClientCertName, ClientKeyName} {
		_, err := os.Stat(filepath.Join(tempDir, name))
		assert.NoError(t, err, name)
	}
}

func TestFileProvider_MissingFiles(t *testing.T) {
	tempDir := t.TempDir()

	_, err := NewFileProvider(tempDir, "", testLogger()).DefaultCertificate(context.Background())
	require.Error(t, err)
	assert.True(t, IsProviderError(err))
	assert.True(t, IsFileSystemError(err))

	var tlsErr *TLSError
	require.ErrorAs(t, err, &tlsErr)
	assert.Equal(t, ErrorTypeFileNotFound, tlsErr.Type)
	assert.Equal(t, filepath.Join(tempDir, CertFileName), tlsErr.Context["file_path"])
}

func TestFileProvider_InvalidCertificate(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, CertFileName), []byte("not pem"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, KeyFileName), []byte("not pem"), 0600))

	_, err := NewFileProvider(tempDir, "", testLogger()).DefaultCertificate(context.Background())
	require.Error(t, err)

	var tlsErr *TLSError
	require.ErrorAs(t, err, &tlsErr)
	assert.Equal(t, ErrorTypeCertificateParsing, tlsErr.Type)
}

func TestFileProvider_SelfSignedFallback(t *testing.T) {
	provider := NewFileProvider("", "", testLogger())

	first, err := provider.DefaultCertificate(context.Background())
	require.NoError(t, err)
	second, err := provider.DefaultCertificate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Cert, second.Cert)
	assert.False(t, first.HasCA())

	info, err := ParseCertificateInfo(first.Cert)
	require.NoError(t, err)
	assert.Contains(t, info.DNSNames, "localhost")
}

func TestFileProvider_InvalidMinVersion(t *testing.T) {
	_, err := NewFileProvider("", "TLSv2", testLogger()).MinimumTLSVersion(context.Background())
	assert.Error(t, err)
}

func TestFileProvider_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileProvider("", "", testLogger()).DefaultCertificate(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticProvider(t *testing.T) {
	_, err := StaticProvider{}.DefaultCertificate(context.Background())
	assert.True(t, IsProviderError(err))

	provider := StaticProvider{Material: CertificateMaterial{Cert: []byte("c"), Key: []byte("k")}, MinVersion: "TLSv1.3"}
	material, err := provider.DefaultCertificate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), material.Cert)

	version, err := provider.MinimumTLSVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "TLSv1.3", version)
}
