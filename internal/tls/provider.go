package tls

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/polisai/polis-expose/pkg/config"
)

// CertificateProvider supplies default certificate material and the minimum
// accepted protocol version.
type CertificateProvider interface {
	DefaultCertificate(ctx context.Context) (CertificateMaterial, error)
	MinimumTLSVersion(ctx context.Context) (string, error)
}

// FileProvider reads cert.pem, key.pem and an optional ca.pem from a
// directory. Without a directory it generates a self-signed localhost
// certificate once and keeps serving it.
type FileProvider struct {
	dir        string
	minVersion string
	logger     *TLSLogger

	mu        sync.Mutex
	generated *CertificateMaterial
}

// NewFileProvider creates a provider rooted at dir.
func NewFileProvider(dir, minVersion string, logger *slog.Logger) *FileProvider {
	if minVersion == "" {
		minVersion = config.DefaultTLSMinVersion
	}
	return &FileProvider{
		dir:        dir,
		minVersion: minVersion,
		logger:     NewTLSLogger(logger),
	}
}

// Dir returns the directory the provider reads from, if any.
func (p *FileProvider) Dir() string {
	return p.dir
}

// DefaultCertificate implements CertificateProvider.
func (p *FileProvider) DefaultCertificate(ctx context.Context) (CertificateMaterial, error) {
	if err := ctx.Err(); err != nil {
		return CertificateMaterial{}, NewProviderUnavailableError("file", err)
	}

	if p.dir == "" {
		return p.selfSigned(ctx)
	}

	certFile := filepath.Join(p.dir, CertFileName)
	keyFile := filepath.Join(p.dir, KeyFileName)
	caFile := filepath.Join(p.dir, CAFileName)

	certPEM, err := readCertificateFile(certFile)
	if err != nil {
		p.logger.LogCertificateLoad(ctx, certFile, keyFile, false, err)
		return CertificateMaterial{}, err
	}
	keyPEM, err := readCertificateFile(keyFile)
	if err != nil {
		p.logger.LogCertificateLoad(ctx, certFile, keyFile, false, err)
		return CertificateMaterial{}, err
	}

	material := CertificateMaterial{Cert: certPEM, Key: keyPEM}

	caPEM, err := readCertificateFile(caFile)
	switch {
	case err == nil:
		material.CA = caPEM
	case errors.Is(err, fs.ErrNotExist):
	default:
		p.logger.LogCertificateLoad(ctx, certFile, keyFile, false, err)
		return CertificateMaterial{}, err
	}

	info, err := ParseCertificateInfo(certPEM)
	if err != nil {
		parseErr := NewCertificateParsingError(certFile, err)
		p.logger.LogCertificateLoad(ctx, certFile, keyFile, false, parseErr)
		return CertificateMaterial{}, parseErr
	}

	p.logger.LogCertificateLoad(ctx, certFile, keyFile, true, nil)
	p.logger.LogCertificateInfo(ctx, info, material.HasCA())
	return material, nil
}

// MinimumTLSVersion implements CertificateProvider.
func (p *FileProvider) MinimumTLSVersion(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", NewProviderUnavailableError("file", err)
	}
	if _, err := ParseMinVersion(p.minVersion); err != nil {
		return "", err
	}
	return p.minVersion, nil
}

func (p *FileProvider) selfSigned(ctx context.Context) (CertificateMaterial, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.generated != nil {
		return *p.generated, nil
	}

	certPEM, keyPEM, err := GenerateSelfSignedCertificate(CertificateGenerationOptions{
		CommonName:   "localhost",
		Organization: []string{"polis-expose"},
	})
	if err != nil {
		return CertificateMaterial{}, NewCertificateGenerateError("localhost", err)
	}

	p.logger.LogSelfSigned(ctx, "localhost")
	p.generated = &CertificateMaterial{Cert: certPEM, Key: keyPEM}
	return *p.generated, nil
}

// readCertificateFile reads a PEM file and maps file system failures to TLS errors.
func readCertificateFile(path string) ([]byte, error) {
	//nolint:gosec // Certificate paths come from operator configuration
	data, err := os.ReadFile(path)
	if err == nil {
		return data, nil
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, NewFileNotFoundError(path).withCause(err)
	case errors.Is(err, fs.ErrPermission):
		return nil, NewFilePermissionError(path, "read").withCause(err)
	default:
		return nil, NewTLSErrorWithCause(ErrorTypeFileAccess, "file access error", err).
			WithContext("file_path", path).
			WithSuggestion("Check that the file path is correct")
	}
}

// StaticProvider serves fixed material, for example files named on the
// command line or certificates built in tests.
type StaticProvider struct {
	Material   CertificateMaterial
	MinVersion string
}

// DefaultCertificate implements CertificateProvider.
func (p StaticProvider) DefaultCertificate(ctx context.Context) (CertificateMaterial, error) {
	if len(p.Material.Cert) == 0 || len(p.Material.Key) == 0 {
		return CertificateMaterial{}, NewProviderUnavailableError("static", errors.New("no certificate material configured"))
	}
	return p.Material, nil
}

// MinimumTLSVersion implements CertificateProvider.
func (p StaticProvider) MinimumTLSVersion(ctx context.Context) (string, error) {
	if p.MinVersion == "" {
		return config.DefaultTLSMinVersion, nil
	}
	return p.MinVersion, nil
}
