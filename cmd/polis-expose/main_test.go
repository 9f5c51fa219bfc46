package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/polisai/polis-expose/internal/exposure"
	tlsres "github.com/polisai/polis-expose/internal/tls"
	"github.com/polisai/polis-expose/pkg/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// clearExposureEnv isolates tests from the developer's environment.
func clearExposureEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvTLSUnprotected, config.EnvServiceDiscovery, config.EnvTLSCiphers,
		config.EnvTLSDir, config.EnvTLSMinVersion, config.EnvTLSCertFile,
		config.EnvTLSKeyFile, config.EnvTLSCAFile, config.EnvServiceHost,
		config.EnvServicePort, config.EnvLogLevel, config.EnvOTLPEndpoint,
		config.EnvOTLPHeaders, config.EnvOTelResourceAttributes, config.EnvDeploymentEnvironment,
	} {
		t.Setenv(key, "")
	}
	t.Setenv(config.EnvLogLevel, "error")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "polis-expose version dev\n", out)
}

func TestParseHosts(t *testing.T) {
	assert.Equal(t, []string{"localhost", "10.0.0.5"}, parseHosts(" localhost, ,10.0.0.5 "))
	assert.Nil(t, parseHosts(""))
}

func TestLoadConfig_FlagsOverrideEnvironment(t *testing.T) {
	clearExposureEnv(t)
	t.Setenv(config.EnvServicePort, "4000")
	t.Setenv(config.EnvServiceHost, "10.0.0.1")

	cfg, err := loadConfig(&CLIConfig{Port: 5000, TLSCert: "/tmp/cert.pem"})
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Server.Port)
	assert.Equal(t, "10.0.0.1", cfg.Server.Host)
	assert.Equal(t, "/tmp/cert.pem", cfg.TLS.CertFile)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	clearExposureEnv(t)
	os.Unsetenv(config.EnvTLSUnprotected)

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TLS_UNPROTECTED=world\n"), 0o600))

	cfg, err := loadConfig(&CLIConfig{EnvFile: envFile})
	require.NoError(t, err)
	assert.Equal(t, "world", cfg.Exposure.TLSUnprotected)

	_, err = loadConfig(&CLIConfig{EnvFile: filepath.Join(t.TempDir(), "missing.env")})
	assert.NoError(t, err)
}

func TestLoadOverride(t *testing.T) {
	material, err := loadOverride(config.TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, material)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	require.NoError(t, os.WriteFile(certFile, []byte("CERT"), 0o600))

	material, err = loadOverride(config.TLSConfig{CertFile: certFile})
	require.NoError(t, err)
	require.NotNil(t, material)
	assert.Equal(t, []byte("CERT"), material.Cert)
	assert.Empty(t, material.Key)

	_, err = loadOverride(config.TLSConfig{KeyFile: filepath.Join(dir, "missing.pem")})
	assert.Error(t, err)
}

func TestPlanCommand_DirectAllPlaintext(t *testing.T) {
	clearExposureEnv(t)
	t.Setenv(config.EnvTLSUnprotected, "all-plaintext")
	t.Setenv(config.EnvServiceDiscovery, "direct")

	out, err := execute(t, "plan", "--env-file", "", "--host", "10.0.0.5", "--port", "8080")
	require.NoError(t, err)

	var report exposure.Report
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, exposure.PolicyAllPlaintext, report.Policy)
	assert.Equal(t, "external_only", report.Topology)
	require.Len(t, report.Interfaces, 1)
	assert.Equal(t, "0.0.0.0:8080", report.Interfaces[0].Address)
	assert.False(t, report.Interfaces[0].Encrypted)
}

func TestCertGenerateThenPlanWithMutualTLS(t *testing.T) {
	clearExposureEnv(t)
	dir := t.TempDir()

	out, err := execute(t, "cert", "generate", "--output-dir", dir, "--ca")
	require.NoError(t, err)
	assert.Contains(t, out, "TLS_DIR="+dir)
	for _, name := range []string{tlsres.CertFileName, tlsres.KeyFileName, tlsres.CAFileName} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	out, err = execute(t, "cert", "inspect", filepath.Join(dir, tlsres.CertFileName))
	require.NoError(t, err)
	assert.Contains(t, out, "Subject:")
	assert.Contains(t, out, "127.0.0.1")

	t.Setenv(config.EnvTLSDir, dir)
	t.Setenv(config.EnvServiceDiscovery, "direct")

	out, err = execute(t, "plan", "--env-file", "", "--host", "10.0.0.5", "--port", "3000")
	require.NoError(t, err)

	var report exposure.Report
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, exposure.PolicyLoopbackPlaintext, report.Policy)
	assert.Equal(t, "both", report.Topology)
	require.Len(t, report.Interfaces, 2)

	external := report.Interfaces[0]
	assert.Equal(t, exposure.InterfaceExternal, external.Name)
	assert.True(t, external.Encrypted)
	assert.True(t, external.MutualTLS)
	assert.Equal(t, "TLSv1.2", external.MinTLSVersion)

	local := report.Interfaces[1]
	assert.Equal(t, "127.0.0.1:3000", local.Address)
	assert.False(t, local.Encrypted)
}

func TestPlanCommand_InvalidPolicy(t *testing.T) {
	clearExposureEnv(t)
	t.Setenv(config.EnvTLSUnprotected, "sometimes")

	_, err := execute(t, "plan", "--env-file", "", "--port", "3000")
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalid)
}
