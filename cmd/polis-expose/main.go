// Package main is the entry point for the polis-expose binary.
// It plans and starts the HTTP/HTTPS listeners of a service according to
// its encryption policy and discovery mode.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

const (
	defaultStartupTimeout  = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

// CLIConfig holds the flags shared by serve and plan.
type CLIConfig struct {
	ConfigPath     string
	EnvFile        string
	Host           string
	Port           int
	LogLevel       string
	TLSCert        string
	TLSKey         string
	TLSCA          string
	StartupTimeout time.Duration
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for polis-expose
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "polis-expose",
		Short: "Network exposure planner for Polis services",
		Long: `Decides which interfaces a service listens on and whether each uses TLS.

The encryption policy is read from TLS_UNPROTECTED (encrypted-only,
loopback-plaintext, all-plaintext) and the discovery mode from
SERVICE_DISCOVERY (registry or direct).

Example:
  TLS_UNPROTECTED=loopback-plaintext polis-expose serve --port 3000`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.PersistentFlags().String("env-file", ".env", "Path to a dotenv file, ignored if missing")
	rootCmd.PersistentFlags().StringP("log-level", "l", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newServeCmd(), newPlanCmd(), newCertCmd(), newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "polis-expose version %s\n", version)
		},
	}
}

// addPlanFlags registers the flags that feed a PlanRequest.
func addPlanFlags(cmd *cobra.Command) {
	cmd.Flags().String("host", "", "Host to bind (overrides SERVICE_HOST)")
	cmd.Flags().IntP("port", "p", 0, "Port to bind (overrides SERVICE_PORT)")
	cmd.Flags().String("tls-cert", "", "Certificate file overriding the provider's default")
	cmd.Flags().String("tls-key", "", "Private key file overriding the provider's default")
	cmd.Flags().String("tls-ca", "", "CA file enabling mutual TLS")
	cmd.Flags().Duration("startup-timeout", defaultStartupTimeout, "Deadline for discovery and certificate lookups")
}

// parseCLIConfig parses command line flags and returns a CLIConfig
func parseCLIConfig(cmd *cobra.Command) (*CLIConfig, error) {
	var (
		cfg CLIConfig
		err error
	)

	if cfg.ConfigPath, err = cmd.Flags().GetString("config"); err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if cfg.EnvFile, err = cmd.Flags().GetString("env-file"); err != nil {
		return nil, fmt.Errorf("failed to get env-file flag: %w", err)
	}
	if cfg.LogLevel, err = cmd.Flags().GetString("log-level"); err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}
	if cfg.Host, err = cmd.Flags().GetString("host"); err != nil {
		return nil, fmt.Errorf("failed to get host flag: %w", err)
	}
	if cfg.Port, err = cmd.Flags().GetInt("port"); err != nil {
		return nil, fmt.Errorf("failed to get port flag: %w", err)
	}
	if cfg.TLSCert, err = cmd.Flags().GetString("tls-cert"); err != nil {
		return nil, fmt.Errorf("failed to get tls-cert flag: %w", err)
	}
	if cfg.TLSKey, err = cmd.Flags().GetString("tls-key"); err != nil {
		return nil, fmt.Errorf("failed to get tls-key flag: %w", err)
	}
	if cfg.TLSCA, err = cmd.Flags().GetString("tls-ca"); err != nil {
		return nil, fmt.Errorf("failed to get tls-ca flag: %w", err)
	}
	if cfg.StartupTimeout, err = cmd.Flags().GetDuration("startup-timeout"); err != nil {
		return nil, fmt.Errorf("failed to get startup-timeout flag: %w", err)
	}

	return &cfg, nil
}
