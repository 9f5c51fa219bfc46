package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	tlsres "github.com/polisai/polis-expose/internal/tls"
)

func newCertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Certificate utilities for TLS_DIR",
	}
	cmd.AddCommand(newCertGenerateCmd(), newCertInspectCmd())
	return cmd
}

func newCertGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a self-signed certificate directory usable as TLS_DIR",
		Long: `Writes cert.pem and key.pem into the output directory.

With --ca the server certificate is signed by a fresh CA and ca.pem is written,
which turns on mutual TLS; a client certificate (client.pem, client-key.pem)
signed by the same CA is added for testing.`,
		RunE: runCertGenerate,
	}
	cmd.Flags().StringP("output-dir", "o", ".", "Output directory for certificates")
	cmd.Flags().String("hosts", "localhost,127.0.0.1,::1", "Comma-separated DNS names and IP addresses")
	cmd.Flags().Bool("ca", false, "Sign with a generated CA and enable mutual TLS")
	cmd.Flags().Duration("valid-for", 365*24*time.Hour, "Certificate validity duration")
	return cmd
}

func newCertInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <cert.pem>",
		Short: "Print subject, issuer, validity and SANs of a certificate",
		Args:  cobra.ExactArgs(1),
		RunE:  runCertInspect,
	}
}

// parseHosts splits a comma-separated host list, dropping blanks.
func parseHosts(value string) []string {
	var hosts []string
	for _, h := range strings.Split(value, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func runCertGenerate(cmd *cobra.Command, args []string) error {
	outputDir, err := cmd.Flags().GetString("output-dir")
	if err != nil {
		return fmt.Errorf("failed to get output-dir flag: %w", err)
	}
	hosts, err := cmd.Flags().GetString("hosts")
	if err != nil {
		return fmt.Errorf("failed to get hosts flag: %w", err)
	}
	withCA, err := cmd.Flags().GetBool("ca")
	if err != nil {
		return fmt.Errorf("failed to get ca flag: %w", err)
	}
	validFor, err := cmd.Flags().GetDuration("valid-for")
	if err != nil {
		return fmt.Errorf("failed to get valid-for flag: %w", err)
	}

	err = tlsres.GenerateCertificateSet(outputDir, tlsres.CertificateSetOptions{
		Hosts:    parseHosts(hosts),
		WithCA:   withCA,
		ValidFor: validFor,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Certificate: %s\n", filepath.Join(outputDir, tlsres.CertFileName))
	fmt.Fprintf(out, "Private key: %s\n", filepath.Join(outputDir, tlsres.KeyFileName))
	if withCA {
		fmt.Fprintf(out, "CA:          %s\n", filepath.Join(outputDir, tlsres.CAFileName))
		fmt.Fprintf(out, "Client cert: %s\n", filepath.Join(outputDir, tlsres.ClientCertName))
	}
	fmt.Fprintf(out, "\nUse with: TLS_DIR=%s\n", outputDir)
	return nil
}

func runCertInspect(cmd *cobra.Command, args []string) error {
	//nolint:gosec // Path is supplied by the operator
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read certificate: %w", err)
	}

	info, err := tlsres.ParseCertificateInfo(data)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Subject:    %s\n", info.Subject)
	fmt.Fprintf(out, "Issuer:     %s\n", info.Issuer)
	fmt.Fprintf(out, "Not before: %s\n", info.NotBefore.Format(time.RFC3339))
	fmt.Fprintf(out, "Not after:  %s\n", info.NotAfter.Format(time.RFC3339))
	if len(info.DNSNames) > 0 {
		fmt.Fprintf(out, "DNS names:  %s\n", strings.Join(info.DNSNames, ", "))
	}
	for _, ip := range info.IPAddresses {
		fmt.Fprintf(out, "IP address: %s\n", ip)
	}
	return nil
}
