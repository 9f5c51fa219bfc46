package tls

import (
	"context"
	"log/slog"
	"time"
)

// TLSLogger provides structured logging for TLS events
type TLSLogger struct {
	logger *slog.Logger
}

// NewTLSLogger creates a new TLS logger
func NewTLSLogger(logger *slog.Logger) *TLSLogger {
	if logger == nil {
		logger = slog.Default()
	}

	return &TLSLogger{
		logger: logger.With("component", "tls"),
	}
}

// Logger returns the underlying component logger.
func (l *TLSLogger) Logger() *slog.Logger {
	return l.logger
}

// LogConfigResolved logs the first and only resolution of the TLS configuration
func (l *TLSLogger) LogConfigResolved(ctx context.Context, cfg *TLSConfig, source string) {
	l.logger.LogAttrs(ctx, slog.LevelInfo, "TLS configuration resolved",
		slog.String("event", "config_resolved"),
		slog.String("source", source),
		slog.String("min_version", cfg.MinVersion),
		slog.Bool("custom_ciphers", cfg.Ciphers != ""),
		slog.Bool("mutual_tls", cfg.RequestCert),
		slog.Time("timestamp", time.Now()),
	)
}

// LogCiphersOverride logs an explicit cipher list
func (l *TLSLogger) LogCiphersOverride(ctx context.Context, ciphers string, warnings []string) {
	l.logger.LogAttrs(ctx, slog.LevelInfo, "Explicitly set encryption ciphers",
		slog.String("event", "ciphers_override"),
		slog.String("ciphers", ciphers),
	)

	for _, warning := range warnings {
		l.logger.LogAttrs(ctx, slog.LevelWarn, "Weak cipher suite configured",
			slog.String("event", "weak_cipher"),
			slog.String("detail", warning),
		)
	}
}

// LogCertificateLoad logs certificate loading events
func (l *TLSLogger) LogCertificateLoad(ctx context.Context, certFile, keyFile string, success bool, err error) {
	level := slog.LevelInfo
	message := "Certificate loaded successfully"

	if !success {
		level = slog.LevelError
		message = "Certificate loading failed"
	}

	attrs := []slog.Attr{
		slog.String("event", "certificate_load"),
		slog.String("cert_file", certFile),
		slog.String("key_file", keyFile),
		slog.Bool("success", success),
		slog.Time("timestamp", time.Now()),
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}

	l.logger.LogAttrs(ctx, level, message, attrs...)
}

// LogCertificateInfo logs the identity and validity of the loaded certificate
func (l *TLSLogger) LogCertificateInfo(ctx context.Context, info *CertificateInfo, withCA bool) {
	level := slog.LevelDebug
	message := "Certificate details"

	remaining := time.Until(info.NotAfter)
	if remaining < 30*24*time.Hour {
		level = slog.LevelWarn
		message = "Certificate expires soon"
	}

	l.logger.LogAttrs(ctx, level, message,
		slog.String("event", "certificate_info"),
		slog.String("subject", info.Subject),
		slog.String("issuer", info.Issuer),
		slog.Time("not_after", info.NotAfter),
		slog.Duration("remaining", remaining),
		slog.Bool("ca_present", withCA),
	)
}

// LogSelfSigned logs the generation of a fallback certificate
func (l *TLSLogger) LogSelfSigned(ctx context.Context, commonName string) {
	l.logger.LogAttrs(ctx, slog.LevelWarn, "No certificate directory configured, using a generated self-signed certificate",
		slog.String("event", "certificate_self_signed"),
		slog.String("common_name", commonName),
	)
}

// LogClientError logs a TLS failure caused by a remote client. These never
// affect the listener.
func (l *TLSLogger) LogClientError(ctx context.Context, iface, remoteAddr string, err error) {
	l.logger.LogAttrs(ctx, slog.LevelWarn, "TLS client error",
		slog.String("event", "client_error"),
		slog.String("interface", iface),
		slog.String("remote_addr", remoteAddr),
		slog.String("error", err.Error()),
	)
}

// LogCertificateChange logs a change to certificate material on disk
func (l *TLSLogger) LogCertificateChange(ctx context.Context, path, operation string) {
	l.logger.LogAttrs(ctx, slog.LevelWarn, "Certificate material changed on disk, restart required to apply it",
		slog.String("event", "certificate_change"),
		slog.String("file", path),
		slog.String("operation", operation),
	)
}
