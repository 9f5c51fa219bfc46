package exposure

import (
	"context"
	"net"
	"net/http"
	"time"

	tlsres "github.com/polisai/polis-expose/internal/tls"
)

// ClientErrorHandler observes TLS failures caused by remote clients.
type ClientErrorHandler func(remoteAddr string, err error)

// Server is a listening server bound to one application handler.
// Timeouts must be set before Listen. A zero timeout means none.
type Server interface {
	SetRequestTimeout(d time.Duration)
	SetHeadersTimeout(d time.Duration)
	RequestTimeout() time.Duration
	HeadersTimeout() time.Duration

	// Encrypted reports whether the server terminates TLS.
	Encrypted() bool
	// OnClientError registers an observer for client TLS failures.
	OnClientError(h ClientErrorHandler)

	// Listen binds addr and starts serving in the background. Bind errors
	// are returned synchronously.
	Listen(addr string) error
	// Addr returns the bound address, or nil before Listen.
	Addr() net.Addr
	Shutdown(ctx context.Context) error
	Close() error
}

// Transport creates servers. Every call returns an independent instance.
type Transport interface {
	NewPlainServer(handler http.Handler) (Server, error)
	NewTLSServer(handler http.Handler, cfg *tlsres.TLSConfig) (Server, error)
}

// TLSResolver supplies the TLS configuration for encrypted servers.
type TLSResolver interface {
	Resolve(ctx context.Context, override *tlsres.CertificateMaterial) (*tlsres.TLSConfig, error)
}
