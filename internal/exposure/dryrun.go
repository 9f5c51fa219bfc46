package exposure

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	tlsres "github.com/polisai/polis-expose/internal/tls"
)

// DryRunTransport creates servers that record their settings and never bind
// a socket. It backs the plan command and tests.
type DryRunTransport struct {
	mu      sync.Mutex
	servers []*DryRunServer
}

// NewDryRunTransport creates an empty dry-run transport.
func NewDryRunTransport() *DryRunTransport {
	return &DryRunTransport{}
}

func (t *DryRunTransport) NewPlainServer(handler http.Handler) (Server, error) {
	return t.add(&DryRunServer{Handler: handler}), nil
}

func (t *DryRunTransport) NewTLSServer(handler http.Handler, cfg *tlsres.TLSConfig) (Server, error) {
	return t.add(&DryRunServer{Handler: handler, TLS: cfg}), nil
}

func (t *DryRunTransport) add(s *DryRunServer) *DryRunServer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.servers = append(t.servers, s)
	return s
}

// Servers returns every server created so far.
func (t *DryRunTransport) Servers() []*DryRunServer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*DryRunServer(nil), t.servers...)
}

// DryRunServer implements Server without networking.
type DryRunServer struct {
	Handler http.Handler
	TLS     *tlsres.TLSConfig

	mu             sync.Mutex
	requestTimeout time.Duration
	headersTimeout time.Duration
	handlers       []ClientErrorHandler
	listenAddr     string
	closed         bool
}

func (s *DryRunServer) SetRequestTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestTimeout = d
}

func (s *DryRunServer) SetHeadersTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headersTimeout = d
}

func (s *DryRunServer) RequestTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestTimeout
}

func (s *DryRunServer) HeadersTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headersTimeout
}

func (s *DryRunServer) Encrypted() bool {
	return s.TLS != nil
}

func (s *DryRunServer) OnClientError(h ClientErrorHandler) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// ClientErrorHandlers returns the number of registered observers.
func (s *DryRunServer) ClientErrorHandlers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// EmitClientError delivers err to every registered observer, as a real
// server does on a failed handshake.
func (s *DryRunServer) EmitClientError(remoteAddr string, err error) {
	s.mu.Lock()
	handlers := append([]ClientErrorHandler(nil), s.handlers...)
	s.mu.Unlock()

	for _, h := range handlers {
		h(remoteAddr, err)
	}
}

// Listen records addr.
func (s *DryRunServer) Listen(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listenAddr = addr
	return nil
}

// ListenAddr returns the address passed to Listen.
func (s *DryRunServer) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}

// Addr always returns nil since nothing is bound.
func (s *DryRunServer) Addr() net.Addr {
	return nil
}

func (s *DryRunServer) Shutdown(ctx context.Context) error {
	return s.Close()
}

func (s *DryRunServer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close or Shutdown was called.
func (s *DryRunServer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
