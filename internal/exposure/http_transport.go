package exposure

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	tlsres "github.com/polisai/polis-expose/internal/tls"
)

// HTTPTransport creates net/http servers.
type HTTPTransport struct {
	logger *slog.Logger
}

// NewHTTPTransport creates a transport. A nil logger uses slog.Default.
func NewHTTPTransport(logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPTransport{logger: logger.With("component", "http_transport")}
}

// NewPlainServer implements Transport.
func (t *HTTPTransport) NewPlainServer(handler http.Handler) (Server, error) {
	return newHTTPServer(handler, nil, t.logger), nil
}

// NewTLSServer implements Transport.
func (t *HTTPTransport) NewTLSServer(handler http.Handler, cfg *tlsres.TLSConfig) (Server, error) {
	if cfg == nil {
		return nil, errors.New("TLS server requires a TLS configuration")
	}
	serverConfig, err := cfg.ServerConfig()
	if err != nil {
		return nil, err
	}
	return newHTTPServer(handler, serverConfig, t.logger), nil
}

// HTTPServer wraps an http.Server. RequestTimeout maps to ReadTimeout and
// HeadersTimeout to ReadHeaderTimeout.
type HTTPServer struct {
	srv       *http.Server
	tlsConfig *tls.Config
	logger    *slog.Logger

	mu       sync.Mutex
	handlers []ClientErrorHandler
	listener net.Listener
}

func newHTTPServer(handler http.Handler, tlsConfig *tls.Config, logger *slog.Logger) *HTTPServer {
	s := &HTTPServer{
		tlsConfig: tlsConfig,
		logger:    logger.With("encrypted", tlsConfig != nil),
	}
	s.srv = &http.Server{
		Handler:   handler,
		TLSConfig: tlsConfig,
		ErrorLog:  log.New(&serverErrorWriter{server: s}, "", 0),
	}
	return s
}

func (s *HTTPServer) SetRequestTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.srv.ReadTimeout = d
}

func (s *HTTPServer) SetHeadersTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.srv.ReadHeaderTimeout = d
}

func (s *HTTPServer) RequestTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv.ReadTimeout
}

func (s *HTTPServer) HeadersTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.srv.ReadHeaderTimeout
}

func (s *HTTPServer) Encrypted() bool {
	return s.tlsConfig != nil
}

func (s *HTTPServer) OnClientError(h ClientErrorHandler) {
	if h == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

func (s *HTTPServer) Listen(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("server is already listening")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.srv.Addr = ln.Addr().String()

	go s.serve(ln)
	return nil
}

func (s *HTTPServer) serve(ln net.Listener) {
	var err error
	if s.tlsConfig != nil {
		// Certificates come from TLSConfig, so no files are named here.
		err = s.srv.ServeTLS(ln, "", "")
	} else {
		err = s.srv.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Server stopped unexpectedly", "addr", ln.Addr().String(), "error", err)
	}
}

func (s *HTTPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *HTTPServer) Close() error {
	return s.srv.Close()
}

func (s *HTTPServer) clientErrorHandlers() []ClientErrorHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ClientErrorHandler(nil), s.handlers...)
}

const handshakeErrorPrefix = "http: TLS handshake error from "

// serverErrorWriter receives http.Server.ErrorLog output. Handshake failures
// go to the registered client error handlers; everything else is logged.
// Plain HTTP on a TLS port never gets here: net/http answers it with a 400
// without logging.
type serverErrorWriter struct {
	server *HTTPServer
}

func (w *serverErrorWriter) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")

	if remote, cause, ok := parseHandshakeError(line); ok {
		handlers := w.server.clientErrorHandlers()
		if len(handlers) > 0 {
			err := tlsres.NewHandshakeFailureError(remote, errors.New(cause))
			for _, h := range handlers {
				h(remote, err)
			}
			return len(p), nil
		}
	}

	w.server.logger.Warn("HTTP server error", "message", line)
	return len(p), nil
}

// parseHandshakeError splits "http: TLS handshake error from <addr>: <cause>".
func parseHandshakeError(line string) (remote, cause string, ok bool) {
	rest, found := strings.CutPrefix(line, handshakeErrorPrefix)
	if !found {
		return "", "", false
	}

	// The remote address may be an IPv6 literal, so split after the port.
	host, port, found := strings.Cut(rest, "]:")
	if found {
		if p, c, ok := strings.Cut(port, ": "); ok {
			return host + "]:" + p, c, true
		}
		return "", "", false
	}

	idx := strings.Index(rest, ": ")
	if idx < 0 {
		return rest, "", true
	}
	return rest[:idx], rest[idx+2:], true
}
