package exposure

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tlsres "github.com/polisai/polis-expose/internal/tls"
)

func slogTo(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, nil))
}

func testServerTLSConfig(t *testing.T) *tlsres.TLSConfig {
	t.Helper()
	certPEM, keyPEM, err := tlsres.GenerateSelfSignedCertificate(tlsres.CertificateGenerationOptions{KeySize: 2048})
	require.NoError(t, err)
	return &tlsres.TLSConfig{Cert: certPEM, Key: keyPEM, MinVersion: "TLSv1.2"}
}

func TestHTTPServer_Timeouts(t *testing.T) {
	transport := NewHTTPTransport(testLogger())
	server, err := transport.NewPlainServer(okHandler)
	require.NoError(t, err)

	assert.Zero(t, server.RequestTimeout())
	assert.Zero(t, server.HeadersTimeout())

	server.SetRequestTimeout(10 * time.Second)
	server.SetHeadersTimeout(2 * time.Second)

	httpServer := server.(*HTTPServer)
	assert.Equal(t, 10*time.Second, httpServer.srv.ReadTimeout)
	assert.Equal(t, 2*time.Second, httpServer.srv.ReadHeaderTimeout)
	assert.False(t, server.Encrypted())
}

func TestHTTPTransport_NewTLSServerErrors(t *testing.T) {
	transport := NewHTTPTransport(testLogger())

	_, err := transport.NewTLSServer(okHandler, nil)
	assert.Error(t, err)

	_, err = transport.NewTLSServer(okHandler, &tlsres.TLSConfig{Cert: []byte("bad"), Key: []byte("bad")})
	assert.Error(t, err)
}

func TestHTTPServer_PlainServes(t *testing.T) {
	transport := NewHTTPTransport(testLogger())
	server, err := transport.NewPlainServer(okHandler)
	require.NoError(t, err)

	assert.Nil(t, server.Addr())
	require.NoError(t, server.Listen("127.0.0.1:0"))
	t.Cleanup(func() { _ = server.Close() })

	assert.Error(t, server.Listen("127.0.0.1:0"), "second Listen must fail")

	resp, err := http.Get("http://" + server.Addr().String() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))
}

func TestHTTPServer_BindErrorIsSynchronous(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	server, err := NewHTTPTransport(testLogger()).NewPlainServer(okHandler)
	require.NoError(t, err)

	assert.Error(t, server.Listen(ln.Addr().String()))
}

func TestHTTPServer_TLSServesAndObservesClientErrors(t *testing.T) {
	transport := NewHTTPTransport(testLogger())
	server, err := transport.NewTLSServer(okHandler, testServerTLSConfig(t))
	require.NoError(t, err)
	assert.True(t, server.Encrypted())

	var (
		mu       sync.Mutex
		observed []error
	)
	server.OnClientError(func(remoteAddr string, err error) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, err)
	})

	require.NoError(t, server.Listen("127.0.0.1:0"))
	t.Cleanup(func() { _ = server.Close() })
	addr := server.Addr().String()

	// A client speaking something other than TLS.
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_, _ = conn.Write([]byte("GARBAGE THAT IS NOT TLS\r\n\r\n"))
	_, _ = io.Copy(io.Discard, conn)
	conn.Close()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) > 0
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	var tlsErr *tlsres.TLSError
	assert.True(t, errors.As(observed[0], &tlsErr))
	assert.True(t, tlsres.IsHandshakeError(observed[0]))
	mu.Unlock()

	// The listener survives and still serves TLS clients.
	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test certificate
	}}
	resp, err := client.Get("https://" + addr + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// net/http answers plain HTTP on a TLS port with a 400 itself and does not
// report a handshake error, so observers only see non-HTTP garbage.
func TestHTTPServer_PlainHTTPOnTLSPortIsNotObserved(t *testing.T) {
	server, err := NewHTTPTransport(testLogger()).NewTLSServer(okHandler, testServerTLSConfig(t))
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		observed []string
	)
	server.OnClientError(func(remoteAddr string, err error) {
		mu.Lock()
		defer mu.Unlock()
		observed = append(observed, remoteAddr)
	})

	require.NoError(t, server.Listen("127.0.0.1:0"))
	t.Cleanup(func() { _ = server.Close() })
	addr := server.Addr().String()

	resp, err := http.Get("http://" + addr + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "HTTP request to an HTTPS server")

	// Any report for the plain request would be logged before its 400 was
	// written, so one observation after the garbage client means exactly
	// the garbage client was reported.
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	_, _ = conn.Write([]byte("GARBAGE THAT IS NOT TLS\r\n\r\n"))
	_, _ = io.Copy(io.Discard, conn)
	garbageAddr := conn.LocalAddr().String()
	conn.Close()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(observed) > 0
	}, 5*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{garbageAddr}, observed)
}

func TestParseHandshakeError(t *testing.T) {
	tests := []struct {
		line   string
		remote string
		cause  string
		ok     bool
	}{
		{
			line:   "http: TLS handshake error from 10.0.0.9:52311: tls: first record does not look like a TLS handshake",
			remote: "10.0.0.9:52311",
			cause:  "tls: first record does not look like a TLS handshake",
			ok:     true,
		},
		{
			line:   "http: TLS handshake error from [::1]:4433: EOF",
			remote: "[::1]:4433",
			cause:  "EOF",
			ok:     true,
		},
		{
			line: "http: Accept error: too many open files",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			remote, cause, ok := parseHandshakeError(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.remote, remote)
			assert.Equal(t, tt.cause, cause)
		})
	}
}

func TestServerErrorWriter_FallsBackToLogger(t *testing.T) {
	var buf syncBuffer
	server := newHTTPServer(okHandler, nil, slogTo(&buf))

	_, err := server.srv.ErrorLog.Writer().Write([]byte("http: TLS handshake error from 1.2.3.4:5: EOF\n"))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "HTTP server error")

	var called bool
	server.OnClientError(func(string, error) { called = true })
	_, err = server.srv.ErrorLog.Writer().Write([]byte("http: TLS handshake error from 1.2.3.4:5: EOF\n"))
	require.NoError(t, err)
	assert.True(t, called)
}
