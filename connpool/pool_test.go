package connpool

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// echoUpstream starts a tiny HTTP/1.1 server on a loopback TCP listener
// and returns its address. It answers every request with 200 and the
// request path as the body.
func echoUpstream(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, r.URL.Path)
	})}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return ln.Addr().String()
}

func TestPoolReusesConnection(t *testing.T) {
	addr := echoUpstream(t)
	p := New(time.Second)

	req1 := httptest.NewRequest(http.MethodGet, "http://upstream/one", nil)
	req1.RequestURI = ""
	resp1, err := p.Do(req1, addr)
	require.NoError(t, err)
	body1, _ := io.ReadAll(resp1.Body)
	require.Equal(t, "/one", string(body1))
	require.NoError(t, resp1.Body.Close())

	// give the release a moment to land on the idle stack
	time.Sleep(10 * time.Millisecond)

	ap := p.forAddr(addr)
	ap.mu.Lock()
	idleBefore := len(ap.idle)
	ap.mu.Unlock()
	require.Equal(t, 1, idleBefore)

	req2 := httptest.NewRequest(http.MethodGet, "http://upstream/two", nil)
	req2.RequestURI = ""
	resp2, err := p.Do(req2, addr)
	require.NoError(t, err)
	body2, _ := io.ReadAll(resp2.Body)
	require.Equal(t, "/two", string(body2))
	require.NoError(t, resp2.Body.Close())
}

func TestPoolCloseDrainsIdleConnections(t *testing.T) {
	addr := echoUpstream(t)
	p := New(time.Second)

	req := httptest.NewRequest(http.MethodGet, "http://upstream/one", nil)
	req.RequestURI = ""
	resp, err := p.Do(req, addr)
	require.NoError(t, err)
	io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())

	// give the release a moment to land on the idle stack
	time.Sleep(10 * time.Millisecond)

	ap := p.forAddr(addr)
	ap.mu.Lock()
	idleBefore := len(ap.idle)
	ap.mu.Unlock()
	require.Equal(t, 1, idleBefore)

	p.Close()

	require.Eventually(t, func() bool {
		ap.mu.Lock()
		defer ap.mu.Unlock()
		return len(ap.idle) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPoolSurfacesErrorWhenFreshConnPeerCloses(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		c.Close() // immediately close without responding
	}()

	p := New(time.Second)
	req := httptest.NewRequest(http.MethodGet, "http://upstream/", nil)
	req.RequestURI = ""
	_, err = p.Do(req, ln.Addr().String())
	require.Error(t, err)
}
