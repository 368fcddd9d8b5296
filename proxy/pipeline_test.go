package proxy

import (
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/i18n-site/gway/connpool"
	"github.com/i18n-site/gway/route"
)

func stubUpstream(t *testing.T, status int, body string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		io.WriteString(w, body)
	})}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return ln.Addr().String()
}

func newPipeline(t *testing.T, addrs []string, maxRetry int) (*Pipeline, *route.Table) {
	tbl := route.NewTable()
	up := &route.Upstream{Name: "app", Addresses: addrs, MaxRetry: maxRetry}
	tbl.AddUpstream(up)
	tbl.Set("example.com", "example.com", "app")
	return New(tbl, connpool.New(time.Second), nil), tbl
}

func TestPipelineHitDispatches(t *testing.T) {
	addr := stubUpstream(t, http.StatusOK, "hello")
	p, _ := newPipeline(t, []string{addr}, 0)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello", rec.Body.String())
}

func TestPipelineMissReturns404(t *testing.T) {
	p, _ := newPipeline(t, []string{"127.0.0.1:1"}, 0)

	req := httptest.NewRequest(http.MethodGet, "http://nowhere.test/", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPipelineParentRedirect(t *testing.T) {
	addr := stubUpstream(t, http.StatusOK, "ok")
	p, tbl := newPipeline(t, []string{addr}, 0)
	up := &route.Upstream{Name: "app2", Addresses: []string{addr}}
	tbl.AddUpstream(up)
	tbl.Set("sub.example.com", "", "app2") // force parent lookup from a deeper host

	req := httptest.NewRequest(http.MethodGet, "http://deep.sub.example.com/path", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	require.Equal(t, http.StatusMovedPermanently, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "sub.example.com")
}

func TestPipelineRoundRobinAdvancesOncePerRequestDespiteRetries(t *testing.T) {
	// Two addresses, one dead (forces a retry on every request that starts
	// there: the first and third) and one live; MaxRetry=1 gives each
	// request up to two attempts. The shared
	// counter must still advance by exactly one per request, not once per
	// attempt.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := ln.Addr().String()
	ln.Close()
	liveAddr := stubUpstream(t, http.StatusOK, "ok")

	p, _ := newPipeline(t, []string{deadAddr, liveAddr}, 1)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	require.Equal(t, uint64(3), p.rr.Load())
}

func TestPipelineRetriesThenFails(t *testing.T) {
	// No listener on this address: every attempt fails immediately.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadAddr := ln.Addr().String()
	ln.Close()

	p, _ := newPipeline(t, []string{deadAddr}, 2)

	req := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
