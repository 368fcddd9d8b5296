// Package proxy implements the request-handling pipeline shared by the
// H2 and H3 listeners: resolve the request's host, look it up in the
// routing table, and either redirect/404 on a miss or forward to an
// upstream (with round-robin selection and retry) on a hit.
package proxy

import (
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i18n-site/gway/connpool"
	"github.com/i18n-site/gway/internal/subhost"
	"github.com/i18n-site/gway/route"
)

// Pipeline resolves requests against a routing table and forwards hits
// through a connection pool.
type Pipeline struct {
	Table *route.Table
	Pool  *connpool.Pool
	Log   *zap.Logger

	// OnServed, if set, is invoked once per response with its status code,
	// for metrics instrumentation (see the metrics package). It is called
	// for every outcome: routing misses (301/404), dispatched upstream
	// responses, and the 500 issued once retries are exhausted.
	OnServed func(status int)

	// rr is the round-robin counter shared by every upstream this Pipeline
	// serves (one Pipeline per process): intentionally global rather than
	// per-upstream. The atomic increment is its only synchronization; it
	// gives each request a distinct counter value.
	rr atomic.Uint64
}

// New returns a Pipeline over table, forwarding through pool, logging to
// log (which may be nil, in which case nothing is logged).
func New(table *route.Table, pool *connpool.Pool, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{Table: table, Pool: pool, Log: log}
}

// ServeHTTP implements http.Handler. It never panics and always writes a
// response: 301 or 404 on a routing miss, the upstream's response
// (possibly after retries) on a hit, or 500 with the final error as the
// body once every retry is exhausted.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	host := requestHost(r)

	conf, ok := p.Table.ConfByHost(host)
	if !ok {
		p.serveMiss(w, r, host, reqID)
		return
	}
	p.serveHit(w, r, conf, reqID)
}

// requestHost resolves the effective host of r: the Host header if set,
// else the request URI's authority (relevant for proxy-form requests).
func requestHost(r *http.Request) string {
	if r.Host != "" {
		return stripPort(r.Host)
	}
	if r.URL != nil && r.URL.Host != "" {
		return stripPort(r.URL.Host)
	}
	return ""
}

func stripPort(hostport string) string {
	if i := strings.LastIndexByte(hostport, ':'); i >= 0 {
		return hostport[:i]
	}
	return hostport
}

func (p *Pipeline) serveMiss(w http.ResponseWriter, r *http.Request, host, reqID string) {
	if parent, ok := subhost.Parent(host); ok {
		if _, ok := p.Table.ConfByHost(parent); ok {
			target := *r.URL
			target.Host = parent
			target.Scheme = "https"
			w.Header().Set("Location", target.String())
			w.WriteHeader(http.StatusMovedPermanently)
			p.Log.Info("redirected to parent host", zap.String("req_id", reqID), zap.String("host", host), zap.String("parent", parent))
			p.served(http.StatusMovedPermanently)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, "404: Not Found")
	p.Log.Info("no route for host", zap.String("req_id", reqID), zap.String("host", host))
	p.served(http.StatusNotFound)
}

func (p *Pipeline) served(status int) {
	if p.OnServed != nil {
		p.OnServed(status)
	}
}

func (p *Pipeline) serveHit(w http.ResponseWriter, r *http.Request, conf route.SiteConfig, reqID string) {
	if len(conf.Upstream.Addresses) == 0 {
		// Defensive only: Table invariants forbid an upstream with no
		// addresses from ever being registered.
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "UpstreamNotFound")
		p.Log.Warn("upstream has no addresses", zap.String("req_id", reqID))
		p.served(http.StatusInternalServerError)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		io.WriteString(w, err.Error())
		p.Log.Warn("failed reading request body", zap.String("req_id", reqID), zap.Error(err))
		p.served(http.StatusBadGateway)
		return
	}

	addrs := conf.Upstream.Addresses
	maxAttempts := conf.Upstream.MaxRetry + 1
	var lastErr error

	// The counter advances exactly once per request, here, before the
	// retry loop; a retry advances pos locally, mod len(addrs), without
	// touching p.rr again.
	n := uint64(len(addrs))
	pos := (p.rr.Add(1) - 1) % n

	for attempt := 0; attempt < maxAttempts; attempt++ {
		addr := addrs[int((pos+uint64(attempt))%n)]

		upReq := r.Clone(r.Context())
		upReq.RequestURI = ""
		upReq.Proto = "HTTP/1.1"
		upReq.ProtoMajor = 1
		upReq.ProtoMinor = 1
		upReq.Header.Set("Connection", "keep-alive")
		upReq.Body = io.NopCloser(newReader(body))
		upReq.ContentLength = int64(len(body))

		resp, err := p.Pool.Do(upReq, addr)
		if err != nil {
			lastErr = err
			p.Log.Warn("upstream attempt failed", zap.String("req_id", reqID), zap.String("addr", addr), zap.Error(err))
			continue
		}

		defer resp.Body.Close()
		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			lastErr = err
			p.Log.Warn("upstream response read failed", zap.String("req_id", reqID), zap.String("addr", addr), zap.Error(err))
			continue
		}

		copyHeader(w.Header(), resp.Header)
		w.WriteHeader(resp.StatusCode)
		w.Write(respBody)
		p.Log.Info("dispatched response",
			zap.String("req_id", reqID),
			zap.String("addr", addr),
			zap.Int("status", resp.StatusCode),
			zap.String("bytes", humanize.Bytes(uint64(len(respBody)))),
		)
		p.served(resp.StatusCode)
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	msg := "upstream unavailable"
	if lastErr != nil {
		msg = lastErr.Error()
	}
	io.WriteString(w, msg)
	p.Log.Warn("retries exhausted", zap.String("req_id", reqID), zap.Error(lastErr))
	p.served(http.StatusInternalServerError)
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		for _, v := range vs {
			dst.Add(k, v)
		}
	}
}

func newReader(b []byte) *byteReader { return &byteReader{b: b} }

// byteReader is a minimal io.Reader over an in-memory slice, used so the
// collected request body can be replayed on each retry attempt.
type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.pos:])
	r.pos += n
	return n, nil
}
