// Package connpool implements the bespoke outbound HTTP/1.1 connection
// pool used by the proxy pipeline: a two-level map from upstream address
// to peer address to an idle connection, LIFO reuse, a driver goroutine
// per connection that self-evicts on any transport error, and a retry
// policy that falls back to a fresh connection (and the original,
// unmodified request) when a cached connection turns out to be closed.
package connpool

import (
	"errors"
	"net/http"
	"sync"
	"time"
)

// addrPool is the idle-connection stack for one upstream address. Reuse is
// LIFO: the most recently returned connection is the next one checked
// out, since recently used sockets are likelier to still be warm at the
// peer.
type addrPool struct {
	mu    sync.Mutex
	idle  map[string]*conn // peerAddr -> conn
	order []string         // LIFO stack of peerAddr; stale entries are skipped lazily
}

func (p *addrPool) checkout() (*conn, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.order) > 0 {
		peer := p.order[len(p.order)-1]
		p.order = p.order[:len(p.order)-1]
		c, ok := p.idle[peer]
		if !ok {
			continue // stale: already evicted by its driver
		}
		delete(p.idle, peer)
		return c, true
	}
	return nil, false
}

func (p *addrPool) put(c *conn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idle[c.peerAddr] = c
	p.order = append(p.order, c.peerAddr)
}

func (p *addrPool) evict(peerAddr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.idle, peerAddr)
}

// closeAll shuts every currently idle connection's driver down. Each
// driver's own self-eviction (via onDone) removes it from p.idle as it
// exits, so closeAll only needs a snapshot of what's idle right now, not
// a lock held across the close calls themselves.
func (p *addrPool) closeAll() {
	p.mu.Lock()
	conns := make([]*conn, 0, len(p.idle))
	for _, c := range p.idle {
		conns = append(conns, c)
	}
	p.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

// Pool is the top-level upstream-address -> addrPool map.
type Pool struct {
	mu             sync.Mutex
	byAddr         map[string]*addrPool
	connectTimeout time.Duration

	// OnDial and OnEvict, if set, are invoked as a connection is created
	// and as its driver self-evicts, for metrics instrumentation.
	OnDial  func(addr string)
	OnEvict func(addr string)
}

// New returns an empty Pool. connectTimeout bounds each dial; zero means
// no timeout.
func New(connectTimeout time.Duration) *Pool {
	return &Pool{byAddr: make(map[string]*addrPool), connectTimeout: connectTimeout}
}

func (p *Pool) forAddr(addr string) *addrPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ap, ok := p.byAddr[addr]
	if !ok {
		ap = &addrPool{idle: make(map[string]*conn)}
		p.byAddr[addr] = ap
	}
	return ap
}

// Do sends req to addr, reusing a pooled connection when one is idle.
// A cached connection is tried first with a cloned request; if it turns
// out to be closed the request is retried once on a fresh connection
// using the original, unmodified req. Any other error is returned as-is.
// The returned response's Body, once fully drained and Closed, returns
// the underlying connection to the pool — not before, so a caller that
// never reads the body never causes the connection to be reused
// mid-pipeline.
func (p *Pool) Do(req *http.Request, addr string) (*http.Response, error) {
	ap := p.forAddr(addr)

	if cached, ok := ap.checkout(); ok {
		cloned := req.Clone(req.Context())
		resp, err := cached.do(cloned)
		if err == nil {
			return p.wrapBody(resp, ap, cached), nil
		}
		if !errors.Is(err, ErrConnClosed) {
			return nil, err
		}
		// fall through to a fresh connection with the ORIGINAL request
	}

	fresh, err := p.dial(addr, ap)
	if err != nil {
		return nil, err
	}
	resp, err := fresh.do(req)
	if err != nil {
		return nil, err
	}
	return p.wrapBody(resp, ap, fresh), nil
}

func (p *Pool) dial(addr string, ap *addrPool) (*conn, error) {
	c, err := dial(addr, p.connectTimeout, func(peerAddr string) {
		ap.evict(peerAddr)
		if p.OnEvict != nil {
			p.OnEvict(addr)
		}
	})
	if err != nil {
		return nil, err
	}
	if p.OnDial != nil {
		p.OnDial(addr)
	}
	return c, nil
}

func (p *Pool) wrapBody(resp *http.Response, ap *addrPool, c *conn) *http.Response {
	resp.Body = &pooledBody{
		ReadCloser: resp.Body,
		release: func() {
			ap.put(c)
		},
	}
	return resp
}

// Close shuts down every idle connection's driver across every upstream
// address, used during process shutdown to release outbound sockets
// instead of leaving them to the OS to reap. Connections currently
// checked out (in flight) are unaffected: closing their response body
// still returns them to the idle set, and a driver that errors still
// evicts itself.
func (p *Pool) Close() {
	p.mu.Lock()
	pools := make([]*addrPool, 0, len(p.byAddr))
	for _, ap := range p.byAddr {
		pools = append(pools, ap)
	}
	p.mu.Unlock()
	for _, ap := range pools {
		ap.closeAll()
	}
}
