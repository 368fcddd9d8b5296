// Package gwayhttp wires the routing table, certificate cache, and proxy
// pipeline into the three listening sockets (plaintext HTTP/1.1, TLS
// HTTP/2, and QUIC/HTTP/3) and coordinates their graceful shutdown.
package gwayhttp

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i18n-site/gway/certcache"
	"github.com/i18n-site/gway/route"
)

// Addrs names the three listen addresses the fabric binds.
type Addrs struct {
	H1 string
	H2 string
	H3 string
}

// fence implements the twin read-write-lock shutdown discipline: a
// "shutdown" lock whose writer means "shutdown has begun", held for
// write by a goroutine waiting on ctx.Done(), and a "drain" lock whose
// writer means "every accept loop has exited", acquired only after every
// listener's Serve goroutine has released its own read lock. Each
// listener goroutine's entire Serve call runs under a held read lock on
// drainMu; drain does not return until every one of them has returned and
// released it.
type fence struct {
	shutdownMu sync.RWMutex
	drainMu    sync.RWMutex
}

func newFence(ctx context.Context, closers ...func() error) *fence {
	f := &fence{}
	f.shutdownMu.Lock() // held by the watcher goroutine below until ctx fires
	go func() {
		<-ctx.Done()
		for _, c := range closers {
			c()
		}
		f.shutdownMu.Unlock()
	}()
	return f
}

// hold is called by each listener goroutine around its Serve call.
func (f *fence) hold(serve func() error) error {
	f.drainMu.RLock()
	defer f.drainMu.RUnlock()
	return serve()
}

// drain blocks until every listener goroutine currently inside hold has
// returned.
func (f *fence) drain() {
	f.drainMu.Lock()
	defer f.drainMu.Unlock()
}

// Serve binds the H1, H2, and H3 listeners and runs them until ctx is
// canceled, at which point all three are closed and Serve waits for their
// accept loops to drain before returning. The first listener error other
// than the shutdown-induced close aborts the whole group.
func Serve(ctx context.Context, addrs Addrs, table *route.Table, cache *certcache.Cache, handler http.Handler, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	h1ln, err := listenTCP(addrs.H1)
	if err != nil {
		return err
	}
	h2ln, err := listenTCP(addrs.H2)
	if err != nil {
		h1ln.Close()
		return err
	}
	h3pc, err := listenUDP(addrs.H3)
	if err != nil {
		h1ln.Close()
		h2ln.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	f := newFence(gctx, h1ln.Close, h2ln.Close, h3pc.Close)

	g.Go(func() error {
		err := f.hold(func() error { return serveH1(h1ln, table, log) })
		return ignoreShutdownErr(ctx, err)
	})
	g.Go(func() error {
		err := f.hold(func() error { return serveH2(gctx, h2ln, cache, handler, log) })
		return ignoreShutdownErr(ctx, err)
	})
	g.Go(func() error {
		err := f.hold(func() error { return serveH3(gctx, h3pc, cache, handler, log) })
		return ignoreShutdownErr(ctx, err)
	})

	err = g.Wait()
	f.drain()
	return err
}

// ignoreShutdownErr swallows the "listener closed" error that every
// Serve loop returns once the fence closes its socket during an
// intentional shutdown, so a clean shutdown doesn't look like a failure.
func ignoreShutdownErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return nil
	default:
		return err
	}
}
