package certcache

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/i18n-site/gway/internal/subhost"
)

// Cache sits in front of a Loader and holds already-loaded certificates in
// memory, keyed by the shortest DNS SAN on the leaf, with a day-bucketed
// expiry index used by a background sweep to evict certificates close to
// expiring. It only ever evicts: this proxy never renews or issues
// certificates itself.
type Cache struct {
	loader Loader
	log    *zap.Logger

	certs sync.Map // string (shortest SAN) -> *Certificate

	mu      sync.RWMutex
	byDay   map[int64]map[string]struct{}
	days    []int64 // sorted ascending, kept in sync with byDay's keys
	stopped chan struct{}

	// OnLoad and OnEvict, if set, are invoked each time a loaded certificate
	// is stored under its cache key and as it's evicted by rmExpired, for metrics
	// instrumentation (see the metrics package).
	OnLoad  func(host string)
	OnEvict func(host string)
}

// NewCache builds a Cache backed by loader and starts its daily eviction
// sweep. Call Close to stop the sweep when shutting down.
func NewCache(loader Loader, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Cache{
		loader:  loader,
		log:     log,
		byDay:   make(map[int64]map[string]struct{}),
		stopped: make(chan struct{}),
	}
	go c.maintain()
	return c
}

// Close stops the background eviction sweep.
func (c *Cache) Close() {
	close(c.stopped)
}

// maintain runs once a day for the lifetime of the cache, evicting
// certificates that expire within two days.
func (c *Cache) maintain() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopped:
			return
		case <-ticker.C:
			c.rmExpired(2)
		}
	}
}

// rmExpired removes every cached certificate whose expiry day is within
// withinDays of today.
func (c *Cache) rmExpired(withinDays int64) {
	today := time.Now().UTC().Unix() / 86400
	cutoff := today + withinDays

	c.mu.Lock()
	var toDelete []string
	keepDays := c.days[:0]
	for _, day := range c.days {
		if day <= cutoff {
			for name := range c.byDay[day] {
				toDelete = append(toDelete, name)
			}
			delete(c.byDay, day)
			continue
		}
		keepDays = append(keepDays, day)
	}
	c.days = keepDays
	c.mu.Unlock()

	for _, name := range toDelete {
		c.certs.Delete(name)
		c.log.Info("evicted expiring certificate", zap.String("host", name))
		if c.OnEvict != nil {
			c.OnEvict(name)
		}
	}
}

// index records cert under key in the expiry-day index. Callers hold no
// lock; index takes its own.
func (c *Cache) index(key string, cert *Certificate) {
	day := cert.ExpiryDay()
	c.mu.Lock()
	defer c.mu.Unlock()
	set, ok := c.byDay[day]
	if !ok {
		set = make(map[string]struct{})
		c.byDay[day] = set
		i := sort.Search(len(c.days), func(i int) bool { return c.days[i] >= day })
		c.days = append(c.days, 0)
		copy(c.days[i+1:], c.days[i:])
		c.days[i] = day
	}
	set[key] = struct{}{}
}

// Get resolves a certificate for host: an exact in-memory hit, else a
// loader lookup by host, else a single fallback (cache, then loader) to
// the parent domain obtained by stripping host's left-most label. A
// loader miss on host does not itself get cached as a negative result;
// only successfully loaded certificates are cached, under their own
// shortest-SAN key (which may differ from host, e.g. a wildcard's SAN).
func (c *Cache) Get(ctx context.Context, host string) (*Certificate, error) {
	return c.get(ctx, host, true)
}

func (c *Cache) get(ctx context.Context, host string, tryParent bool) (*Certificate, error) {
	if host == "" {
		return nil, ErrSNIMissing
	}
	if v, ok := c.certs.Load(host); ok {
		return v.(*Certificate), nil
	}

	cert, found, err := c.loader.Load(ctx, host)
	if err != nil {
		return nil, err
	}
	if found {
		key := host
		if san, ok := cert.ShortestSAN(); ok {
			key = san
		}
		if cert.Expired(time.Now()) {
			return nil, ErrCertExpired
		}
		c.certs.Store(key, cert)
		c.index(key, cert)
		if c.OnLoad != nil {
			c.OnLoad(key)
		}
		return cert, nil
	}

	if tryParent {
		if parent, ok := subhost.Parent(host); ok {
			return c.get(ctx, parent, false)
		}
	}
	return nil, ErrCertNotFound
}
