// Package route holds the host-to-site-configuration routing table
// consulted on every request. It is built once, before serving begins,
// and is safe for concurrent reads thereafter.
package route

import (
	"sync"
	"time"
)

// Protocol names the wire protocol spoken to an upstream. This proxy only
// ever forwards over HTTP/1.1, but the value is carried so a future
// upstream type doesn't require reshaping SiteConfig.
type Protocol int

const (
	ProtocolHTTP1 Protocol = iota
)

// Upstream is a named pool of backend addresses reachable over HTTP/1.1.
type Upstream struct {
	Name string
	// Addresses is the fixed set of "host:port" backends selected by the
	// proxy pipeline's round-robin counter.
	Addresses []string
	// ConnectTimeout and RequestTimeout are carried for configuration
	// completeness but are advisory only: nothing in this repo enforces
	// them with a deadline.
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	MaxRetry       int
	Protocol       Protocol
}

// SiteConfig is what a Host resolves to: which upstream serves it, and
// which certificate-cache key names its TLS certificate (distinct from
// the Host itself when several hosts share one certificate).
type SiteConfig struct {
	Upstream *Upstream
	CertHost string
}

// upstreamSiteSet tracks, for diagnostics only, which hosts route to a
// given upstream. It is populated during Table construction and never
// consulted on the request path.
type upstreamSiteSet struct {
	upstream *Upstream
	hosts    map[string]struct{}
}

// Table is the host -> SiteConfig routing table. Reads are lock-free
// (backed by sync.Map); writes are expected only during construction,
// before Serve is called, though nothing prevents a later write.
type Table struct {
	hostConf     sync.Map // string -> SiteConfig
	mu           sync.Mutex
	upstreamSite map[string]*upstreamSiteSet
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{upstreamSite: make(map[string]*upstreamSiteSet)}
}

// AddUpstream registers an upstream by name, overwriting any previous
// upstream registered under the same name.
func (t *Table) AddUpstream(u *Upstream) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.upstreamSite[u.Name] = &upstreamSiteSet{upstream: u, hosts: make(map[string]struct{})}
}

// Set maps host to the upstream named upstreamName, using certHost as the
// certificate-cache lookup key for that host. If upstreamName names no
// registered upstream, Set is a silent no-op, tolerating a dangling
// reference in hand-authored configuration.
func (t *Table) Set(host, certHost, upstreamName string) {
	t.mu.Lock()
	set, ok := t.upstreamSite[upstreamName]
	if !ok {
		t.mu.Unlock()
		return
	}
	set.hosts[host] = struct{}{}
	t.mu.Unlock()

	t.hostConf.Store(host, SiteConfig{Upstream: set.upstream, CertHost: certHost})
}

// ConfByHost looks up the SiteConfig for an exact host match.
func (t *Table) ConfByHost(host string) (SiteConfig, bool) {
	v, ok := t.hostConf.Load(host)
	if !ok {
		return SiteConfig{}, false
	}
	return v.(SiteConfig), true
}

// Diagnostics returns, for each registered upstream, the set of hosts
// currently routed to it. It exists purely for observability (the
// metrics package) and is never consulted by the proxy pipeline.
func (t *Table) Diagnostics() map[string][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string][]string, len(t.upstreamSite))
	for name, set := range t.upstreamSite {
		hosts := make([]string, 0, len(set.hosts))
		for h := range set.hosts {
			hosts = append(hosts, h)
		}
		out[name] = hosts
	}
	return out
}
