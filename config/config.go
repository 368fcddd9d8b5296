// Package config loads the TOML file that describes upstreams and sites and
// builds the route.Table consulted by the proxy pipeline, constructed once
// before serving begins and treated as logically immutable thereafter.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/i18n-site/gway/route"
)

// Upstream is one [[upstream]] block.
type Upstream struct {
	Name            string   `toml:"name"`
	Addresses       []string `toml:"addresses"`
	ConnectTimeoutS int      `toml:"connect_timeout_s"`
	RequestTimeoutS int      `toml:"request_timeout_s"`
	MaxRetry        int      `toml:"max_retry"`
}

// Site is one [[site]] block: a host mapped to an upstream, with the
// certificate-lookup host (which may differ, e.g. a wildcard cert serving
// several sites) carried alongside it.
type Site struct {
	Host     string `toml:"host"`
	CertHost string `toml:"cert_host"`
	Upstream string `toml:"upstream"`
}

// Listen names the three protocol listener addresses.
type Listen struct {
	H1 string `toml:"h1"`
	H2 string `toml:"h2"`
	H3 string `toml:"h3"`
}

// Metrics names the optional diagnostics listener, a supplemental feature
// and not one of the three protocol listeners.
type Metrics struct {
	Listen string `toml:"listen"`
}

// Config is the root of the TOML configuration file.
type Config struct {
	CertDir  string     `toml:"cert_dir"`
	Listen   Listen     `toml:"listen"`
	Metrics  Metrics    `toml:"metrics"`
	Upstream []Upstream `toml:"upstream"`
	Site     []Site     `toml:"site"`
}

// Load decodes the TOML file at path into a Config.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	return &cfg, nil
}

// BuildTable constructs a route.Table from cfg: every upstream is
// registered first (route.Table.Set silently no-ops on an unregistered
// upstream name, so order matters here), then every site is wired to it.
// This is called once, before gwayhttp.Serve.
func BuildTable(cfg *Config) (*route.Table, error) {
	table := route.NewTable()

	for _, u := range cfg.Upstream {
		if len(u.Addresses) == 0 {
			return nil, fmt.Errorf("config: upstream %q has no addresses", u.Name)
		}
		table.AddUpstream(&route.Upstream{
			Name:           u.Name,
			Addresses:      u.Addresses,
			ConnectTimeout: time.Duration(u.ConnectTimeoutS) * time.Second,
			RequestTimeout: time.Duration(u.RequestTimeoutS) * time.Second,
			MaxRetry:       u.MaxRetry,
			Protocol:       route.ProtocolHTTP1,
		})
	}

	for _, s := range cfg.Site {
		certHost := s.CertHost
		if certHost == "" {
			certHost = s.Host
		}
		table.Set(s.Host, certHost, s.Upstream)
		if _, ok := table.ConfByHost(s.Host); !ok {
			return nil, fmt.Errorf("config: site %q references unknown upstream %q", s.Host, s.Upstream)
		}
	}

	return table, nil
}
