package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleTOML = `
cert_dir = "/etc/gway/certs"

[listen]
h1 = "0.0.0.0:9081"
h2 = "0.0.0.0:9082"
h3 = "0.0.0.0:9082"

[[upstream]]
name = "main"
addresses = ["127.0.0.1:8080", "127.0.0.1:8081"]
connect_timeout_s = 5
request_timeout_s = 30
max_retry = 2

[[site]]
host = "018007.xyz"
cert_host = "018007.xyz"
upstream = "main"

[[site]]
host = "bare.example.com"
upstream = "main"
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gway.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML), 0o644))
	return path
}

func TestLoadAndBuildTable(t *testing.T) {
	cfg, err := Load(writeSample(t))
	require.NoError(t, err)
	require.Equal(t, "/etc/gway/certs", cfg.CertDir)
	require.Equal(t, "0.0.0.0:9081", cfg.Listen.H1)
	require.Len(t, cfg.Upstream, 1)
	require.Len(t, cfg.Site, 2)

	table, err := BuildTable(cfg)
	require.NoError(t, err)

	conf, ok := table.ConfByHost("018007.xyz")
	require.True(t, ok)
	require.Equal(t, []string{"127.0.0.1:8080", "127.0.0.1:8081"}, conf.Upstream.Addresses)
	require.Equal(t, "018007.xyz", conf.CertHost)
	require.Equal(t, 2, conf.Upstream.MaxRetry)

	// cert_host defaults to host when left unset in the TOML.
	conf, ok = table.ConfByHost("bare.example.com")
	require.True(t, ok)
	require.Equal(t, "bare.example.com", conf.CertHost)
}

func TestBuildTableRejectsUnknownUpstream(t *testing.T) {
	cfg := &Config{
		Site: []Site{{Host: "example.com", Upstream: "missing"}},
	}
	_, err := BuildTable(cfg)
	require.Error(t, err)
}

func TestBuildTableRejectsEmptyUpstreamAddresses(t *testing.T) {
	cfg := &Config{
		Upstream: []Upstream{{Name: "main"}},
	}
	_, err := BuildTable(cfg)
	require.Error(t, err)
}
