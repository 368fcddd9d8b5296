package route

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTableExactAndMiss(t *testing.T) {
	tbl := NewTable()
	up := &Upstream{Name: "app", Addresses: []string{"127.0.0.1:9001"}}
	tbl.AddUpstream(up)
	tbl.Set("example.com", "example.com", "app")

	conf, ok := tbl.ConfByHost("example.com")
	require.True(t, ok)
	require.Equal(t, up, conf.Upstream)
	require.Equal(t, "example.com", conf.CertHost)

	_, ok = tbl.ConfByHost("nowhere.test")
	require.False(t, ok)
}

func TestTableSetUnknownUpstreamIsNoop(t *testing.T) {
	tbl := NewTable()
	tbl.Set("example.com", "example.com", "missing")

	_, ok := tbl.ConfByHost("example.com")
	require.False(t, ok)
}

func TestTableDiagnostics(t *testing.T) {
	tbl := NewTable()
	up := &Upstream{Name: "app"}
	tbl.AddUpstream(up)
	tbl.Set("a.example.com", "a.example.com", "app")
	tbl.Set("b.example.com", "b.example.com", "app")

	diag := tbl.Diagnostics()
	require.ElementsMatch(t, []string{"a.example.com", "b.example.com"}, diag["app"])
}
