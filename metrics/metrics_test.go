package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/i18n-site/gway/certcache"
	"github.com/i18n-site/gway/connpool"
	"github.com/i18n-site/gway/proxy"
	"github.com/i18n-site/gway/route"
)

type notFoundLoader struct{}

func (notFoundLoader) Load(_ context.Context, _ string) (*certcache.Certificate, bool, error) {
	return nil, false, nil
}

func TestSanitizeCode(t *testing.T) {
	require.Equal(t, "200", sanitizeCode(0))
	require.Equal(t, "404", sanitizeCode(404))
	require.Equal(t, "500", sanitizeCode(500))
}

func TestWirePipelineInvokesOnServed(t *testing.T) {
	p := proxy.New(route.NewTable(), connpool.New(0), zap.NewNop())
	WirePipeline(p)
	require.NotNil(t, p.OnServed)
	// must not panic when invoked directly, as the pipeline does per response.
	p.OnServed(200)
	p.OnServed(404)
}

func TestWirePoolInvokesHooks(t *testing.T) {
	pool := connpool.New(0)
	WirePool(pool)
	require.NotNil(t, pool.OnDial)
	require.NotNil(t, pool.OnEvict)
	pool.OnDial("127.0.0.1:9000")
	pool.OnEvict("127.0.0.1:9000")
}

func TestWireCacheInvokesHooks(t *testing.T) {
	cache := certcache.NewCache(notFoundLoader{}, zap.NewNop())
	defer cache.Close()
	WireCache(cache)
	require.NotNil(t, cache.OnLoad)
	require.NotNil(t, cache.OnEvict)
	cache.OnLoad("example.com")
	cache.OnEvict("example.com")
}
