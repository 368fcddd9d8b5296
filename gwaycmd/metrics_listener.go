package gwaycmd

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/i18n-site/gway/metrics"
)

// serveMetrics runs the optional diagnostics listener until it errors; the
// caller runs it in its own goroutine since it is not part of the three
// protocol listeners gwayhttp.Serve coordinates shutdown for — it's a
// supplemental, loopback-friendly surface that does not participate in the
// drain fence.
func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	log.Info("metrics listener starting", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics listener exited", zap.Error(err))
	}
}
