package gwayhttp

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"

	"github.com/quic-go/quic-go/http3"
	"go.uber.org/zap"

	"github.com/i18n-site/gway/certcache"
)

// getConfigForClient is the tls.Config.GetConfigForClient hook used by the
// H3 listener: it resolves the ClientHello's SNI against cache and hands
// QUIC the resolved certificate's pre-built QUIC-side *tls.Config. Factored
// out from serveH3, the same way h2.go factors out getCertificate, so the
// SNI-resolution logic is unit-testable without a full QUIC handshake.
func getConfigForClient(cache *certcache.Cache, log *zap.Logger) func(*tls.ClientHelloInfo) (*tls.Config, error) {
	return func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
		cert, err := cache.Get(hello.Context(), hello.ServerName)
		if err != nil {
			log.Warn("quic handshake dropped", zap.String("sni", hello.ServerName), zap.Error(err))
			return nil, err
		}
		return cert.QUICConfig(), nil
	}
}

// serveH3 runs an HTTP/3 server over udpConn, using the same per-SNI
// certificate resolution as the H2 listener. quic-go/http3 already
// presents requests as *http.Request/http.ResponseWriter, so the same
// handler (the proxy pipeline) serves both the H2 and H3 listeners without
// a separate frame-forwarding loop.
func serveH3(ctx context.Context, udpConn net.PacketConn, cache *certcache.Cache, handler http.Handler, log *zap.Logger) error {
	tlsConf := &tls.Config{
		GetConfigForClient: getConfigForClient(cache, log),
		NextProtos:         []string{"h3"},
		MinVersion:         tls.VersionTLS12,
	}

	srv := &http3.Server{
		Handler:   handler,
		TLSConfig: tlsConf,
	}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	return srv.Serve(udpConn)
}
