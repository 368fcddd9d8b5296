package gwayhttp

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/i18n-site/gway/certcache"
)

// getCertificate is the H2 listener's tls.Config.GetCertificate hook; the
// H3 listener does the same lookup in h3.go's getConfigForClient. crypto/tls calls this hook with the ClientHello's
// ServerName already parsed, so certificate selection is a single lookup
// with no manual handshake peeking required.
func getCertificate(cache *certcache.Cache, log *zap.Logger) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
		cert, err := cache.Get(hello.Context(), hello.ServerName)
		if err != nil {
			log.Warn("tls handshake dropped", zap.String("sni", hello.ServerName), zap.Error(err))
			return nil, err
		}
		return cert.TLS(), nil
	}
}

// serveH2 wraps ln in a TLS listener configured for per-SNI certificate
// selection and ALPN "h2", then hands it to a net/http.Server explicitly
// configured for HTTP/2 via http2.ConfigureServer, the same call the
// teacher's own HTTPS-serving path makes (see DESIGN.md).
func serveH2(ctx context.Context, ln net.Listener, cache *certcache.Cache, handler http.Handler, log *zap.Logger) error {
	tlsConf := &tls.Config{
		GetCertificate: getCertificate(cache, log),
		NextProtos:     []string{"h2"},
		MinVersion:     tls.VersionTLS12,
	}
	srv := &http.Server{Handler: handler, BaseContext: func(net.Listener) context.Context { return ctx }}
	if err := http2.ConfigureServer(srv, &http2.Server{}); err != nil {
		return err
	}
	tlsLn := tls.NewListener(ln, tlsConf)
	return srv.Serve(tlsLn)
}
