package gwayhttp

import (
	"io"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/i18n-site/gway/internal/subhost"
	"github.com/i18n-site/gway/route"
)

// h1Handler answers every plaintext HTTP/1.1 request with either a 301 to
// the HTTPS form of the same host (when the table knows the host or its
// parent) or a 404. It never proxies a request itself — the H1
// listener exists only to redirect browsers off plaintext.
type h1Handler struct {
	table *route.Table
	log   *zap.Logger
}

func (h h1Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	known := host
	if _, ok := h.table.ConfByHost(host); !ok {
		if parent, ok := subhost.Parent(host); ok {
			if _, ok := h.table.ConfByHost(parent); ok {
				known = parent
			} else {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, "404: Not Found")
				return
			}
		} else {
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, "404: Not Found")
			return
		}
	}

	target := *r.URL
	target.Scheme = "https"
	target.Host = known
	w.Header().Set("Location", target.String())
	w.WriteHeader(http.StatusMovedPermanently)
}

// serveH1 runs the plaintext listener until ln is closed by the shutdown
// fence in fabric.go.
func serveH1(ln net.Listener, table *route.Table, log *zap.Logger) error {
	srv := &http.Server{Handler: h1Handler{table: table, log: log}}
	return srv.Serve(ln)
}
