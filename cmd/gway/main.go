// Command gway runs a TLS-terminating HTTP/1.1, HTTP/2, and HTTP/3 front
// end that forwards to named upstream pools over HTTP/1.1.
package main

import (
	"os"

	"github.com/i18n-site/gway/gwaycmd"
)

func main() {
	os.Exit(gwaycmd.Main())
}
