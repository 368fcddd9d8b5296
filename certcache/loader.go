package certcache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
)

// Loader loads a Certificate for host from whatever backing store it
// wraps. A false "found" with a nil error means the host simply has no
// certificate on the backing store; distinguishing that from a transport
// error lets Cache decide whether to fall back to a parent domain.
type Loader interface {
	Load(ctx context.Context, host string) (cert *Certificate, found bool, err error)
}

// DirLoader is the built-in Loader: it expects, for host "example.com", a
// directory "<Base>/example.com_ecc/" containing "fullchain.cer" and
// "example.com.key" — the on-disk layout a small ACME client like acme.sh
// produces, which is what the on-disk certificate directory this proxy
// reads is filled by out of band.
type DirLoader struct {
	Base string
}

// Load implements Loader.
func (d DirLoader) Load(_ context.Context, host string) (*Certificate, bool, error) {
	dir := filepath.Join(d.Base, host+"_ecc")
	chainPath := filepath.Join(dir, "fullchain.cer")
	keyPath := filepath.Join(dir, host+".key")

	chain, err := os.ReadFile(chainPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, errors.Join(ErrIO, err)
	}
	key, err := os.ReadFile(keyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, errors.Join(ErrIO, err)
	}

	cert, err := NewCertificate(chain, key)
	if err != nil {
		return nil, false, err
	}
	return cert, true, nil
}
