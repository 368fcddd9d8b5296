package connpool

import (
	"io"
	"sync/atomic"
)

// pooledBody wraps a response body so that Close — not the end of the
// request — is what returns the underlying connection to the pool. This
// is the Go rendering of "the connection is returned when the response
// body value is dropped": Go has no destructors, so the contract is
// carried through io.Closer instead. release runs at most once even if
// Close is called more than once, which net/http's own client does in
// some error paths.
type pooledBody struct {
	io.ReadCloser
	release  func()
	released atomic.Bool
}

func (b *pooledBody) Close() error {
	err := b.ReadCloser.Close()
	if b.released.CompareAndSwap(false, true) {
		b.release()
	}
	return err
}
