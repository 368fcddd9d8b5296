package connpool

import "errors"

// ErrConnClosed means the cached connection used to carry a request was
// no longer usable (the peer closed it, or it raced against this
// process's own shutdown). http retries such a failure on a fresh
// connection using the original, unmodified request; every other error
// from a cached connection propagates immediately.
var ErrConnClosed = errors.New("connpool: connection closed")
