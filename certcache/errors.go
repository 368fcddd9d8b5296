package certcache

import "errors"

// Sentinel errors returned by certificate loading and lookup. Callers
// should compare with errors.Is; wrapped detail (e.g. which file failed to
// read) is attached with %w where useful.
var (
	// ErrCertParse means the PEM chain could not be decoded into at least
	// one DER certificate.
	ErrCertParse = errors.New("certcache: could not parse certificate chain")

	// ErrPrivateKeyNotFound means no PEM-encoded private key block was
	// present alongside the certificate chain.
	ErrPrivateKeyNotFound = errors.New("certcache: private key not found")

	// ErrPrivateKeyUnsupported means a private key block was found but its
	// algorithm isn't one pemutil can parse into a crypto.Signer.
	ErrPrivateKeyUnsupported = errors.New("certcache: unsupported private key type")

	// ErrCertExpired means the leaf certificate's NotAfter has already
	// passed at load time.
	ErrCertExpired = errors.New("certcache: certificate expired")

	// ErrSNIMissing means a TLS ClientHello arrived with no server name.
	ErrSNIMissing = errors.New("certcache: client hello carried no SNI")

	// ErrCertNotFound means no certificate exists for the requested host,
	// nor for its parent domain.
	ErrCertNotFound = errors.New("certcache: no certificate for host")

	// ErrIO wraps an unexpected (non-not-exist) filesystem error while
	// reading a certificate or key from disk.
	ErrIO = errors.New("certcache: i/o error loading certificate")
)
