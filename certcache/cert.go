package certcache

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
	"time"

	"go.step.sm/crypto/pemutil"
)

// Certificate is an immutable, fully parsed TLS certificate plus the
// private key it was issued for. Once constructed it is shared by pointer
// across every goroutine that needs it; nothing on it ever mutates.
type Certificate struct {
	// Chain holds the DER-encoded certificate chain, leaf first, exactly
	// as it will be handed to crypto/tls.
	Chain [][]byte

	// Leaf is the parsed leaf certificate, retained so callers (the cache,
	// mainly) can enumerate its DNS SANs without re-parsing Chain[0].
	Leaf *x509.Certificate

	// Key is the private key matching Leaf's public key.
	Key crypto.Signer

	// tlsCert is the crypto/tls.Certificate view used by the H2 listener
	// (via tls.Config.GetCertificate).
	tlsCert tls.Certificate

	// quicConfig is a ready-made *tls.Config for the H3 listener, pinned
	// to this certificate and ALPN "h3".
	quicConfig *tls.Config
}

// NewCertificate parses a PEM-encoded certificate chain (leaf first) and a
// PEM-encoded private key into a Certificate. The chain must decode to at
// least one certificate; the key must be a type pemutil understands
// (RSA, ECDSA, or Ed25519).
func NewCertificate(fullchainPEM, keyPEM []byte) (*Certificate, error) {
	var chain [][]byte
	rest := fullchainPEM
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		chain = append(chain, block.Bytes)
	}
	if len(chain) == 0 {
		return nil, ErrCertParse
	}

	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertParse, err)
	}

	keyFound := false
	for keyRest := keyPEM; !keyFound; {
		var block *pem.Block
		block, keyRest = pem.Decode(keyRest)
		if block == nil {
			break
		}
		keyFound = strings.HasSuffix(block.Type, "PRIVATE KEY")
	}
	if !keyFound {
		return nil, ErrPrivateKeyNotFound
	}
	rawKey, err := pemutil.Parse(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPrivateKeyUnsupported, err)
	}
	signer, ok := rawKey.(crypto.Signer)
	if !ok {
		return nil, ErrPrivateKeyUnsupported
	}

	tlsCert := tls.Certificate{
		Certificate: chain,
		PrivateKey:  signer,
		Leaf:        leaf,
	}

	quicConfig := &tls.Config{
		Certificates: []tls.Certificate{tlsCert},
		NextProtos:   []string{"h3"},
		MinVersion:   tls.VersionTLS12,
	}

	return &Certificate{
		Chain:      chain,
		Leaf:       leaf,
		Key:        signer,
		tlsCert:    tlsCert,
		quicConfig: quicConfig,
	}, nil
}

// TLS returns the crypto/tls.Certificate view used by tls.Config.GetCertificate.
func (c *Certificate) TLS() *tls.Certificate {
	return &c.tlsCert
}

// QUICConfig returns a *tls.Config pinned to this certificate with
// NextProtos set to "h3", suitable for handing to an http3.Server's
// GetConfigForClient hook.
func (c *Certificate) QUICConfig() *tls.Config {
	return c.quicConfig
}

// Expired reports whether the leaf certificate's NotAfter has already
// passed as of now.
func (c *Certificate) Expired(now time.Time) bool {
	return now.After(c.Leaf.NotAfter)
}

// ExpiryDay buckets NotAfter into a day number since the Unix epoch, the
// key used by the cache's expiry index.
func (c *Certificate) ExpiryDay() int64 {
	return c.Leaf.NotAfter.Unix() / 86400
}

// ShortestSAN returns the shortest DNS SAN on the leaf certificate,
// breaking ties by lexical order so the choice is deterministic. This is
// the cache key a loaded certificate is stored under.
func (c *Certificate) ShortestSAN() (string, bool) {
	var best string
	for _, name := range c.Leaf.DNSNames {
		if best == "" || len(name) < len(best) || (len(name) == len(best) && name < best) {
			best = name
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}
