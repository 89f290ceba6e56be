package core

import (
	"crypto/sha256"
	"crypto/subtle"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// BuildTLSConfig assembles the *tls.Config every venue's WebSocket and REST
// client dials through: the system trust store, an optional extra CA
// bundle, and optional certificate pinning. Grounded on
// core::tls::build_tls_config/PinnedVerifier, translated to Go's
// VerifyPeerCertificate hook since crypto/tls has no verifier-trait
// equivalent to swap in directly.
func BuildTLSConfig(caBundlePath string, certPinsHex []string) (*tls.Config, error) {
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}

	if caBundlePath != "" {
		pem, err := os.ReadFile(caBundlePath)
		if err != nil {
			return nil, fmt.Errorf("read ca bundle: %w", err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca bundle %q contained no usable certificates", caBundlePath)
		}
	}

	pins, err := decodePins(certPinsHex)
	if err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}
	if len(pins) > 0 {
		cfg.VerifyPeerCertificate = pinnedVerifier(pins)
	}
	return cfg, nil
}

func decodePins(hexPins []string) ([][32]byte, error) {
	if len(hexPins) == 0 {
		return nil, nil
	}
	pins := make([][32]byte, 0, len(hexPins))
	for _, p := range hexPins {
		digest, err := decodeHexDigest(p)
		if err != nil {
			return nil, fmt.Errorf("cert pin %q: %w", p, err)
		}
		pins = append(pins, digest)
	}
	return pins, nil
}

func decodeHexDigest(s string) ([32]byte, error) {
	var out [32]byte
	if len(s) != 64 {
		return out, fmt.Errorf("expected 64 hex chars (sha256), got %d", len(s))
	}
	for i := 0; i < 32; i++ {
		b, err := hexByte(s[i*2], s[i*2+1])
		if err != nil {
			return out, err
		}
		out[i] = b
	}
	return out, nil
}

func hexByte(hi, lo byte) (byte, error) {
	h, err := hexNibble(hi)
	if err != nil {
		return 0, err
	}
	l, err := hexNibble(lo)
	if err != nil {
		return 0, err
	}
	return h<<4 | l, nil
}

func hexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, fmt.Errorf("invalid hex character %q", c)
	}
}

// pinnedVerifier returns a VerifyPeerCertificate callback that accepts the
// connection only if the leaf certificate's SHA-256 digest constant-time
// matches one of the configured pins. It runs alongside (not instead of)
// normal chain verification, since tls.Config.InsecureSkipVerify stays
// false.
func pinnedVerifier(pins [][32]byte) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("cert pinning: no peer certificate presented")
		}
		leaf := sha256.Sum256(rawCerts[0])
		for _, pin := range pins {
			if subtle.ConstantTimeCompare(leaf[:], pin[:]) == 1 {
				return nil
			}
		}
		return fmt.Errorf("cert pinning: leaf certificate matched none of %d configured pins", len(pins))
	}
}
