package certs

import (
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

// ThumbprintLen is the length of a SHA-1 thumbprint in hex digits.
const ThumbprintLen = 40

// Thumbprint returns the SHA-1 thumbprint of a certificate as the store shows it.
func Thumbprint(cert *x509.Certificate) string {
	return ThumbprintOf(cert.Raw)
}

// ThumbprintOf hashes DER bytes.
func ThumbprintOf(der []byte) string {
	sum := sha1.Sum(der)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// ParseThumbprint normalises a thumbprint typed or pasted by a user: spaces,
// colons and invisible characters (certmgr copies a leading U+200E) are removed
// and the result is upper-cased.
func ParseThumbprint(s string) (string, error) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == ' ' || r == ':' || r == '-':
			continue
		case unicode.Is(unicode.Cf, r) || unicode.IsSpace(r):
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	tp := b.String()
	if len(tp) != ThumbprintLen {
		return "", certerr.New(certerr.InvalidArgument, "parse thumbprint", s,
			fmt.Errorf("expected %d hex digits, got %d", ThumbprintLen, len(tp)))
	}
	if _, err := hex.DecodeString(tp); err != nil {
		return "", certerr.New(certerr.InvalidArgument, "parse thumbprint", s, err)
	}
	return tp, nil
}

// SameThumbprint compares two thumbprints ignoring formatting.
func SameThumbprint(a, b string) bool {
	na, errA := ParseThumbprint(a)
	nb, errB := ParseThumbprint(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	return na == nb
}
