package identity

import (
	"os"
	"regexp"
	"strings"
)

// Resolver translates between security identifiers and account names.
type Resolver interface {
	// AccountName returns the DOMAIN\name form of a SID string.
	AccountName(sid string) (string, error)
	// SID returns the SID string of an account name. SID strings and SDDL aliases
	// are accepted and returned canonicalised.
	SID(account string) (string, error)
}

var reSID = regexp.MustCompile(`^(?i)S-1-\d+(-\d+)*$`)

// IsSID reports whether s looks like a SID string.
func IsSID(s string) bool {
	return reSID.MatchString(strings.TrimSpace(s))
}

// Display returns the account name for sid, or sid itself when the lookup fails.
// It never fails: unresolved principals only lose readability.
func Display(r Resolver, sid string) string {
	if r == nil || sid == "" {
		return sid
	}
	name, err := r.AccountName(sid)
	if err != nil || name == "" {
		return sid
	}
	return name
}

var shortPrefixes = []string{`NT AUTHORITY\`, `BUILTIN\`}

// ShortName removes the machine, NT AUTHORITY and BUILTIN qualifiers from an
// account name. Domain qualifiers are kept.
func ShortName(name string) string {
	if host, err := os.Hostname(); err == nil && host != "" {
		name = trimPrefixFold(name, host+`\`)
	}
	for _, p := range shortPrefixes {
		name = trimPrefixFold(name, p)
	}
	return name
}

func trimPrefixFold(s, prefix string) string {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):]
	}
	return s
}
