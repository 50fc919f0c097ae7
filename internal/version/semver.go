// Package version reports the build version of certperms.
package version

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
)

// Version is set at link time:
//
//	go build -ldflags "-X github.com/vocdoni/gofirma/certperms/internal/version.Version=v1.2.3"
var Version = ""

type semver struct {
	major  int
	minor  int
	patch  int
	suffix string
}

func (s semver) String() string {
	return fmt.Sprintf("v%d.%d.%d%s", s.major, s.minor, s.patch, s.suffix)
}

// Current returns the linked version, else the module version recorded by
// the go tool, else "dev".
func Current() string {
	module := ""
	if info, ok := debug.ReadBuildInfo(); ok {
		module = info.Main.Version
	}
	return resolve(Version, module)
}

func resolve(linked, module string) string {
	for _, v := range []string{linked, module} {
		if s, ok := Canonical(v); ok {
			return s
		}
	}
	return "dev"
}

// Canonical formats v as vMAJOR.MINOR.PATCH, keeping any pre-release or
// build suffix. ok is false when v is not a version.
func Canonical(v string) (string, bool) {
	s, ok := parseSemver(v)
	if !ok {
		return "", false
	}
	return s.String(), true
}

func parseSemver(v string) (semver, bool) {
	s := strings.TrimSpace(v)
	s = strings.TrimPrefix(s, "v")
	s = strings.TrimPrefix(s, "V")
	if s == "" {
		return semver{}, false
	}
	var out semver
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		s, out.suffix = s[:i], s[i:]
	}
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return semver{}, false
	}
	num := [3]int{}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return semver{}, false
		}
		num[i] = n
	}
	out.major, out.minor, out.patch = num[0], num[1], num[2]
	return out, true
}
