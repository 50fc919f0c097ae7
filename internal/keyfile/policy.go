package keyfile

import (
	"fmt"
	"strings"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

// MatchPolicy decides what to do with the files matching a container id.
type MatchPolicy interface {
	Name() string
	// Exhaustive policies see the matches of every candidate directory;
	// others stop at the first directory holding a match.
	Exhaustive() bool
	// Choose picks the key file among matches, which is never empty.
	Choose(containerID string, matches []string) (path string, alternatives []string, err error)
}

var (
	// FirstMatch takes the first file in scan order and reports the others of
	// the same directory as alternatives.
	FirstMatch MatchPolicy = firstMatch{}
	// StrictMatch searches every directory and fails unless exactly one file
	// matches.
	StrictMatch MatchPolicy = strictMatch{}
)

type firstMatch struct{}

func (firstMatch) Name() string     { return "first" }
func (firstMatch) Exhaustive() bool { return false }

func (firstMatch) Choose(_ string, matches []string) (string, []string, error) {
	return matches[0], matches[1:], nil
}

type strictMatch struct{}

func (strictMatch) Name() string     { return "strict" }
func (strictMatch) Exhaustive() bool { return true }

func (strictMatch) Choose(id string, matches []string) (string, []string, error) {
	if len(matches) > 1 {
		return "", matches, certerr.New(certerr.AmbiguousMatch, "resolve key file", id,
			fmt.Errorf("%d files match: %s", len(matches), strings.Join(matches, ", ")))
	}
	return matches[0], nil, nil
}

// ParseMatchPolicy accepts "first" (or empty) and "strict".
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return FirstMatch, nil
	case "strict":
		return StrictMatch, nil
	}
	return nil, certerr.Errorf(certerr.InvalidArgument, "parse match policy", s, "want first or strict")
}
