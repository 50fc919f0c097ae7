//go:build !windows

package systemstore

import (
	"context"
)

type osOpener struct{}

// NewOSOpener returns an opener that fails: system stores only exist on Windows.
func NewOSOpener() Opener {
	return osOpener{}
}

func (osOpener) Open(ctx context.Context, loc Location, cat Category, mode Mode) (Store, error) {
	return nil, ErrUnsupportedPlatform
}
