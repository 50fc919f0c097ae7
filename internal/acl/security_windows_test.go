//go:build windows

package acl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/identity"
)

func TestFileSecurityRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "d2f0c3e1b7a94e35_5a8b9c2d")
	require.NoError(t, os.WriteFile(path, []byte("key material"), 0o600))

	fs := NewFileSecurity()
	ids := identity.NewResolver()
	locks, err := NewLocker(filepath.Join(t.TempDir(), "locks"))
	require.NoError(t, err)
	n := NewNormalizer(fs, ids, nil)
	e := NewEditor(fs, ids, locks, nil, nil)
	ctx := context.Background()

	before, err := n.Normalize(ctx, path)
	require.NoError(t, err)
	require.NotEmpty(t, before.Inherited(), "temp files inherit from their directory")
	assert.False(t, before.Allows("NETWORK SERVICE", Read))

	set, err := e.AddRule(ctx, path, "NETWORK SERVICE", Read, Allow)
	require.NoError(t, err)
	assert.True(t, set.Allows("NETWORK SERVICE", Read))

	// a fresh read from disk sees the rule and keeps the inherited entries
	after, err := n.Normalize(ctx, path)
	require.NoError(t, err)
	granted := after.For("NETWORK SERVICE").Explicit()
	require.Len(t, granted, 1)
	assert.Equal(t, "S-1-5-20", granted[0].SID)
	assert.Equal(t, Read|Synchronize, granted[0].Rights)
	assert.Equal(t, len(before.Inherited()), len(after.Inherited()))

	_, changed, err := e.EnsureRule(ctx, path, NewRule("NETWORK SERVICE", Read, Allow))
	require.NoError(t, err)
	assert.False(t, changed)

	sddl, err := fs.ReadSDDL(path)
	require.NoError(t, err)
	d, err := ParseSDDL(sddl)
	require.NoError(t, err)
	assert.NotEmpty(t, d.Owner)

	_, err = fs.ReadSDDL(filepath.Join(dir, "missing"))
	assert.True(t, errors.Is(err, certerr.ErrNotFound))
}
