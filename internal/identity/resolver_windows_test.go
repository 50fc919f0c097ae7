//go:build windows

package identity

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

func TestHostResolver(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name    string
		account string
		sid     string
	}{
		{"qualified", `NT AUTHORITY\NETWORK SERVICE`, "S-1-5-20"},
		{"short", "NETWORK SERVICE", "S-1-5-20"},
		{"alias", "sy", "S-1-5-18"},
		{"sid", "S-1-5-32-544", "S-1-5-32-544"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sid, err := r.SID(tt.account)
			require.NoError(t, err)
			assert.Equal(t, tt.sid, sid)
		})
	}

	name, err := r.AccountName("S-1-5-20")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(strings.ToUpper(name), `\NETWORK SERVICE`), name)
	assert.Equal(t, "NETWORK SERVICE", strings.ToUpper(ShortName(name)))

	_, err = r.SID("certperms-no-such-account-7f3a")
	assert.True(t, errors.Is(err, certerr.ErrNotFound))

	_, err = r.AccountName("not a sid")
	assert.True(t, errors.Is(err, certerr.ErrInvalidArgument))

	// unmapped SIDs stay readable as SID strings
	assert.Equal(t, "S-1-5-21-1-2-3-4242", Display(r, "S-1-5-21-1-2-3-4242"))
}
