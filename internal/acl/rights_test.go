package acl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

func TestRightsValues(t *testing.T) {
	assert.Equal(t, Rights(0x20089), Read)
	assert.Equal(t, Rights(0x116), Write)
	assert.Equal(t, Rights(0x200A9), ReadAndExecute)
	assert.Equal(t, Rights(0x301BF), Modify)
	assert.Equal(t, Rights(0x1F01FF), FullControl)
}

func TestRightsString(t *testing.T) {
	tests := []struct {
		r    Rights
		want string
	}{
		{FullControl, "FullControl"},
		{Read | Synchronize, "Read, Synchronize"},
		{ReadAndExecute | Synchronize, "ReadAndExecute, Synchronize"},
		{Modify | Synchronize, "Modify, Synchronize"},
		{Read | Write, "Write, Read"},
		{Delete | 0x200, "Delete, 0x200"},
		{0, "None"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.r.String())
	}
}

func TestParseRights(t *testing.T) {
	tests := []struct {
		in   string
		want Rights
	}{
		{"Read", Read},
		{"read, write", Read | Write},
		{"FullControl", FullControl},
		{"RX", ReadAndExecute},
		{"Delete|ChangePermissions", Delete | ChangePermissions},
		{"0x120089", Read | Synchronize},
	}
	for _, tt := range tests {
		got, err := ParseRights(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "  ", "Read,Fly"} {
		_, err := ParseRights(bad)
		assert.True(t, errors.Is(err, certerr.ErrInvalidArgument), bad)
	}
}

func TestMapGeneric(t *testing.T) {
	assert.Equal(t, FullControl, MapGeneric(GenericAll))
	assert.Equal(t, Read|Synchronize, MapGeneric(GenericRead))
	assert.Equal(t, Read|Synchronize|Delete, MapGeneric(GenericRead|uint32(Delete)))
	assert.Equal(t, Modify, MapGeneric(uint32(Modify)))
}

func TestParseEffect(t *testing.T) {
	e, err := ParseEffect("Deny")
	require.NoError(t, err)
	assert.Equal(t, Deny, e)
	e, err = ParseEffect("")
	require.NoError(t, err)
	assert.Equal(t, Allow, e)
	_, err = ParseEffect("maybe")
	assert.True(t, errors.Is(err, certerr.ErrInvalidArgument))
}

func TestAccessEntry(t *testing.T) {
	e := AccessEntry{Principal: `NT AUTHORITY\NETWORK SERVICE`, SID: "S-1-5-20", Rights: Read, Effect: Allow}
	assert.Equal(t, `+ Read NT AUTHORITY\NETWORK SERVICE`, e.String())
	assert.Equal(t, "NETWORK SERVICE", e.DisplayPrincipal())
	assert.True(t, e.Matches("network service"))
	assert.True(t, e.Matches("S-1-5-20"))
	assert.False(t, e.Matches("SYSTEM"))

	deny := e
	deny.Effect = Deny
	deny.Inherited = true
	assert.Equal(t, `- Read NT AUTHORITY\NETWORK SERVICE (inherited)`, deny.String())

	lower := e
	lower.Principal = `nt authority\network service`
	lower.Inherited = true
	assert.True(t, e.Equal(lower))
	assert.False(t, e.Equal(deny))
}

func TestAccessRuleSet(t *testing.T) {
	sys := AccessEntry{Principal: `NT AUTHORITY\SYSTEM`, SID: "S-1-5-18", Rights: FullControl}
	ns := AccessEntry{Principal: `NT AUTHORITY\NETWORK SERVICE`, SID: "S-1-5-20", Rights: Read | Synchronize}
	admins := AccessEntry{Principal: `BUILTIN\Administrators`, SID: "S-1-5-32-544", Rights: FullControl, Inherited: true}
	set := AccessRuleSet{sys, ns, ns, admins}

	assert.Len(t, set.Explicit(), 3)
	assert.Len(t, set.Inherited(), 1)
	assert.Equal(t, AccessRuleSet{sys, ns, admins}, set.Dedup())
	assert.True(t, set.Contains(admins))
	assert.True(t, set.Allows("NETWORK SERVICE", Read))
	assert.False(t, set.Allows("NETWORK SERVICE", Write))
	assert.Len(t, set.For("Administrators"), 1)
	assert.Len(t, set.Strings(), 4)
}
