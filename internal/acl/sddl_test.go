package acl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSDDL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		owner   string
		group   string
		flags   string
		aces    []ACE
		wantErr bool
	}{
		{
			name:  "aliases and inherited entries",
			input: "O:BAG:SYD:AI(A;;FA;;;SY)(A;ID;FR;;;BA)",
			owner: "S-1-5-32-544",
			group: "S-1-5-18",
			flags: "AI",
			aces: []ACE{
				{Type: AccessAllowed, Mask: 0x1f01ff, SID: "S-1-5-18"},
				{Type: AccessAllowed, Flags: InheritedACE, Mask: 0x120089, SID: "S-1-5-32-544"},
			},
		},
		{
			name:  "literal SID and hex mask",
			input: "O:S-1-5-21-1-2-3-1001D:P(D;;0x10000;;;S-1-5-21-1-2-3-1002)(A;OICI;GA;;;S-1-5-21-1-2-3-1001)",
			owner: "S-1-5-21-1-2-3-1001",
			flags: "P",
			aces: []ACE{
				{Type: AccessDenied, Mask: 0x10000, SID: "S-1-5-21-1-2-3-1002"},
				{Type: AccessAllowed, Flags: ObjectInherit | ContainerInherit, Mask: GenericAll, SID: "S-1-5-21-1-2-3-1001"},
			},
		},
		{
			name:  "concatenated rights and decimal mask",
			input: "D:(A;;RCSD;;;WD)(A;;1179785;;;NS)",
			aces: []ACE{
				{Type: AccessAllowed, Mask: 0x30000, SID: "S-1-1-0"},
				{Type: AccessAllowed, Mask: 1179785, SID: "S-1-5-20"},
			},
		},
		{
			name:  "components in any order",
			input: "D:(A;;FA;;;SY)O:SY",
			owner: "S-1-5-18",
			aces:  []ACE{{Type: AccessAllowed, Mask: 0x1f01ff, SID: "S-1-5-18"}},
		},
		{
			name:  "empty DACL",
			input: "O:SYD:",
			owner: "S-1-5-18",
		},
		{name: "garbage", input: "hello", wantErr: true},
		{name: "content before component", input: "xxO:SY", wantErr: true},
		{name: "unbalanced", input: "D:(A;;FA;;;SY", wantErr: true},
		{name: "bad flag", input: "D:(A;ZZ;FA;;;SY)", wantErr: true},
		{name: "bad right", input: "D:(A;;QQ;;;SY)", wantErr: true},
		{name: "short ACE", input: "D:(A;;FA;SY)", wantErr: true},
		{name: "duplicate owner", input: "O:SYO:BA", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseSDDL(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, d.Owner)
			assert.Equal(t, tt.group, d.Group)
			require.NotNil(t, d.DACL)
			assert.Equal(t, tt.flags, d.DACL.Flags)
			assert.Equal(t, tt.aces, d.DACL.Entries)
		})
	}
}

func TestParseSDDLKeepsUnknownACEs(t *testing.T) {
	in := "D:(OA;;CR;ab721a53-1e2f-11d0-9819-00aa0040529b;;WD)(A;;FA;;;SY)S:(AU;SA;FA;;;WD)"
	d, err := ParseSDDL(in)
	require.NoError(t, err)
	require.Len(t, d.DACL.Entries, 2)
	assert.Equal(t, OtherACE, d.DACL.Entries[0].Type)
	assert.Equal(t, "(AU;SA;FA;;;WD)", d.SACL)
	assert.Equal(t, "D:(OA;;CR;ab721a53-1e2f-11d0-9819-00aa0040529b;;WD)(A;;FA;;;S-1-5-18)S:(AU;SA;FA;;;WD)", d.String())
}

func TestDescriptorRoundTrip(t *testing.T) {
	in := "O:S-1-5-18G:S-1-5-18D:PAI(D;;0x10000;;;S-1-5-20)(A;;FA;;;S-1-5-18)(A;ID;FR;;;S-1-5-32-544)"
	d, err := ParseSDDL(in)
	require.NoError(t, err)
	assert.Equal(t, in, d.String())

	again, err := ParseSDDL(d.String())
	require.NoError(t, err)
	assert.Equal(t, d, again)
	assert.True(t, d.DACL.Protected())
	assert.Equal(t, "D:PAI(D;;0x10000;;;S-1-5-20)(A;;FA;;;S-1-5-18)(A;ID;FR;;;S-1-5-32-544)", d.DACLOnly())
}

func TestACLInsertCanonical(t *testing.T) {
	d, err := ParseSDDL("D:AI(D;;FA;;;S-1-5-7)(A;;FA;;;SY)(A;ID;FA;;;BA)(D;ID;FW;;;BU)")
	require.NoError(t, err)

	d.DACL.Insert(ACE{Type: AccessAllowed, Mask: uint32(Read | Synchronize), SID: "S-1-5-20"})
	d.DACL.Insert(ACE{Type: AccessDenied, Mask: uint32(Write), SID: "S-1-5-19"})

	var got []string
	for _, e := range d.DACL.Entries {
		got = append(got, e.String())
	}
	assert.Equal(t, []string{
		"(D;;FA;;;S-1-5-7)",
		"(D;;0x116;;;S-1-5-19)",
		"(A;;FA;;;S-1-5-18)",
		"(A;;FR;;;S-1-5-20)",
		"(A;ID;FA;;;S-1-5-32-544)",
		"(D;ID;FW;;;S-1-5-32-545)",
	}, got)
}

func TestWritableDACL(t *testing.T) {
	d, err := ParseSDDL("D:AI(A;;FA;;;SY)(A;ID;FA;;;BA)")
	require.NoError(t, err)
	assert.Equal(t, "AI(A;;FA;;;S-1-5-18)", writableDACL(d).String())

	d, err = ParseSDDL("D:P(A;;FA;;;SY)(A;ID;FA;;;BA)")
	require.NoError(t, err)
	assert.Len(t, writableDACL(d).Entries, 2)

	assert.Empty(t, writableDACL(&Descriptor{}).Entries)
}
