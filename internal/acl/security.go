package acl

import (
	"errors"
)

// ErrUnsupportedPlatform is returned by file security on hosts without
// Windows ACLs.
var ErrUnsupportedPlatform = errors.New("file ACLs are only available on windows")

// SecurityReader returns the owner, group and DACL of a file as SDDL.
type SecurityReader interface {
	ReadSDDL(path string) (string, error)
}

// SecurityWriter replaces the DACL of a file.
type SecurityWriter interface {
	WriteDACL(path string, d *Descriptor) error
}

type FileSecurity interface {
	SecurityReader
	SecurityWriter
}

// writableDACL is the DACL handed to the host. Inherited ACEs are dropped
// unless the DACL is protected: the host recomputes them from the parent.
func writableDACL(d *Descriptor) *ACL {
	if d.DACL == nil {
		return &ACL{}
	}
	if d.DACL.Protected() {
		return d.DACL
	}
	out := &ACL{Flags: d.DACL.Flags}
	for _, e := range d.DACL.Entries {
		if !e.Inherited() {
			out.Entries = append(out.Entries, e)
		}
	}
	return out
}
