//go:build windows

package acl

import (
	"golang.org/x/sys/windows"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

type fileSecurity struct{}

// NewFileSecurity reads and writes file DACLs through the Win32 security API.
func NewFileSecurity() FileSecurity {
	return fileSecurity{}
}

func (fileSecurity) ReadSDDL(path string) (string, error) {
	sd, err := windows.GetNamedSecurityInfo(path, windows.SE_FILE_OBJECT,
		windows.OWNER_SECURITY_INFORMATION|windows.GROUP_SECURITY_INFORMATION|windows.DACL_SECURITY_INFORMATION)
	if err != nil {
		return "", certerr.New(kindOf(err), "read acl", path, err)
	}
	return sd.String(), nil
}

func (fileSecurity) WriteDACL(path string, d *Descriptor) error {
	dacl := writableDACL(d)
	sd, err := windows.SecurityDescriptorFromString((&Descriptor{DACL: dacl}).DACLOnly())
	if err != nil {
		return certerr.New(certerr.InvalidArgument, "write acl", path, err)
	}
	native, _, err := sd.DACL()
	if err != nil {
		return certerr.New(certerr.InvalidArgument, "write acl", path, err)
	}

	info := windows.SECURITY_INFORMATION(windows.DACL_SECURITY_INFORMATION)
	if dacl.Protected() {
		info |= windows.PROTECTED_DACL_SECURITY_INFORMATION
	} else {
		info |= windows.UNPROTECTED_DACL_SECURITY_INFORMATION
	}
	if err := windows.SetNamedSecurityInfo(path, windows.SE_FILE_OBJECT, info, nil, nil, native, nil); err != nil {
		return certerr.New(kindOf(err), "write acl", path, err)
	}
	return nil
}

func kindOf(err error) certerr.Kind {
	switch err {
	case windows.ERROR_FILE_NOT_FOUND, windows.ERROR_PATH_NOT_FOUND:
		return certerr.NotFound
	}
	return certerr.KindOf(err)
}
