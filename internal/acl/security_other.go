//go:build !windows

package acl

import (
	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

type fileSecurity struct{}

func NewFileSecurity() FileSecurity {
	return fileSecurity{}
}

func (fileSecurity) ReadSDDL(path string) (string, error) {
	return "", certerr.New(certerr.Unknown, "read acl", path, ErrUnsupportedPlatform)
}

func (fileSecurity) WriteDACL(path string, _ *Descriptor) error {
	return certerr.New(certerr.Unknown, "write acl", path, ErrUnsupportedPlatform)
}
