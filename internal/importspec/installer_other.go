//go:build !windows

package importspec

// Without a system identity store every import goes through the opener.
var personalImport func(pfx []byte, password, thumbprint string) error
