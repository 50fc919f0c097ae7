//go:build !windows

package certerr

func isAccessDenied(err error) bool {
	return false
}
