//go:build !windows

package keyfile

type folder int

const (
	folderRoamingAppData folder = iota
	folderProgramData
)

func knownFolder(folder) string { return "" }

// tokenIdentity has nothing to report outside Windows: no SID, never elevated.
func tokenIdentity() (string, bool) { return "", false }
