//go:build windows

package keyfile

import (
	"golang.org/x/sys/windows"
)

type folder int

const (
	folderRoamingAppData folder = iota
	folderProgramData
)

func knownFolder(f folder) string {
	id := windows.FOLDERID_RoamingAppData
	if f == folderProgramData {
		id = windows.FOLDERID_ProgramData
	}
	path, err := windows.KnownFolderPath(id, windows.KF_FLAG_DEFAULT)
	if err != nil {
		return ""
	}
	return path
}

// tokenIdentity reads the user SID and elevation state of the process token.
func tokenIdentity() (sid string, elevated bool) {
	token := windows.GetCurrentProcessToken()
	elevated = token.IsElevated()
	user, err := token.GetTokenUser()
	if err != nil {
		return "", elevated
	}
	return user.User.Sid.String(), elevated
}
