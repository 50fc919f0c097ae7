package keyfile

import (
	"os"
	"path/filepath"
)

// Environment carries the host facts the candidate list depends on. It is
// computed once at startup and handed to the resolver.
type Environment struct {
	// AppData is the roaming application data directory of the current user.
	AppData string
	// ProgramData is the machine-wide application data directory.
	ProgramData string
	WinDir      string
	// UserSID is the string SID of the token user.
	UserSID string
	// Elevated reports whether the process token is elevated.
	Elevated bool
}

// Variables returns the template variables defined by env. Empty values are
// left out so templates referring to them can be dropped.
func (env Environment) Variables() map[string]string {
	vars := make(map[string]string, 4)
	set := func(k, v string) {
		if v != "" {
			vars[k] = v
		}
	}
	set("APPDATA", env.AppData)
	set("PROGRAMDATA", env.ProgramData)
	set("WINDIR", env.WinDir)
	set("SID", env.UserSID)
	return vars
}

// CurrentEnvironment inspects the running process.
func CurrentEnvironment() Environment {
	env := Environment{
		AppData:     appDataDir(),
		ProgramData: programDataDir(),
		WinDir:      os.Getenv("WINDIR"),
	}
	env.UserSID, env.Elevated = tokenIdentity()
	return env
}

// appDataDir returns the per-user roaming application data directory
// (%APPDATA%, e.g. C:\Users\Alice\AppData\Roaming).
func appDataDir() string {
	if v := knownFolder(folderRoamingAppData); v != "" {
		return v
	}
	if v := os.Getenv("APPDATA"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "AppData", "Roaming")
}

// programDataDir returns %PROGRAMDATA%, usually C:\ProgramData.
func programDataDir() string {
	if v := knownFolder(folderProgramData); v != "" {
		return v
	}
	if v := os.Getenv("PROGRAMDATA"); v != "" {
		return v
	}
	return os.Getenv("ALLUSERSPROFILE")
}
