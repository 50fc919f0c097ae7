package keyfile

import (
	"os"
	"path/filepath"
	"strings"
)

// Template is a candidate key directory. Path may reference ${APPDATA},
// ${PROGRAMDATA}, ${WINDIR} and ${SID}; forward slashes are converted to the
// host separator.
type Template struct {
	Path string `mapstructure:"path" yaml:"path" json:"path"`
	// Elevated templates are only searched by elevated processes.
	Elevated bool `mapstructure:"elevated" yaml:"elevated" json:"elevated"`
}

const (
	systemProfile  = "${WINDIR}/System32/config/systemprofile/AppData/Roaming/Microsoft/Crypto"
	localService   = "${WINDIR}/ServiceProfiles/LocalService/AppData/Roaming/Microsoft/Crypto"
	networkService = "${WINDIR}/ServiceProfiles/NetworkService/AppData/Roaming/Microsoft/Crypto"
)

// DefaultTemplates lists the directories CryptoAPI and CNG keep key files in,
// most likely first.
func DefaultTemplates() []Template {
	return []Template{
		// current user, CSP then CNG
		{Path: "${APPDATA}/Microsoft/Crypto/RSA/${SID}"},
		{Path: "${APPDATA}/Microsoft/Crypto/DSS/${SID}"},
		{Path: "${APPDATA}/Microsoft/Crypto/Keys"},
		// shared machine keys
		{Path: "${PROGRAMDATA}/Microsoft/Crypto/RSA/MachineKeys"},
		{Path: "${PROGRAMDATA}/Microsoft/Crypto/DSS/MachineKeys"},
		{Path: "${PROGRAMDATA}/Microsoft/Crypto/Keys"},
		// service accounts
		{Path: systemProfile + "/RSA/S-1-5-18", Elevated: true},
		{Path: systemProfile + "/Keys", Elevated: true},
		{Path: localService + "/RSA/S-1-5-19", Elevated: true},
		{Path: localService + "/Keys", Elevated: true},
		{Path: networkService + "/RSA/S-1-5-20", Elevated: true},
		{Path: networkService + "/Keys", Elevated: true},
		{Path: "${PROGRAMDATA}/Microsoft/Crypto/SystemKeys", Elevated: true},
		// whole provider roots, for keys of other providers (PCPKSP and the like)
		{Path: "${PROGRAMDATA}/Microsoft/Crypto", Elevated: true},
		{Path: "${WINDIR}/ServiceProfiles", Elevated: true},
	}
}

// Expand substitutes vars into the template. It reports false when the
// template references a variable that is not set.
func (t Template) Expand(vars map[string]string) (string, bool) {
	complete := true
	path := os.Expand(t.Path, func(name string) string {
		v, ok := vars[strings.ToUpper(name)]
		if !ok {
			complete = false
		}
		return v
	})
	if !complete || strings.TrimSpace(path) == "" {
		return "", false
	}
	return filepath.Clean(filepath.FromSlash(path)), true
}

// Candidates expands templates into the ordered directory list for env.
// Elevated templates are dropped for non-elevated processes, as are templates
// whose variables are not set. Duplicates keep their first position.
func Candidates(env Environment, templates []Template) []string {
	vars := env.Variables()
	seen := make(map[string]struct{}, len(templates))
	var dirs []string
	for _, t := range templates {
		if t.Elevated && !env.Elevated {
			continue
		}
		dir, ok := t.Expand(vars)
		if !ok {
			continue
		}
		key := strings.ToLower(dir)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		dirs = append(dirs, dir)
	}
	return dirs
}
