package identity

import (
	"fmt"
	"strings"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

// SDDL SID aliases.
var aliasSids = map[string]string{
	"WD": "S-1-1-0",
	"CO": "S-1-3-0",
	"CG": "S-1-3-1",
	"OW": "S-1-3-4",
	"NU": "S-1-5-2",
	"IU": "S-1-5-4",
	"SU": "S-1-5-6",
	"AN": "S-1-5-7",
	"PS": "S-1-5-10",
	"AU": "S-1-5-11",
	"RC": "S-1-5-12",
	"SY": "S-1-5-18",
	"LS": "S-1-5-19",
	"NS": "S-1-5-20",
	"BA": "S-1-5-32-544",
	"BU": "S-1-5-32-545",
	"BG": "S-1-5-32-546",
	"PU": "S-1-5-32-547",
	"AO": "S-1-5-32-548",
	"SO": "S-1-5-32-549",
	"PO": "S-1-5-32-550",
	"BO": "S-1-5-32-551",
	"RE": "S-1-5-32-552",
	"RU": "S-1-5-32-554",
	"RD": "S-1-5-32-555",
	"NO": "S-1-5-32-556",
	"IS": "S-1-5-32-568",
	"AC": "S-1-15-2-1",
}


// Names of well known SIDs, used where the host cannot translate them.
var wellKnownNames = map[string]string{
	"S-1-1-0":      `Everyone`,
	"S-1-3-0":      `CREATOR OWNER`,
	"S-1-3-1":      `CREATOR GROUP`,
	"S-1-3-4":      `OWNER RIGHTS`,
	"S-1-5-2":      `NT AUTHORITY\NETWORK`,
	"S-1-5-4":      `NT AUTHORITY\INTERACTIVE`,
	"S-1-5-6":      `NT AUTHORITY\SERVICE`,
	"S-1-5-7":      `NT AUTHORITY\ANONYMOUS LOGON`,
	"S-1-5-10":     `NT AUTHORITY\SELF`,
	"S-1-5-11":     `NT AUTHORITY\Authenticated Users`,
	"S-1-5-12":     `NT AUTHORITY\RESTRICTED`,
	"S-1-5-18":     `NT AUTHORITY\SYSTEM`,
	"S-1-5-19":     `NT AUTHORITY\LOCAL SERVICE`,
	"S-1-5-20":     `NT AUTHORITY\NETWORK SERVICE`,
	"S-1-5-32-544": `BUILTIN\Administrators`,
	"S-1-5-32-545": `BUILTIN\Users`,
	"S-1-5-32-546": `BUILTIN\Guests`,
	"S-1-5-32-547": `BUILTIN\Power Users`,
	"S-1-5-32-551": `BUILTIN\Backup Operators`,
	"S-1-5-32-555": `BUILTIN\Remote Desktop Users`,
	"S-1-5-32-568": `BUILTIN\IIS_IUSRS`,
	"S-1-15-2-1":   `APPLICATION PACKAGE AUTHORITY\ALL APPLICATION PACKAGES`,
}

var wellKnownSids = make(map[string]string)

func init() {
	for sid, name := range wellKnownNames {
		wellKnownSids[strings.ToUpper(name)] = sid
		if i := strings.LastIndex(name, `\`); i >= 0 {
			short := strings.ToUpper(name[i+1:])
			if _, taken := wellKnownSids[short]; !taken {
				wellKnownSids[short] = sid
			}
		}
	}
}

// AliasSID expands a two letter SDDL alias. ok is false for unknown aliases.
func AliasSID(alias string) (sid string, ok bool) {
	sid, ok = aliasSids[strings.ToUpper(alias)]
	return sid, ok
}

// WellKnown resolves principals from a static table only. It serves hosts
// without an account directory and tests.
type WellKnown struct {
	// Extra maps SID strings to names on top of the built-in table.
	Extra map[string]string
}

func (w WellKnown) AccountName(sid string) (string, error) {
	sid = strings.ToUpper(strings.TrimSpace(sid))
	if name, ok := w.Extra[sid]; ok {
		return name, nil
	}
	if name, ok := wellKnownNames[sid]; ok {
		return name, nil
	}
	return "", certerr.New(certerr.NotFound, "lookup account", sid, nil)
}

func (w WellKnown) SID(account string) (string, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return "", certerr.New(certerr.InvalidArgument, "lookup sid", account, fmt.Errorf("empty identity"))
	}
	if IsSID(account) {
		return strings.ToUpper(account), nil
	}
	if sid, ok := AliasSID(account); ok && len(account) == 2 {
		return sid, nil
	}
	for sid, name := range w.Extra {
		if strings.EqualFold(name, account) {
			return sid, nil
		}
	}
	key := strings.ToUpper(account)
	if sid, ok := wellKnownSids[key]; ok {
		return sid, nil
	}
	if i := strings.LastIndex(key, `\`); i >= 0 {
		if sid, ok := wellKnownSids[key[i+1:]]; ok {
			return sid, nil
		}
	}
	return "", certerr.New(certerr.NotFound, "lookup sid", account, nil)
}
