//go:build windows

package identity

import (
	"errors"
	"strings"

	"golang.org/x/sys/windows"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

type hostResolver struct {
	fallback WellKnown
}

// NewResolver returns a resolver backed by the local account directory.
func NewResolver() Resolver {
	return hostResolver{}
}

func (r hostResolver) AccountName(sid string) (string, error) {
	s, err := windows.StringToSid(strings.TrimSpace(sid))
	if err != nil {
		return "", certerr.New(certerr.InvalidArgument, "lookup account", sid, err)
	}
	account, domain, _, err := s.LookupAccount("")
	if err != nil {
		// Capability and package SIDs often have no account mapping.
		if name, ferr := r.fallback.AccountName(sid); ferr == nil {
			return name, nil
		}
		return "", certerr.New(certerr.NotFound, "lookup account", sid, err)
	}
	if domain == "" {
		return account, nil
	}
	return domain + `\` + account, nil
}

func (r hostResolver) SID(account string) (string, error) {
	account = strings.TrimSpace(account)
	switch {
	case account == "":
		return r.fallback.SID(account)
	case IsSID(account):
		s, err := windows.StringToSid(account)
		if err != nil {
			return "", certerr.New(certerr.InvalidArgument, "lookup sid", account, err)
		}
		return s.String(), nil
	case len(account) == 2:
		if sid, ok := AliasSID(account); ok {
			return sid, nil
		}
	}
	sid, _, _, err := windows.LookupSID("", account)
	if err != nil {
		if errors.Is(err, windows.ERROR_NONE_MAPPED) {
			return "", certerr.New(certerr.NotFound, "lookup sid", account, err)
		}
		return "", certerr.New(certerr.KindOf(err), "lookup sid", account, err)
	}
	return sid.String(), nil
}
