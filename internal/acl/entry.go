package acl

import (
	"fmt"
	"strings"

	"github.com/vocdoni/gofirma/certperms/internal/identity"
)

// AccessEntry is one allow or deny rule of a key file, with its principal
// resolved for display.
type AccessEntry struct {
	// Principal is the account name, or the SID string when it could not be
	// translated.
	Principal string `json:"principal"`
	SID       string `json:"sid,omitempty"`
	Rights    Rights `json:"rights"`
	Effect    Effect `json:"access"`
	Inherited bool   `json:"inherited"`
}

// EntryKey is what two entries are compared on when deduplicating.
type EntryKey struct {
	Principal string
	Rights    Rights
	Effect    Effect
}

func (e AccessEntry) Key() EntryKey {
	return EntryKey{Principal: strings.ToUpper(e.Principal), Rights: e.Rights, Effect: e.Effect}
}

func (e AccessEntry) Equal(o AccessEntry) bool {
	return e.Key() == o.Key()
}

func (e AccessEntry) IsAllow() bool { return e.Effect == Allow }
func (e AccessEntry) IsDeny() bool  { return e.Effect == Deny }

// DisplayPrincipal drops the local machine, NT AUTHORITY and BUILTIN
// qualifiers.
func (e AccessEntry) DisplayPrincipal() string {
	return identity.ShortName(e.Principal)
}

// Matches reports whether the entry is about principal, given either as a
// name (qualified or not) or a SID string.
func (e AccessEntry) Matches(principal string) bool {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return false
	}
	if e.SID != "" && strings.EqualFold(e.SID, principal) {
		return true
	}
	return strings.EqualFold(e.Principal, principal) ||
		strings.EqualFold(e.DisplayPrincipal(), identity.ShortName(principal))
}

// String renders the entry as "+ Read NT AUTHORITY\SYSTEM"; deny entries use
// "-" and inherited ones are suffixed.
func (e AccessEntry) String() string {
	sign := "+"
	if e.IsDeny() {
		sign = "-"
	}
	s := fmt.Sprintf("%s %s %s", sign, e.Rights, e.Principal)
	if e.Inherited {
		s += " (inherited)"
	}
	return s
}

// AccessRuleSet is the rule list of one key file in native order.
type AccessRuleSet []AccessEntry

// Contains reports whether some entry equals e.
func (s AccessRuleSet) Contains(e AccessEntry) bool {
	for _, x := range s {
		if x.Equal(e) {
			return true
		}
	}
	return false
}

// For returns the entries about principal.
func (s AccessRuleSet) For(principal string) AccessRuleSet {
	return s.filter(func(e AccessEntry) bool { return e.Matches(principal) })
}

func (s AccessRuleSet) Explicit() AccessRuleSet {
	return s.filter(func(e AccessEntry) bool { return !e.Inherited })
}

func (s AccessRuleSet) Inherited() AccessRuleSet {
	return s.filter(func(e AccessEntry) bool { return e.Inherited })
}

// Dedup keeps the first entry of each key.
func (s AccessRuleSet) Dedup() AccessRuleSet {
	seen := make(map[EntryKey]struct{}, len(s))
	return s.filter(func(e AccessEntry) bool {
		if _, ok := seen[e.Key()]; ok {
			return false
		}
		seen[e.Key()] = struct{}{}
		return true
	})
}

// Allows reports whether an explicit or inherited allow entry grants
// principal all of rights. Deny entries are not evaluated.
func (s AccessRuleSet) Allows(principal string, rights Rights) bool {
	for _, e := range s.For(principal) {
		if e.IsAllow() && e.Rights.Has(rights) {
			return true
		}
	}
	return false
}

func (s AccessRuleSet) Strings() []string {
	out := make([]string, len(s))
	for i, e := range s {
		out[i] = e.String()
	}
	return out
}

func (s AccessRuleSet) filter(keep func(AccessEntry) bool) AccessRuleSet {
	out := make(AccessRuleSet, 0, len(s))
	for _, e := range s {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Rule is a rule to add to a key file.
type Rule struct {
	Principal string
	Rights    Rights
	Effect    Effect
}

func NewRule(principal string, rights Rights, effect Effect) Rule {
	return Rule{Principal: principal, Rights: rights, Effect: effect}
}

func (r Rule) String() string {
	return AccessEntry{Principal: r.Principal, Rights: r.Rights, Effect: r.Effect}.String()
}
