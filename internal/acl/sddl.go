package acl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vocdoni/gofirma/certperms/internal/identity"
)

type ACEType byte

const (
	AccessAllowed ACEType = 0x0
	AccessDenied  ACEType = 0x1
	// OtherACE covers object, callback and conditional ACEs, which are kept
	// verbatim.
	OtherACE ACEType = 0xff
)

type ACEFlags byte

const (
	ObjectInherit    ACEFlags = 0x1
	ContainerInherit ACEFlags = 0x2
	NoPropagate      ACEFlags = 0x4
	InheritOnly      ACEFlags = 0x8
	InheritedACE     ACEFlags = 0x10
	SuccessfulAccess ACEFlags = 0x40
	FailedAccess     ACEFlags = 0x80
)

var flagTokens = []struct {
	token string
	flag  ACEFlags
}{
	{"OI", ObjectInherit},
	{"CI", ContainerInherit},
	{"NP", NoPropagate},
	{"IO", InheritOnly},
	{"ID", InheritedACE},
	{"SA", SuccessfulAccess},
	{"FA", FailedAccess},
}

var maskTokens = map[string]uint32{
	"GA": GenericAll,
	"GR": GenericRead,
	"GW": GenericWrite,
	"GX": GenericExecute,
	"RC": 0x20000,
	"SD": 0x10000,
	"WD": 0x40000,
	"WO": 0x80000,
	"CC": 0x1,
	"DC": 0x2,
	"LC": 0x4,
	"SW": 0x8,
	"RP": 0x10,
	"WP": 0x20,
	"DT": 0x40,
	"LO": 0x80,
	"CR": 0x100,
	"FA": 0x1f01ff,
	"FR": 0x120089,
	"FW": 0x120116,
	"FX": 0x1200a0,
	"KA": 0xf003f,
	"KR": 0x20019,
	"KW": 0x20006,
	"KX": 0x20019,
}

// Masks written back as tokens.
var maskNames = []string{"FA", "FR", "FW", "FX", "GA", "GR"}

// ACE is one access control entry of a DACL.
type ACE struct {
	Type  ACEType
	Flags ACEFlags
	Mask  uint32
	// SID is a SID string, or the raw SDDL alias when it has no fixed SID.
	SID string

	raw string
}

func (a ACE) Inherited() bool { return a.Flags&InheritedACE != 0 }

// Effect is meaningful for allow and deny ACEs only.
func (a ACE) Effect() Effect {
	if a.Type == AccessDenied {
		return Deny
	}
	return Allow
}

func (a ACE) String() string {
	if a.Type == OtherACE {
		return a.raw
	}
	t := "A"
	if a.Type == AccessDenied {
		t = "D"
	}
	var flags strings.Builder
	for _, f := range flagTokens {
		if a.Flags&f.flag != 0 {
			flags.WriteString(f.token)
		}
	}
	return fmt.Sprintf("(%s;%s;%s;;;%s)", t, flags.String(), formatMask(a.Mask), a.SID)
}

// ACL is a discretionary ACL. Flags holds the SDDL control tokens ("P", "AI",
// "AR", "NO_ACCESS_CONTROL").
type ACL struct {
	Flags   string
	Entries []ACE
}

func (l *ACL) Protected() bool {
	return l != nil && strings.Contains(l.Flags, "P")
}

// Insert adds an explicit ACE in canonical position: denies go after the
// explicit deny block, allows after the last explicit ACE. Inherited ACEs are
// never reordered.
func (l *ACL) Insert(ace ACE) {
	pos := len(l.Entries)
	for i, e := range l.Entries {
		if e.Inherited() || (ace.Type == AccessDenied && e.Type != AccessDenied) {
			pos = i
			break
		}
	}
	l.Entries = append(l.Entries, ACE{})
	copy(l.Entries[pos+1:], l.Entries[pos:])
	l.Entries[pos] = ace
}

func (l *ACL) String() string {
	var b strings.Builder
	b.WriteString(l.Flags)
	for _, e := range l.Entries {
		b.WriteString(e.String())
	}
	return b.String()
}

// Descriptor is the part of a security descriptor this package edits. The
// SACL is carried as text and never interpreted.
type Descriptor struct {
	Owner string
	Group string
	DACL  *ACL
	SACL  string
}

// String formats the descriptor back into SDDL.
func (d *Descriptor) String() string {
	var b strings.Builder
	if d.Owner != "" {
		b.WriteString("O:" + d.Owner)
	}
	if d.Group != "" {
		b.WriteString("G:" + d.Group)
	}
	if d.DACL != nil {
		b.WriteString("D:" + d.DACL.String())
	}
	if d.SACL != "" {
		b.WriteString("S:" + d.SACL)
	}
	return b.String()
}

// DACLOnly returns the SDDL of the DACL alone, the form written back to files.
func (d *Descriptor) DACLOnly() string {
	if d.DACL == nil {
		return "D:"
	}
	return "D:" + d.DACL.String()
}

// ParseSDDL parses a security descriptor string such as
// "O:SYG:SYD:PAI(A;;FA;;;SY)(A;ID;FR;;;BA)". Components may come in any order
// and each is optional.
func ParseSDDL(s string) (*Descriptor, error) {
	s = strings.TrimSpace(s)
	d := &Descriptor{}
	if s == "" {
		return d, nil
	}
	comps, err := splitComponents(s)
	if err != nil {
		return nil, err
	}
	for _, c := range comps {
		switch c.marker {
		case 'O':
			d.Owner, err = parseSID(c.value)
			if err != nil {
				return nil, fmt.Errorf("error parsing owner SID: %w", err)
			}
		case 'G':
			d.Group, err = parseSID(c.value)
			if err != nil {
				return nil, fmt.Errorf("error parsing group SID: %w", err)
			}
		case 'D':
			d.DACL, err = parseACL(c.value)
			if err != nil {
				return nil, fmt.Errorf("error parsing DACL: %w", err)
			}
		case 'S':
			d.SACL = c.value
		}
	}
	return d, nil
}

type component struct {
	marker byte
	value  string
}

// splitComponents cuts s at each "O:", "G:", "D:" or "S:" marker found outside
// parentheses.
func splitComponents(s string) ([]component, error) {
	var comps []component
	seen := make(map[byte]bool, 4)
	depth, start := 0, -1
	var marker byte
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parenthesis at offset %d", i)
			}
		case depth == 0 && i+1 < len(s) && s[i+1] == ':' && strings.IndexByte("OGDS", c) >= 0:
			if start >= 0 {
				comps = append(comps, component{marker, s[start:i]})
			} else if i != 0 {
				return nil, fmt.Errorf("unexpected content before component: %s", s[:i])
			}
			if seen[c] {
				return nil, fmt.Errorf("duplicate %c: component", c)
			}
			seen[c] = true
			marker, start = c, i+2
			i++
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parenthesis")
	}
	if start < 0 {
		return nil, fmt.Errorf("no components found in security descriptor")
	}
	return append(comps, component{marker, s[start:]}), nil
}

func parseACL(s string) (*ACL, error) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return &ACL{Flags: s}, nil
	}
	l := &ACL{Flags: s[:open]}
	rest := s[open:]
	for rest != "" {
		if rest[0] != '(' {
			return nil, fmt.Errorf("unexpected content between ACEs: %s", rest)
		}
		end := closing(rest)
		if end < 0 {
			return nil, fmt.Errorf("unterminated ACE: %s", rest)
		}
		ace, err := parseACE(rest[:end+1])
		if err != nil {
			return nil, err
		}
		l.Entries = append(l.Entries, ace)
		rest = rest[end+1:]
	}
	return l, nil
}

// closing returns the index of the parenthesis closing s[0].
func closing(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// parseACE parses "(type;flags;rights;object;inherited object;sid)".
func parseACE(s string) (ACE, error) {
	parts := strings.Split(s[1:len(s)-1], ";")
	if len(parts) < 6 {
		return ACE{}, fmt.Errorf("invalid ACE %s: expected 6 components separated by semicolons", s)
	}
	raw := ACE{Type: OtherACE, raw: s}
	var t ACEType
	switch parts[0] {
	case "A":
		t = AccessAllowed
	case "D":
		t = AccessDenied
	default:
		return raw, nil
	}
	if len(parts) != 6 || parts[3] != "" || parts[4] != "" {
		return raw, nil
	}

	flags, err := parseFlags(parts[1])
	if err != nil {
		return ACE{}, fmt.Errorf("invalid ACE flags in %s: %w", s, err)
	}
	mask, err := parseMask(parts[2])
	if err != nil {
		return ACE{}, fmt.Errorf("invalid access mask in %s: %w", s, err)
	}
	sid, err := parseSID(parts[5])
	if err != nil {
		return ACE{}, fmt.Errorf("invalid SID in %s: %w", s, err)
	}
	return ACE{Type: t, Flags: flags, Mask: mask, SID: sid}, nil
}

func parseFlags(s string) (ACEFlags, error) {
	var f ACEFlags
	for len(s) > 0 {
		if len(s) < 2 {
			return 0, fmt.Errorf("unknown flag %q", s)
		}
		found := false
		for _, t := range flagTokens {
			if s[:2] == t.token {
				f |= t.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown flag %q", s[:2])
		}
		s = s[2:]
	}
	return f, nil
}

func parseMask(s string) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("empty access mask")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") || (s[0] >= '0' && s[0] <= '9') {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid numeric access mask: %s", s)
		}
		return uint32(v), nil
	}
	if len(s)%2 != 0 {
		return 0, fmt.Errorf("unknown access mask: %s", s)
	}
	var mask uint32
	for i := 0; i < len(s); i += 2 {
		v, ok := maskTokens[s[i:i+2]]
		if !ok {
			return 0, fmt.Errorf("unknown access right %q", s[i:i+2])
		}
		mask |= v
	}
	return mask, nil
}

func formatMask(m uint32) string {
	for _, n := range maskNames {
		if maskTokens[n] == m {
			return n
		}
	}
	return fmt.Sprintf("0x%x", m)
}

func parseSID(s string) (string, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return "", fmt.Errorf("empty SID")
	case identity.IsSID(s):
		return strings.ToUpper(s), nil
	case len(s) == 2:
		if sid, ok := identity.AliasSID(s); ok {
			return sid, nil
		}
		// domain relative aliases (DA, DU, ...) stay as written
		return strings.ToUpper(s), nil
	}
	return "", fmt.Errorf("invalid SID %q", s)
}
