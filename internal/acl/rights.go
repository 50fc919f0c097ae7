package acl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

// Rights is a file access mask.
//
// Allow rules written by Editor also carry Synchronize, as the host's own
// file rules do, so a granted Read reads back as Read|Synchronize. Compare
// with Has rather than == when checking what a key file grants.
type Rights uint32

const (
	ReadData                     Rights = 0x1
	WriteData                    Rights = 0x2
	AppendData                   Rights = 0x4
	ReadExtendedAttributes       Rights = 0x8
	WriteExtendedAttributes      Rights = 0x10
	ExecuteFile                  Rights = 0x20
	DeleteSubdirectoriesAndFiles Rights = 0x40
	ReadAttributes               Rights = 0x80
	WriteAttributes              Rights = 0x100
	Delete                       Rights = 0x10000
	ReadPermissions              Rights = 0x20000
	ChangePermissions            Rights = 0x40000
	TakeOwnership                Rights = 0x80000
	Synchronize                  Rights = 0x100000

	Read           = ReadData | ReadExtendedAttributes | ReadAttributes | ReadPermissions
	Write          = WriteData | AppendData | WriteExtendedAttributes | WriteAttributes
	ReadAndExecute = Read | ExecuteFile
	Modify         = ReadAndExecute | Write | Delete
	FullControl    = Modify | DeleteSubdirectoriesAndFiles | ChangePermissions | TakeOwnership | Synchronize
)

// Generic access bits, as found in inheritable ACEs.
const (
	GenericAll     uint32 = 0x10000000
	GenericExecute uint32 = 0x20000000
	GenericWrite   uint32 = 0x40000000
	GenericRead    uint32 = 0x80000000
)

var rightNames = []struct {
	name  string
	value Rights
}{
	{"FullControl", FullControl},
	{"Modify", Modify},
	{"ReadAndExecute", ReadAndExecute},
	{"Write", Write},
	{"Read", Read},
	{"ReadData", ReadData},
	{"WriteData", WriteData},
	{"AppendData", AppendData},
	{"ReadExtendedAttributes", ReadExtendedAttributes},
	{"WriteExtendedAttributes", WriteExtendedAttributes},
	{"ExecuteFile", ExecuteFile},
	{"DeleteSubdirectoriesAndFiles", DeleteSubdirectoriesAndFiles},
	{"ReadAttributes", ReadAttributes},
	{"WriteAttributes", WriteAttributes},
	{"Delete", Delete},
	{"ReadPermissions", ReadPermissions},
	{"ChangePermissions", ChangePermissions},
	{"TakeOwnership", TakeOwnership},
	{"Synchronize", Synchronize},
}

var rightAliases = map[string]Rights{
	"full":          FullControl,
	"f":             FullControl,
	"m":             Modify,
	"rx":            ReadAndExecute,
	"r":             Read,
	"w":             Write,
	"createfiles":   WriteData,
	"listdirectory": ReadData,
	"traverse":      ExecuteFile,
	"executefile":   ExecuteFile,
}

// MapGeneric folds generic access bits into the file rights they stand for.
func MapGeneric(mask uint32) Rights {
	r := Rights(mask &^ (GenericAll | GenericExecute | GenericWrite | GenericRead))
	if mask&GenericAll != 0 {
		r |= FullControl
	}
	if mask&GenericRead != 0 {
		r |= Read | Synchronize
	}
	if mask&GenericWrite != 0 {
		r |= Write | ReadPermissions | Synchronize
	}
	if mask&GenericExecute != 0 {
		r |= ExecuteFile | ReadAttributes | ReadPermissions | Synchronize
	}
	return r
}

// Has reports whether r grants every right in other.
func (r Rights) Has(other Rights) bool {
	return r&other == other
}

// String lists the rights as the largest named sets first, e.g.
// "ReadAndExecute, Synchronize". Unnamed bits are printed in hex.
func (r Rights) String() string {
	if r == 0 {
		return "None"
	}
	rem := r
	var parts []string
	for _, n := range rightNames {
		if rem&n.value == n.value {
			parts = append(parts, n.name)
			rem &^= n.value
		}
	}
	if rem != 0 {
		parts = append(parts, fmt.Sprintf("0x%X", uint32(rem)))
	}
	return strings.Join(parts, ", ")
}

// ParseRights reads a list of right names separated by commas, pipes or
// spaces. Names are matched ignoring case; hex and decimal masks are accepted.
func ParseRights(s string) (Rights, error) {
	fields := strings.FieldsFunc(s, func(c rune) bool {
		return c == ',' || c == '|' || c == ' ' || c == '+'
	})
	if len(fields) == 0 {
		return 0, certerr.New(certerr.InvalidArgument, "parse rights", s, fmt.Errorf("no rights given"))
	}
	var r Rights
	for _, f := range fields {
		v, ok := lookupRight(f)
		if !ok {
			return 0, certerr.Errorf(certerr.InvalidArgument, "parse rights", s, "unknown right %q", f)
		}
		r |= v
	}
	return r, nil
}

func lookupRight(name string) (Rights, bool) {
	for _, n := range rightNames {
		if strings.EqualFold(n.name, name) {
			return n.value, true
		}
	}
	if v, ok := rightAliases[strings.ToLower(name)]; ok {
		return v, true
	}
	if v, err := strconv.ParseUint(name, 0, 32); err == nil && v != 0 {
		return Rights(v), true
	}
	return 0, false
}

// MarshalText writes the String form.
func (r Rights) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Rights) UnmarshalText(b []byte) error {
	v, err := ParseRights(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// Effect says whether an entry allows or denies its rights.
type Effect int

const (
	Allow Effect = iota
	Deny
)

func (e Effect) String() string {
	if e == Deny {
		return "Deny"
	}
	return "Allow"
}

func ParseEffect(s string) (Effect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allow", "a", "+":
		return Allow, nil
	case "deny", "d", "-":
		return Deny, nil
	}
	return Allow, certerr.New(certerr.InvalidArgument, "parse access type", s, fmt.Errorf("want Allow or Deny"))
}

func (e Effect) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

func (e *Effect) UnmarshalText(b []byte) error {
	v, err := ParseEffect(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}
