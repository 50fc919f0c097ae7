package certerr

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// Kind classifies a failure independently of the error type that carried it.
type Kind int

const (
	Unknown Kind = iota
	NotFound
	AmbiguousMatch
	NoPrivateKey
	UnsupportedKeyType
	KeyFileNotFound
	PermissionDenied
	InvalidArgument
)

var kindNames = map[Kind]string{
	Unknown:            "Unknown",
	NotFound:           "NotFound",
	AmbiguousMatch:     "AmbiguousMatch",
	NoPrivateKey:       "NoPrivateKey",
	UnsupportedKeyType: "UnsupportedKeyType",
	KeyFileNotFound:    "KeyFileNotFound",
	PermissionDenied:   "PermissionDenied",
	InvalidArgument:    "InvalidArgument",
}

// tags are stable identifiers automation can branch on. Never rename one.
var tags = map[Kind]string{
	NotFound:           "Cert.NotFound",
	AmbiguousMatch:     "Cert.AmbiguousMatch",
	NoPrivateKey:       "Key.NoPrivateKey",
	UnsupportedKeyType: "Key.UnsupportedType",
	KeyFileNotFound:    "Key.FileNotFound",
	PermissionDenied:   "Security.Permissions",
	InvalidArgument:    "Argument.Invalid",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Tag returns the stable identifier of the kind.
func (k Kind) Tag() string {
	if t, ok := tags[k]; ok {
		return t
	}
	return "General." + k.String()
}

var (
	ErrNotFound           = &Error{Kind: NotFound}
	ErrAmbiguousMatch     = &Error{Kind: AmbiguousMatch}
	ErrNoPrivateKey       = &Error{Kind: NoPrivateKey}
	ErrUnsupportedKeyType = &Error{Kind: UnsupportedKeyType}
	ErrKeyFileNotFound    = &Error{Kind: KeyFileNotFound}
	ErrPermissionDenied   = &Error{Kind: PermissionDenied}
	ErrInvalidArgument    = &Error{Kind: InvalidArgument}
)

// Error is the typed failure returned by the locator, resolver and editor.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "locate" or "resolve key".
	Op string
	// Subject is what the operation was about: a thumbprint, a path, a principal.
	Subject string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	if e.Subject != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%q", e.Subject)
	}
	if b.Len() > 0 {
		b.WriteString(": ")
	}
	b.WriteString(describe(e.Kind))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the Err* values work as sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind.
func New(kind Kind, op, subject string, err error) error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: err}
}

// Errorf builds an error of the given kind with a formatted cause.
func Errorf(kind Kind, op, subject, format string, args ...interface{}) error {
	return &Error{Kind: kind, Op: op, Subject: subject, Err: fmt.Errorf(format, args...)}
}

// KindOf classifies err. Untyped errors are mapped from well known causes.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NotFound
	case errors.Is(err, fs.ErrPermission), isAccessDenied(err):
		return PermissionDenied
	case errors.Is(err, fs.ErrInvalid):
		return InvalidArgument
	}
	return Unknown
}

// Tag returns the stable identifier for err.
func Tag(err error) string {
	return KindOf(err).Tag()
}

func describe(k Kind) string {
	switch k {
	case NotFound:
		return "not found"
	case AmbiguousMatch:
		return "more than one match"
	case NoPrivateKey:
		return "certificate has no private key"
	case UnsupportedKeyType:
		return "unsupported private key type"
	case KeyFileNotFound:
		return "private key file not found"
	case PermissionDenied:
		return "permission denied"
	case InvalidArgument:
		return "invalid argument"
	}
	return "failed"
}
