package systemstore

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/keyprov"
)

// Location is a top-level certificate store scope.
type Location int

const (
	CurrentUser Location = iota + 1
	LocalMachine
)

func (l Location) String() string {
	switch l {
	case CurrentUser:
		return "CurrentUser"
	case LocalMachine:
		return "LocalMachine"
	}
	return fmt.Sprintf("Location(%d)", int(l))
}

func ParseLocation(s string) (Location, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "currentuser", "user", "cu":
		return CurrentUser, nil
	case "localmachine", "machine", "system", "lm":
		return LocalMachine, nil
	}
	return 0, certerr.New(certerr.InvalidArgument, "parse store location", s, nil)
}

func (l Location) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Location) UnmarshalText(b []byte) error {
	v, err := ParseLocation(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// AllLocations in search order.
func AllLocations() []Location {
	return []Location{CurrentUser, LocalMachine}
}

// Category is a named store inside a location. The value is the system store name.
type Category string

const (
	My               Category = "My"
	Root             Category = "Root"
	CA               Category = "CA"
	Trust            Category = "Trust"
	Disallowed       Category = "Disallowed"
	AuthRoot         Category = "AuthRoot"
	TrustedPeople    Category = "TrustedPeople"
	TrustedPublisher Category = "TrustedPublisher"
	AddressBook      Category = "AddressBook"
)

// AllCategories lists every known category, personal first.
func AllCategories() []Category {
	return []Category{My, Root, CA, Trust, Disallowed, AuthRoot, TrustedPeople, TrustedPublisher, AddressBook}
}

func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "personal":
		return My, nil
	case "intermediate", "certificateauthority":
		return CA, nil
	case "trustedroot":
		return Root, nil
	}
	for _, c := range AllCategories() {
		if strings.EqualFold(string(c), s) {
			return c, nil
		}
	}
	return "", certerr.New(certerr.InvalidArgument, "parse store category", s, nil)
}

type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
)

// Certificate is a read-only view of a certificate found in a store.
type Certificate struct {
	Thumbprint    string
	Subject       string
	FriendlyName  string
	Location      Location
	Category      Category
	HasPrivateKey bool
	Cert          *x509.Certificate

	// Key and KeyErr hold the result of probing the private key while the store
	// was open. KeyErr is nil when Key is valid.
	Key    keyprov.Key
	KeyErr error
}

// PrivateKey returns the probed private key.
func (c *Certificate) PrivateKey() (keyprov.Key, error) {
	if !c.HasPrivateKey {
		return keyprov.Key{}, certerr.New(certerr.NoPrivateKey, "inspect key", c.Thumbprint, nil)
	}
	if c.KeyErr != nil {
		return keyprov.Key{}, c.KeyErr
	}
	if err := c.Key.Validate(); err != nil {
		return keyprov.Key{}, err
	}
	return c.Key, nil
}

// Path is the PowerShell-style provider path, e.g. CurrentUser\My\<thumbprint>.
func (c *Certificate) Path() string {
	return fmt.Sprintf(`%s\%s\%s`, c.Location, c.Category, c.Thumbprint)
}

// Store is one open system store. Stores are opened per operation and must be
// closed on every path.
type Store interface {
	Certificates(ctx context.Context) ([]Certificate, error)
	SetFriendlyName(thumbprint, name string) error
	Close() error
}

// ImportOptions control how a certificate is added to a store.
type ImportOptions struct {
	// Exportable marks the imported private key as exportable.
	Exportable bool
}

// Importer is implemented by stores that can take new certificates. When pfx
// is empty only the certificate is added; otherwise the PKCS#12 blob is
// imported with its private key and cert is the leaf to keep.
type Importer interface {
	Import(cert *x509.Certificate, pfx []byte, password string, opts ImportOptions) error
}

type Opener interface {
	Open(ctx context.Context, loc Location, cat Category, mode Mode) (Store, error)
}

var ErrUnsupportedPlatform = errors.New("system certificate stores are only available on Windows")
