package systemstore

import (
	"context"
	"crypto/x509"
	"fmt"
	"strings"
	"sync"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/certs"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/keyprov"
)

// MemoryOpener is an in-memory Opener for tests and dry runs. It counts opens
// and closes so callers can check that every store was released.
type MemoryOpener struct {
	mu      sync.Mutex
	stores  map[string][]Certificate
	fail    map[string]error
	opened  int
	closed  int
	written int
}

func NewMemoryOpener() *MemoryOpener {
	return &MemoryOpener{
		stores: make(map[string][]Certificate),
		fail:   make(map[string]error),
	}
}

func storeKey(loc Location, cat Category) string {
	return fmt.Sprintf(`%s\%s`, loc, cat)
}

// Add places a certificate in a store, filling in its location and category.
func (m *MemoryOpener) Add(loc Location, cat Category, c Certificate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.Location = loc
	c.Category = cat
	if tp, err := certs.ParseThumbprint(c.Thumbprint); err == nil {
		c.Thumbprint = tp
	}
	k := storeKey(loc, cat)
	m.stores[k] = append(m.stores[k], c)
}

// Fail makes opening the store return err.
func (m *MemoryOpener) Fail(loc Location, cat Category, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[storeKey(loc, cat)] = err
}

// Balanced reports whether every opened store was closed.
func (m *MemoryOpener) Balanced() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened == m.closed
}

func (m *MemoryOpener) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.written
}

func (m *MemoryOpener) Open(ctx context.Context, loc Location, cat Category, mode Mode) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := storeKey(loc, cat)
	if err := m.fail[k]; err != nil {
		return nil, err
	}
	m.opened++
	return &memoryStore{parent: m, key: k, loc: loc, cat: cat, mode: mode}, nil
}

type memoryStore struct {
	parent *MemoryOpener
	key    string
	loc    Location
	cat    Category
	mode   Mode
	closed bool
}

func (s *memoryStore) Certificates(ctx context.Context) ([]Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	out := make([]Certificate, len(s.parent.stores[s.key]))
	copy(out, s.parent.stores[s.key])
	return out, nil
}

func (s *memoryStore) SetFriendlyName(thumbprint, name string) error {
	if s.mode != ReadWrite {
		return certerr.New(certerr.PermissionDenied, "set friendly name", thumbprint, fmt.Errorf("store opened read-only"))
	}
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	for i, c := range s.parent.stores[s.key] {
		if certs.SameThumbprint(c.Thumbprint, thumbprint) {
			s.parent.stores[s.key][i].FriendlyName = name
			s.parent.written++
			return nil
		}
	}
	return certerr.New(certerr.NotFound, "set friendly name", thumbprint, nil)
}

// MemoryContainerID is the key container name the memory store gives a
// certificate imported with its private key.
func MemoryContainerID(thumbprint string) string {
	return strings.ToLower(thumbprint[:16]) + "_imported"
}

func (s *memoryStore) Import(cert *x509.Certificate, pfx []byte, password string, opts ImportOptions) error {
	if s.mode != ReadWrite {
		return certerr.New(certerr.PermissionDenied, "import certificate", "", fmt.Errorf("store opened read-only"))
	}
	c := Certificate{
		Thumbprint: certs.Thumbprint(cert),
		Subject:    cert.Subject.String(),
		Cert:       cert,
	}
	if len(pfx) > 0 {
		kind := keyprov.RSANextGen
		if cert.PublicKeyAlgorithm == x509.ECDSA {
			kind = keyprov.ECDSANextGen
		}
		c.HasPrivateKey = true
		c.Key = keyprov.Key{Kind: kind, ContainerID: MemoryContainerID(c.Thumbprint)}
	}

	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	c.Location, c.Category = s.loc, s.cat
	list := s.parent.stores[s.key]
	for i := range list {
		if list[i].Thumbprint == c.Thumbprint {
			list[i] = c
			s.parent.written++
			return nil
		}
	}
	s.parent.stores[s.key] = append(list, c)
	s.parent.written++
	return nil
}

func (s *memoryStore) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.parent.mu.Lock()
	s.parent.closed++
	s.parent.mu.Unlock()
	return nil
}
