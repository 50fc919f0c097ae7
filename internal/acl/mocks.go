package acl

import (
	"sync"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

// MemorySecurity keeps file descriptors in memory. Writes behave like the
// host: explicit ACEs are replaced and inherited ones are kept.
type MemorySecurity struct {
	mu        sync.Mutex
	files     map[string]string
	failWrite map[string]error
	writes    int
}

func NewMemorySecurity() *MemorySecurity {
	return &MemorySecurity{
		files:     make(map[string]string),
		failWrite: make(map[string]error),
	}
}

// Set stores the SDDL of path.
func (m *MemorySecurity) Set(path, sddl string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = sddl
}

func (m *MemorySecurity) FailWrite(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrite[path] = err
}

func (m *MemorySecurity) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MemorySecurity) ReadSDDL(path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.files[path]
	if !ok {
		return "", certerr.New(certerr.NotFound, "read acl", path, nil)
	}
	return s, nil
}

func (m *MemorySecurity) WriteDACL(path string, d *Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failWrite[path]; err != nil {
		return err
	}
	s, ok := m.files[path]
	if !ok {
		return certerr.New(certerr.NotFound, "write acl", path, nil)
	}
	cur, err := ParseSDDL(s)
	if err != nil {
		return err
	}
	dacl := writableDACL(d)
	next := &ACL{Flags: dacl.Flags, Entries: append([]ACE(nil), dacl.Entries...)}
	if !dacl.Protected() && cur.DACL != nil {
		for _, e := range cur.DACL.Entries {
			if e.Inherited() {
				next.Entries = append(next.Entries, e)
			}
		}
	}
	cur.DACL = next
	m.files[path] = cur.String()
	m.writes++
	return nil
}
