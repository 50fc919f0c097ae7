package importspec

import (
	"fmt"
	"os"
	"strings"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

// Password source types.
const (
	PasswordFile = "file"
	PasswordText = "text"
	PasswordEnv  = "env"
)

// PasswordSource says where a certificate password comes from: the contents
// of a file, literal text, or an environment variable.
type PasswordSource struct {
	Type  string `yaml:"type" json:"type"`
	Value string `yaml:"value" json:"value"`
}

func (p *PasswordSource) Validate() error {
	if strings.TrimSpace(p.Value) == "" {
		return fmt.Errorf("value is required")
	}
	switch strings.ToLower(p.Type) {
	case PasswordFile, PasswordText, PasswordEnv:
		return nil
	}
	return fmt.Errorf("unknown source type %q (want file, text or env)", p.Type)
}

// Resolve returns the password. A nil source means no password.
func (p *PasswordSource) Resolve() (string, error) {
	if p == nil {
		return "", nil
	}
	if err := p.Validate(); err != nil {
		return "", certerr.New(certerr.InvalidArgument, "resolve password", p.Type, err)
	}
	switch strings.ToLower(p.Type) {
	case PasswordFile:
		data, err := os.ReadFile(p.Value)
		if err != nil {
			return "", certerr.New(certerr.KindOf(err), "resolve password", p.Value, err)
		}
		return strings.TrimRight(string(data), "\r\n"), nil
	case PasswordEnv:
		v, ok := os.LookupEnv(p.Value)
		if !ok || v == "" {
			return "", certerr.New(certerr.NotFound, "resolve password", p.Value, fmt.Errorf("environment variable is not set"))
		}
		return v, nil
	}
	return p.Value, nil
}
