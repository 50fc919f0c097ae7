// Package importspec reads bulk import documents and applies them: each
// certificate file is installed into its target stores and the listed
// permissions are granted on its private key file.
//
// A document is YAML or JSON:
//
//	certs:
//	  - cert: ./web.pfx
//	    password: {type: env, value: WEB_PFX_PASSWORD}
//	    exportable: false
//	    stores:
//	      - {location: LocalMachine, store: My}
//	    permissions:
//	      - {identity: NETWORK SERVICE, rights: Read, access: Allow}
package importspec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vocdoni/gofirma/certperms/internal/acl"
	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/systemstore"
)

type Document struct {
	Certs []CertSpec `yaml:"certs" json:"certs"`
}

type CertSpec struct {
	Cert         string           `yaml:"cert" json:"cert"`
	Password     *PasswordSource  `yaml:"password,omitempty" json:"password,omitempty"`
	Exportable   bool             `yaml:"exportable" json:"exportable"`
	FriendlyName string           `yaml:"friendlyName,omitempty" json:"friendlyName,omitempty"`
	Stores       []StoreSpec      `yaml:"stores" json:"stores"`
	Permissions  []PermissionSpec `yaml:"permissions,omitempty" json:"permissions,omitempty"`
}

type StoreSpec struct {
	Location string `yaml:"location" json:"location"`
	Store    string `yaml:"store" json:"store"`
}

func (s StoreSpec) Parse() (systemstore.Location, systemstore.Category, error) {
	loc, err := systemstore.ParseLocation(s.Location)
	if err != nil {
		return 0, "", err
	}
	cat, err := systemstore.ParseCategory(s.Store)
	if err != nil {
		return 0, "", err
	}
	return loc, cat, nil
}

type PermissionSpec struct {
	Identity string `yaml:"identity" json:"identity"`
	Rights   string `yaml:"rights" json:"rights"`
	Access   string `yaml:"access,omitempty" json:"access,omitempty"`
}

// Rule converts the permission into an ACL rule. Access defaults to Allow.
func (p PermissionSpec) Rule() (acl.Rule, error) {
	if strings.TrimSpace(p.Identity) == "" {
		return acl.Rule{}, certerr.New(certerr.InvalidArgument, "parse permission", "", fmt.Errorf("identity is required"))
	}
	rights, err := acl.ParseRights(p.Rights)
	if err != nil {
		return acl.Rule{}, err
	}
	effect, err := acl.ParseEffect(p.Access)
	if err != nil {
		return acl.Rule{}, err
	}
	return acl.NewRule(p.Identity, rights, effect), nil
}

// Parse decodes a YAML or JSON document. Unknown fields are rejected.
func Parse(data []byte) (*Document, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, certerr.New(certerr.InvalidArgument, "parse import document", "", fmt.Errorf("document is empty"))
		}
		return nil, certerr.New(certerr.InvalidArgument, "parse import document", "", err)
	}
	return &doc, nil
}

// Load reads a document from path. Relative certificate and password file
// paths are resolved against the document's directory.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, certerr.New(certerr.KindOf(err), "load import document", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	for i := range doc.Certs {
		c := &doc.Certs[i]
		c.Cert = resolvePath(base, c.Cert)
		if c.Password != nil && strings.EqualFold(c.Password.Type, PasswordFile) {
			c.Password.Value = resolvePath(base, c.Password.Value)
		}
	}
	return doc, nil
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// ValidationError lists every problem found in a document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// Validate checks the whole document and reports all problems at once as an
// InvalidArgument error wrapping a *ValidationError.
func (d *Document) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}
	if len(d.Certs) == 0 {
		add("import document contains no certificates")
	}
	for i, c := range d.Certs {
		name := fmt.Sprintf("certs[%d]", i)
		if strings.TrimSpace(c.Cert) == "" {
			add("%s: cert is required", name)
		} else if _, err := CertTypeOf(c.Cert); err != nil {
			add("%s: %v", name, err)
		}
		if c.Password != nil {
			if err := c.Password.Validate(); err != nil {
				add("%s: password: %v", name, err)
			}
		}
		if len(c.Stores) == 0 {
			add("%s: at least one store is required", name)
		}
		for j, s := range c.Stores {
			if _, _, err := s.Parse(); err != nil {
				add("%s.stores[%d]: %v", name, j, err)
			}
		}
		for j, p := range c.Permissions {
			if _, err := p.Rule(); err != nil {
				add("%s.permissions[%d]: %v", name, j, err)
			}
		}
	}
	if len(problems) > 0 {
		return certerr.New(certerr.InvalidArgument, "validate import document", "", &ValidationError{Problems: problems})
	}
	return nil
}
