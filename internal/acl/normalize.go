// Package acl reads and edits the discretionary ACL of private key files.
//
// Descriptors travel as SDDL between this package and the host, so the model
// and every edit are platform neutral; only the reader and writer behind
// FileSecurity touch the Win32 security API.
package acl

import (
	"context"
	"fmt"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/identity"
	"github.com/vocdoni/gofirma/certperms/internal/logger"
)

// Normalizer turns a file's DACL into an AccessRuleSet.
type Normalizer struct {
	Reader     SecurityReader
	Identities identity.Resolver
	Logger     *logger.Logger
}

func NewNormalizer(reader SecurityReader, ids identity.Resolver, log *logger.Logger) *Normalizer {
	return &Normalizer{Reader: reader, Identities: ids, Logger: log.With("acl")}
}

// Normalize returns the explicit and inherited entries of path in native
// order. The DACL is read on every call.
func (n *Normalizer) Normalize(ctx context.Context, path string) (AccessRuleSet, error) {
	d, err := n.read(ctx, path)
	if err != nil {
		return nil, err
	}
	return n.Entries(d), nil
}

// Entries converts the allow and deny ACEs of d. Principals that cannot be
// translated keep their SID string.
func (n *Normalizer) Entries(d *Descriptor) AccessRuleSet {
	if d == nil || d.DACL == nil {
		return AccessRuleSet{}
	}
	set := make(AccessRuleSet, 0, len(d.DACL.Entries))
	for _, ace := range d.DACL.Entries {
		if ace.Type == OtherACE {
			continue
		}
		set = append(set, AccessEntry{
			Principal: identity.Display(n.Identities, ace.SID),
			SID:       ace.SID,
			Rights:    MapGeneric(ace.Mask),
			Effect:    ace.Effect(),
			Inherited: ace.Inherited(),
		})
	}
	return set
}

func (n *Normalizer) read(ctx context.Context, path string) (*Descriptor, error) {
	if path == "" {
		return nil, certerr.New(certerr.InvalidArgument, "read acl", path, fmt.Errorf("empty path"))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sddl, err := n.Reader.ReadSDDL(path)
	if err != nil {
		return nil, err
	}
	d, err := ParseSDDL(sddl)
	if err != nil {
		return nil, fmt.Errorf("read acl of %s: %w", path, err)
	}
	n.Logger.Debugf("%s: %s", path, sddl)
	return d, nil
}
