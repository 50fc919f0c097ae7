package acl

import (
	"context"
	"fmt"
	"strings"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/identity"
	"github.com/vocdoni/gofirma/certperms/internal/logger"
	"github.com/vocdoni/gofirma/certperms/internal/storage"
)

// Auditor records ACL changes.
type Auditor interface {
	Log(entry storage.AuditEntry) error
}

// Editor adds rules to key file DACLs. Each edit reads the DACL, inserts the
// rule and writes the DACL back. Without Locks, a concurrent change made
// between the read and the write is lost.
type Editor struct {
	Reader     SecurityReader
	Writer     SecurityWriter
	Identities identity.Resolver
	Locks      *Locker
	Audit      Auditor
	Logger     *logger.Logger
}

func NewEditor(fs FileSecurity, ids identity.Resolver, locks *Locker, audit Auditor, log *logger.Logger) *Editor {
	return &Editor{
		Reader:     fs,
		Writer:     fs,
		Identities: ids,
		Locks:      locks,
		Audit:      audit,
		Logger:     log.With("acl-editor"),
	}
}

// AddRule appends an explicit rule and returns the resulting rule set. The
// same rule added twice is present twice.
func (e *Editor) AddRule(ctx context.Context, path, principal string, rights Rights, effect Effect) (AccessRuleSet, error) {
	return e.AddEntry(ctx, path, NewRule(principal, rights, effect))
}

func (e *Editor) AddEntry(ctx context.Context, path string, rule Rule) (AccessRuleSet, error) {
	set, _, err := e.apply(ctx, path, rule, false)
	return set, err
}

// EnsureRule adds rule unless an explicit entry with the same principal,
// rights and effect already exists. changed reports whether it wrote.
func (e *Editor) EnsureRule(ctx context.Context, path string, rule Rule) (set AccessRuleSet, changed bool, err error) {
	return e.apply(ctx, path, rule, true)
}

func (e *Editor) apply(ctx context.Context, path string, rule Rule, ensure bool) (AccessRuleSet, bool, error) {
	const op = "add rule"
	principal := strings.TrimSpace(rule.Principal)
	switch {
	case path == "":
		return nil, false, certerr.New(certerr.InvalidArgument, op, path, fmt.Errorf("empty key file path"))
	case principal == "":
		return nil, false, certerr.New(certerr.InvalidArgument, op, path, fmt.Errorf("empty identity"))
	case rule.Rights == 0:
		return nil, false, certerr.New(certerr.InvalidArgument, op, path, fmt.Errorf("no rights given"))
	}
	sid, err := e.Identities.SID(principal)
	if err != nil {
		return nil, false, err
	}
	rights := rule.Rights
	if rule.Effect == Allow {
		rights |= Synchronize
	}

	unlock, err := e.Locks.Lock(ctx, path)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	norm := e.normalizer()
	d, err := norm.read(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if ensure {
		for _, entry := range norm.Entries(d).Explicit() {
			if strings.EqualFold(entry.SID, sid) && entry.Rights == rights && entry.Effect == rule.Effect {
				e.Logger.Debugf("%s already has %s", path, rule)
				return norm.Entries(d), false, nil
			}
		}
	}

	ace := ACE{Type: AccessAllowed, Mask: uint32(rights), SID: sid}
	if rule.Effect == Deny {
		ace.Type = AccessDenied
	}
	if d.DACL == nil {
		d.DACL = &ACL{}
	}
	d.DACL.Insert(ace)

	audit := storage.AuditEntry{
		Operation: "grant",
		Path:      path,
		Principal: principal,
		Rights:    rights.String(),
		Effect:    rule.Effect.String(),
	}
	if err := e.Writer.WriteDACL(path, d); err != nil {
		audit.Status, audit.Error = storage.StatusFailed, err.Error()
		e.record(audit)
		return nil, false, err
	}
	audit.Status = storage.StatusOK
	e.record(audit)
	e.Logger.Infof("%s: added %s", path, rule)

	set, err := norm.Normalize(ctx, path)
	if err != nil {
		return nil, true, err
	}
	return set, true, nil
}

func (e *Editor) normalizer() *Normalizer {
	return &Normalizer{Reader: e.Reader, Identities: e.Identities, Logger: e.Logger}
}

func (e *Editor) record(entry storage.AuditEntry) {
	if e.Audit == nil {
		return
	}
	if err := e.Audit.Log(entry); err != nil {
		e.Logger.Warnf("audit: %v", err)
	}
}
