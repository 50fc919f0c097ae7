package importspec

import (
	"context"
	"fmt"

	"github.com/vocdoni/gofirma/certperms/internal/acl"
	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/systemstore"
	"github.com/vocdoni/gofirma/certperms/internal/keyfile"
	"github.com/vocdoni/gofirma/certperms/internal/logger"
)

type CertFinder interface {
	FindExact(ctx context.Context, loc systemstore.Location, cat systemstore.Category, thumbprint string) (*systemstore.Certificate, error)
	SetFriendlyName(ctx context.Context, loc systemstore.Location, cat systemstore.Category, thumbprint, name string) (*systemstore.Certificate, error)
}

type KeyResolver interface {
	Resolve(ctx context.Context, cert *systemstore.Certificate) (keyfile.Location, error)
}

type RuleEditor interface {
	AddEntry(ctx context.Context, path string, rule acl.Rule) (acl.AccessRuleSet, error)
	EnsureRule(ctx context.Context, path string, rule acl.Rule) (acl.AccessRuleSet, bool, error)
}

// Outcome is the result of importing one certificate of a document.
type Outcome struct {
	Cert       string         `json:"cert"`
	Thumbprint string         `json:"thumbprint,omitempty"`
	Stores     []StoreOutcome `json:"stores,omitempty"`
	Err        error          `json:"-"`
	Error      string         `json:"error,omitempty"`
}

// OK reports whether the certificate was installed everywhere and every
// permission was granted.
func (o Outcome) OK() bool {
	if o.Err != nil {
		return false
	}
	for _, s := range o.Stores {
		if s.Err != nil {
			return false
		}
	}
	return true
}

type StoreOutcome struct {
	Location systemstore.Location `json:"location"`
	Category systemstore.Category `json:"store"`
	KeyFile  string               `json:"keyFile,omitempty"`
	Granted  []string             `json:"granted,omitempty"`
	Err      error                `json:"-"`
	Error    string               `json:"error,omitempty"`
}

// Runner applies import documents. A failing certificate or store does not
// stop the rest of the document.
type Runner struct {
	Installer Installer
	Locator   CertFinder
	Resolver  KeyResolver
	Editor    RuleEditor
	// Ensure skips permissions already present as explicit entries.
	Ensure bool
	Logger *logger.Logger
}

func NewRunner(inst Installer, loc CertFinder, res KeyResolver, ed RuleEditor, log *logger.Logger) *Runner {
	return &Runner{
		Installer: inst,
		Locator:   loc,
		Resolver:  res,
		Editor:    ed,
		Logger:    log.With("import"),
	}
}

// Apply validates doc and imports each certificate in order. The returned
// error is set only when the document is invalid or ctx is cancelled; per
// certificate failures are in the outcomes.
func (r *Runner) Apply(ctx context.Context, doc *Document) ([]Outcome, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	out := make([]Outcome, 0, len(doc.Certs))
	for _, spec := range doc.Certs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		o := r.applyCert(ctx, spec)
		if o.OK() {
			r.Logger.Infof("imported %s (%s) into %d store(s)", spec.Cert, o.Thumbprint, len(o.Stores))
		} else {
			r.Logger.Warnf("import of %s finished with errors", spec.Cert)
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *Runner) applyCert(ctx context.Context, spec CertSpec) Outcome {
	o := Outcome{Cert: spec.Cert}
	fail := func(err error) Outcome {
		o.Err = err
		o.Error = describeError(err)
		return o
	}

	password, err := spec.Password.Resolve()
	if err != nil {
		return fail(err)
	}
	b, err := ReadBundle(spec.Cert, password)
	if err != nil {
		return fail(err)
	}
	o.Thumbprint = b.Thumbprint()
	if len(spec.Permissions) > 0 && !b.HasPrivateKey() {
		return fail(certerr.New(certerr.NoPrivateKey, "import certificate", spec.Cert,
			fmt.Errorf("permissions need a private key, %s files carry none", b.Type)))
	}

	for _, store := range spec.Stores {
		so := r.applyStore(ctx, b, spec, store)
		if so.Err != nil {
			so.Error = describeError(so.Err)
			r.Logger.Warnf("%s: %s\\%s: %v", spec.Cert, so.Location, so.Category, so.Err)
		}
		o.Stores = append(o.Stores, so)
	}
	return o
}

func (r *Runner) applyStore(ctx context.Context, b *Bundle, spec CertSpec, store StoreSpec) StoreOutcome {
	loc, cat, err := store.Parse()
	so := StoreOutcome{Location: loc, Category: cat, Err: err}
	if err != nil {
		return so
	}
	if so.Err = r.Installer.Install(ctx, b, loc, cat, spec.Exportable); so.Err != nil {
		return so
	}
	if spec.FriendlyName != "" {
		if _, so.Err = r.Locator.SetFriendlyName(ctx, loc, cat, b.Thumbprint(), spec.FriendlyName); so.Err != nil {
			return so
		}
	}
	if len(spec.Permissions) == 0 {
		return so
	}

	cert, err := r.Locator.FindExact(ctx, loc, cat, b.Thumbprint())
	if err != nil {
		so.Err = err
		return so
	}
	kf, err := r.Resolver.Resolve(ctx, cert)
	if err != nil {
		so.Err = err
		return so
	}
	so.KeyFile = kf.Path

	for _, p := range spec.Permissions {
		rule, err := p.Rule()
		if err != nil {
			so.Err = err
			return so
		}
		if r.Ensure {
			_, changed, err := r.Editor.EnsureRule(ctx, kf.Path, rule)
			if err != nil {
				so.Err = err
				return so
			}
			if !changed {
				continue
			}
		} else if _, err := r.Editor.AddEntry(ctx, kf.Path, rule); err != nil {
			so.Err = err
			return so
		}
		so.Granted = append(so.Granted, rule.String())
	}
	return so
}

func describeError(err error) string {
	if err == nil {
		return ""
	}
	if k := certerr.KindOf(err); k != certerr.Unknown {
		return err.Error()
	}
	return fmt.Sprintf("%s (%v)", FriendlyImportError(err), err)
}
