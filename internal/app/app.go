// Package app builds the certperms services from configuration and exposes
// the operations the command line runs.
package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/vocdoni/gofirma/certperms/internal/acl"
	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/config"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/systemstore"
	"github.com/vocdoni/gofirma/certperms/internal/identity"
	"github.com/vocdoni/gofirma/certperms/internal/importspec"
	"github.com/vocdoni/gofirma/certperms/internal/keyfile"
	"github.com/vocdoni/gofirma/certperms/internal/logger"
	"github.com/vocdoni/gofirma/certperms/internal/storage"
	"github.com/vocdoni/gofirma/certperms/internal/summary"
)

type App struct {
	Config *config.Config
	Logger *logger.Logger

	Identities identity.Resolver
	Opener     systemstore.Opener
	Locator    *systemstore.Locator
	Keys       *keyfile.Resolver
	Security   acl.FileSecurity
	Normalizer *acl.Normalizer
	Editor     *acl.Editor
	Summary    *summary.Aggregator
	Importer   *importspec.Runner
	// Audit is nil when auditing is disabled.
	Audit *storage.AuditLogger

	environment keyfile.Environment
	installer   importspec.Installer
}

// Option replaces a host service, mostly for tests.
type Option func(*App)

func WithOpener(o systemstore.Opener) Option {
	return func(a *App) { a.Opener = o }
}

func WithFileSecurity(fs acl.FileSecurity) Option {
	return func(a *App) { a.Security = fs }
}

func WithIdentities(r identity.Resolver) Option {
	return func(a *App) { a.Identities = r }
}

func WithEnvironment(env keyfile.Environment) Option {
	return func(a *App) { a.environment = env }
}

func WithInstaller(i importspec.Installer) Option {
	return func(a *App) { a.installer = i }
}

// NewLogger builds the process logger described by cfg.
func NewLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		ConsoleWriters: []io.Writer{os.Stderr},
		FilePath:       cfg.Logging.File,
		LogLevel:       logger.ToLogLevel(cfg.Logging.Level),
	})
}

func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*App, error) {
	a := &App{Config: cfg, Logger: log}
	for _, opt := range opts {
		opt(a)
	}
	if a.Identities == nil {
		a.Identities = identity.NewResolver()
	}
	if a.Opener == nil {
		a.Opener = systemstore.NewOSOpener()
	}
	if a.Security == nil {
		a.Security = acl.NewFileSecurity()
	}
	if a.environment == (keyfile.Environment{}) {
		a.environment = keyfile.CurrentEnvironment()
	}

	locations, err := cfg.Store.ParseLocations()
	if err != nil {
		return nil, err
	}
	categories, err := cfg.Store.ParseCategories()
	if err != nil {
		return nil, err
	}
	policy, err := keyfile.ParseMatchPolicy(cfg.Keys.Match)
	if err != nil {
		return nil, err
	}

	a.Locator = systemstore.NewLocator(a.Opener, locations, categories, log)
	a.Keys = keyfile.NewResolver(keyfile.Config{
		Environment: a.environment,
		Templates:   cfg.Keys.Directories,
		Policy:      policy,
		Logger:      log,
	})
	log.Debugf("key directories: %v", a.Keys.Dirs)

	locks, err := acl.NewLocker(cfg.ACL.LockDir)
	if err != nil {
		return nil, err
	}
	var audit acl.Auditor
	if cfg.Audit.Enabled {
		if a.Audit, err = storage.NewAuditLogger(cfg.Audit.Dir, log); err != nil {
			return nil, err
		}
		audit = a.Audit
	}

	a.Normalizer = acl.NewNormalizer(a.Security, a.Identities, log)
	a.Editor = acl.NewEditor(a.Security, a.Identities, locks, audit, log)
	a.Summary = summary.NewAggregator(a.Opener, a.Keys, a.Normalizer, log)

	if a.installer == nil {
		a.installer = importspec.NewStoreInstaller(a.Opener, log)
	}
	a.Importer = importspec.NewRunner(a.installer, a.Locator, a.Keys, a.Editor, log)
	return a, nil
}

func (a *App) Close() error {
	return a.Logger.Close()
}

// Locate finds a certificate by thumbprint in the configured stores.
func (a *App) Locate(ctx context.Context, thumbprint string) (*systemstore.Certificate, error) {
	return a.Locator.Find(ctx, systemstore.ByThumbprint(thumbprint))
}

// Scope pins a certificate lookup to one store. The zero Scope searches the
// configured stores.
type Scope struct {
	Location systemstore.Location
	// Category defaults to My when only the location is set.
	Category systemstore.Category
}

func (s Scope) IsZero() bool {
	return s.Location == 0 && s.Category == ""
}

// Find locates thumbprint within scope. A scoped lookup does not pick among
// duplicates: it fails with AmbiguousMatch instead.
func (a *App) Find(ctx context.Context, scope Scope, thumbprint string) (*systemstore.Certificate, error) {
	if scope.IsZero() {
		return a.Locate(ctx, thumbprint)
	}
	if scope.Location == 0 {
		return nil, certerr.New(certerr.InvalidArgument, "locate certificate", thumbprint,
			fmt.Errorf("store %s given without a location", scope.Category))
	}
	cat := scope.Category
	if cat == "" {
		cat = systemstore.My
	}
	return a.Locator.FindExact(ctx, scope.Location, cat, thumbprint)
}

// KeyFile is a certificate together with its private key file.
type KeyFile struct {
	Certificate *systemstore.Certificate `json:"-"`
	Thumbprint  string                   `json:"thumbprint"`
	Store       string                   `json:"store"`
	Provider    string                   `json:"provider"`
	keyfile.Location
}

func (a *App) KeyFile(ctx context.Context, scope Scope, thumbprint string) (*KeyFile, error) {
	c, err := a.Find(ctx, scope, thumbprint)
	if err != nil {
		return nil, err
	}
	loc, err := a.Keys.Resolve(ctx, c)
	if err != nil {
		return nil, err
	}
	return &KeyFile{
		Certificate: c,
		Thumbprint:  c.Thumbprint,
		Store:       fmt.Sprintf(`%s\%s`, c.Location, c.Category),
		Provider:    loc.Kind.String(),
		Location:    loc,
	}, nil
}

// Permissions is the access rule set of a certificate's key file.
type Permissions struct {
	KeyFile
	Entries acl.AccessRuleSet `json:"entries"`
	// Changed is set by Grant when the key file was written.
	Changed *bool `json:"changed,omitempty"`
}

func (a *App) Permissions(ctx context.Context, scope Scope, thumbprint string) (*Permissions, error) {
	kf, err := a.KeyFile(ctx, scope, thumbprint)
	if err != nil {
		return nil, err
	}
	entries, err := a.Normalizer.Normalize(ctx, kf.Path)
	if err != nil {
		return nil, err
	}
	return &Permissions{KeyFile: *kf, Entries: entries}, nil
}

// Grant adds rule to the key file of the certificate. With ensure, an
// identical explicit entry makes it a no-op.
func (a *App) Grant(ctx context.Context, scope Scope, thumbprint string, rule acl.Rule, ensure bool) (*Permissions, error) {
	kf, err := a.KeyFile(ctx, scope, thumbprint)
	if err != nil {
		return nil, err
	}
	var entries acl.AccessRuleSet
	changed := true
	if ensure {
		entries, changed, err = a.Editor.EnsureRule(ctx, kf.Path, rule)
	} else {
		entries, err = a.Editor.AddEntry(ctx, kf.Path, rule)
	}
	if err != nil {
		return nil, err
	}
	return &Permissions{KeyFile: *kf, Entries: entries, Changed: &changed}, nil
}

// Summarize reports every certificate of the configured stores unless opts
// names its own.
func (a *App) Summarize(ctx context.Context, opts summary.Options) summary.Report {
	if len(opts.Locations) == 0 {
		opts.Locations = a.Locator.Locations
	}
	if len(opts.Categories) == 0 {
		opts.Categories = a.Locator.Categories
	}
	return a.Summary.Summarize(ctx, opts)
}

// Import applies the import document at path.
func (a *App) Import(ctx context.Context, path string, ensure bool) ([]importspec.Outcome, error) {
	doc, err := importspec.Load(path)
	if err != nil {
		return nil, err
	}
	a.Importer.Ensure = ensure
	return a.Importer.Apply(ctx, doc)
}

func (a *App) SetFriendlyName(ctx context.Context, loc systemstore.Location, cat systemstore.Category, thumbprint, name string) (*systemstore.Certificate, error) {
	return a.Locator.SetFriendlyName(ctx, loc, cat, thumbprint, name)
}

func (a *App) AuditEntries() ([]storage.AuditEntry, error) {
	if a.Audit == nil {
		return nil, certerr.New(certerr.InvalidArgument, "read audit log", "", fmt.Errorf("auditing is disabled"))
	}
	return a.Audit.ReadAll()
}
