// Package summary walks the certificate stores and joins every certificate
// with its key file and the key file's access rules.
//
// A summary never fails as a whole. Whatever goes wrong for one store or one
// certificate is reported as a Diagnostic next to the other results.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/vocdoni/gofirma/certperms/internal/acl"
	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/certs"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/systemstore"
	"github.com/vocdoni/gofirma/certperms/internal/keyfile"
	"github.com/vocdoni/gofirma/certperms/internal/logger"
)

// Stages a diagnostic can come from.
const (
	StageOpenStore  = "open-store"
	StageEnumerate  = "enumerate"
	StageResolveKey = "resolve-key"
	StageReadACL    = "read-acl"
)

type Options struct {
	// Locations default to both store locations.
	Locations []systemstore.Location
	// Categories default to the personal store.
	Categories []systemstore.Category
	// PrivateKeyOnly leaves out certificates whose key file is not resolved.
	PrivateKeyOnly bool
	// Detailed searches every known category.
	Detailed bool
}

type Item struct {
	Location      systemstore.Location `json:"location"`
	Category      systemstore.Category `json:"store"`
	Thumbprint    string               `json:"thumbprint"`
	Subject       string               `json:"subject"`
	FriendlyName  string               `json:"friendlyName,omitempty"`
	DisplayName   string               `json:"displayName"`
	HasPrivateKey bool                 `json:"hasPrivateKey"`
	KeyKind       string               `json:"keyKind,omitempty"`
	KeyFile       string               `json:"keyFile,omitempty"`
	Permissions   acl.AccessRuleSet    `json:"permissions,omitempty"`
}

type Diagnostic struct {
	Location   systemstore.Location `json:"location"`
	Category   systemstore.Category `json:"store"`
	Thumbprint string               `json:"thumbprint,omitempty"`
	Stage      string               `json:"stage"`
	Kind       certerr.Kind         `json:"-"`
	Tag        string               `json:"tag"`
	Message    string               `json:"error"`
	Err        error                `json:"-"`
}

func newDiagnostic(loc systemstore.Location, cat systemstore.Category, thumbprint, stage string, err error) *Diagnostic {
	return &Diagnostic{
		Location:   loc,
		Category:   cat,
		Thumbprint: thumbprint,
		Stage:      stage,
		Kind:       certerr.KindOf(err),
		Tag:        certerr.Tag(err),
		Message:    err.Error(),
		Err:        err,
	}
}

func (d *Diagnostic) String() string {
	scope := fmt.Sprintf(`%s\%s`, d.Location, d.Category)
	if d.Thumbprint != "" {
		scope += `\` + d.Thumbprint
	}
	return fmt.Sprintf("%s: %s: %s", scope, d.Stage, d.Message)
}

// Result is the outcome for one certificate or one store. A certificate
// reported without its permissions carries both an Item and a Diagnostic.
type Result struct {
	Item       *Item       `json:"item,omitempty"`
	Diagnostic *Diagnostic `json:"diagnostic,omitempty"`
}

func (r Result) OK() bool { return r.Diagnostic == nil }

type Report struct {
	Results []Result `json:"results"`
}

// Items returns every reported certificate.
func (r Report) Items() []Item {
	items := []Item{}
	for _, res := range r.Results {
		if res.Item != nil {
			items = append(items, *res.Item)
		}
	}
	return items
}

func (r Report) Diagnostics() []Diagnostic {
	var out []Diagnostic
	for _, res := range r.Results {
		if res.Diagnostic != nil {
			out = append(out, *res.Diagnostic)
		}
	}
	return out
}

func (r Report) Succeeded() []Result {
	return r.filter(true)
}

func (r Report) Failed() []Result {
	return r.filter(false)
}

func (r Report) filter(ok bool) []Result {
	var out []Result
	for _, res := range r.Results {
		if res.OK() == ok {
			out = append(out, res)
		}
	}
	return out
}

// KeyResolver finds the key file of a certificate.
type KeyResolver interface {
	Resolve(ctx context.Context, cert *systemstore.Certificate) (keyfile.Location, error)
}

// RuleReader returns the access rules of a key file.
type RuleReader interface {
	Normalize(ctx context.Context, path string) (acl.AccessRuleSet, error)
}

type Aggregator struct {
	Opener     systemstore.Opener
	Resolver   KeyResolver
	Normalizer RuleReader
	Logger     *logger.Logger
}

func NewAggregator(opener systemstore.Opener, resolver KeyResolver, normalizer RuleReader, log *logger.Logger) *Aggregator {
	return &Aggregator{
		Opener:     opener,
		Resolver:   resolver,
		Normalizer: normalizer,
		Logger:     log.With("summary"),
	}
}

// Summarize walks locations then categories. It always returns a report.
func (a *Aggregator) Summarize(ctx context.Context, opts Options) Report {
	locations := opts.Locations
	if len(locations) == 0 {
		locations = systemstore.AllLocations()
	}
	categories := opts.Categories
	switch {
	case opts.Detailed:
		categories = systemstore.AllCategories()
	case len(categories) == 0:
		categories = []systemstore.Category{systemstore.My}
	}

	report := Report{Results: []Result{}}
	for _, loc := range locations {
		for _, cat := range categories {
			if err := ctx.Err(); err != nil {
				report.add(a.diagnose(Result{Diagnostic: newDiagnostic(loc, cat, "", StageEnumerate, err)}))
				return report
			}
			a.summarizeStore(ctx, loc, cat, opts, &report)
		}
	}
	return report
}

func (a *Aggregator) summarizeStore(ctx context.Context, loc systemstore.Location, cat systemstore.Category, opts Options, report *Report) {
	st, err := a.Opener.Open(ctx, loc, cat, systemstore.ReadOnly)
	if err != nil {
		report.add(a.diagnose(Result{Diagnostic: newDiagnostic(loc, cat, "", StageOpenStore, err)}))
		return
	}
	defer st.Close()

	all, err := st.Certificates(ctx)
	if err != nil {
		report.add(a.diagnose(Result{Diagnostic: newDiagnostic(loc, cat, "", StageEnumerate, err)}))
		return
	}
	for i := range all {
		if res, keep := a.summarizeCertificate(ctx, &all[i], opts); keep {
			report.add(a.diagnose(res))
		}
	}
}

func (a *Aggregator) summarizeCertificate(ctx context.Context, c *systemstore.Certificate, opts Options) (Result, bool) {
	item := &Item{
		Location:      c.Location,
		Category:      c.Category,
		Thumbprint:    c.Thumbprint,
		Subject:       c.Subject,
		FriendlyName:  c.FriendlyName,
		DisplayName:   displayName(c),
		HasPrivateKey: c.HasPrivateKey,
	}
	if !c.HasPrivateKey {
		return Result{Item: item}, !opts.PrivateKeyOnly
	}
	item.KeyKind = c.Key.Kind.String()

	loc, err := a.Resolver.Resolve(ctx, c)
	if err != nil {
		diag := newDiagnostic(c.Location, c.Category, c.Thumbprint, StageResolveKey, err)
		if opts.PrivateKeyOnly {
			return Result{Diagnostic: diag}, true
		}
		return Result{Item: item, Diagnostic: diag}, true
	}
	item.KeyFile = loc.Path

	perms, err := a.Normalizer.Normalize(ctx, loc.Path)
	if err != nil {
		return Result{Item: item, Diagnostic: newDiagnostic(c.Location, c.Category, c.Thumbprint, StageReadACL, err)}, true
	}
	item.Permissions = perms
	return Result{Item: item}, true
}

func (a *Aggregator) diagnose(res Result) Result {
	if res.Diagnostic != nil {
		a.Logger.Warn(res.Diagnostic.String())
	}
	return res
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
}

// displayName is the friendly name, else the subject.
func displayName(c *systemstore.Certificate) string {
	if n := strings.TrimSpace(c.FriendlyName); n != "" {
		return n
	}
	if c.Subject == "" && c.Cert != nil {
		return certs.Describe(c.Cert).Subject
	}
	return c.Subject
}
