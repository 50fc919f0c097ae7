package systemstore

import (
	"context"
	"fmt"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/certs"
	"github.com/vocdoni/gofirma/certperms/internal/logger"
)

// Reference names a certificate either by thumbprint or by an already
// resolved record.
type Reference struct {
	Thumbprint  string
	Certificate *Certificate
}

func ByThumbprint(tp string) Reference {
	return Reference{Thumbprint: tp}
}

func ByCertificate(c *Certificate) Reference {
	return Reference{Certificate: c}
}

type Locator struct {
	Opener     Opener
	Locations  []Location
	Categories []Category
	Logger     *logger.Logger
}

// NewLocator searches both locations and the personal store unless told otherwise.
func NewLocator(opener Opener, locations []Location, categories []Category, log *logger.Logger) *Locator {
	if len(locations) == 0 {
		locations = AllLocations()
	}
	if len(categories) == 0 {
		categories = []Category{My}
	}
	return &Locator{
		Opener:     opener,
		Locations:  locations,
		Categories: categories,
		Logger:     log.With("locator"),
	}
}

// Find returns the certificate a reference points to. Thumbprint searches walk
// locations in the outer loop and categories in the inner loop; the first
// match holding a private key wins, else the first match.
func (l *Locator) Find(ctx context.Context, ref Reference) (*Certificate, error) {
	if ref.Certificate != nil {
		return ref.Certificate, nil
	}
	tp, err := certs.ParseThumbprint(ref.Thumbprint)
	if err != nil {
		return nil, err
	}

	var first *Certificate
	var opened int
	var lastErr error
	for _, loc := range l.Locations {
		for _, cat := range l.Categories {
			matches, err := l.search(ctx, loc, cat, tp)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				l.Logger.Debugf("skipping %s\\%s: %v", loc, cat, err)
				lastErr = err
				continue
			}
			opened++
			for i := range matches {
				m := &matches[i]
				if m.HasPrivateKey {
					return m, nil
				}
				if first == nil {
					first = m
				}
			}
		}
	}

	if first != nil {
		return first, nil
	}
	if opened == 0 && lastErr != nil {
		return nil, lastErr
	}
	return nil, certerr.New(certerr.NotFound, "locate", tp, nil)
}

// TryFind is Find without the error.
func (l *Locator) TryFind(ctx context.Context, ref Reference) (*Certificate, bool) {
	c, err := l.Find(ctx, ref)
	if err != nil {
		return nil, false
	}
	return c, true
}

// FindExact looks in a single store, where a thumbprint is expected to be
// unique. More than one match is reported, not resolved.
func (l *Locator) FindExact(ctx context.Context, loc Location, cat Category, thumbprint string) (*Certificate, error) {
	tp, err := certs.ParseThumbprint(thumbprint)
	if err != nil {
		return nil, err
	}
	matches, err := l.search(ctx, loc, cat, tp)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, certerr.New(certerr.NotFound, "locate", tp, fmt.Errorf("not in %s\\%s", loc, cat))
	case 1:
		return &matches[0], nil
	}
	return nil, certerr.New(certerr.AmbiguousMatch, "locate", tp,
		fmt.Errorf("%d certificates in %s\\%s", len(matches), loc, cat))
}

// SetFriendlyName updates the friendly name of a certificate in one store.
func (l *Locator) SetFriendlyName(ctx context.Context, loc Location, cat Category, thumbprint, name string) (*Certificate, error) {
	c, err := l.FindExact(ctx, loc, cat, thumbprint)
	if err != nil {
		return nil, err
	}

	st, err := l.Opener.Open(ctx, loc, cat, ReadWrite)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	if err := st.SetFriendlyName(c.Thumbprint, name); err != nil {
		return nil, err
	}
	c.FriendlyName = name
	return c, nil
}

func (l *Locator) search(ctx context.Context, loc Location, cat Category, tp string) ([]Certificate, error) {
	st, err := l.Opener.Open(ctx, loc, cat, ReadOnly)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	all, err := st.Certificates(ctx)
	if err != nil {
		return nil, err
	}
	var matches []Certificate
	for _, c := range all {
		if c.Thumbprint == tp {
			matches = append(matches, c)
		}
	}
	return matches, nil
}
