// Package keyfile finds the file a certificate's private key is persisted in.
//
// The key providers name each key file after the key's unique container
// name, and keep the files in a handful of per-user, per-machine and
// per-service directories. The resolver searches an ordered list of those
// directories for a file whose name contains the container name.
package keyfile

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/keyprov"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/systemstore"
	"github.com/vocdoni/gofirma/certperms/internal/logger"
)

// Location is a resolved key file.
type Location struct {
	Path        string       `json:"path"`
	ContainerID string       `json:"containerId"`
	Kind        keyprov.Kind `json:"-"`
	// Alternatives are other files that matched the container id.
	Alternatives []string `json:"alternatives,omitempty"`
}

type Config struct {
	Environment Environment
	// Templates default to DefaultTemplates.
	Templates []Template
	// Dirs, when set, replaces the expanded templates.
	Dirs   []string
	Policy MatchPolicy
	Logger *logger.Logger
}

type Resolver struct {
	Dirs   []string
	Policy MatchPolicy
	Logger *logger.Logger
}

func NewResolver(cfg Config) *Resolver {
	dirs := cfg.Dirs
	if len(dirs) == 0 {
		templates := cfg.Templates
		if len(templates) == 0 {
			templates = DefaultTemplates()
		}
		dirs = Candidates(cfg.Environment, templates)
	}
	policy := cfg.Policy
	if policy == nil {
		policy = FirstMatch
	}
	return &Resolver{
		Dirs:   dirs,
		Policy: policy,
		Logger: cfg.Logger.With("keyfile"),
	}
}

// Resolve returns the key file of cert. It fails with NoPrivateKey when the
// certificate has no key, UnsupportedKeyType when the key's container name
// could not be read, and KeyFileNotFound when no candidate directory holds it.
func (r *Resolver) Resolve(ctx context.Context, cert *systemstore.Certificate) (Location, error) {
	if cert == nil {
		return Location{}, certerr.New(certerr.InvalidArgument, "resolve key file", "", fmt.Errorf("no certificate"))
	}
	key, err := cert.PrivateKey()
	if err != nil {
		return Location{}, err
	}
	loc, err := r.ResolveContainer(ctx, key.ContainerID)
	if err != nil {
		if certerr.KindOf(err) == certerr.KeyFileNotFound {
			return Location{}, certerr.New(certerr.KeyFileNotFound, "resolve key file", cert.Thumbprint, err)
		}
		return Location{}, err
	}
	loc.Kind = key.Kind
	return loc, nil
}

// TryResolve is Resolve for callers that tolerate failure.
func (r *Resolver) TryResolve(ctx context.Context, cert *systemstore.Certificate) (Location, bool) {
	loc, err := r.Resolve(ctx, cert)
	if err != nil {
		r.Logger.Debugf("no key file for %v: %v", thumbprintOf(cert), err)
		return Location{}, false
	}
	return loc, true
}

// ResolveContainer searches the candidate directories for containerID.
func (r *Resolver) ResolveContainer(ctx context.Context, containerID string) (Location, error) {
	if containerID == "" {
		return Location{}, certerr.New(certerr.InvalidArgument, "resolve key file", "", fmt.Errorf("empty container id"))
	}

	// Candidate roots may nest (ServiceProfiles holds the service account
	// directories), so the same file can be found twice.
	var matches []string
	seen := make(map[string]struct{})
	for _, dir := range r.Dirs {
		found, err := scanDir(ctx, dir, containerID)
		if err != nil {
			return Location{}, err
		}
		for _, path := range found {
			key := strings.ToLower(filepath.Clean(path))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			matches = append(matches, path)
		}
		if len(matches) > 0 && !r.Policy.Exhaustive() {
			break
		}
	}
	if len(matches) == 0 {
		return Location{}, certerr.New(certerr.KeyFileNotFound, "resolve key file", containerID,
			fmt.Errorf("searched %d directories", len(r.Dirs)))
	}

	path, alternatives, err := r.Policy.Choose(containerID, matches)
	if err != nil {
		return Location{}, err
	}
	if len(alternatives) > 0 {
		r.Logger.Warnf("container %s matches %d files, using %s", containerID, len(matches), path)
	}
	return Location{Path: path, ContainerID: containerID, Alternatives: alternatives}, nil
}

func thumbprintOf(cert *systemstore.Certificate) string {
	if cert == nil {
		return "<nil>"
	}
	return cert.Thumbprint
}
