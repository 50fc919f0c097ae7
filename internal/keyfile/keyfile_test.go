package keyfile

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/keyprov"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/systemstore"
	"github.com/vocdoni/gofirma/certperms/internal/logger"
)

const container = "d2f0c3e1b7a94e35a1c0d5b6e8f70912_5a8b9c2d-1e3f-4a5b-8c7d-9e0f1a2b3c4d"

func writeKey(t *testing.T, dir, name string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("key material"), 0o600))
	return path
}

func certWithKey(id string) *systemstore.Certificate {
	return &systemstore.Certificate{
		Thumbprint:    "10DF834FC47DDFC4D069D2E4FE79E4BF1D6D4DAE",
		HasPrivateKey: true,
		Key:           keyprov.Key{Kind: keyprov.RSANextGen, ContainerID: id, Algorithm: "RSA"},
	}
}

func TestCandidates(t *testing.T) {
	env := Environment{
		AppData:     "/home/u/AppData/Roaming",
		ProgramData: "/ProgramData",
		WinDir:      "/Windows",
		UserSID:     "S-1-5-21-1-2-3-1001",
	}

	user := Candidates(env, DefaultTemplates())
	require.Len(t, user, 6)
	assert.Equal(t, filepath.FromSlash("/home/u/AppData/Roaming/Microsoft/Crypto/RSA/S-1-5-21-1-2-3-1001"), user[0])
	assert.Equal(t, filepath.FromSlash("/ProgramData/Microsoft/Crypto/RSA/MachineKeys"), user[3])

	env.Elevated = true
	admin := Candidates(env, DefaultTemplates())
	require.Len(t, admin, 15)
	assert.Equal(t, user, admin[:6])
	assert.Equal(t, filepath.FromSlash("/ProgramData/Microsoft/Crypto"), admin[13])
	assert.Equal(t, filepath.FromSlash("/Windows/ServiceProfiles"), admin[14])
}

func TestCandidatesDropsUnsetVariables(t *testing.T) {
	dirs := Candidates(Environment{ProgramData: "/ProgramData"}, DefaultTemplates())
	require.Len(t, dirs, 3)
	for _, d := range dirs {
		assert.True(t, strings.HasPrefix(d, filepath.FromSlash("/ProgramData")), d)
	}
}

func TestCandidatesDeduplicates(t *testing.T) {
	templates := []Template{
		{Path: "${PROGRAMDATA}/Keys"},
		{Path: "${PROGRAMDATA}/keys/"},
		{Path: "${PROGRAMDATA}/Other"},
	}
	dirs := Candidates(Environment{ProgramData: "/pd"}, templates)
	assert.Equal(t, []string{filepath.FromSlash("/pd/Keys"), filepath.FromSlash("/pd/Other")}, dirs)
}

func TestResolveFindsKeyFile(t *testing.T) {
	root := t.TempDir()
	machine := filepath.Join(root, "MachineKeys")
	path := writeKey(t, filepath.Join(machine, "nested"), strings.ToUpper(container))
	writeKey(t, machine, "unrelated_key")

	r := NewResolver(Config{Dirs: []string{filepath.Join(root, "missing"), machine}})
	loc, err := r.Resolve(context.Background(), certWithKey(container))
	require.NoError(t, err)
	assert.Equal(t, path, loc.Path)
	assert.Equal(t, keyprov.RSANextGen, loc.Kind)
	assert.Contains(t, strings.ToLower(filepath.Base(loc.Path)), container)
	assert.Empty(t, loc.Alternatives)
}

func TestResolveHonoursDirectoryOrder(t *testing.T) {
	root := t.TempDir()
	first := filepath.Join(root, "b-first")
	second := filepath.Join(root, "a-second")
	want := writeKey(t, first, container)
	writeKey(t, second, container)

	r := NewResolver(Config{Dirs: []string{first, second}})
	loc, err := r.ResolveContainer(context.Background(), container)
	require.NoError(t, err)
	assert.Equal(t, want, loc.Path)
}

func TestResolveErrors(t *testing.T) {
	r := NewResolver(Config{Dirs: []string{t.TempDir()}})
	ctx := context.Background()

	_, err := r.Resolve(ctx, &systemstore.Certificate{Thumbprint: "AB"})
	assert.True(t, errors.Is(err, certerr.ErrNoPrivateKey))
	_, ok := r.TryResolve(ctx, &systemstore.Certificate{Thumbprint: "AB"})
	assert.False(t, ok)

	unsupported := certWithKey("")
	unsupported.Key = keyprov.Key{Kind: keyprov.Unsupported, Algorithm: "DSA"}
	_, err = r.Resolve(ctx, unsupported)
	assert.True(t, errors.Is(err, certerr.ErrUnsupportedKeyType))

	_, err = r.Resolve(ctx, certWithKey(container))
	assert.True(t, errors.Is(err, certerr.ErrKeyFileNotFound))
	assert.Equal(t, "Key.FileNotFound", certerr.Tag(err))

	_, err = r.Resolve(ctx, nil)
	assert.True(t, errors.Is(err, certerr.ErrInvalidArgument))
}

func TestMatchPolicies(t *testing.T) {
	root := t.TempDir()
	user := filepath.Join(root, "user")
	machine := filepath.Join(root, "machine")
	a := writeKey(t, user, container+".old")
	b := writeKey(t, user, container)
	c := writeKey(t, machine, container)
	dirs := []string{user, machine}

	var buf bytes.Buffer
	first := NewResolver(Config{Dirs: dirs, Logger: logger.MockLogger(&buf)})
	loc, err := first.ResolveContainer(context.Background(), container)
	require.NoError(t, err)
	// lexical order within a directory, and the machine copy is never reached
	assert.Equal(t, b, loc.Path)
	assert.Equal(t, []string{a}, loc.Alternatives)
	assert.Contains(t, buf.String(), "matches 2 files")

	strict := NewResolver(Config{Dirs: dirs, Policy: StrictMatch})
	_, err = strict.ResolveContainer(context.Background(), container)
	assert.True(t, errors.Is(err, certerr.ErrAmbiguousMatch))

	strict.Dirs = []string{machine}
	loc, err = strict.ResolveContainer(context.Background(), container)
	require.NoError(t, err)
	assert.Equal(t, c, loc.Path)
}

func TestStrictMatchNestedCandidates(t *testing.T) {
	root := t.TempDir()
	env := Environment{
		ProgramData: filepath.Join(root, "ProgramData"),
		WinDir:      filepath.Join(root, "Windows"),
		Elevated:    true,
	}
	tests := []struct {
		name string
		dir  string
	}{
		{"network service", filepath.Join(env.WinDir, "ServiceProfiles", "NetworkService", "AppData", "Roaming", "Microsoft", "Crypto", "Keys")},
		{"machine keys", filepath.Join(env.ProgramData, "Microsoft", "Crypto", "RSA", "MachineKeys")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := strings.ReplaceAll(tt.name, " ", "") + "_" + container
			want := writeKey(t, tt.dir, id)

			r := NewResolver(Config{Environment: env, Policy: StrictMatch})
			loc, err := r.ResolveContainer(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, want, loc.Path)
			assert.Empty(t, loc.Alternatives)
		})
	}
}

func TestResolveCancelled(t *testing.T) {
	dir := t.TempDir()
	writeKey(t, dir, container)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResolver(Config{Dirs: []string{dir}}).ResolveContainer(ctx, container)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseMatchPolicy(t *testing.T) {
	for in, want := range map[string]MatchPolicy{"": FirstMatch, "First": FirstMatch, "strict": StrictMatch} {
		got, err := ParseMatchPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want.Name(), got.Name())
	}
	_, err := ParseMatchPolicy("newest")
	assert.True(t, errors.Is(err, certerr.ErrInvalidArgument))
}
