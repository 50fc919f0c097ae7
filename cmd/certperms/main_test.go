package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocdoni/gofirma/certperms/internal/acl"
	"github.com/vocdoni/gofirma/certperms/internal/app"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/keyprov"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/systemstore"
	"github.com/vocdoni/gofirma/certperms/internal/identity"
	"github.com/vocdoni/gofirma/certperms/internal/keyfile"
)

const tpWeb = "10DF834FC47DDFC4D069D2E4FE79E4BF1D6D4DAE"

func testOptions(t *testing.T) ([]app.Option, *acl.MemorySecurity) {
	t.Helper()
	t.Setenv("CERTPERMS_ACL_LOCKDIR", filepath.Join(t.TempDir(), "locks"))
	t.Setenv("CERTPERMS_AUDIT_DIR", t.TempDir())
	t.Setenv("CERTPERMS_LOGGING_LEVEL", "error")

	data := t.TempDir()
	keyPath := filepath.Join(data, "Microsoft", "Crypto", "Keys", "c0ffee1234_5a8b")
	require.NoError(t, os.MkdirAll(filepath.Dir(keyPath), 0o700))
	require.NoError(t, os.WriteFile(keyPath, nil, 0o600))

	opener := systemstore.NewMemoryOpener()
	opener.Add(systemstore.LocalMachine, systemstore.My, systemstore.Certificate{
		Thumbprint:    tpWeb,
		Subject:       "CN=web.example",
		HasPrivateKey: true,
		Key:           keyprov.Key{Kind: keyprov.ECDSANextGen, ContainerID: "c0ffee1234"},
	})
	sec := acl.NewMemorySecurity()
	sec.Set(keyPath, "O:BAG:SYD:(A;;FA;;;SY)")

	return []app.Option{
		app.WithOpener(opener),
		app.WithFileSecurity(sec),
		app.WithIdentities(identity.WellKnown{}),
		app.WithEnvironment(keyfile.Environment{ProgramData: data, Elevated: true}),
	}, sec
}

func runCommand(t *testing.T, opts []app.Option, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr, opts)
	return code, stdout.String(), stderr.String()
}

func TestUsage(t *testing.T) {
	code, _, stderr := runCommand(t, nil)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "usage: certperms")

	opts, _ := testOptions(t)
	code, _, stderr = runCommand(t, opts, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, `unknown command "frobnicate"`)

	code, _, _ = runCommand(t, opts, "key")
	assert.Equal(t, 2, code)
}

func TestKeyAndGrant(t *testing.T) {
	opts, _ := testOptions(t)

	code, out, stderr := runCommand(t, opts, "key", tpWeb)
	require.Equal(t, 0, code, stderr)
	var kf map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &kf))
	assert.Equal(t, "ECDSA-CNG", kf["provider"])
	assert.Equal(t, `LocalMachine\My`, kf["store"])

	code, out, stderr = runCommand(t, opts, "grant", "-identity", "NETWORK SERVICE", "-rights", "Read", "-ensure", tpWeb)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"changed": true`)

	code, out, stderr = runCommand(t, opts, "perms", "-explicit", tpWeb)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `NT AUTHORITY\\NETWORK SERVICE`)

	code, out, _ = runCommand(t, opts, "audit")
	require.Equal(t, 0, code)
	var entries []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	assert.Len(t, entries, 1)
}

func TestScopedGrant(t *testing.T) {
	opts, sec := testOptions(t)

	code, _, stderr := runCommand(t, opts, "grant", "-identity", "Everyone", "-location", "CurrentUser", tpWeb)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Cert.NotFound: ")
	assert.Equal(t, 0, sec.Writes())

	code, _, stderr = runCommand(t, opts, "grant", "-identity", "Everyone", "-store", "My", tpWeb)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Argument.Invalid: ")

	code, out, stderr := runCommand(t, opts, "grant", "-identity", "Everyone", "-location", "LocalMachine", "-store", "Personal", tpWeb)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, out, `"changed": true`)
	assert.Equal(t, 1, sec.Writes())

	// a second identical rule is kept, -unique folds it away
	code, _, stderr = runCommand(t, opts, "grant", "-identity", "Everyone", "-location", "LocalMachine", tpWeb)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, 2, sec.Writes())

	code, out, stderr = runCommand(t, opts, "perms", "-location", "LocalMachine", "-explicit", "-unique", "-text", tpWeb)
	require.Equal(t, 0, code, stderr)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "  + FullControl NT AUTHORITY\\SYSTEM", lines[1])
	assert.Equal(t, "  + Read, Synchronize Everyone", lines[2])
}

func TestErrorsCarryTag(t *testing.T) {
	opts, _ := testOptions(t)

	code, _, stderr := runCommand(t, opts, "locate", "FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFF")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Cert.NotFound: ")

	code, _, stderr = runCommand(t, opts, "grant", "-identity", "Everyone", "-rights", "Sometimes", tpWeb)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Argument.Invalid: ")
}

func TestSummary(t *testing.T) {
	opts, _ := testOptions(t)
	code, out, stderr := runCommand(t, opts, "summary", "-location", "LocalMachine", "-private-key-only")
	require.Equal(t, 0, code, stderr)

	var report struct {
		Results []struct {
			Item struct {
				Thumbprint string `json:"thumbprint"`
				KeyFile    string `json:"keyFile"`
			} `json:"item"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Results, 1)
	assert.Equal(t, tpWeb, report.Results[0].Item.Thumbprint)
	assert.NotEmpty(t, report.Results[0].Item.KeyFile)
}

func TestVersion(t *testing.T) {
	code, out, _ := runCommand(t, nil, "version")
	assert.Equal(t, 0, code)
	assert.NotEmpty(t, out)
}
