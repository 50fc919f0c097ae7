package summary

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vocdoni/gofirma/certperms/internal/acl"
	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/keyprov"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/systemstore"
	"github.com/vocdoni/gofirma/certperms/internal/identity"
	"github.com/vocdoni/gofirma/certperms/internal/keyfile"
	"github.com/vocdoni/gofirma/certperms/internal/logger"
)

const (
	tpGood     = "1111111111111111111111111111111111111111"
	tpNoKey    = "2222222222222222222222222222222222222222"
	tpLostKey  = "3333333333333333333333333333333333333333"
	tpBadACL   = "4444444444444444444444444444444444444444"
	tpMachine  = "5555555555555555555555555555555555555555"
	goodID     = "aaaa1111_machineguid"
	badACLID   = "bbbb2222_machineguid"
	machineID  = "cccc3333_machineguid"
	keyFileSDL = "O:BAG:SYD:AI(A;;FA;;;SY)(A;ID;FA;;;BA)"
)

type fixture struct {
	opener *systemstore.MemoryOpener
	agg    *Aggregator
	logs   *bytes.Buffer
}

func withKey(tp, subject, id string) systemstore.Certificate {
	return systemstore.Certificate{
		Thumbprint:    tp,
		Subject:       subject,
		HasPrivateKey: true,
		Key:           keyprov.Key{Kind: keyprov.RSALegacy, ContainerID: id},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	sec := acl.NewMemorySecurity()
	for _, id := range []string{goodID, badACLID, machineID} {
		path := filepath.Join(dir, id)
		require.NoError(t, os.WriteFile(path, []byte("key"), 0o600))
		if id != badACLID {
			sec.Set(path, keyFileSDL)
		}
	}

	m := systemstore.NewMemoryOpener()
	m.Add(systemstore.CurrentUser, systemstore.My, withKey(tpGood, "CN=good", goodID))
	m.Add(systemstore.CurrentUser, systemstore.My, systemstore.Certificate{Thumbprint: tpNoKey, Subject: "CN=public", FriendlyName: "Public only"})
	m.Add(systemstore.CurrentUser, systemstore.My, withKey(tpLostKey, "CN=lost", "dddd4444_gone"))
	m.Add(systemstore.CurrentUser, systemstore.My, withKey(tpBadACL, "CN=acl", badACLID))
	m.Add(systemstore.LocalMachine, systemstore.Root, withKey(tpMachine, "CN=root", machineID))

	var logs bytes.Buffer
	log := logger.MockLogger(&logs)
	resolver := keyfile.NewResolver(keyfile.Config{Dirs: []string{dir}, Logger: log})
	normalizer := acl.NewNormalizer(sec, identity.WellKnown{}, log)
	return &fixture{
		opener: m,
		agg:    NewAggregator(m, resolver, normalizer, log),
		logs:   &logs,
	}
}

func TestSummarizeIsolatesFailures(t *testing.T) {
	f := newFixture(t)
	report := f.agg.Summarize(context.Background(), Options{})

	items := report.Items()
	require.Len(t, items, 4)
	byTP := make(map[string]Item)
	for _, it := range items {
		byTP[it.Thumbprint] = it
	}

	good := byTP[tpGood]
	assert.Equal(t, goodID, filepath.Base(good.KeyFile))
	assert.Equal(t, "RSA-CSP", good.KeyKind)
	require.Len(t, good.Permissions, 2)
	assert.Equal(t, `NT AUTHORITY\SYSTEM`, good.Permissions[0].Principal)
	assert.True(t, good.Permissions[1].Inherited)

	public := byTP[tpNoKey]
	assert.Equal(t, "Public only", public.DisplayName)
	assert.Empty(t, public.KeyFile)

	lost := byTP[tpLostKey]
	assert.Equal(t, "CN=lost", lost.DisplayName)
	assert.Nil(t, lost.Permissions)

	assert.NotEmpty(t, byTP[tpBadACL].KeyFile)
	assert.Nil(t, byTP[tpBadACL].Permissions)

	diags := report.Diagnostics()
	require.Len(t, diags, 2)
	assert.Equal(t, StageResolveKey, diags[0].Stage)
	assert.Equal(t, certerr.KeyFileNotFound, diags[0].Kind)
	assert.Equal(t, "Key.FileNotFound", diags[0].Tag)
	assert.Equal(t, StageReadACL, diags[1].Stage)
	assert.Equal(t, tpBadACL, diags[1].Thumbprint)

	assert.Len(t, report.Succeeded(), 2)
	assert.Len(t, report.Failed(), 2)
	assert.Contains(t, f.logs.String(), StageResolveKey)
	assert.True(t, f.opener.Balanced())
}

func TestSummarizePrivateKeyOnly(t *testing.T) {
	f := newFixture(t)
	report := f.agg.Summarize(context.Background(), Options{PrivateKeyOnly: true})

	var tps []string
	for _, it := range report.Items() {
		tps = append(tps, it.Thumbprint)
	}
	assert.Equal(t, []string{tpGood, tpBadACL}, tps)
	// the certificate whose key is gone is reported only as a diagnostic
	assert.Len(t, report.Diagnostics(), 2)
}

func TestSummarizeScopes(t *testing.T) {
	f := newFixture(t)

	report := f.agg.Summarize(context.Background(), Options{
		Locations:  []systemstore.Location{systemstore.LocalMachine},
		Categories: []systemstore.Category{systemstore.Root},
	})
	require.Len(t, report.Items(), 1)
	assert.Equal(t, tpMachine, report.Items()[0].Thumbprint)

	detailed := f.agg.Summarize(context.Background(), Options{Detailed: true})
	assert.Len(t, detailed.Items(), 5)
	assert.True(t, f.opener.Balanced())
}

func TestSummarizeStoreFailures(t *testing.T) {
	f := newFixture(t)
	f.opener.Fail(systemstore.LocalMachine, systemstore.My, certerr.New(certerr.PermissionDenied, "open store", `LocalMachine\My`, nil))

	report := f.agg.Summarize(context.Background(), Options{})
	assert.Len(t, report.Items(), 4)

	var open *Diagnostic
	for _, d := range report.Diagnostics() {
		if d.Stage == StageOpenStore {
			d := d
			open = &d
		}
	}
	require.NotNil(t, open)
	assert.Equal(t, "Security.Permissions", open.Tag)
	assert.Equal(t, systemstore.LocalMachine, open.Location)
}

func TestSummarizeCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := f.agg.Summarize(ctx, Options{})
	require.Len(t, report.Results, 1)
	assert.True(t, errors.Is(report.Results[0].Diagnostic.Err, context.Canceled))
	assert.Empty(t, report.Items())
}
