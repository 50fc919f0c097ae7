//go:build windows

package importspec

import (
	"fmt"

	"github.com/github/smimesign/certstore"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/certs"
)

// personalImport imports into CurrentUser\My and checks that the identity
// is visible afterwards.
func personalImport(pfx []byte, password, thumbprint string) error {
	store, err := certstore.Open()
	if err != nil {
		return certerr.New(certerr.KindOf(err), "open user identity store", "", err)
	}
	defer store.Close()

	if err := store.Import(pfx, password); err != nil {
		return certerr.New(certerr.KindOf(err), "import certificate", thumbprint, err)
	}

	idents, err := store.Identities()
	if err != nil {
		return certerr.New(certerr.KindOf(err), "list identities", "", err)
	}
	found := false
	for _, id := range idents {
		if cert, err := id.Certificate(); err == nil && certs.SameThumbprint(certs.Thumbprint(cert), thumbprint) {
			found = true
		}
		id.Close()
	}
	if !found {
		return certerr.New(certerr.NotFound, "import certificate", thumbprint, fmt.Errorf("identity missing after import"))
	}
	return nil
}
