package importspec

import (
	"context"
	"fmt"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/systemstore"
	"github.com/vocdoni/gofirma/certperms/internal/logger"
)

// Installer adds a decoded bundle to a system store.
type Installer interface {
	Install(ctx context.Context, b *Bundle, loc systemstore.Location, cat systemstore.Category, exportable bool) error
}

// StoreInstaller installs through a systemstore.Opener. Non-exportable keys
// bound for the current user's personal store go through Personal when it is
// set, the same path user-driven imports take.
type StoreInstaller struct {
	Opener   systemstore.Opener
	Personal func(pfx []byte, password, thumbprint string) error
	Logger   *logger.Logger
}

func NewStoreInstaller(opener systemstore.Opener, log *logger.Logger) *StoreInstaller {
	return &StoreInstaller{
		Opener:   opener,
		Personal: personalImport,
		Logger:   log.With("installer"),
	}
}

func (i *StoreInstaller) Install(ctx context.Context, b *Bundle, loc systemstore.Location, cat systemstore.Category, exportable bool) error {
	where := fmt.Sprintf(`%s\%s`, loc, cat)
	var pfx []byte
	if b.HasPrivateKey() {
		var err error
		if pfx, err = b.PFX(); err != nil {
			return err
		}
	}

	if len(pfx) > 0 && !exportable && loc == systemstore.CurrentUser && cat == systemstore.My && i.Personal != nil {
		i.Logger.Debugf("importing %s into %s through the user identity store", b.Thumbprint(), where)
		return i.Personal(pfx, b.Password, b.Thumbprint())
	}

	st, err := i.Opener.Open(ctx, loc, cat, systemstore.ReadWrite)
	if err != nil {
		return err
	}
	defer st.Close()

	imp, ok := st.(systemstore.Importer)
	if !ok {
		return certerr.New(certerr.InvalidArgument, "import certificate", where, fmt.Errorf("store does not accept imports"))
	}
	if err := imp.Import(b.Certificate, pfx, b.Password, systemstore.ImportOptions{Exportable: exportable}); err != nil {
		return err
	}
	i.Logger.Debugf("imported %s into %s (private key: %t)", b.Thumbprint(), where, len(pfx) > 0)
	return nil
}
