//go:build windows

package systemstore

import (
	"bytes"
	"crypto/x509"
	"errors"
	"fmt"

	"golang.org/x/sys/windows"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/certs"
)

func (s *winStore) Import(cert *x509.Certificate, pfx []byte, password string, opts ImportOptions) error {
	tp := certs.Thumbprint(cert)
	if len(pfx) == 0 {
		c, err := windows.CertCreateCertificateContext(encodingX509PKCS7, &cert.Raw[0], uint32(len(cert.Raw)))
		if err != nil {
			return certerr.New(certerr.InvalidArgument, "import certificate", tp, err)
		}
		defer windows.CertFreeCertificateContext(c)
		return s.add(c, tp)
	}

	pw, err := windows.UTF16PtrFromString(password)
	if err != nil {
		return certerr.New(certerr.InvalidArgument, "import certificate", tp, err)
	}
	flags := uint32(windows.CRYPT_USER_KEYSET)
	if s.loc == LocalMachine {
		flags = windows.CRYPT_MACHINE_KEYSET
	}
	if opts.Exportable {
		flags |= windows.CRYPT_EXPORTABLE
	}
	blob := windows.CryptDataBlob{Size: uint32(len(pfx)), Data: &pfx[0]}
	tmp, err := windows.PFXImportCertStore(&blob, pw, flags)
	if err != nil {
		return certerr.New(certerr.KindOf(err), "import certificate", tp, err)
	}
	defer windows.CertCloseStore(tmp, 0)

	// Only the leaf goes into the target store; chain certificates belong
	// in the CA stores.
	var c *windows.CertContext
	for {
		c, err = windows.CertEnumCertificatesInStore(tmp, c)
		if err != nil {
			if errors.Is(err, windows.Errno(cryptENotFound)) {
				return certerr.New(certerr.NotFound, "import certificate", tp, fmt.Errorf("leaf certificate not in PFX"))
			}
			return certerr.New(certerr.KindOf(err), "import certificate", tp, err)
		}
		if bytes.Equal(encoded(c), cert.Raw) {
			err := s.add(c, tp)
			windows.CertFreeCertificateContext(c)
			return err
		}
	}
}

func (s *winStore) add(c *windows.CertContext, tp string) error {
	if err := windows.CertAddCertificateContextToStore(s.h, c, windows.CERT_STORE_ADD_REPLACE_EXISTING, nil); err != nil {
		return certerr.New(certerr.KindOf(err), "import certificate", fmt.Sprintf(`%s\%s\%s`, s.loc, s.cat, tp), err)
	}
	return nil
}
