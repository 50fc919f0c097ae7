package importspec

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/smallstep/pkcs7"
	pkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/certs"
)

// Bundle is a decoded certificate file: the leaf certificate, any extra
// certificates it carried, and the private key when there is one.
type Bundle struct {
	Path        string
	Type        CertType
	Certificate *x509.Certificate
	Chain       []*x509.Certificate
	Key         crypto.PrivateKey
	// Data holds the raw file for PKCS#12 bundles.
	Data     []byte
	Password string
}

func (b *Bundle) Thumbprint() string {
	return certs.Thumbprint(b.Certificate)
}

func (b *Bundle) HasPrivateKey() bool {
	return b.Key != nil
}

// PFX returns a PKCS#12 blob for the bundle, encoding one when the source
// file was PEM.
func (b *Bundle) PFX() ([]byte, error) {
	if b.Type.PKCS12() && len(b.Data) > 0 {
		return b.Data, nil
	}
	if b.Key == nil {
		return nil, fmt.Errorf("%w: %s has no private key", ErrImportUnsupported, b.Path)
	}
	return pkcs12.Modern.Encode(b.Key, b.Certificate, b.Chain, b.Password)
}

// ReadBundle loads and decodes a certificate file.
func ReadBundle(path, password string) (*Bundle, error) {
	t, err := CertTypeOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, certerr.New(certerr.KindOf(err), "read certificate", path, err)
	}
	return DecodeBundle(path, t, data, password)
}

// DecodeBundle decodes data as a file of type t.
func DecodeBundle(path string, t CertType, data []byte, password string) (*Bundle, error) {
	b := &Bundle{Path: path, Type: t, Password: password}
	var err error
	switch {
	case t.PKCS12():
		err = b.decodePKCS12(data)
	case t&(P7B|P7C) != 0:
		err = b.decodePKCS7(data)
	default:
		err = b.decodePEMOrDER(data)
	}
	if err != nil {
		return nil, err
	}
	if b.Certificate == nil {
		return nil, fmt.Errorf("%w: %s contains no certificate", ErrImportInvalidFile, path)
	}
	return b, nil
}

func (b *Bundle) decodePKCS12(data []byte) error {
	var wrongPassword bool
	var otherErr error
	for _, a := range pkcs12Attempts(data, b.Password) {
		key, cert, chain, err := pkcs12.DecodeChain(a.data, a.password)
		if err == nil {
			b.Key, b.Certificate, b.Chain = key, cert, chain
			b.Data, b.Password = a.data, a.password
			return nil
		}
		if isIncorrectPasswordError(err) {
			wrongPassword = true
		} else if otherErr == nil {
			otherErr = err
		}
	}

	// Trust stores carry certificates only.
	if trust, err := pkcs12.DecodeTrustStore(data, b.Password); err == nil && len(trust) > 0 {
		b.Certificate, b.Chain, b.Data = trust[0], trust[1:], data
		return nil
	}

	switch {
	case otherErr != nil && isUnsupportedError(otherErr):
		return fmt.Errorf("%w: %v", ErrImportUnsupported, otherErr)
	case otherErr != nil:
		return fmt.Errorf("%w: %v", ErrImportInvalidFile, otherErr)
	case wrongPassword && b.Password == "":
		return fmt.Errorf("%w: %s", ErrImportPasswordRequired, b.Path)
	case wrongPassword:
		return fmt.Errorf("%w: %s", ErrImportWrongPassword, b.Path)
	}
	return fmt.Errorf("%w: %s", ErrImportInvalidFile, b.Path)
}

// alternatePasswords tries the given password first, then the empty one
// many exporters use for unprotected files.
func alternatePasswords(password string) []string {
	if password == "" {
		return []string{""}
	}
	return []string{password, ""}
}

func (b *Bundle) decodePKCS7(data []byte) error {
	if block, _ := pem.Decode(data); block != nil {
		data = block.Bytes
	}
	p7, err := pkcs7.Parse(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrImportInvalidFile, err)
	}
	if len(p7.Certificates) == 0 {
		return fmt.Errorf("%w: %s holds no certificates", ErrImportInvalidFile, b.Path)
	}
	b.Certificate, b.Chain = p7.Certificates[0], p7.Certificates[1:]
	return nil
}

func (b *Bundle) decodePEMOrDER(data []byte) error {
	if !bytes.Contains(data, []byte("-----BEGIN")) {
		cert, err := x509.ParseCertificate(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrImportInvalidFile, err)
		}
		b.Certificate = cert
		return nil
	}

	var all []*x509.Certificate
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch block.Type {
		case "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrImportInvalidFile, err)
			}
			all = append(all, cert)
		case "PKCS7":
			p7, err := pkcs7.Parse(block.Bytes)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrImportInvalidFile, err)
			}
			all = append(all, p7.Certificates...)
		case "PRIVATE KEY", "RSA PRIVATE KEY", "EC PRIVATE KEY":
			key, err := parsePrivateKey(block)
			if err != nil {
				return err
			}
			b.Key = key
		case "ENCRYPTED PRIVATE KEY":
			return fmt.Errorf("%w: encrypted PEM keys are not supported, convert to PFX", ErrImportUnsupported)
		}
	}
	if len(all) == 0 {
		return fmt.Errorf("%w: %s holds no certificates", ErrImportInvalidFile, b.Path)
	}

	leaf := 0
	if b.Key != nil {
		leaf = -1
		for i, c := range all {
			if publicKeyMatches(c, b.Key) {
				leaf = i
				break
			}
		}
		if leaf < 0 {
			return fmt.Errorf("%w: private key does not match any certificate in %s", ErrImportInvalidFile, b.Path)
		}
	}
	b.Certificate = all[leaf]
	for i, c := range all {
		if i != leaf {
			b.Chain = append(b.Chain, c)
		}
	}
	return nil
}

func parsePrivateKey(block *pem.Block) (crypto.PrivateKey, error) {
	var key interface{}
	var err error
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrImportInvalidFile, err)
	}
	return key, nil
}

func publicKeyMatches(cert *x509.Certificate, key crypto.PrivateKey) bool {
	type publicKeyer interface {
		Public() crypto.PublicKey
	}
	pk, ok := key.(publicKeyer)
	if !ok {
		return false
	}
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return pub.Equal(pk.Public())
	case *ecdsa.PublicKey:
		return pub.Equal(pk.Public())
	case ed25519.PublicKey:
		return pub.Equal(pk.Public())
	}
	return false
}
