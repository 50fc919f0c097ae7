//go:build windows

package systemstore

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/certs"
	"github.com/vocdoni/gofirma/certperms/internal/crypto/keyprov"
)

const (
	certStoreProvSystemW       = 10
	certSystemStoreCurrentUser = 1 << 16
	certSystemStoreLocalMach   = 2 << 16
	certStoreReadOnlyFlag      = 0x00008000
	certStoreOpenExistingFlag  = 0x00004000
	encodingX509PKCS7          = windows.X509_ASN_ENCODING | windows.PKCS_7_ASN_ENCODING

	certKeyProvInfoPropID  = 2
	certFriendlyNamePropID = 11

	cryptAcquireSilentFlag      = 0x00000040
	cryptAcquireAllowNCryptFlag = 0x00010000
	certNCryptKeySpec           = 0xFFFFFFFF

	cryptMachineKeyset = 0x00000020
	ppUniqueContainer  = 36
	ncryptSilentFlag   = 0x00000040

	provRSAFull     = 1
	provRSASig      = 2
	provDSS         = 3
	provRSASChannel = 12
	provDSSDH       = 13
	provRSAAES      = 24
)

// HRESULTs returned while acquiring a key.
const (
	nteBadKeyset        = 0x80090016
	nteBadProvType      = 0x80090014
	nteProvTypeNotDef   = 0x80090017
	nteProviderDLLFail  = 0x8009001D
	nteProvDLLNotFound  = 0x8009001E
	nteSilentContext    = 0x80090022
	nteNotSupported     = 0x80090029
	nteBadKey           = 0x80090003
	nteNoKey            = 0x8009000D
	nteAccessDenied     = 0x80090010
	cryptENoKeyProperty = 0x8009200B
	cryptENotFound      = 0x80092004
)

var (
	modcrypt32  = windows.NewLazySystemDLL("crypt32.dll")
	modadvapi32 = windows.NewLazySystemDLL("advapi32.dll")
	modncrypt   = windows.NewLazySystemDLL("ncrypt.dll")

	procCertGetCertificateContextProperty = modcrypt32.NewProc("CertGetCertificateContextProperty")
	procCertSetCertificateContextProperty = modcrypt32.NewProc("CertSetCertificateContextProperty")
	procCryptGetProvParam                 = modadvapi32.NewProc("CryptGetProvParam")
	procNCryptGetProperty                 = modncrypt.NewProc("NCryptGetProperty")
	procNCryptFreeObject                  = modncrypt.NewProc("NCryptFreeObject")
)

// cryptKeyProvInfo mirrors CRYPT_KEY_PROV_INFO.
type cryptKeyProvInfo struct {
	ContainerName *uint16
	ProvName      *uint16
	ProvType      uint32
	Flags         uint32
	ProvParam     uint32
	RgProvParam   uintptr
	KeySpec       uint32
}

type osOpener struct{}

// NewOSOpener opens the CryptoAPI system stores.
func NewOSOpener() Opener {
	return osOpener{}
}

func (osOpener) Open(ctx context.Context, loc Location, cat Category, mode Mode) (Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var flags uint32
	switch loc {
	case CurrentUser:
		flags = certSystemStoreCurrentUser
	case LocalMachine:
		flags = certSystemStoreLocalMach
	default:
		return nil, certerr.New(certerr.InvalidArgument, "open store", loc.String(), nil)
	}
	if mode == ReadOnly {
		flags |= certStoreReadOnlyFlag | certStoreOpenExistingFlag
	}

	name, err := windows.UTF16PtrFromString(string(cat))
	if err != nil {
		return nil, certerr.New(certerr.InvalidArgument, "open store", string(cat), err)
	}
	h, err := windows.CertOpenStore(certStoreProvSystemW, 0, 0, flags, uintptr(unsafe.Pointer(name)))
	if err != nil {
		kind := certerr.KindOf(err)
		if errors.Is(err, windows.ERROR_FILE_NOT_FOUND) || errors.Is(err, windows.Errno(cryptENotFound)) {
			kind = certerr.NotFound
		}
		return nil, certerr.New(kind, "open store", fmt.Sprintf(`%s\%s`, loc, cat), err)
	}
	return &winStore{h: h, loc: loc, cat: cat}, nil
}

type winStore struct {
	h   windows.Handle
	loc Location
	cat Category
}

func (s *winStore) Close() error {
	if s.h == 0 {
		return nil
	}
	err := windows.CertCloseStore(s.h, 0)
	s.h = 0
	return err
}

func (s *winStore) Certificates(ctx context.Context) ([]Certificate, error) {
	var result []Certificate
	err := s.each(ctx, func(c *windows.CertContext) bool {
		result = append(result, s.record(c))
		return true
	})
	return result, err
}

func (s *winStore) SetFriendlyName(thumbprint, name string) error {
	want, err := certs.ParseThumbprint(thumbprint)
	if err != nil {
		return err
	}

	var found bool
	var setErr error
	err = s.each(context.Background(), func(c *windows.CertContext) bool {
		if certs.ThumbprintOf(encoded(c)) != want {
			return true
		}
		found = true
		setErr = setFriendlyName(c, name)
		return false
	})
	if err != nil {
		return err
	}
	if !found {
		return certerr.New(certerr.NotFound, "set friendly name", want, nil)
	}
	return setErr
}

// each walks the store. The current context is released when fn stops the walk
// or the context is cancelled; otherwise the next enumeration call frees it.
func (s *winStore) each(ctx context.Context, fn func(*windows.CertContext) bool) error {
	var c *windows.CertContext
	for {
		next, err := windows.CertEnumCertificatesInStore(s.h, c)
		if err != nil {
			if errors.Is(err, windows.Errno(cryptENotFound)) || errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				return nil
			}
			return fmt.Errorf("enumerate %s\\%s: %w", s.loc, s.cat, err)
		}
		if next == nil {
			return nil
		}
		c = next
		if err := ctx.Err(); err != nil {
			windows.CertFreeCertificateContext(c)
			return err
		}
		if !fn(c) {
			windows.CertFreeCertificateContext(c)
			return nil
		}
	}
}

func (s *winStore) record(c *windows.CertContext) Certificate {
	der := encoded(c)
	rec := Certificate{
		Thumbprint: certs.ThumbprintOf(der),
		Location:   s.loc,
		Category:   s.cat,
	}
	// Stores can hold certificates crypto/x509 rejects; they are still listed.
	if crt, err := x509.ParseCertificate(der); err == nil {
		rec.Cert = crt
		rec.Subject = crt.Subject.String()
	}
	if data, err := property(c, certFriendlyNamePropID); err == nil {
		rec.FriendlyName = utf16Bytes(data)
	}

	info, err := property(c, certKeyProvInfoPropID)
	if err != nil || len(info) < int(unsafe.Sizeof(cryptKeyProvInfo{})) {
		return rec
	}
	rec.HasPrivateKey = true
	rec.Key, rec.KeyErr = probeKey(c, (*cryptKeyProvInfo)(unsafe.Pointer(&info[0])))
	if rec.KeyErr != nil {
		rec.KeyErr = certerr.New(certerr.KindOf(rec.KeyErr), "inspect key", rec.Thumbprint, rec.KeyErr)
	}
	return rec
}

func probeKey(c *windows.CertContext, info *cryptKeyProvInfo) (keyprov.Key, error) {
	key := keyprov.Key{
		Provider: windows.UTF16PtrToString(info.ProvName),
		Machine:  info.Flags&cryptMachineKeyset != 0,
	}

	var h windows.Handle
	var spec uint32
	var callerFree bool
	err := windows.CryptAcquireCertificatePrivateKey(c, cryptAcquireSilentFlag|cryptAcquireAllowNCryptFlag, nil, &h, &spec, &callerFree)
	if err != nil {
		return key, classifyAcquire(err)
	}

	if spec == certNCryptKeySpec {
		if callerFree {
			defer procNCryptFreeObject.Call(uintptr(h))
		}
		unique, err := ncryptString(h, "Unique Name")
		if err != nil {
			return key, certerr.New(certerr.UnsupportedKeyType, "read unique name", key.Provider, err)
		}
		alg, _ := ncryptString(h, "Algorithm Group")
		key.ContainerID = unique
		key.Algorithm = alg
		key.Kind = keyprov.Classify(true, alg)
		return key, nil
	}

	if callerFree {
		defer windows.CryptReleaseContext(h, 0)
	}
	unique, err := uniqueContainer(h)
	if err != nil {
		return key, certerr.New(certerr.UnsupportedKeyType, "read unique container", key.Provider, err)
	}
	key.ContainerID = unique
	key.Algorithm = legacyAlgorithm(info.ProvType)
	key.Kind = keyprov.Classify(false, key.Algorithm)
	return key, nil
}

func classifyAcquire(err error) error {
	var errno windows.Errno
	if !errors.As(err, &errno) {
		return err
	}
	kind := certerr.UnsupportedKeyType
	switch uint32(errno) {
	case nteBadKeyset, nteNoKey, nteBadKey, cryptENoKeyProperty:
		kind = certerr.NoPrivateKey
	case nteSilentContext, nteAccessDenied, uint32(windows.ERROR_ACCESS_DENIED):
		kind = certerr.PermissionDenied
	case nteBadProvType, nteProvTypeNotDef, nteProviderDLLFail, nteProvDLLNotFound, nteNotSupported:
		kind = certerr.UnsupportedKeyType
	}
	return certerr.New(kind, "acquire private key", "", err)
}

func legacyAlgorithm(provType uint32) string {
	switch provType {
	case provRSAFull, provRSASig, provRSASChannel, provRSAAES:
		return "RSA"
	case provDSS, provDSSDH:
		return "DSA"
	}
	return ""
}

func encoded(c *windows.CertContext) []byte {
	der := make([]byte, c.Length)
	copy(der, unsafe.Slice(c.EncodedCert, c.Length))
	return der
}

func property(c *windows.CertContext, id uint32) ([]byte, error) {
	var size uint32
	r, _, err := procCertGetCertificateContextProperty.Call(uintptr(unsafe.Pointer(c)), uintptr(id), 0, uintptr(unsafe.Pointer(&size)))
	if r == 0 {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	r, _, err = procCertGetCertificateContextProperty.Call(uintptr(unsafe.Pointer(c)), uintptr(id), uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)))
	if r == 0 {
		return nil, err
	}
	return buf[:size], nil
}

func setFriendlyName(c *windows.CertContext, name string) error {
	u, err := windows.UTF16FromString(name)
	if err != nil {
		return certerr.New(certerr.InvalidArgument, "set friendly name", name, err)
	}
	blob := windows.CryptDataBlob{
		Size: uint32(len(u) * 2),
		Data: (*byte)(unsafe.Pointer(&u[0])),
	}
	r, _, err := procCertSetCertificateContextProperty.Call(uintptr(unsafe.Pointer(c)), certFriendlyNamePropID, 0, uintptr(unsafe.Pointer(&blob)))
	if r == 0 {
		return certerr.New(certerr.KindOf(err), "set friendly name", name, err)
	}
	return nil
}

func uniqueContainer(h windows.Handle) (string, error) {
	var size uint32
	r, _, err := procCryptGetProvParam.Call(uintptr(h), ppUniqueContainer, 0, uintptr(unsafe.Pointer(&size)), 0)
	if r == 0 {
		return "", err
	}
	buf := make([]byte, size)
	r, _, err = procCryptGetProvParam.Call(uintptr(h), ppUniqueContainer, uintptr(unsafe.Pointer(&buf[0])), uintptr(unsafe.Pointer(&size)), 0)
	if r == 0 {
		return "", err
	}
	return windows.ByteSliceToString(buf[:size]), nil
}

func ncryptString(h windows.Handle, prop string) (string, error) {
	name, err := windows.UTF16PtrFromString(prop)
	if err != nil {
		return "", err
	}
	var size uint32
	r, _, _ := procNCryptGetProperty.Call(uintptr(h), uintptr(unsafe.Pointer(name)), 0, 0, uintptr(unsafe.Pointer(&size)), ncryptSilentFlag)
	if r != 0 {
		return "", windows.Errno(r)
	}
	if size == 0 {
		return "", nil
	}
	buf := make([]byte, size)
	r, _, _ = procNCryptGetProperty.Call(uintptr(h), uintptr(unsafe.Pointer(name)), uintptr(unsafe.Pointer(&buf[0])), uintptr(size), uintptr(unsafe.Pointer(&size)), ncryptSilentFlag)
	if r != 0 {
		return "", windows.Errno(r)
	}
	return utf16Bytes(buf[:size]), nil
}

func utf16Bytes(b []byte) string {
	if len(b) < 2 {
		return ""
	}
	u := unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
	return windows.UTF16ToString(u)
}
