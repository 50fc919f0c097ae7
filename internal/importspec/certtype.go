package importspec

import (
	"path/filepath"
	"strings"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

// CertType is a certificate file format, known by its extension.
type CertType int

const (
	PFX CertType = 1 << iota
	PEM
	P12
	KEY
	KEYSTORE
	JKS
	CRT
	CER
	CABundle
	P7B
	P7C
	P7S
	DER

	// HasPrivateKey marks formats that can carry a private key.
	HasPrivateKey = PFX | PEM | P12
	// Importable formats can be installed by this package.
	Importable = PFX | P12 | PEM | CRT | CER | DER | CABundle | P7B | P7C
)

var extensions = map[string]CertType{
	".pfx":       PFX,
	".pem":       PEM,
	".p12":       P12,
	".key":       KEY,
	".keystore":  KEYSTORE,
	".jks":       JKS,
	".crt":       CRT,
	".cer":       CER,
	".ca-bundle": CABundle,
	".p7b":       P7B,
	".p7c":       P7C,
	".p7s":       P7S,
	".der":       DER,
}

// CertTypeOf returns the type of name by extension. Formats that cannot be
// installed are rejected.
func CertTypeOf(name string) (CertType, error) {
	lower := strings.ToLower(name)
	ext := filepath.Ext(lower)
	if strings.HasSuffix(lower, ".ca-bundle") {
		ext = ".ca-bundle"
	}
	t, ok := extensions[ext]
	if !ok {
		return 0, certerr.Errorf(certerr.InvalidArgument, "certificate type", name, "file extension %q is not a certificate type", ext)
	}
	if t&Importable == 0 {
		return t, certerr.Errorf(certerr.InvalidArgument, "certificate type", name, "%s files cannot be imported", ext)
	}
	return t, nil
}

func (t CertType) HasPrivateKey() bool {
	return t&HasPrivateKey != 0
}

func (t CertType) PKCS12() bool {
	return t&(PFX|P12) != 0
}

func (t CertType) String() string {
	for ext, v := range extensions {
		if v == t {
			return strings.TrimPrefix(ext, ".")
		}
	}
	return "unknown"
}
