// Package keyprov describes a certificate's private key as seen through the
// provider that stores it.
//
// Windows keeps keys in two incompatible subsystems: the legacy CryptoAPI
// service providers (CSP) and the CNG key storage providers (KSP). Each assigns
// its own unique container name, which is what the key file on disk is named
// after. Key is resolved once per certificate and carries that name.
package keyprov

import (
	"fmt"

	"github.com/vocdoni/gofirma/certperms/internal/certerr"
)

type Kind int

const (
	Unsupported Kind = iota
	// RSALegacy is an RSA key held by a CryptoAPI service provider.
	RSALegacy
	// RSANextGen is an RSA key held by a CNG key storage provider.
	RSANextGen
	// ECDSANextGen is an elliptic-curve key held by a CNG key storage provider.
	ECDSANextGen
)

func (k Kind) String() string {
	switch k {
	case RSALegacy:
		return "RSA-CSP"
	case RSANextGen:
		return "RSA-CNG"
	case ECDSANextGen:
		return "ECDSA-CNG"
	default:
		return "Unsupported"
	}
}

type Key struct {
	Kind Kind
	// ContainerID is the provider-assigned unique container name.
	ContainerID string
	// Provider is the CSP or KSP name, e.g. "Microsoft Software Key Storage Provider".
	Provider string
	// Algorithm as reported by the provider ("RSA", "ECDSA", "DSA", ...).
	Algorithm string
	// Machine is set for keys in the machine key set.
	Machine bool
}

// Validate fails for keys the resolver cannot map to a file.
func (k Key) Validate() error {
	if k.Kind == Unsupported {
		return certerr.New(certerr.UnsupportedKeyType, "inspect key", k.Provider,
			fmt.Errorf("algorithm %q is not supported", k.Algorithm))
	}
	if k.ContainerID == "" {
		return certerr.New(certerr.UnsupportedKeyType, "inspect key", k.Provider,
			fmt.Errorf("provider returned no unique container name"))
	}
	return nil
}

// Classify maps a provider generation and algorithm to a Kind. Only RSA and
// ECDSA are supported; DSA and DH keys map to Unsupported.
func Classify(nextGen bool, algorithm string) Kind {
	switch algorithm {
	case "RSA", "RSA_SIGN", "RSA_KEYX":
		if nextGen {
			return RSANextGen
		}
		return RSALegacy
	case "ECDSA", "ECDSA_P256", "ECDSA_P384", "ECDSA_P521", "ECC":
		if nextGen {
			return ECDSANextGen
		}
	}
	return Unsupported
}
