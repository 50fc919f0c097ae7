package importspec

import (
	"errors"
	"strings"

	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

var (
	ErrImportPasswordRequired = errors.New("certificate password required")
	ErrImportWrongPassword    = errors.New("certificate password incorrect")
	ErrImportInvalidFile      = errors.New("invalid certificate file")
	ErrImportUnsupported      = errors.New("unsupported certificate format")
)

// FriendlyImportError returns a user-facing message for a failed import.
func FriendlyImportError(err error) string {
	switch {
	case errors.Is(err, ErrImportPasswordRequired):
		return "This certificate requires a password. Add a password source to the import document."
	case errors.Is(err, ErrImportWrongPassword):
		return "The certificate password is incorrect."
	case errors.Is(err, ErrImportInvalidFile):
		return "The file is not a valid certificate or is corrupted."
	case errors.Is(err, ErrImportUnsupported):
		return "The certificate uses an unsupported format or key type."
	default:
		return "Certificate import failed. Please verify the file and password."
	}
}

func isIncorrectPasswordError(err error) bool {
	if errors.Is(err, pkcs12.ErrIncorrectPassword) || errors.Is(err, pkcs12.ErrDecryption) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "decryption password incorrect") ||
		strings.Contains(msg, "incorrect padding")
}

func isUnsupportedError(err error) bool {
	var nse pkcs12.NotImplementedError
	if errors.As(err, &nse) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "unknown private key type")
}
