package certerr

// Friendly returns a user-facing message for err.
func Friendly(err error) string {
	switch KindOf(err) {
	case NotFound:
		return "No matching certificate was found in the requested stores."
	case AmbiguousMatch:
		return "More than one item matched where exactly one was expected."
	case NoPrivateKey:
		return "The certificate does not have a private key."
	case UnsupportedKeyType:
		return "The certificate's private key uses a provider or algorithm that cannot be inspected."
	case KeyFileNotFound:
		return "The private key container is known but its file was not found in any key directory. Running elevated may help."
	case PermissionDenied:
		return "Access was denied. Run the command from an elevated prompt."
	case InvalidArgument:
		return "One of the arguments is invalid."
	default:
		return "The operation failed."
	}
}
