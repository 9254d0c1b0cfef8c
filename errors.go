package smimecheck

import "fmt"

// ErrorKind identifies an anticipated verification failure. Every kind maps
// to exactly one verdict code in the classifier; unanticipated failures are
// never given a kind and propagate as plain errors instead.
type ErrorKind int

const (
	// KindStructuralMismatch: the message does not have the multipart/signed
	// shape at all. Maps to CANNOT_VERIFY.
	KindStructuralMismatch ErrorKind = iota + 1

	// KindMalformedSignature: the signature attachment is not a decodable
	// BER/CMS SignedData blob. Maps to FRAUD_WARNING.
	KindMalformedSignature

	// KindCertificateExpired: an embedded certificate is outside its validity
	// window, margin included. Maps to FRAUD_WARNING.
	KindCertificateExpired

	// KindSignatureMismatch: cryptographic verification explicitly failed.
	// Maps to FRAUD_WARNING.
	KindSignatureMismatch

	// KindIdentityMismatch: the certificate email does not equal the From
	// address. Maps to FRAUD_WARNING.
	KindIdentityMismatch

	// KindIndeterminate: the cryptographic layer could not produce a
	// definitive true/false. Maps to CANNOT_VERIFY.
	KindIndeterminate
)

// String returns a short name for logging.
func (k ErrorKind) String() string {
	switch k {
	case KindStructuralMismatch:
		return "structural-mismatch"
	case KindMalformedSignature:
		return "malformed-signature"
	case KindCertificateExpired:
		return "certificate-expired"
	case KindSignatureMismatch:
		return "signature-mismatch"
	case KindIdentityMismatch:
		return "identity-mismatch"
	case KindIndeterminate:
		return "indeterminate"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is an anticipated, classified verification failure. Message is the
// plain-language text that ends up on the VerificationResult; Cause carries
// the technical detail for logs and never reaches user-facing output.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("smimecheck: %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("smimecheck: %s", e.Kind)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind, so callers can
// match with errors.Is against a bare kind sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// User-facing verdict texts. These are display strings, kept free of any
// technical vocabulary.
const (
	msgNotSigned          = "Message is not digitally signed."
	msgInvalidSignature   = "Invalid digital signature"
	msgCertificateExpired = "Message was signed with an expired or not yet valid certificate"
	msgSignatureMismatch  = "Message failed verification with signature"
	msgUnknownError       = "Unknown error"
	msgIdentityMismatch   = "The From email address does not match the signature's email address"
	msgSignatureValid     = "Message contains a valid digital signature"
)
