package smimecheck

import "fmt"

// Code classifies the outcome of a verification. The set is closed: every
// verification resolves to exactly one of the three values below, and there
// is no "pending" state. Callers that need one must model it themselves.
type Code int

const (
	// CannotVerify means the message carries no signature that could be
	// evaluated, or the cryptographic layer could not produce a definitive
	// answer. It is the neutral outcome for ordinary unsigned mail.
	CannotVerify Code = iota

	// VerificationOK means the signature verified and the signer identity
	// matches the declared sender.
	VerificationOK

	// FraudWarning means the message claims to be signed but something about
	// the signature, its certificates, or the signer identity is wrong.
	FraudWarning
)

// String returns the wire form of the code.
func (c Code) String() string {
	switch c {
	case CannotVerify:
		return "CANNOT_VERIFY"
	case VerificationOK:
		return "VERIFICATION_OK"
	case FraudWarning:
		return "FRAUD_WARNING"
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler so results serialize with
// the wire strings rather than bare integers.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Code) UnmarshalText(text []byte) error {
	switch string(text) {
	case "CANNOT_VERIFY":
		*c = CannotVerify
	case "VERIFICATION_OK":
		*c = VerificationOK
	case "FRAUD_WARNING":
		*c = FraudWarning
	default:
		return fmt.Errorf("unknown verification code %q", text)
	}
	return nil
}

// VerificationResult is the sole output of a verification call. It is
// constructed once per call, filled along exactly one terminal branch of the
// pipeline and returned; the engine never mutates it afterwards.
type VerificationResult struct {
	// MailID is the caller-supplied identifier, passed through unchanged.
	MailID string `json:"mail_id"`

	// Success is true only for the fully verified and identity-matched case.
	Success bool `json:"success"`

	// Code is the trust verdict.
	Code Code `json:"code"`

	// Message is a plain-language explanation suitable for direct display.
	// It never contains parser or cryptographic detail.
	Message string `json:"message"`

	// Signer is the email address extracted from the signer certificate.
	// Empty when the message was rejected structurally, before any
	// certificate was seen.
	Signer string `json:"signer"`
}
