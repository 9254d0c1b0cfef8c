// Package smimecheck verifies S/MIME signatures on raw email messages and
// classifies each message into one of three trust verdicts suitable for
// display to a non-technical reader: VERIFICATION_OK, CANNOT_VERIFY or
// FRAUD_WARNING.
//
// The pipeline parses the multipart/signed structure, decodes the embedded
// CMS SignedData blob, checks certificate validity windows, verifies the
// signature over the CRLF-canonicalized signed part and matches the signer
// certificate's email address against the message's From header. Chain of
// trust and revocation are deliberately outside the verdict; see Diagnose
// for the advisory checks.
package smimecheck

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Verifier runs the verification pipeline. A single Verifier is safe for
// concurrent use: calls share no mutable state, and every call owns its own
// parsed message, envelope and result.
type Verifier struct {
	// Margin widens every certificate validity window on both sides.
	// NewVerifier sets DefaultValidityMargin; a zero-value Verifier
	// verifies with no margin.
	Margin time.Duration

	// Logger receives structured pipeline diagnostics. Nil disables
	// logging.
	Logger *zap.Logger

	// now is the time source for temporal validation, fixed in tests.
	now func() time.Time
}

// NewVerifier returns a Verifier with the default validity margin.
func NewVerifier() *Verifier {
	return &Verifier{Margin: DefaultValidityMargin}
}

// Verify runs a verification with default settings.
func Verify(rawMessage []byte, mailID string) (*VerificationResult, error) {
	return NewVerifier().Verify(rawMessage, mailID)
}

func (v *Verifier) clock() time.Time {
	if v.now != nil {
		return v.now()
	}
	return time.Now()
}

func (v *Verifier) log() *zap.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return zap.NewNop()
}

// Verify classifies rawMessage and returns the verdict. mailID is an opaque
// caller-supplied identifier passed through unchanged.
//
// Every anticipated outcome (unsigned mail, undecodable signatures,
// expired certificates, failed verification, identity mismatch) resolves
// to a VerificationResult with a nil error. The error is non-nil only for
// failures outside the verification contract (a panicking lower layer,
// resource exhaustion); no result is produced then, and the caller must
// discard the call rather than record a verdict for it.
func (v *Verifier) Verify(rawMessage []byte, mailID string) (res *VerificationResult, err error) {
	log := v.log().With(zap.String("mail_id", mailID))

	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("smimecheck: verification aborted: %v", r)
			log.Error("verification aborted", zap.Any("panic", r))
		}
	}()

	result := &VerificationResult{MailID: mailID, Code: CannotVerify}

	msg, perr := ParseMessage(rawMessage)
	if perr != nil {
		// Input that does not parse as a message cannot be signed mail.
		return v.classify(result, wrapError(KindStructuralMismatch, msgNotSigned, perr), nil, log), nil
	}

	if !validEnvelope(msg) {
		return v.classify(result, newError(KindStructuralMismatch, msgNotSigned), nil, log), nil
	}

	sig, _ := msg.Node(2)
	env, verr := decodeSignedData(sig)
	if verr != nil {
		return v.classify(result, verr, nil, log), nil
	}

	now := v.clock()
	if verr := checkCertificateValidity(env.Certificates(), now, v.Margin); verr != nil {
		return v.classify(result, verr, env, log), nil
	}

	body, _ := msg.Node(1)
	if verr := env.VerifyDetached(canonicalizeCRLF(body.Raw), now); verr != nil {
		return v.classify(result, verr, env, log), nil
	}

	from, _ := msg.From()
	signer := ""
	if cert, ok := env.FirstCertificate(); ok {
		signer = certificateEmail(cert)
	}
	if verr := checkIdentity(signer, from); verr != nil {
		return v.classify(result, verr, env, log), nil
	}

	result.Success = true
	result.Code = VerificationOK
	result.Message = msgSignatureValid
	result.Signer = signer
	log.Info("message verified", zap.String("signer", signer))
	return result, nil
}

// classify maps an anticipated failure onto the result. The signer email is
// reported for fraud verdicts reached after the envelope decoded, so the
// conflicting identity stays visible to the caller; structural and
// indeterminate outcomes leave it empty.
func (v *Verifier) classify(result *VerificationResult, verr *Error, env *SignedDataEnvelope, log *zap.Logger) *VerificationResult {
	switch verr.Kind {
	case KindStructuralMismatch, KindIndeterminate:
		result.Code = CannotVerify
	case KindMalformedSignature, KindCertificateExpired, KindSignatureMismatch, KindIdentityMismatch:
		result.Code = FraudWarning
		if env != nil {
			if cert, ok := env.FirstCertificate(); ok {
				result.Signer = certificateEmail(cert)
			}
		}
	default:
		// Unmapped kinds must not silently default to a verdict.
		panic(fmt.Sprintf("smimecheck: unmapped error kind %d", int(verr.Kind)))
	}
	result.Message = verr.Message

	log.Info("verification rejected",
		zap.Stringer("kind", verr.Kind),
		zap.Stringer("code", result.Code),
		zap.Error(verr))
	return result
}
