package smimecheck

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestCode_String(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CannotVerify, "CANNOT_VERIFY"},
		{VerificationOK, "VERIFICATION_OK"},
		{FraudWarning, "FRAUD_WARNING"},
		{Code(99), "Code(99)"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("Code(%d).String() = %q, want %q", int(tt.code), got, tt.want)
		}
	}
}

func TestVerificationResult_JSON(t *testing.T) {
	result := VerificationResult{
		MailID:  "mail-1",
		Success: true,
		Code:    VerificationOK,
		Message: "Message contains a valid digital signature",
		Signer:  "test@example.com",
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if want := `"code":"VERIFICATION_OK"`; !strings.Contains(string(data), want) {
		t.Errorf("marshaled result = %s, want it to contain %s", data, want)
	}

	var decoded VerificationResult
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded != result {
		t.Errorf("round trip changed the result:\n  in:  %+v\n  out: %+v", result, decoded)
	}
}

func TestCode_UnmarshalText_Unknown(t *testing.T) {
	var c Code
	if err := c.UnmarshalText([]byte("MAYBE_FINE")); err == nil {
		t.Error("Expected error for unknown code text, but got none")
	}
}

func TestError_KindMatching(t *testing.T) {
	cause := errors.New("underlying detail")
	verr := wrapError(KindSignatureMismatch, msgSignatureMismatch, cause)

	if !errors.Is(verr, newError(KindSignatureMismatch, "")) {
		t.Error("errors.Is should match on the kind")
	}
	if errors.Is(verr, newError(KindIdentityMismatch, "")) {
		t.Error("errors.Is matched a different kind")
	}
	if !errors.Is(verr, cause) {
		t.Error("errors.Is should reach the cause through Unwrap")
	}
}

func TestErrorKind_String(t *testing.T) {
	kinds := map[ErrorKind]string{
		KindStructuralMismatch: "structural-mismatch",
		KindMalformedSignature: "malformed-signature",
		KindCertificateExpired: "certificate-expired",
		KindSignatureMismatch:  "signature-mismatch",
		KindIdentityMismatch:   "identity-mismatch",
		KindIndeterminate:      "indeterminate",
	}
	for kind, want := range kinds {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(kind), got, want)
		}
	}
	if got := ErrorKind(42).String(); got != "ErrorKind(42)" {
		t.Errorf("unknown kind String() = %q", got)
	}
}
