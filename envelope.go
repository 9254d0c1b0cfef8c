package smimecheck

import "strings"

// protocolPKCS7 is the only protocol parameter accepted on the signed
// envelope. The x- variant is accepted for the signature part's own media
// type but not here.
const protocolPKCS7 = "application/pkcs7-signature"

// acceptedMicalgs is the fixed set of integrity-check algorithm names a
// well-formed envelope may declare. Membership is a structural
// well-formedness check, not an algorithm-strength decision; "unknown" is a
// legacy value some producers emit.
var acceptedMicalgs = map[string]struct{}{
	"md5":     {},
	"sha-1":   {},
	"sha-224": {},
	"sha-256": {},
	"sha-384": {},
	"sha-512": {},
	"unknown": {},
}

// signatureMediaTypes are the media types a signature part may carry.
var signatureMediaTypes = map[string]struct{}{
	"application/x-pkcs7-signature": {},
	"application/pkcs7-signature":   {},
}

// validEnvelope reports whether the parsed message has the multipart/signed
// shape required for verification: signed media type, pkcs7 protocol
// parameter, a declared integrity-check algorithm from the accepted set,
// child nodes, and a signature attachment at part 2 with a pkcs7 media
// type. A false return means "not digitally signed", the ordinary outcome
// for unsigned mail, never an error.
func validEnvelope(m *ParsedMessage) bool {
	root, ok := m.Node()
	if !ok {
		return false
	}
	if root.MediaType != "multipart/signed" {
		return false
	}
	if root.Params["protocol"] != protocolPKCS7 {
		return false
	}
	if _, ok := acceptedMicalgs[strings.ToLower(root.Params["micalg"])]; !ok {
		return false
	}
	if len(root.Children) == 0 {
		return false
	}
	sig, ok := m.Node(2)
	if !ok {
		return false
	}
	if _, ok := signatureMediaTypes[sig.MediaType]; !ok {
		return false
	}
	return true
}
