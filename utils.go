package smimecheck

import (
	"bytes"
	"encoding/base64"
	"strings"
)

// canonicalizeCRLF rewrites data so every line ends with CRLF. S/MIME
// signatures are computed over CRLF-terminated text, so bodies that were
// stored or relayed with bare LF endings must be restored before digesting.
// The rewrite is idempotent: already-canonical input comes back unchanged.
func canonicalizeCRLF(data []byte) []byte {
	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(normalized, []byte("\n"), []byte("\r\n"))
}

// decodeBase64IfNeeded returns the base64 decoding of data when the whole
// body is valid base64, and data unchanged otherwise. Some mailers attach
// the signature blob base64-encoded without declaring a transfer encoding,
// so a tolerant attempt is made before handing bytes to the CMS decoder.
func decodeBase64IfNeeded(data []byte) []byte {
	compact := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, string(data))

	if compact == "" {
		return data
	}
	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return data
	}
	return decoded
}

// formatBase64 wraps a base64 string at lineLength columns with CRLF,
// without a trailing line break.
func formatBase64(data string, lineLength int) string {
	var result strings.Builder
	for i := 0; i < len(data); i += lineLength {
		end := i + lineLength
		if end > len(data) {
			end = len(data)
		}
		result.WriteString(data[i:end])
		if end < len(data) {
			result.WriteString("\r\n")
		}
	}
	return result.String()
}
