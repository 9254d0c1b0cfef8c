package smimecheck

import (
	"bytes"
	"io"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Node is one content node of a parsed MIME message.
type Node struct {
	// MediaType is the lower-cased media type, e.g. "multipart/signed".
	MediaType string

	// Params holds the content-type parameters with lower-cased names
	// (protocol, micalg, boundary, ...). Values keep their original case.
	Params map[string]string

	// Header is the node's full header block.
	Header message.Header

	// Raw holds the exact wire bytes of the node, headers included. The
	// signature of a multipart/signed message covers its first child
	// exactly as transmitted, so these bytes must survive parsing
	// untouched.
	Raw []byte

	// Body holds the transfer-decoded body. For multipart nodes it is the
	// undecoded byte region between header and terminator.
	Body []byte

	// Children are the sub-nodes of a multipart node, in wire order.
	Children []*Node
}

// ParsedMessage is the node tree of one raw message. It is owned by a single
// verification call and discarded afterwards.
type ParsedMessage struct {
	Root *Node
}

// Envelope is a summary of the routing headers of a message.
type Envelope struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
}

// ParseMessage parses raw into a node tree. The input must be the
// binary-safe message source; pre-decoded text corrupts the signed bytes.
func ParseMessage(raw []byte) (*ParsedMessage, error) {
	root, err := parseNode(raw)
	if err != nil {
		return nil, err
	}
	return &ParsedMessage{Root: root}, nil
}

// Node returns the node at the given 1-based MIME path, following the usual
// part numbering: Node(1) is the first child of the root, Node(2) the
// second, Node(1, 1) the first grandchild. Node() returns the root. The
// second return value is false when the path does not exist; callers must
// treat absence as "not signed", never as an error.
func (m *ParsedMessage) Node(path ...int) (*Node, bool) {
	n := m.Root
	if n == nil {
		return nil, false
	}
	for _, idx := range path {
		if idx < 1 || idx > len(n.Children) {
			return nil, false
		}
		n = n.Children[idx-1]
	}
	return n, true
}

// From returns the address part of the first mailbox in the From header.
func (m *ParsedMessage) From() (string, bool) {
	if m.Root == nil {
		return "", false
	}
	h := mail.Header{Header: m.Root.Header}
	addrs, err := h.AddressList("From")
	if err != nil || len(addrs) == 0 {
		return "", false
	}
	return addrs[0].Address, true
}

// Envelope returns the raw routing headers of the message.
func (m *ParsedMessage) Envelope() Envelope {
	if m.Root == nil {
		return Envelope{}
	}
	return Envelope{
		From:    m.Root.Header.Get("From"),
		To:      m.Root.Header.Get("To"),
		Subject: m.Root.Header.Get("Subject"),
		Date:    m.Root.Header.Get("Date"),
	}
}

// parseNode builds one node, and recursively its children, from the node's
// exact wire bytes.
func parseNode(raw []byte) (*Node, error) {
	n := &Node{Raw: raw}

	ent, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return nil, err
	}

	n.Header = ent.Header
	mediaType, params, err := ent.Header.ContentType()
	if err == nil {
		n.MediaType = mediaType
		n.Params = params
	}

	_, rawBody := splitHeaderBody(raw)

	if boundary := n.Params["boundary"]; boundary != "" && isMultipart(n.MediaType) {
		n.Body = rawBody
		for _, childRaw := range splitMultipart(rawBody, boundary) {
			child, err := parseNode(childRaw)
			if err != nil {
				// A child that does not parse as a MIME entity is kept as an
				// opaque raw node so the tree shape stays intact.
				child = &Node{Raw: childRaw}
			}
			n.Children = append(n.Children, child)
		}
		return n, nil
	}

	body, err := io.ReadAll(ent.Body)
	if err != nil {
		// Undecodable transfer encoding: fall back to the undecoded bytes.
		body = rawBody
	}
	n.Body = body
	return n, nil
}

func isMultipart(mediaType string) bool {
	return len(mediaType) > 10 && mediaType[:10] == "multipart/"
}

// splitHeaderBody cuts a node's wire bytes at the first blank line.
func splitHeaderBody(raw []byte) (header, body []byte) {
	if i := bytes.Index(raw, []byte("\r\n\r\n")); i >= 0 {
		return raw[:i+2], raw[i+4:]
	}
	if i := bytes.Index(raw, []byte("\n\n")); i >= 0 {
		return raw[:i+1], raw[i+2:]
	}
	return raw, nil
}

// splitMultipart slices the exact byte ranges of each body part delimited by
// boundary. The line terminator preceding a delimiter belongs to the
// delimiter, not to the part, so it is trimmed from the returned slice; the
// preamble before the first delimiter and the epilogue after the closing one
// are discarded. Decoding layers cannot be used here: the verifier needs the
// bytes exactly as they were signed.
func splitMultipart(body []byte, boundary string) [][]byte {
	delim := []byte("--" + boundary)
	var parts [][]byte
	start := -1

	off := 0
	for off < len(body) {
		lineStart := off
		var line []byte
		if nl := bytes.IndexByte(body[off:], '\n'); nl >= 0 {
			line = body[off : off+nl]
			off += nl + 1
		} else {
			line = body[off:]
			off = len(body)
		}

		trimmed := bytes.TrimRight(line, " \t\r")
		if !bytes.HasPrefix(trimmed, delim) {
			continue
		}
		rest := trimmed[len(delim):]
		closing := bytes.Equal(rest, []byte("--"))
		if len(rest) != 0 && !closing {
			continue
		}

		if start >= 0 {
			parts = append(parts, trimDelimiterNewline(body[start:lineStart]))
		}
		if closing {
			return parts
		}
		start = off
	}

	// Tolerate a missing closing delimiter.
	if start >= 0 && start <= len(body) {
		parts = append(parts, trimDelimiterNewline(body[start:]))
	}
	return parts
}

func trimDelimiterNewline(part []byte) []byte {
	if bytes.HasSuffix(part, []byte("\r\n")) {
		return part[:len(part)-2]
	}
	if bytes.HasSuffix(part, []byte("\n")) {
		return part[:len(part)-1]
	}
	return part
}
