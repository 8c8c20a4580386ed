package extract

import (
	"mime"
	"net/textproto"
	"regexp"
	"strings"
)

// maxDepth limits how deeply nested multiparts are walked.
const maxDepth = 10

var (
	// boundaryRE is used when mime.ParseMediaType rejects a Content-Type header.
	boundaryRE = regexp.MustCompile(`(?i)boundary\s*=\s*(?:"([^"]*)"|([^\s;"]+))`)

	// headerLineRE matches the first line of a plausible header block.
	headerLineRE = regexp.MustCompile(`^[!-9;-~]+:`)
)

// Part is one segment of a message: its header fields and undecoded body.
type Part struct {
	Header textproto.MIMEHeader
	Body   string
}

// ParsePart splits a raw segment into header and body.  Header lines that cannot be parsed are
// skipped, they never cause the part to be dropped.
func ParsePart(raw string) *Part {
	header, body := splitHeader(raw)
	return &Part{Header: parseHeaderBlock(header), Body: body}
}

// MediaType returns the lowercase media type, text/plain when undeclared.
func (p *Part) MediaType() string {
	ctype := p.Header.Get("Content-Type")
	if ctype == "" {
		return "text/plain"
	}
	mediatype, _, err := mime.ParseMediaType(ctype)
	if err != nil {
		// Salvage everything before the first parameter.
		mediatype = strings.TrimSpace(strings.SplitN(ctype, ";", 2)[0])
	}
	mediatype = strings.ToLower(mediatype)
	if mediatype == "" || !strings.Contains(mediatype, "/") {
		return "text/plain"
	}
	return mediatype
}

// Boundary returns the multipart boundary declared by this part, or "".
func (p *Part) Boundary() string {
	return Boundary(p.Header)
}

// Charset returns the declared charset parameter, or "".
func (p *Part) Charset() string {
	return p.param("Content-Type", "charset")
}

// TransferEncoding returns the lowercase Content-Transfer-Encoding.
func (p *Part) TransferEncoding() string {
	return strings.ToLower(strings.TrimSpace(p.Header.Get("Content-Transfer-Encoding")))
}

// FileName returns the Content-Disposition filename, falling back to the Content-Type name.
func (p *Part) FileName() string {
	if fn := p.param("Content-Disposition", "filename"); fn != "" {
		return decodeWords(fn)
	}
	return decodeWords(p.param("Content-Type", "name"))
}

// IsAttachment is true when the part is explicitly marked as an attachment.
func (p *Part) IsAttachment() bool {
	disp := strings.ToLower(strings.TrimSpace(p.Header.Get("Content-Disposition")))
	return strings.HasPrefix(disp, "attachment")
}

// Decode applies the declared transfer encoding to the body.
func (p *Part) Decode() Decoded {
	return DecodeTransfer(p.Body, p.TransferEncoding())
}

func (p *Part) param(field, name string) string {
	value := p.Header.Get(field)
	if value == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(value)
	if err == nil {
		return params[name]
	}
	// Lenient scan for broken headers, ex: unquoted spaces.
	for _, kv := range strings.Split(value, ";") {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), name) {
			return strings.Trim(strings.TrimSpace(v), `"`)
		}
	}
	return ""
}

// Boundary returns the boundary parameter of the Content-Type header, with or without quotes.
func Boundary(header textproto.MIMEHeader) string {
	ctype := header.Get("Content-Type")
	if ctype == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(ctype); err == nil {
		return params["boundary"]
	}
	m := boundaryRE.FindStringSubmatch(ctype)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

// SplitParts splits body on lines starting with the literal delimiter "--" + boundary.  The
// preamble is discarded and the closing "--boundary--" ends the data, but content following the
// last delimiter of an unterminated message is kept.  When boundary is empty or never found, the
// whole body is returned as the only part.
func SplitParts(body, boundary string) []string {
	if boundary == "" {
		return []string{body}
	}
	delim := "--" + boundary
	parts := make([]string, 0, 4)
	start := -1
	for off := 0; off < len(body); {
		next := len(body)
		if i := strings.IndexByte(body[off:], '\n'); i >= 0 {
			next = off + i + 1
		}
		line := strings.TrimRight(body[off:next], " \t\r\n")
		if strings.HasPrefix(line, delim) {
			switch line[len(delim):] {
			case "":
				if start >= 0 {
					parts = append(parts, trimLineEnding(body[start:off]))
				}
				start = next
			case "--":
				if start >= 0 {
					return append(parts, trimLineEnding(body[start:off]))
				}
			}
		}
		off = next
	}
	if start < 0 {
		return []string{body}
	}
	if tail := body[start:]; strings.TrimSpace(tail) != "" {
		parts = append(parts, tail)
	}
	return parts
}

// ScanMessage parses raw into its top-level part and returns the leaf parts in document order.
func ScanMessage(raw []byte) (top *Part, leaves []*Part) {
	top = ParsePart(string(raw))
	return top, walkParts(top, 0, nil)
}

func walkParts(p *Part, depth int, leaves []*Part) []*Part {
	boundary := p.Boundary()
	if boundary == "" || depth >= maxDepth {
		return append(leaves, p)
	}
	segments := SplitParts(p.Body, boundary)
	if len(segments) == 1 && segments[0] == p.Body {
		// Declared boundary never appears, the body is read as plain text.
		return append(leaves, p.asText())
	}
	for _, seg := range segments {
		leaves = walkParts(ParsePart(seg), depth+1, leaves)
	}
	return leaves
}

// asText returns a copy of p re-declared as text/plain, keeping its charset.
func (p *Part) asText() *Part {
	header := make(textproto.MIMEHeader, len(p.Header))
	for k, v := range p.Header {
		header[k] = v
	}
	ctype := "text/plain"
	if cs := p.Charset(); cs != "" {
		ctype = mime.FormatMediaType(ctype, map[string]string{"charset": cs})
	}
	header.Set("Content-Type", ctype)
	return &Part{Header: header, Body: p.Body}
}

// splitHeader separates the header block from the body at the first blank line.
func splitHeader(raw string) (header, body string) {
	for off := 0; off < len(raw); {
		next := len(raw)
		if i := strings.IndexByte(raw[off:], '\n'); i >= 0 {
			next = off + i + 1
		}
		if strings.TrimRight(raw[off:next], "\r\n") == "" {
			return raw[:off], raw[next:]
		}
		off = next
	}
	// No blank line.
	if headerLineRE.MatchString(raw) {
		return raw, ""
	}
	return "", raw
}

// parseHeaderBlock unfolds continuation lines and collects fields, ignoring malformed lines.
func parseHeaderBlock(block string) textproto.MIMEHeader {
	header := make(textproto.MIMEHeader)
	var key, value string
	flush := func() {
		if key != "" {
			header.Add(key, strings.TrimSpace(value))
		}
		key, value = "", ""
	}
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			if key != "" {
				value += " " + strings.TrimSpace(line)
			}
			continue
		}
		flush()
		k, v, ok := strings.Cut(line, ":")
		k = strings.TrimSpace(k)
		if !ok || k == "" || strings.ContainsAny(k, " \t") {
			continue
		}
		key, value = textproto.CanonicalMIMEHeaderKey(k), v
	}
	flush()
	return header
}

func trimLineEnding(s string) string {
	if strings.HasSuffix(s, "\r\n") {
		return s[:len(s)-2]
	}
	return strings.TrimSuffix(s, "\n")
}
