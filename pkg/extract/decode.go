package extract

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
)

// Decoded is the content of a part after its transfer encoding has been removed.
type Decoded struct {
	Content []byte
	// Failed is set when the declared encoding could not be applied; Content then holds the
	// original text.
	Failed bool
}

// wordDecoder decodes RFC 2047 encoded-words in header values.
var wordDecoder = &mime.WordDecoder{CharsetReader: charset.Reader}

// DecodeTransfer removes the Content-Transfer-Encoding from body.  Encoding names are matched
// without regard to case; unknown and identity encodings pass the body through.  It never fails,
// malformed input degrades to the most literal reasonable output.
func DecodeTransfer(body, encoding string) Decoded {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "quoted-printable":
		return Decoded{Content: decodeQuotedPrintable(body)}
	case "base64":
		content, ok := decodeBase64(body)
		if !ok {
			return Decoded{Content: []byte(body), Failed: true}
		}
		return Decoded{Content: content}
	}
	return Decoded{Content: []byte(body)}
}

// Text returns the content as UTF-8, converting from the named charset when possible.  Unknown
// charsets and invalid byte sequences fall back to a byte per rune mapping.
func (d Decoded) Text(charsetName string) string {
	name := strings.ToLower(strings.TrimSpace(charsetName))
	switch name {
	case "", "utf-8", "utf8", "us-ascii", "ascii":
		return toUTF8(d.Content)
	}
	r, err := charset.Reader(name, bytes.NewReader(d.Content))
	if err != nil {
		return toUTF8(d.Content)
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return toUTF8(d.Content)
	}
	return toUTF8(b)
}

// decodeQuotedPrintable removes soft line breaks and replaces =XX escapes.  An '=' not followed by
// a line break or two hex digits is kept literally.
func decodeQuotedPrintable(s string) []byte {
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '=' {
			buf = append(buf, c)
			continue
		}
		// Soft line break, tolerating transport padding before the newline.
		j := i + 1
		for j < len(s) && (s[j] == ' ' || s[j] == '\t') {
			j++
		}
		if j < len(s) && s[j] == '\n' {
			i = j
			continue
		}
		if j+1 < len(s) && s[j] == '\r' && s[j+1] == '\n' {
			i = j + 1
			continue
		}
		if i+2 < len(s) {
			hi, ok1 := unhex(s[i+1])
			lo, ok2 := unhex(s[i+2])
			if ok1 && ok2 {
				buf = append(buf, hi<<4|lo)
				i += 2
				continue
			}
		}
		buf = append(buf, '=')
	}
	return buf
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// decodeBase64 decodes the standard alphabet, ignoring whitespace and missing padding.
func decodeBase64(s string) ([]byte, bool) {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\r', '\n':
			return -1
		}
		return r
	}, s)
	if b, err := base64.StdEncoding.DecodeString(cleaned); err == nil {
		return b, true
	}
	if b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(cleaned, "=")); err == nil {
		return b, true
	}
	return nil, false
}

// toUTF8 returns b as a string, mapping each byte to a rune when b is not valid UTF-8.
func toUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// decodeWords decodes RFC 2047 encoded-words, returning s unchanged if that fails.
func decodeWords(s string) string {
	if !strings.Contains(s, "=?") {
		return s
	}
	decoded, err := wordDecoder.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}
