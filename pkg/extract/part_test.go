package extract

import (
	"net/textproto"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundary(t *testing.T) {
	testCases := []struct {
		ctype, want string
	}{
		{"", ""},
		{"text/plain; charset=utf-8", ""},
		{`multipart/alternative; boundary="abc 123"`, "abc 123"},
		{"multipart/mixed; boundary=simple", "simple"},
		{"multipart/mixed; BOUNDARY=upper", "upper"},
		// Not valid for mime.ParseMediaType; falls back to the lenient match.
		{"multipart/mixed; boundary=broken; boundary=twice", "broken"},
	}
	for _, tc := range testCases {
		t.Run(tc.ctype, func(t *testing.T) {
			h := make(textproto.MIMEHeader)
			if tc.ctype != "" {
				h.Set("Content-Type", tc.ctype)
			}
			assert.Equal(t, tc.want, Boundary(h))
		})
	}
}

func TestSplitPartsNoBoundary(t *testing.T) {
	inputs := []string{
		"",
		"Subject: x\r\n\r\nbody",
		"--not-a-boundary\r\ncontent\r\n",
	}
	for _, in := range inputs {
		got := SplitParts(in, "")
		require.Len(t, got, 1)
		assert.Equal(t, in, got[0])
	}
}

func TestSplitPartsBoundaryNotFound(t *testing.T) {
	in := "just some text\r\nwithout delimiters\r\n"
	got := SplitParts(in, "zz")
	require.Len(t, got, 1)
	assert.Equal(t, in, got[0])
}

func TestSplitPartsTerminated(t *testing.T) {
	in := strings.Join([]string{
		"preamble is dropped",
		"--b1",
		"Content-Type: text/plain",
		"",
		"one",
		"--b1",
		"",
		"two",
		"--b1--",
		"epilogue is dropped",
	}, "\r\n")
	got := SplitParts(in, "b1")
	assert.Equal(t, []string{
		"Content-Type: text/plain\r\n\r\none",
		"\r\ntwo",
	}, got)
}

func TestSplitPartsKeepsUnterminatedTail(t *testing.T) {
	in := "--b1\nContent-Type: text/plain\n\nfirst\n--b1\nContent-Type: text/html\n\n<p>cut off"
	got := SplitParts(in, "b1")
	require.Len(t, got, 2)
	assert.Equal(t, "Content-Type: text/plain\n\nfirst", got[0])
	assert.Equal(t, "Content-Type: text/html\n\n<p>cut off", got[1])
}

func TestSplitPartsIgnoresLongerBoundary(t *testing.T) {
	in := "--b1\n\nkeep\n--b1extra\nstill keep\n--b1--\n"
	got := SplitParts(in, "b1")
	require.Len(t, got, 1)
	assert.Equal(t, "\nkeep\n--b1extra\nstill keep", got[0])
}

func TestParsePart(t *testing.T) {
	p := ParsePart("Content-Type: text/html;\r\n charset=\"iso-8859-1\"\r\n" +
		"Content-Transfer-Encoding: QUOTED-PRINTABLE\r\nbogus line\r\n\r\nCaf=E9")
	assert.Equal(t, "text/html", p.MediaType())
	assert.Equal(t, "iso-8859-1", p.Charset())
	assert.Equal(t, "quoted-printable", p.TransferEncoding())
	assert.Equal(t, "Caf=E9", p.Body)
}

func TestParsePartWithoutHeader(t *testing.T) {
	p := ParsePart("plain text with no header")
	assert.Empty(t, p.Header)
	assert.Equal(t, "text/plain", p.MediaType())
	assert.Equal(t, "plain text with no header", p.Body)

	p = ParsePart("\r\nbody after blank line")
	assert.Empty(t, p.Header)
	assert.Equal(t, "body after blank line", p.Body)
}

func TestPartFileName(t *testing.T) {
	p := ParsePart("Content-Type: application/pdf; name=\"fallback.pdf\"\n" +
		"Content-Disposition: attachment; filename=\"report.pdf\"\n\nxx")
	assert.Equal(t, "report.pdf", p.FileName())
	assert.True(t, p.IsAttachment())

	p = ParsePart("Content-Type: image/png; name=\"=?utf-8?q?caf=C3=A9.png?=\"\n\nxx")
	assert.Equal(t, "café.png", p.FileName())
	assert.False(t, p.IsAttachment())
}

func TestScanMessageNested(t *testing.T) {
	raw := strings.Join([]string{
		"Subject: nested",
		`Content-Type: multipart/mixed; boundary="outer"`,
		"",
		"--outer",
		`Content-Type: multipart/alternative; boundary="inner"`,
		"",
		"--inner",
		"Content-Type: text/plain",
		"",
		"plain",
		"--inner",
		"Content-Type: text/html",
		"",
		"<b>html</b>",
		"--inner--",
		"--outer",
		"Content-Type: application/octet-stream",
		"",
		"data",
		"--outer--",
		"",
	}, "\r\n")
	top, leaves := ScanMessage([]byte(raw))
	assert.Equal(t, "nested", top.Header.Get("Subject"))
	require.Len(t, leaves, 3)
	assert.Equal(t, "text/plain", leaves[0].MediaType())
	assert.Equal(t, "plain", leaves[0].Body)
	assert.Equal(t, "text/html", leaves[1].MediaType())
	assert.Equal(t, "<b>html</b>", leaves[1].Body)
	assert.Equal(t, "application/octet-stream", leaves[2].MediaType())
}

func TestScanMessageNonMultipart(t *testing.T) {
	raw := "Subject: Hi\r\n\r\nHello"
	top, leaves := ScanMessage([]byte(raw))
	require.Len(t, leaves, 1)
	assert.Same(t, top, leaves[0])
	assert.Equal(t, "Hello", top.Body)
}

func TestScanMessageBoundaryNotFound(t *testing.T) {
	raw := "Subject: Hi\r\n" +
		"Content-Type: multipart/alternative; boundary=absent; charset=iso-8859-1\r\n" +
		"\r\n" +
		"Caf\xe9\r\n"
	top, leaves := ScanMessage([]byte(raw))
	require.Len(t, leaves, 1)
	assert.Equal(t, "text/plain", leaves[0].MediaType())
	assert.Equal(t, "iso-8859-1", leaves[0].Charset())
	assert.Equal(t, top.Body, leaves[0].Body)
	// The top-level part keeps its declared type.
	assert.Equal(t, "multipart/alternative", top.MediaType())
}
