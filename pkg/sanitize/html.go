// Package sanitize cleans untrusted email HTML for display in a browser.
package sanitize

import (
	"bufio"
	"errors"
	"io"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("center", "font")
	p.AllowAttrs("color", "face", "size").OnElements("font")
	p.AllowAttrs("bgcolor", "background", "border", "cellpadding", "cellspacing").
		OnElements("table", "tr", "td", "th")
	p.AllowAttrs("align", "valign").OnElements("table", "tr", "td", "th", "div", "p", "img")
	// Style has already been filtered by Style, this only guards against markup smuggling.
	p.AllowAttrs("style").Matching(regexp.MustCompile(`^[^<>\\]*$`)).Globally()
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// HTML sanitizes the provided email html, preserving allowed inline CSS styling.
func HTML(input string) (string, error) {
	b := &strings.Builder{}
	if err := filterStyles(b, strings.NewReader(input)); err != nil {
		return "", err
	}
	return policy.Sanitize(b.String()), nil
}

// filterStyles copies r to w, rewriting every style attribute with Style.  Style attributes
// left empty are removed.
func filterStyles(w io.Writer, r io.Reader) error {
	bw := bufio.NewWriter(w)
	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				return err
			}
			return bw.Flush()
		case html.StartTagToken, html.SelfClosingTagToken:
			t := z.Token()
			attrs := t.Attr[:0]
			for _, a := range t.Attr {
				if a.Key == "style" {
					if a.Val = Style(a.Val); a.Val == "" {
						continue
					}
				}
				attrs = append(attrs, a)
			}
			t.Attr = attrs
			if _, err := bw.WriteString(t.String()); err != nil {
				return err
			}
		default:
			if _, err := bw.Write(z.Raw()); err != nil {
				return err
			}
		}
	}
}
