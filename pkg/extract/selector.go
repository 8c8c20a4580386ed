package extract

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

// Selection is the content chosen from a message's decoded parts.
type Selection struct {
	Text        string
	HTML        string
	Attachments []*Attachment
}

// From http://daringfireball.net/2010/07/improved_regex_for_matching_urls
var urlRE = regexp.MustCompile("(?i)\\b((?:[a-z][\\w-]+:(?:/{1,3}|[a-z0-9%])|www\\d{0,3}[.]|[a-z0-9.\\-]+[.][a-z]{2,4}/)(?:[^\\s()<>]+|\\(([^\\s()<>]+|(\\([^\\s()<>]+\\)))*\\))+(?:\\(([^\\s()<>]+|(\\([^\\s()<>]+\\)))*\\)|[^\\s`!()\\[\\]{};:'\".,<>?«»“”‘’]))")

var lineBreaks = strings.NewReplacer("\r\n", "<br/>\n", "\r", "<br/>\n", "\n", "<br/>\n")

// SelectContent picks text and HTML bodies from parts, which must be in document order.  The first
// non-empty text/html part becomes HTML and the first non-empty text/plain part becomes Text;
// later parts of an already chosen type are ignored.  Parts marked as attachments, and parts of any
// other media type, are collected as attachments.  Plain text is never derived from HTML.
func SelectContent(parts []*Part) Selection {
	var sel Selection
	for _, p := range parts {
		mediatype := p.MediaType()
		if p.IsAttachment() || (mediatype != "text/plain" && mediatype != "text/html") {
			if strings.HasPrefix(mediatype, "multipart/") && strings.TrimSpace(p.Body) == "" {
				// Empty container left by a malformed nested multipart.
				continue
			}
			sel.Attachments = append(sel.Attachments, &Attachment{
				FileName:    p.FileName(),
				ContentType: mediatype,
				Content:     p.Decode().Content,
			})
			continue
		}
		target := &sel.Text
		if mediatype == "text/html" {
			target = &sel.HTML
		}
		if *target != "" {
			continue
		}
		text := p.Decode().Text(p.Charset())
		if strings.TrimSpace(text) != "" {
			*target = text
		}
	}
	return sel
}

// TextToHTML escapes plain text for HTML display, links URLs and converts line breaks.
func TextToHTML(text string) string {
	text = html.EscapeString(text)
	text = urlRE.ReplaceAllStringFunc(text, wrapURL)
	return lineBreaks.Replace(text)
}

// wrapURL wraps a <a href> tag around the provided URL.
func wrapURL(url string) string {
	unescaped := strings.ReplaceAll(url, "&amp;", "&")
	return fmt.Sprintf("<a href=\"%s\" target=\"_blank\">%s</a>", html.EscapeString(unescaped), url)
}
