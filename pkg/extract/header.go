package extract

import (
	"net/mail"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	"github.com/jhillyerd/enmime/v2"
)

// Headers holds the header fields the pipeline cares about.  It is produced both from structured
// parser output and from heuristic scanning of raw text.
type Headers struct {
	Subject string
	From    string
	Date    time.Time // Zero when absent or unparseable.
}

var (
	subjectLineRE = regexp.MustCompile(`(?i)^Subject:[ \t]*(.+)$`)
	fromLineRE    = regexp.MustCompile(`(?i)^From:[ \t]*(.+)$`)
	dateLineRE    = regexp.MustCompile(`(?i)^Date:[ \t]*(.+)$`)
)

// Layouts tried after mail.ParseDate gives up.
var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	"Mon, 2 Jan 2006 15:04:05 -0700 (MST)",
	"2 Jan 2006 15:04:05 -0700",
	time.RFC3339,
}

// HeadersFromEnvelope reads the subject, from display text and date of a parsed envelope.
func HeadersFromEnvelope(env *enmime.Envelope) Headers {
	h := Headers{
		Subject: strings.TrimSpace(env.GetHeader("Subject")),
		From:    strings.TrimSpace(env.GetHeader("From")),
	}
	if date, err := env.Date(); err == nil {
		h.Date = date
	} else {
		h.Date = parseDate(env.GetHeader("Date"))
	}
	return h
}

// HeadersFromMIME reads the fields from a parsed header block, decoding RFC 2047 words.
func HeadersFromMIME(header textproto.MIMEHeader) Headers {
	return Headers{
		Subject: decodeWords(header.Get("Subject")),
		From:    decodeWords(header.Get("From")),
		Date:    parseDate(header.Get("Date")),
	}
}

// ScanHeaders looks for Subject, From and Date lines anywhere in raw text.  Matching ignores case
// and the first match of each field wins.
func ScanHeaders(raw string) Headers {
	var h Headers
	var subject, from, date bool
	for _, line := range strings.Split(raw, "\n") {
		if subject && from && date {
			break
		}
		line = strings.TrimRight(line, "\r")
		switch {
		case !subject && subjectLineRE.MatchString(line):
			h.Subject = decodeWords(lineValue(subjectLineRE, line))
			subject = true
		case !from && fromLineRE.MatchString(line):
			h.From = decodeWords(lineValue(fromLineRE, line))
			from = true
		case !date && dateLineRE.MatchString(line):
			h.Date = parseDate(lineValue(dateLineRE, line))
			date = true
		}
	}
	return h
}

func lineValue(re *regexp.Regexp, line string) string {
	return strings.TrimSpace(re.FindStringSubmatch(line)[1])
}

// parseDate returns the zero time when s cannot be parsed.
func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := mail.ParseDate(s); err == nil {
		return t
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
