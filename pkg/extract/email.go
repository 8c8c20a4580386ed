// Package extract turns raw stored SMTP payloads into normalized email records.
//
// Extraction runs a fixed fallback chain: a lenient manual MIME walk, then the enmime parser, then
// a line-oriented heuristic.  Every stage is fail-soft, so Extract always returns an Email.
package extract

import (
	"time"
)

// State identifies a step of the extraction fallback chain.
type State int

const (
	// ManualMIME walks boundaries and decodes parts directly.
	ManualMIME State = iota
	// LibraryParse hands the message to enmime.
	LibraryParse
	// HeuristicFallback scans raw text for header lines and a body.
	HeuristicFallback
	// Done is terminal.
	Done
)

func (s State) String() string {
	switch s {
	case ManualMIME:
		return "ManualMIME"
	case LibraryParse:
		return "LibraryParse"
	case HeuristicFallback:
		return "HeuristicFallback"
	case Done:
		return "Done"
	}
	return "Unknown"
}

// Email is the normalized content of one stored message.
type Email struct {
	Subject     string
	Sender      string // Bare address, may be empty.
	Text        string
	HTML        string
	TextAsHTML  string // Text escaped with line breaks converted.
	Date        time.Time
	Attachments []*Attachment
	Strategy    State // State which produced the content.
}

// Attachment is a non-body part of a message.
type Attachment struct {
	FileName    string
	ContentType string
	Content     []byte
}
