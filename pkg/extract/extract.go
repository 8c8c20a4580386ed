package extract

import (
	"bufio"
	"bytes"
	"context"
	"expvar"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jhillyerd/enmime/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// expStrategies counts extractions by the state that produced them.
var expStrategies = expvar.NewMap("extract")

// LibraryParser parses a complete message; ReadEnvelope is the default.
type LibraryParser func(raw []byte) (*enmime.Envelope, error)

// ReadEnvelope parses raw with enmime.
func ReadEnvelope(raw []byte) (*enmime.Envelope, error) {
	return enmime.ReadEnvelope(bytes.NewReader(raw))
}

// Extractor runs the extraction fallback chain.  The zero value is ready to use; it is safe for
// concurrent use as long as its fields are not modified.
type Extractor struct {
	// Logger receives a debug event for every state transition, defaults to the global logger.
	Logger *zerolog.Logger
	// Parse is used by the LibraryParse state, defaults to ReadEnvelope.
	Parse LibraryParser
	// Now supplies the date of messages without a usable Date header, defaults to time.Now.
	Now func() time.Time
}

var defaultExtractor = &Extractor{}

// Extract normalizes raw using the default Extractor.
func Extract(raw []byte) *Email {
	return defaultExtractor.Extract(raw)
}

// run holds the working state of one extraction.
type run struct {
	ex      *Extractor
	raw     []byte
	headers Headers
	content Selection
}

// Extract normalizes raw.  It never fails; if every strategy comes up empty the Email will have
// no content, but headers found along the way are still reported.
func (e *Extractor) Extract(raw []byte) *Email {
	logger := e.logger().With().Str("module", "extract").Logger()
	r := &run{ex: e, raw: raw}
	state, producer := ManualMIME, ManualMIME
	for state != Done {
		next, reason := r.step(state)
		logger.Debug().Stringer("from", state).Stringer("to", next).Str("reason", reason).
			Msg("Extraction state transition")
		if next == Done {
			producer = state
		}
		state = next
	}
	expStrategies.Add(producer.String(), 1)

	email := &Email{
		Subject:     r.headers.Subject,
		Sender:      NormalizeSender(r.headers.From),
		Text:        r.content.Text,
		HTML:        r.content.HTML,
		TextAsHTML:  TextToHTML(r.content.Text),
		Date:        r.headers.Date,
		Attachments: r.content.Attachments,
		Strategy:    producer,
	}
	if email.Date.IsZero() {
		email.Date = e.now()
	}
	return email
}

// ExtractAll extracts every message in raws using up to workers goroutines.  Results are in the
// same order as raws.  Once ctx is done no further extractions are started and ctx.Err() is
// returned along with the entries completed so far; missing entries are nil.
func (e *Extractor) ExtractAll(ctx context.Context, raws [][]byte, workers int) ([]*Email, error) {
	results := make([]*Email, len(raws))
	if workers < 1 {
		workers = 1
	}
	if workers > len(raws) {
		workers = len(raws)
	}
	jobs := make(chan int)
	wg := &sync.WaitGroup{}
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = e.Extract(raws[i])
			}
		}()
	}
	var err error
feed:
	for i := range raws {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return results, err
}

// step runs a single state, converting a panic into a transition to the next strategy.
func (r *run) step(state State) (next State, reason string) {
	defer func() {
		if p := recover(); p != nil {
			next, reason = fallbackFrom(state), fmt.Sprintf("panic: %v", p)
		}
	}()
	switch state {
	case ManualMIME:
		return r.manualMIME()
	case LibraryParse:
		return r.libraryParse()
	case HeuristicFallback:
		return r.heuristic()
	}
	return Done, "unknown state"
}

func fallbackFrom(state State) State {
	switch state {
	case ManualMIME:
		return LibraryParse
	case LibraryParse:
		return HeuristicFallback
	}
	return Done
}

func (r *run) manualMIME() (State, string) {
	top, leaves := ScanMessage(r.raw)
	content := SelectContent(leaves)
	if content.Text == "" && content.HTML == "" {
		return LibraryParse, fmt.Sprintf("no text or html in %d part(s)", len(leaves))
	}
	r.headers = HeadersFromMIME(top.Header)
	r.content = content
	return Done, fmt.Sprintf("selected content from %d part(s)", len(leaves))
}

func (r *run) libraryParse() (State, string) {
	parse := r.ex.Parse
	if parse == nil {
		parse = ReadEnvelope
	}
	env, err := parse(r.raw)
	if err != nil {
		return HeuristicFallback, "parser failed: " + err.Error()
	}
	if env == nil {
		return HeuristicFallback, "parser returned no envelope"
	}
	r.headers = HeadersFromEnvelope(env)
	r.content = contentFromEnvelope(env)
	return Done, fmt.Sprintf("parsed with %d parser warning(s)", len(env.Errors))
}

func (r *run) heuristic() (State, string) {
	text := toUTF8(r.raw)
	r.headers = ScanHeaders(text)
	r.content = Selection{Text: heuristicBody(text)}
	return Done, "scanned raw text"
}

// contentFromEnvelope maps enmime output to a Selection.  enmime renders HTML to text when a
// message has no text/plain part; that rendering is discarded.
func contentFromEnvelope(env *enmime.Envelope) Selection {
	sel := Selection{Text: env.Text, HTML: env.HTML}
	if env.HTML != "" && !hasPlainText(env.Root) {
		sel.Text = ""
	}
	for _, group := range [][]*enmime.Part{env.Attachments, env.Inlines, env.OtherParts} {
		for _, p := range group {
			sel.Attachments = append(sel.Attachments, &Attachment{
				FileName:    p.FileName,
				ContentType: p.ContentType,
				Content:     p.Content,
			})
		}
	}
	return sel
}

func hasPlainText(root *enmime.Part) bool {
	if root == nil {
		return false
	}
	match := root.BreadthMatchFirst(func(p *enmime.Part) bool {
		return p.ContentType == "text/plain" && p.Disposition != "attachment"
	})
	return match != nil
}

// heuristicBody returns everything after the first blank line, skipping boundary marker lines.
func heuristicBody(text string) string {
	s := bufio.NewScanner(strings.NewReader(text))
	s.Buffer(make([]byte, 0, 64*1024), len(text)+1)
	inBody := false
	lines := make([]string, 0, 32)
	for s.Scan() {
		line := strings.TrimRight(s.Text(), "\r")
		if !inBody {
			inBody = line == ""
			continue
		}
		if strings.HasPrefix(line, "--") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func (e *Extractor) logger() *zerolog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return &log.Logger
}

func (e *Extractor) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}
