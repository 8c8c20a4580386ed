package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"time"

	"github.com/emersion/go-mbox"
	"github.com/google/subcommands"
	"github.com/rs/zerolog"
	"github.com/zeusnotfound04/nanomail/pkg/extract"
)

type extractCmd struct {
	mbox    bool
	workers int
}

func (*extractCmd) Name() string {
	return "extract"
}

func (*extractCmd) Synopsis() string {
	return "extract content from local message files"
}

func (*extractCmd) Usage() string {
	return `extract [flags] <file>...:
	print the extracted content of raw RFC 5322 messages as JSON, "-" reads stdin
`
}

func (e *extractCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&e.mbox, "mbox", false, "files are in mbox format")
	f.IntVar(&e.workers, "workers", 4, "concurrent extractions")
}

func (e *extractCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		return usage("file required")
	}
	var raws [][]byte
	for _, name := range f.Args() {
		msgs, err := readMessages(name, e.mbox)
		if err != nil {
			return fatal("Read failed", err)
		}
		raws = append(raws, msgs...)
	}
	quiet := zerolog.Nop()
	ex := &extract.Extractor{Logger: &quiet}
	emails, err := ex.ExtractAll(ctx, raws, e.workers)
	if err != nil {
		return fatal("Extract failed", err)
	}
	out := make([]*extractedJSON, len(emails))
	for i, email := range emails {
		out[i] = newExtractedJSON(email)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fatal("Error", err)
	}
	return subcommands.ExitSuccess
}

// readMessages returns the raw messages in the named file.
func readMessages(name string, isMbox bool) ([][]byte, error) {
	var r io.Reader = os.Stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	if !isMbox {
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return [][]byte{raw}, nil
	}
	var raws [][]byte
	mr := mbox.NewReader(r)
	for {
		msg, err := mr.NextMessage()
		if errors.Is(err, io.EOF) {
			return raws, nil
		}
		if err != nil {
			return nil, err
		}
		raw, err := io.ReadAll(msg)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
}

type extractedAttachmentJSON struct {
	FileName    string `json:"filename"`
	ContentType string `json:"content-type"`
	Size        int    `json:"size"`
}

type extractedJSON struct {
	Subject     string                     `json:"subject"`
	From        string                     `json:"from"`
	Date        time.Time                  `json:"date"`
	Strategy    string                     `json:"strategy"`
	Text        string                     `json:"text"`
	HTML        string                     `json:"html"`
	Attachments []*extractedAttachmentJSON `json:"attachments"`
}

func newExtractedJSON(email *extract.Email) *extractedJSON {
	out := &extractedJSON{
		Subject:     email.Subject,
		From:        email.Sender,
		Date:        email.Date,
		Strategy:    email.Strategy.String(),
		Text:        email.Text,
		HTML:        email.HTML,
		Attachments: make([]*extractedAttachmentJSON, 0, len(email.Attachments)),
	}
	for _, a := range email.Attachments {
		out.Attachments = append(out.Attachments, &extractedAttachmentJSON{
			FileName:    a.FileName,
			ContentType: a.ContentType,
			Size:        len(a.Content),
		})
	}
	return out
}
