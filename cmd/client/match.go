package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/mail"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/zeusnotfound04/nanomail/pkg/rest/client"
)

type matchCmd struct {
	output  string
	outFunc func(ctx context.Context, msgs []*client.Message) error
	delete  bool
	// match criteria
	from    patternFlag
	subject patternFlag
	to      patternFlag
	body    patternFlag
	maxAge  time.Duration
}

func (*matchCmd) Name() string {
	return "match"
}

func (*matchCmd) Synopsis() string {
	return "output messages matching criteria"
}

func (*matchCmd) Usage() string {
	return `match [flags] <inbox>:
	output messages matching all specified criteria
	exit status will be 1 if no matches were found, otherwise 0
`
}

func (m *matchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&m.output, "output", "id", "output format: id, json, or mbox")
	f.BoolVar(&m.delete, "delete", false, "delete matched messages after output")
	f.Var(&m.from, "from", "From header matching regexp (address, not name)")
	f.Var(&m.subject, "subject", "Subject header matching regexp")
	f.Var(&m.to, "to", "To header matching regexp (must match 1+ to address)")
	f.Var(&m.body, "body", "Extracted text body matching regexp")
	f.DurationVar(
		&m.maxAge, "maxage", 0,
		"Matches must have been received in this time frame (ex: \"10s\", \"5m\")")
}

func (m *matchCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	inbox := f.Arg(0)
	if inbox == "" {
		return usage("inbox required")
	}
	// Select output function
	switch m.output {
	case "id":
		m.outFunc = outputID
	case "json":
		m.outFunc = outputJSON
	case "mbox":
		m.outFunc = func(ctx context.Context, msgs []*client.Message) error {
			return outputMbox(ctx, os.Stdout, msgs)
		}
	default:
		return usage("unknown output type: " + m.output)
	}
	// Setup REST client
	c, err := newClient()
	if err != nil {
		return fatal("Couldn't build client", err)
	}
	// Get list
	msgs, err := c.Inbox(ctx, inbox)
	if err != nil {
		return fatal("List REST call failed", err)
	}
	// Find matches
	matches := make([]*client.Message, 0, len(msgs))
	for _, msg := range msgs {
		if m.match(msg) {
			matches = append(matches, msg)
		}
	}
	// Return error status if no matches
	if len(matches) == 0 {
		return subcommands.ExitFailure
	}
	// Output matches
	err = m.outFunc(ctx, matches)
	if err != nil {
		return fatal("Error", err)
	}
	if m.delete {
		// Delete matches
		for _, msg := range matches {
			err = msg.Delete(ctx)
			if err != nil {
				return fatal("Delete REST call failed", err)
			}
		}
	}
	return subcommands.ExitSuccess
}

// match returns true if msg matches all defined criteria
func (m *matchCmd) match(msg *client.Message) bool {
	if m.maxAge > 0 {
		if time.Since(msg.Date) > m.maxAge {
			return false
		}
	}
	if m.subject.Defined() {
		if !m.subject.MatchString(msg.Subject) {
			return false
		}
	}
	if m.from.Defined() {
		from := msg.From
		addr, err := mail.ParseAddress(from)
		if err == nil {
			// Parsed successfully
			from = addr.Address
		}
		if !m.from.MatchString(from) {
			return false
		}
	}
	if m.to.Defined() {
		match := false
		for _, to := range msg.To {
			addr, err := mail.ParseAddress(to)
			if err == nil {
				// Parsed successfully
				to = addr.Address
			}
			if m.to.MatchString(to) {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if m.body.Defined() {
		if msg.Body == nil || !m.body.MatchString(msg.Body.Text) {
			return false
		}
	}
	return true
}

func outputID(_ context.Context, msgs []*client.Message) error {
	for _, msg := range msgs {
		fmt.Println(msg.ID)
	}
	return nil
}

func outputJSON(_ context.Context, msgs []*client.Message) error {
	jsonEncoder := json.NewEncoder(os.Stdout)
	jsonEncoder.SetEscapeHTML(false)
	jsonEncoder.SetIndent("", "  ")
	return jsonEncoder.Encode(msgs)
}
