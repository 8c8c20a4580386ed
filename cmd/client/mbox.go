package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/emersion/go-mbox"
	"github.com/google/subcommands"
	"github.com/zeusnotfound04/nanomail/pkg/rest/client"
)

type mboxCmd struct {
	delete bool
}

func (*mboxCmd) Name() string {
	return "mbox"
}

func (*mboxCmd) Synopsis() string {
	return "output inbox in mbox format"
}

func (*mboxCmd) Usage() string {
	return `mbox [flags] <inbox>:
	output inbox in mbox format
`
}

func (m *mboxCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&m.delete, "delete", false, "delete messages after output")
}

func (m *mboxCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	inbox := f.Arg(0)
	if inbox == "" {
		return usage("inbox required")
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
	err = outputMbox(ctx, os.Stdout, msgs)
	if err != nil {
		return fatal("Error", err)
	}

	// Optionally, delete retrieved messages
	if m.delete {
		for _, msg := range msgs {
			err = msg.Delete(ctx)
			if err != nil {
				return fatal("Delete REST call failed", err)
			}
		}
	}

	return subcommands.ExitSuccess
}

// outputMbox renders messages in mbox format.
// It is also used by match subcommand.
func outputMbox(ctx context.Context, w io.Writer, msgs []*client.Message) error {
	mw := mbox.NewWriter(w)
	for _, msg := range msgs {
		source, err := msg.GetSource(ctx)
		if err != nil {
			return fmt.Errorf("get source REST failed: %v", err)
		}
		from := msg.From
		if from == "" {
			from = "MAILER-DAEMON"
		}
		msgw, err := mw.CreateMessage(from, msg.Date)
		if err != nil {
			return err
		}
		if _, err := source.WriteTo(msgw); err != nil {
			return err
		}
	}
	return mw.Close()
}
