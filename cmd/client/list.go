package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"
	"github.com/zeusnotfound04/nanomail/pkg/rest/client"
	"github.com/jaytaylor/html2text"
)

const previewLen = 72

type listCmd struct {
	preview bool
}

func (*listCmd) Name() string {
	return "list"
}

func (*listCmd) Synopsis() string {
	return "list contents of inbox"
}

func (*listCmd) Usage() string {
	return `list [flags] <inbox>:
	list message IDs and subjects in inbox
`
}

func (l *listCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&l.preview, "preview", false, "print the start of each message body")
}

func (l *listCmd) Execute(
	ctx context.Context, f *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	inbox := f.Arg(0)
	if inbox == "" {
		return usage("inbox required")
	}

	// Setup rest client
	c, err := newClient()
	if err != nil {
		return fatal("Couldn't build client", err)
	}

	// Get list
	msgs, err := c.Inbox(ctx, inbox)
	if err != nil {
		return fatal("REST call failed", err)
	}
	for _, m := range msgs {
		fmt.Printf("%s\t%s\t%s\n", m.ID, m.Date.Format("2006-01-02 15:04:05"), m.Subject)
		if l.preview {
			if p := preview(m); p != "" {
				fmt.Printf("\t%s\n", p)
			}
		}
	}

	return subcommands.ExitSuccess
}

// preview returns the first line of body text, rendering the HTML body when there is no text.
func preview(m *client.Message) string {
	if m.Body == nil {
		return ""
	}
	text := m.Body.Text
	if strings.TrimSpace(text) == "" && m.Body.HTML != "" {
		var err error
		text, err = html2text.FromString(m.Body.HTML, html2text.Options{TextOnly: true})
		if err != nil {
			return ""
		}
	}
	return truncate(strings.Join(strings.Fields(text), " "), previewLen)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
