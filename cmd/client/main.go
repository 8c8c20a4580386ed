// Package main implements a command line client for the nanomail REST API
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/google/subcommands"
	"github.com/zeusnotfound04/nanomail/pkg/rest/client"
)

var (
	host     = flag.String("host", "localhost", "host/IP of nanomail server")
	port     = flag.Uint("port", 9000, "HTTP port of nanomail server")
	basePath = flag.String("basepath", "", "API base path, matches NANOMAIL_WEB_BASEPATH")
	timeout  = flag.Duration("timeout", 30*time.Second, "REST request timeout")
)

// patternFlag is a case-insensitive regexp flag, addresses and subjects are matched without
// regard to case.
type patternFlag struct {
	re *regexp.Regexp
}

var _ flag.Value = &patternFlag{}

func (p *patternFlag) Defined() bool {
	return p.re != nil
}

func (p *patternFlag) MatchString(s string) bool {
	return p.re == nil || p.re.MatchString(s)
}

func (p *patternFlag) Set(pattern string) (err error) {
	p.re = nil
	if pattern != "" {
		p.re, err = regexp.Compile("(?i)" + pattern)
	}
	return err
}

func (p *patternFlag) String() string {
	if p.re == nil {
		return ""
	}
	return p.re.String()[len("(?i)"):]
}

func main() {
	for _, name := range []string{"host", "port", "basepath"} {
		subcommands.ImportantFlag(name)
	}
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	// Commands reading a server inbox.
	for _, cmd := range []subcommands.Command{&listCmd{}, &matchCmd{}, &mboxCmd{}} {
		subcommands.Register(cmd, "inbox")
	}
	// Commands working on local files.
	subcommands.Register(&extractCmd{}, "local")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

// baseURL is the server root, including the configured base path.
func baseURL() string {
	u := url.URL{
		Scheme: "http",
		Host:   net.JoinHostPort(*host, strconv.FormatUint(uint64(*port), 10)),
	}
	if *basePath != "" {
		u = *u.JoinPath(*basePath)
	}
	return u.String()
}

func newClient() (*client.Client, error) {
	return client.New(baseURL(), client.WithClientOptsTimeout(*timeout))
}

func fatal(msg string, err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	return subcommands.ExitFailure
}

func usage(msg string) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, msg)
	return subcommands.ExitUsageError
}
