// Package config loads nanomail settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	prefix = "nanomail"

	// DefaultEnvFile is read by Process when present.
	DefaultEnvFile = ".env"

	tableFormat = `nanomail is configured via the environment, or a .env file in the working
directory.  The following environment variables can be used:

KEY	DEFAULT	REQUIRED	DESCRIPTION
{{range .}}{{usage_key .}}	{{usage_default .}}	{{usage_required .}}	{{usage_description .}}
{{end}}`
)

var (
	// Version of this build, set by main
	Version = ""

	// BuildDate for this build, set by main
	BuildDate = ""
)

// Root wraps all other configurations.
type Root struct {
	LogLevel string `required:"true" default:"info" desc:"debug, info, warn, or error"`
	Domain   string `required:"true" default:"zeus.nanomail.live" desc:"Domain appended to bare inbox names"`
	Web      Web
	Storage  Storage
	Extract  Extract
}

// Web contains the HTTP server configuration.
type Web struct {
	Addr           string        `required:"true" default:"0.0.0.0:9000" desc:"Web server TCP4 host:port"`
	BasePath       string        `default:"" desc:"Base path prefix for API URLs"`
	MonitorHistory int           `required:"true" default:"30" desc:"Monitor remembered messages"`
	ReadTimeout    time.Duration `required:"true" default:"60s" desc:"HTTP request read timeout"`
	WriteTimeout   time.Duration `required:"true" default:"60s" desc:"HTTP response write timeout"`
}

// Storage contains the mail store configuration.
type Storage struct {
	Type            string            `required:"true" default:"memory" desc:"Storage impl: memory or sql"`
	Params          map[string]string `default:"" desc:"Storage impl parameters, see docs."`
	DSN             string            `default:"" desc:"Database connection string for sql storage"`
	RetentionPeriod time.Duration     `required:"true" default:"168h" desc:"Duration to retain messages"`
	RetentionSleep  time.Duration     `required:"true" default:"5m" desc:"Duration to sleep between scans"`
	MailboxMsgCap   int               `required:"true" default:"500" desc:"Maximum messages per inbox"`
}

// Extract contains the inbox extraction settings.
type Extract struct {
	Workers    int           `required:"true" default:"4" desc:"Concurrent extractions per query"`
	BatchLimit int           `required:"true" default:"100" desc:"Maximum messages returned per inbox"`
	Timeout    time.Duration `required:"true" default:"10s" desc:"Deadline for extracting one inbox"`
}

// Process loads and parses configuration from the environment.  Each of envFiles is loaded first,
// missing files are skipped and variables already set in the environment take precedence.  With no
// envFiles, DefaultEnvFile is tried.
func Process(envFiles ...string) (*Root, error) {
	if len(envFiles) == 0 {
		envFiles = []string{DefaultEnvFile}
	}
	for _, name := range envFiles {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", name, err)
		}
	}
	c := &Root{}
	err := envconfig.Process(prefix, c)
	return c, err
}

// Usage prints out the envconfig usage to Stderr.
func Usage() {
	tabs := tabwriter.NewWriter(os.Stderr, 1, 0, 4, ' ', 0)
	if err := envconfig.Usagef(prefix, &Root{}, tabs, tableFormat); err != nil {
		log.Fatalf("Unable to parse env config: %v", err)
	}
	tabs.Flush()
}
