// main is the nanomail daemon launcher
package main

import (
	"bufio"
	"context"
	"expvar"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zeusnotfound04/nanomail/pkg/config"
	"github.com/zeusnotfound04/nanomail/pkg/server"
	"github.com/zeusnotfound04/nanomail/pkg/storage"
	"github.com/zeusnotfound04/nanomail/pkg/storage/mem"
	"github.com/zeusnotfound04/nanomail/pkg/storage/sqlstore"
)

// shutdownGrace bounds how long retention and the store may take to wind down.
const shutdownGrace = 15 * time.Second

var (
	// version contains the build version number, populated during linking.
	version = "undefined"

	// date contains the build date, populated during linking.
	date = "undefined"
)

// options holds the command line flags.
type options struct {
	help    bool
	pidfile string
	logfile string
	logjson bool
	envfile string
}

func init() {
	startTime := time.Now()
	expvar.Publish("uptime", expvar.Func(func() any {
		return time.Since(startTime) / time.Second
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	storage.Constructors["memory"] = mem.New
	storage.Constructors["sql"] = sqlstore.New
}

func main() {
	opts := parseFlags()
	if opts.help {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "")
		config.Usage()
		return
	}
	config.Version = version
	config.BuildDate = date
	conf, err := config.Process(opts.envfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	closeLog, err := openLog(conf.LogLevel, opts.logfile, opts.logjson)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Log error: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(conf, opts); err != nil {
		log.Error().Str("phase", "startup").Err(err).Msg("nanomail failed to start")
		closeLog()
		os.Exit(1)
	}
}

func parseFlags() *options {
	opts := &options{}
	flag.BoolVar(&opts.help, "help", false, "Displays help on flags and env variables.")
	flag.StringVar(&opts.pidfile, "pidfile", "", "Write our PID into the specified file.")
	flag.StringVar(&opts.logfile, "logfile", "stderr", "Log destination: stderr, stdout or a file path.")
	flag.BoolVar(&opts.logjson, "logjson", false, "Logs are written in JSON format.")
	flag.StringVar(&opts.envfile, "envfile", config.DefaultEnvFile, "Load environment variables from file.")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: nanomail [options]")
		flag.PrintDefaults()
	}
	flag.Parse()
	return opts
}

// run starts the services and blocks until a signal or a fatal web server error.
func run(conf *config.Root, opts *options) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigChan)

	logStartup(conf)
	if err := writePIDFile(opts.pidfile); err != nil {
		return err
	}
	defer removePIDFile(opts.pidfile)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()
	shutdownChan := make(chan bool)
	services, err := server.Prod(rootCtx, shutdownChan, conf)
	if err != nil {
		return fmt.Errorf("storage %q: %w", conf.Storage.Type, err)
	}

	slog := log.With().Str("phase", "shutdown").Logger()
	select {
	case sig := <-sigChan:
		slog.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
		close(shutdownChan)
	case <-shutdownChan:
		slog.Warn().Msg("Web server failed, shutting down")
	}
	rootCancel()

	// Retention scans and the store are given shutdownGrace to finish.
	done := make(chan struct{})
	go func() {
		services.RetentionScanner.Join()
		services.Close()
		close(done)
	}()
	select {
	case <-done:
		slog.Info().Msg("nanomail stopped")
	case <-time.After(shutdownGrace):
		slog.Error().Dur("grace", shutdownGrace).Msg("Clean shutdown took too long, forcing exit")
	}
	return nil
}

// logStartup records the settings that decide where inbox data lives and how long it is kept.
func logStartup(conf *config.Root) {
	ev := log.Info().Str("phase", "startup").Str("version", config.Version).
		Str("buildDate", config.BuildDate).Str("domain", conf.Domain).Str("addr", conf.Web.Addr).
		Str("storage", conf.Storage.Type).Int("inboxCap", conf.Storage.MailboxMsgCap)
	if driver := conf.Storage.Params["driver"]; driver != "" {
		ev = ev.Str("driver", driver)
	}
	if conf.Storage.RetentionPeriod > 0 {
		ev = ev.Dur("retention", conf.Storage.RetentionPeriod).
			Dur("retentionSleep", conf.Storage.RetentionSleep)
	} else {
		ev = ev.Bool("retention", false)
	}
	ev.Int("extractWorkers", conf.Extract.Workers).Int("batchLimit", conf.Extract.BatchLimit).
		Dur("extractTimeout", conf.Extract.Timeout).Msg("nanomail starting")
}

// openLog configures zerolog output, returns func to close logfile.
func openLog(level string, logfile string, json bool) (close func(), err error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl < zerolog.DebugLevel || lvl > zerolog.ErrorLevel {
		return nil, fmt.Errorf("log level %q not one of: debug, info, warn, error", level)
	}
	zerolog.SetGlobalLevel(lvl)

	w, close, err := logWriter(logfile)
	if err != nil {
		return nil, err
	}
	w = zerolog.SyncWriter(w)
	if json {
		log.Logger = log.Output(w)
		return close, nil
	}
	isFile := logfile != "stderr" && logfile != "stdout"
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:     w,
		NoColor: isFile || runtime.GOOS == "windows",
	})
	return close, nil
}

// logWriter opens the named log destination.
func logWriter(logfile string) (io.Writer, func(), error) {
	switch logfile {
	case "stderr":
		return os.Stderr, func() {}, nil
	case "stdout":
		return os.Stdout, func() {}, nil
	}
	logf, err := os.OpenFile(logfile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0666)
	if err != nil {
		return nil, nil, err
	}
	bw := bufio.NewWriter(logf)
	return bw, func() {
		_ = bw.Flush()
		_ = logf.Close()
	}, nil
}

func writePIDFile(pidfile string) error {
	if pidfile == "" {
		return nil
	}
	return os.WriteFile(pidfile, fmt.Appendf(nil, "%v\n", os.Getpid()), 0644)
}

// removePIDFile removes the PID file if created.
func removePIDFile(pidfile string) {
	if pidfile == "" {
		return
	}
	if err := os.Remove(pidfile); err != nil {
		log.Error().Str("phase", "shutdown").Err(err).Str("path", pidfile).
			Msg("Failed to remove pidfile")
	}
}
