package storage

import (
	"expvar"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zeusnotfound04/nanomail/pkg/config"
	"github.com/zeusnotfound04/nanomail/pkg/metric"
)

var (
	retentionScanCompleted   = time.Now()
	retentionScanCompletedMu sync.RWMutex

	// History counters
	expRetentionDeletesTotal = new(expvar.Int)
	expRetentionPeriod       = new(expvar.Int)
	expRetentionFailures     = new(expvar.Int)

	// History rendered as comma delimited string
	expRetentionDeletesHist = metric.NewHistory()
)

func init() {
	rm := expvar.NewMap("retention")
	rm.Set("SecondsSinceScanCompleted", expvar.Func(secondsSinceRetentionScanCompleted))
	rm.Set("DeletesHist", expRetentionDeletesHist)
	rm.Set("DeletesTotal", expRetentionDeletesTotal)
	rm.Set("Failures", expRetentionFailures)
	rm.Set("Period", expRetentionPeriod)

	metric.AddTickerFunc(func() {
		expRetentionDeletesHist.Push(expRetentionDeletesTotal)
	})
}

// RetentionScanner purges messages older than the configured retention period.
type RetentionScanner struct {
	globalShutdown    chan bool // Closes when nanomail needs to shut down
	retentionShutdown chan bool // Closed after the scanner has shut down
	store             Store
	retentionPeriod   time.Duration
	retentionSleep    time.Duration
	now               func() time.Time
}

// NewRetentionScanner configures a new RententionScanner.
func NewRetentionScanner(
	cfg config.Storage,
	store Store,
	shutdownChannel chan bool,
) *RetentionScanner {
	rs := &RetentionScanner{
		globalShutdown:    shutdownChannel,
		retentionShutdown: make(chan bool),
		store:             store,
		retentionPeriod:   cfg.RetentionPeriod,
		retentionSleep:    cfg.RetentionSleep,
		now:               time.Now,
	}
	// expRetentionPeriod is displayed on the status page
	expRetentionPeriod.Set(int64(cfg.RetentionPeriod / time.Second))
	return rs
}

// Start up the retention scanner if retention period > 0
func (rs *RetentionScanner) Start() {
	slog := log.With().Str("module", "storage").Logger()
	if rs.retentionPeriod <= 0 {
		slog.Info().Str("phase", "startup").Msg("Retention scanner disabled")
		close(rs.retentionShutdown)
		return
	}
	slog.Info().Str("phase", "startup").Msgf("Retention configured for %v", rs.retentionPeriod)
	go rs.run()
}

// run loops to kick off the scanner on the correct schedule
func (rs *RetentionScanner) run() {
	slog := log.With().Str("module", "storage").Logger()
	start := time.Now()
retentionLoop:
	for {
		// Prevent scanner from starting more than once a minute.
		wait := rs.retentionSleep
		if since := time.Since(start); since+wait < time.Minute {
			wait = time.Minute - since
		}
		slog.Debug().Msgf("Retention scanner sleeping for %v", wait)
		select {
		case <-rs.globalShutdown:
			break retentionLoop
		case <-time.After(wait):
		}
		// Kickoff scan.
		start = time.Now()
		if err := rs.DoScan(); err != nil {
			slog.Error().Err(err).Msg("Error during retention scan")
		}
	}
	slog.Debug().Str("phase", "shutdown").Msg("Retention scanner shut down")
	close(rs.retentionShutdown)
}

// DoScan purges every message received before the retention cutoff.
func (rs *RetentionScanner) DoScan() error {
	slog := log.With().Str("module", "storage").Logger()
	cutoff := rs.now().Add(-1 * rs.retentionPeriod)
	slog.Debug().Time("cutoff", cutoff).Msg("Starting retention scan")
	deleted, err := rs.store.PurgeOlderThan(cutoff)
	if err != nil {
		expRetentionFailures.Add(1)
		return err
	}
	expRetentionDeletesTotal.Add(deleted)
	if deleted > 0 {
		slog.Info().Int64("count", deleted).Msg("Purged expired messages")
	}
	setRetentionScanCompleted(time.Now())
	return nil
}

// Join does not return until the retention scanner has shut down.
func (rs *RetentionScanner) Join() {
	if rs.retentionShutdown != nil {
		<-rs.retentionShutdown
	}
}

func setRetentionScanCompleted(t time.Time) {
	retentionScanCompletedMu.Lock()
	defer retentionScanCompletedMu.Unlock()
	retentionScanCompleted = t
}

func getRetentionScanCompleted() time.Time {
	retentionScanCompletedMu.RLock()
	defer retentionScanCompletedMu.RUnlock()
	return retentionScanCompleted
}

func secondsSinceRetentionScanCompleted() any {
	return time.Since(getRetentionScanCompleted()) / time.Second
}
