// Package metric keeps rolling per-minute histories of expvar values.
package metric

import (
	"container/list"
	"expvar"
	"strings"
	"sync"
	"time"
)

// HistoryLen is one hour of samples plus the value the first delta is measured against.
const HistoryLen = 61

// TickerFunc is the function signature accepted by AddTickerFunc, will be called once per minute.
type TickerFunc func()

var (
	tickerMu    sync.Mutex
	tickerFuncs []TickerFunc
	tickerOnce  sync.Once
)

// AddTickerFunc registers f to be called once per minute.  The ticker goroutine starts with the
// first registration.
func AddTickerFunc(f TickerFunc) {
	tickerMu.Lock()
	tickerFuncs = append(tickerFuncs, f)
	tickerMu.Unlock()
	tickerOnce.Do(func() {
		go runTicker(time.NewTicker(time.Minute).C)
	})
}

func runTicker(c <-chan time.Time) {
	for range c {
		tick()
	}
}

// tick calls every registered TickerFunc.
func tick() {
	tickerMu.Lock()
	funcs := make([]TickerFunc, len(tickerFuncs))
	copy(funcs, tickerFuncs)
	tickerMu.Unlock()
	for _, f := range funcs {
		f()
	}
}

// History is an expvar.Var rendering the last HistoryLen samples of another Var as a comma
// separated string.
type History struct {
	mu      sync.Mutex
	samples *list.List
}

var _ expvar.Var = &History{}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{samples: list.New()}
}

// Push samples v, discarding the oldest sample when full.
func (h *History) Push(v expvar.Var) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples.PushBack(v.String())
	if h.samples.Len() > HistoryLen {
		h.samples.Remove(h.samples.Front())
	}
}

// String returns the samples as a quoted JSON string.
func (h *History) String() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := make([]string, 0, h.samples.Len())
	for e := h.samples.Front(); e != nil; e = e.Next() {
		s = append(s, e.Value.(string))
	}
	return `"` + strings.Join(s, ",") + `"`
}
