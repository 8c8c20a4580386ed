package web

import (
	"bufio"
	"errors"
	"expvar"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	expRequests  = new(expvar.Int)
	expErrors    = new(expvar.Int)
	expUnmatched = new(expvar.Int)
)

func init() {
	expHTTP.Set("Requests", expRequests)
	expHTTP.Set("HandlerErrors", expErrors)
	expHTTP.Set("Unmatched", expUnmatched)
}

// Handler is a function type that handles an HTTP request in nanomail.
type Handler func(http.ResponseWriter, *http.Request, *Context) error

// ServeHTTP builds the context and passes onto the real handler.  Each request is logged with the
// inbox address and message id taken from the route.
func (h Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	ctx, err := NewContext(req)
	if err != nil {
		log.Error().Str("module", "web").Err(err).Msg("HTTP failed to create context")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer ctx.Close()
	expRequests.Add(1)

	logger := requestLogger(req, ctx.Vars)
	sw := &statusWriter{ResponseWriter: w}
	start := time.Now()
	if err := h(sw, req, ctx); err != nil {
		expErrors.Add(1)
		logger.Error().Err(err).Msg("Error handling request")
		if sw.status == 0 {
			http.Error(sw, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	logger.Debug().Int("status", sw.Status()).Dur("elapsed", time.Since(start)).Msg("Request handled")
}

// requestLogger returns a logger carrying the request line and any inbox route vars.
func requestLogger(req *http.Request, vars map[string]string) zerolog.Logger {
	lc := log.With().Str("module", "web").Str("method", req.Method).Str("path", req.URL.Path)
	if address := vars["address"]; address != "" {
		lc = lc.Str("inbox", address)
	}
	if id := vars["id"]; id != "" {
		lc = lc.Str("id", id)
	}
	return lc.Logger()
}

// statusWriter remembers the status code sent through it.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	if sw.status == 0 {
		sw.status = code
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if sw.status == 0 {
		sw.status = http.StatusOK
	}
	return sw.ResponseWriter.Write(b)
}

// Status is the code written so far, 200 if nothing was written.
func (sw *statusWriter) Status() int {
	if sw.status == 0 {
		return http.StatusOK
	}
	return sw.status
}

// Hijack hands the connection to the inbox monitor websocket.
func (sw *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := sw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response does not support hijacking")
	}
	sw.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// noMatchHandler creates a handler for requests gorilla mux cannot route.
func noMatchHandler(statusCode int, message string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		expUnmatched.Add(1)
		log.Warn().Str("module", "web").Str("remote", req.RemoteAddr).Str("method", req.Method).
			Str("path", req.URL.Path).Int("status", statusCode).Msg(message)
		w.WriteHeader(statusCode)
	})
}

// requestLoggingWrapper logs each client connection before routing.
func requestLoggingWrapper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		log.Debug().Str("module", "web").Str("remote", req.RemoteAddr).Str("proto", req.Proto).
			Str("method", req.Method).Str("path", req.URL.Path).Msg("Request")
		next.ServeHTTP(w, req)
	})
}
