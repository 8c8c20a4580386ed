package web

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

// captureLog redirects the global logger to a buffer for the duration of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	buf := &bytes.Buffer{}
	orig := log.Logger
	log.Logger = zerolog.New(buf)
	t.Cleanup(func() { log.Logger = orig })
	return buf
}

func inboxRequest(method string) *http.Request {
	req := httptest.NewRequest(method, "/api/v1/inbox/swaks/7", nil)
	return mux.SetURLVars(req, map[string]string{"address": "swaks", "id": "7"})
}

func TestHandlerLogsInboxVars(t *testing.T) {
	logbuf := captureLog(t)
	var got *Context
	h := Handler(func(w http.ResponseWriter, req *http.Request, ctx *Context) error {
		got = ctx
		w.WriteHeader(http.StatusAccepted)
		return nil
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, inboxRequest("GET"))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "swaks", got.Vars["address"])
	assert.Contains(t, logbuf.String(), `"inbox":"swaks"`)
	assert.Contains(t, logbuf.String(), `"id":"7"`)
	assert.Contains(t, logbuf.String(), `"status":202`)
}

func TestHandlerErrorReturns500(t *testing.T) {
	logbuf := captureLog(t)
	before := expErrors.Value()
	h := Handler(func(w http.ResponseWriter, req *http.Request, ctx *Context) error {
		return errors.New("store offline")
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, inboxRequest("DELETE"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "store offline")
	assert.Equal(t, before+1, expErrors.Value())
	assert.Contains(t, logbuf.String(), `"level":"error"`)
	assert.Contains(t, logbuf.String(), `"inbox":"swaks"`)
}

func TestHandlerErrorAfterWrite(t *testing.T) {
	captureLog(t)
	h := Handler(func(w http.ResponseWriter, req *http.Request, ctx *Context) error {
		_, _ = w.Write([]byte("partial source"))
		return errors.New("read failed")
	})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, inboxRequest("GET"))

	// Headers were already sent, the body is left as written.
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "partial source", w.Body.String())
}

func TestStatusWriterHijackUnsupported(t *testing.T) {
	sw := &statusWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := sw.Hijack()
	assert.Error(t, err)
	assert.Equal(t, http.StatusOK, sw.Status())
}

func TestNoMatchHandler(t *testing.T) {
	logbuf := captureLog(t)
	before := expUnmatched.Value()

	w := httptest.NewRecorder()
	noMatchHandler(http.StatusNotFound, "No route").ServeHTTP(w,
		httptest.NewRequest("GET", "/api/v1/nothing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, before+1, expUnmatched.Value())
	assert.Contains(t, logbuf.String(), "/api/v1/nothing")
}
