package rest

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zeusnotfound04/nanomail/pkg/config"
	"github.com/zeusnotfound04/nanomail/pkg/message"
	"github.com/zeusnotfound04/nanomail/pkg/msghub"
	"github.com/zeusnotfound04/nanomail/pkg/server/web"
)

func testRestGet(url string) (*httptest.ResponseRecorder, error) {
	return testRestRequest("GET", url)
}

func testRestRequest(method, url string) (*httptest.ResponseRecorder, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Accept", "application/json")
	w := httptest.NewRecorder()
	web.Router.ServeHTTP(w, req)
	return w, nil
}

var setupRoutesOnce sync.Once

// setupWebServer points the shared router at mm and hub, returning captured log output.
func setupWebServer(t *testing.T, mm message.Manager, hub *msghub.Hub) *bytes.Buffer {
	t.Helper()
	// Capture log output
	buf := new(bytes.Buffer)
	log.Logger = zerolog.New(zerolog.SyncWriter(buf))

	// Routes live on the shared router, register them once.
	setupRoutesOnce.Do(func() {
		SetupRoutes(web.Router.PathPrefix("/api/").Subrouter())
	})
	cfg := &config.Root{Web: config.Web{Addr: "127.0.0.1:0"}}
	web.NewServer(cfg, mm, hub)
	return buf
}

func decodedNumberEquals(t *testing.T, json any, path string, want float64) {
	t.Helper()
	els := strings.Split(path, "/")
	val, msg := getDecodedPath(json, els...)
	if msg != "" {
		t.Errorf("JSON result%s", msg)
		return
	}
	got, ok := val.(float64)
	if ok {
		if got == want {
			return
		}
	}
	t.Errorf("JSON result/%s == %v (%T) %v (int64),\nwant: %v / %v",
		path, val, val, int64(got), want, int64(want))
}

func decodedStringEquals(t *testing.T, json any, path string, want string) {
	t.Helper()
	els := strings.Split(path, "/")
	val, msg := getDecodedPath(json, els...)
	if msg != "" {
		t.Errorf("JSON result%s", msg)
		return
	}
	if got, ok := val.(string); ok {
		if got == want {
			return
		}
	}
	t.Errorf("JSON result/%s == %v (%T), want: %v", path, val, val, want)
}

// getDecodedPath recursively navigates the specified path, returing the requested element.  If
// something goes wrong, the returned string will contain an explanation.
//
// Named path elements require the parent element to be a map[string]any, numbers in square
// brackets require the parent element to be a []any.
//
//	getDecodedPath(o, "users", "[1]", "name")
//
// is equivalent to the JavaScript:
//
//	o.users[1].name
func getDecodedPath(o any, path ...string) (any, string) {
	if len(path) == 0 {
		return o, ""
	}
	if o == nil {
		return nil, " is nil"
	}
	key := path[0]
	present := false
	var val any
	if key[0] == '[' {
		// Expecting slice.
		index, err := strconv.Atoi(strings.Trim(key, "[]"))
		if err != nil {
			return nil, "/" + key + " is not a slice index"
		}
		oslice, ok := o.([]any)
		if !ok {
			return nil, " is not a slice"
		}
		if index >= len(oslice) {
			return nil, "/" + key + " is out of bounds"
		}
		val, present = oslice[index], true
	} else {
		// Expecting map.
		omap, ok := o.(map[string]any)
		if !ok {
			return nil, " is not a map"
		}
		val, present = omap[key]
	}
	if !present {
		return nil, "/" + key + " is missing"
	}
	result, msg := getDecodedPath(val, path[1:]...)
	if msg != "" {
		return nil, "/" + key + msg
	}
	return result, ""
}
