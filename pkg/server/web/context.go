package web

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/zeusnotfound04/nanomail/pkg/config"
	"github.com/zeusnotfound04/nanomail/pkg/message"
	"github.com/zeusnotfound04/nanomail/pkg/msghub"
)

// Context is passed into every request handler function.
type Context struct {
	Vars       map[string]string
	MsgHub     *msghub.Hub
	Manager    message.Manager
	RootConfig *config.Root
	IsJSON     bool
}

// Close the Context (currently does nothing)
func (c *Context) Close() {
	// Do nothing
}

// headerMatch returns true if the request header specified by name contains
// the specified value.  Case is ignored.
func headerMatch(req *http.Request, name string, value string) bool {
	name = http.CanonicalHeaderKey(name)
	value = strings.ToLower(value)

	for _, hv := range req.Header[name] {
		if value == strings.ToLower(hv) {
			return true
		}
	}
	return false
}

// NewContext returns a Context for the given HTTP Request.
func NewContext(req *http.Request) (*Context, error) {
	return &Context{
		Vars:       mux.Vars(req),
		MsgHub:     msgHub,
		Manager:    manager,
		RootConfig: rootConfig,
		IsJSON:     headerMatch(req, "Accept", "application/json"),
	}, nil
}
