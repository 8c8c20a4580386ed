package rest

import (
	"github.com/gorilla/mux"
	"github.com/zeusnotfound04/nanomail/pkg/server/web"
)

// SetupRoutes populates the routes for the REST interface
func SetupRoutes(r *mux.Router) {
	// API v1
	r.Path("/v1/inbox/{address}").Handler(
		web.Handler(InboxListV1)).Name("InboxListV1").Methods("GET")
	r.Path("/v1/inbox/{address}/{id}").Handler(
		web.Handler(InboxShowV1)).Name("InboxShowV1").Methods("GET")
	r.Path("/v1/inbox/{address}/{id}").Handler(
		web.Handler(InboxDeleteV1)).Name("InboxDeleteV1").Methods("DELETE")
	r.Path("/v1/inbox/{address}/{id}/source").Handler(
		web.Handler(InboxSourceV1)).Name("InboxSourceV1").Methods("GET")
	r.Path("/v1/monitor/{address}").Handler(
		web.Handler(MonitorInboxV1)).Name("MonitorInboxV1").Methods("GET")
}
