// Package web provides the plumbing for the nanomail HTTP API.
package web

import (
	"context"
	"errors"
	"expvar"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"github.com/zeusnotfound04/nanomail/pkg/config"
	"github.com/zeusnotfound04/nanomail/pkg/message"
	"github.com/zeusnotfound04/nanomail/pkg/msghub"
)

var (
	// msgHub holds a reference to the message pub/sub system
	msgHub     *msghub.Hub
	manager    message.Manager
	rootConfig *config.Root

	// Router is shared between the web and rest packages.  It sends incoming requests to the
	// correct handler function.
	Router = mux.NewRouter()

	// ExpWebSocketConnectsCurrent tracks the number of open WebSockets
	ExpWebSocketConnectsCurrent = new(expvar.Int)

	expHTTP = expvar.NewMap("http")
)

func init() {
	expHTTP.Set("WebSocketConnectsCurrent", ExpWebSocketConnectsCurrent)
}

// Server defines an instance of the web server.
type Server struct {
	server *http.Server
	notify chan error
}

// NewServer sets up things for unit tests or the Start() method.
func NewServer(conf *config.Root, mm message.Manager, mh *msghub.Hub) *Server {
	rootConfig = conf
	manager = mm
	msgHub = mh

	prefix := MakePathPrefixer(conf.Web.BasePath)
	Router.Handle(prefix("/debug/vars"), expvar.Handler()).Methods("GET")
	Router.NotFoundHandler = noMatchHandler(http.StatusNotFound, "No route matches URI path")
	Router.MethodNotAllowedHandler = noMatchHandler(http.StatusMethodNotAllowed,
		"Method not allowed for URI path")

	return &Server{
		server: &http.Server{
			Addr:         conf.Web.Addr,
			Handler:      requestLoggingWrapper(Router),
			ReadTimeout:  conf.Web.ReadTimeout,
			WriteTimeout: conf.Web.WriteTimeout,
		},
		notify: make(chan error, 1),
	}
}

// Start begins listening for HTTP requests, readyFunc is called once the listener is open.
func (s *Server) Start(ctx context.Context, readyFunc func()) {
	slog := log.With().Str("module", "web").Str("phase", "startup").Str("addr", s.server.Addr).
		Logger()
	slog.Info().Msg("HTTP listening on tcp4")

	// We don't use ListenAndServe because it lacks a way to close the listener.
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		slog.Error().Err(err).Msg("HTTP failed to start TCP4 listener")
		s.notify <- err
		close(s.notify)
		return
	}

	// Start listener go routine.
	go s.serve(ctx, listener)
	readyFunc()

	// Wait for shutdown.
	<-ctx.Done()
	log.Debug().Str("module", "web").Str("phase", "shutdown").Msg("HTTP server shutting down on request")

	// Closing the listener will cause the serve() go routine to exit.
	if err := s.server.Shutdown(context.Background()); err != nil {
		log.Error().Str("module", "web").Str("phase", "shutdown").Err(err).
			Msg("Failed to close HTTP listener")
	}
}

// serve begins serving HTTP requests.
func (s *Server) serve(ctx context.Context, listener net.Listener) {
	// server.Serve blocks until we close the listener.
	err := s.server.Serve(listener)

	select {
	case <-ctx.Done():
		// Nop
	default:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Str("module", "web").Str("phase", "startup").Err(err).
				Msg("HTTP server failed")
			s.notify <- err
			close(s.notify)
		}
	}
}

// Notify allows the running HTTP server to be monitored for a fatal error.
func (s *Server) Notify() <-chan error {
	return s.notify
}
