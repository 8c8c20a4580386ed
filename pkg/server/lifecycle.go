// Package server wires the nanomail services together.
package server

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/zeusnotfound04/nanomail/pkg/config"
	"github.com/zeusnotfound04/nanomail/pkg/extract"
	"github.com/zeusnotfound04/nanomail/pkg/message"
	"github.com/zeusnotfound04/nanomail/pkg/msghub"
	"github.com/zeusnotfound04/nanomail/pkg/rest"
	"github.com/zeusnotfound04/nanomail/pkg/server/web"
	"github.com/zeusnotfound04/nanomail/pkg/storage"
)

// Services holds the configured and started services.
type Services struct {
	MsgHub           *msghub.Hub
	Manager          *message.StoreManager
	RetentionScanner *storage.RetentionScanner
	Store            storage.Store
	WebServer        *web.Server
}

// Prod wires up the production nanomail environment.  shutdownChan is closed if the web server
// fails.
func Prod(rootCtx context.Context, shutdownChan chan bool, conf *config.Root) (*Services, error) {
	// Configure storage.
	store, err := storage.FromConfig(conf.Storage)
	if err != nil {
		return nil, err
	}

	msgHub := msghub.New(conf.Web.MonitorHistory)
	go msgHub.Start(rootCtx)
	mmanager := &message.StoreManager{
		Store:     store,
		Hub:       msgHub,
		Extractor: &extract.Extractor{},
		Domain:    conf.Domain,
		Workers:   conf.Extract.Workers,
		Limit:     conf.Extract.BatchLimit,
		Timeout:   conf.Extract.Timeout,
	}

	// Start Retention scanner.
	retentionScanner := storage.NewRetentionScanner(conf.Storage, store, shutdownChan)
	retentionScanner.Start()

	// Configure routes and start HTTP server.
	prefix := web.MakePathPrefixer(conf.Web.BasePath)
	rest.SetupRoutes(web.Router.PathPrefix(prefix("/api/")).Subrouter())
	webServer := web.NewServer(conf, mmanager, msgHub)
	go webServer.Start(rootCtx, func() {
		log.Info().Str("module", "web").Str("phase", "startup").Msg("Web server ready")
	})
	go func() {
		select {
		case err, ok := <-webServer.Notify():
			if ok && err != nil {
				emergencyShutdown(shutdownChan)
			}
		case <-rootCtx.Done():
		}
	}()

	return &Services{
		MsgHub:           msgHub,
		Manager:          mmanager,
		RetentionScanner: retentionScanner,
		Store:            store,
		WebServer:        webServer,
	}, nil
}

// Close releases the store, if it holds resources.
func (s *Services) Close() {
	if c, ok := s.Store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Error().Str("module", "storage").Str("phase", "shutdown").Err(err).
				Msg("Failed to close store")
		}
	}
}

func emergencyShutdown(shutdownChan chan bool) {
	select {
	case <-shutdownChan:
	default:
		close(shutdownChan)
	}
}
