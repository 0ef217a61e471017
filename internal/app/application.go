package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"classrelay/internal/api"
	"classrelay/internal/auth"
	"classrelay/internal/config"
	"classrelay/internal/directory"
	"classrelay/internal/hub"
	"classrelay/internal/registry"
	"classrelay/internal/relay"
	"classrelay/internal/websocket"
	"classrelay/pkg/database"
	"classrelay/pkg/interfaces"
)

// Application wires all components together. Initialization order:
// Directory → Registry → Router → Hub → API → HTTP.
type Application struct {
	config      *config.Config
	rosterStore *directory.Store
	registry    *registry.Registry
	router      *relay.Router
	hub         *hub.Hub
	apiServer   *api.Server
	httpServer  *http.Server
}

// NewApplication builds the application from configuration.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var (
		dir         interfaces.Directory
		rosterStore *directory.Store
	)
	switch cfg.Directory.Backend {
	case config.BackendSQLite:
		dbConfig := database.DefaultConfig()
		dbConfig.Path = cfg.Directory.Path
		store, err := directory.NewStore(dbConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open roster store: %w", err)
		}
		rosterStore = store
		dir = store
	case config.BackendHTTP:
		dir = directory.NewClient(cfg.Directory.BaseURL, cfg.Directory.Timeout)
	case config.BackendNone:
		// Course-gated joins fall back to the lookup failure policy.
	}

	reg := registry.NewRegistry()
	authorizer := auth.NewAuthorizer(dir, auth.Policy(cfg.Auth.OnLookupFailure), cfg.Auth.LookupTimeout)
	router := relay.NewRouter(reg, authorizer, cfg.Limits.EventsPerMinute)
	eventHub := hub.NewHub(reg, router)
	apiServer := api.NewServer(reg)
	wsHandler := websocket.NewHandler(eventHub, cfg.WebSocket.PingInterval, cfg.WebSocket.ReadTimeout)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiServer)
	mux.Handle("/health", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:    cfg.Addr(),
		Handler: mux,
	}

	return &Application{
		config:      cfg,
		rosterStore: rosterStore,
		registry:    reg,
		router:      router,
		hub:         eventHub,
		apiServer:   apiServer,
		httpServer:  httpServer,
	}, nil
}

// Start launches the hub and HTTP server. Returns once the server is
// accepting connections or startup fails.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("starting classrelay on %s", app.httpServer.Addr)

	if err := app.hub.Start(); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.hub.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("classrelay started")
		return nil
	case <-ctx.Done():
		_ = app.hub.Stop()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse order: HTTP → Hub → Store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("shutting down classrelay")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	if err := app.hub.Stop(); err != nil {
		log.Printf("hub shutdown error: %v", err)
	}
	if app.rosterStore != nil {
		if err := app.rosterStore.Close(); err != nil {
			log.Printf("roster store shutdown error: %v", err)
		}
	}

	log.Printf("classrelay shutdown complete")
	return nil
}

// GetAddr returns the address the HTTP server binds to.
func (app *Application) GetAddr() string {
	return app.httpServer.Addr
}
