package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-chatrelay/internal/config"
	"github.com/npezzotti/go-chatrelay/internal/database"
	"github.com/npezzotti/go-chatrelay/internal/server"
)

type RelayApp struct {
	log            *log.Logger
	db             database.ChatRepository
	srv            *http.Server
	cs             *server.ChatServer
	signingKey     []byte
	allowedOrigins []string
	requireAuth    bool
}

// NewRelayApp registers the relay's routes on mux. Routes already on mux,
// such as the stats handler, are served alongside them.
func NewRelayApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ChatRepository, cfg *config.Config) *RelayApp {
	s := &RelayApp{
		log:            logger,
		db:             db,
		cs:             cs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
		requireAuth:    cfg.RequireAuth,
	}

	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /api/online-users", s.onlineUsers)
	mux.HandleFunc("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *RelayApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *RelayApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
