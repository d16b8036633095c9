package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"deckforge/internal/api/handlers"
	"deckforge/internal/api/websocket"
	"deckforge/internal/assign"
	"deckforge/internal/deck"
	"deckforge/internal/suggest"
)

// Server is the local REST and WebSocket front end.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	addr       string
	logger     *zap.Logger

	// WebSocket hub for real-time events
	wsHub *websocket.Hub

	system      *handlers.SystemHandler
	collection  *handlers.CollectionHandler
	decks       *handlers.DeckHandler
	suggestions *handlers.SuggestionHandler
}

// NewServer creates the API server and wires its routes.
func NewServer(addr string, state *deck.State, engine *assign.Engine, orchestrator *suggest.Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		router:      chi.NewRouter(),
		addr:        addr,
		logger:      logger,
		wsHub:       websocket.NewHub(logger),
		system:      handlers.NewSystemHandler(),
		collection:  handlers.NewCollectionHandler(state),
		decks:       handlers.NewDeckHandler(state, engine, logger),
		suggestions: handlers.NewSuggestionHandler(orchestrator, engine, logger),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	// Request ID for tracing
	s.router.Use(middleware.RequestID)

	// Real IP detection
	s.router.Use(middleware.RealIP)

	// Panic recovery
	s.router.Use(middleware.Recoverer)

	// Request timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS configuration
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Content-Type enforcement for POST/PUT/PATCH only (not GET/DELETE/OPTIONS)
	s.router.Use(s.jsonContentTypeMiddleware)
}

// jsonContentTypeMiddleware enforces application/json content-type for requests with bodies.
func (s *Server) jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only check content-type for methods that typically have request bodies
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			// Skip if there's no content
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			if contentType == "" || (contentType != "application/json" && !strings.HasPrefix(contentType, "application/json;")) {
				http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	s.router.Get("/ws", s.wsHub.ServeWs)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.system.Health)
		r.Get("/collection", s.collection.List)

		r.Route("/decks", func(r chi.Router) {
			r.Get("/", s.decks.List)
			r.Route("/{deckID}", func(r chi.Router) {
				r.Get("/", s.decks.Get)
				r.Delete("/", s.decks.Delete)
				r.Post("/cards", s.decks.AssignCards)
				r.Delete("/cards/{unitID}", s.decks.RemoveCard)
				r.Post("/suggestions", s.suggestions.Run)
				r.Post("/suggestions/apply", s.suggestions.Apply)
			})
		})
	})
}

// Start starts the WebSocket hub and the HTTP listener in goroutines.
func (s *Server) Start() error {
	go s.wsHub.Run()

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", zap.String("addr", s.addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the HTTP listener and the WebSocket hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Stop()
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.addr
}

// WebSocketHub returns the WebSocket hub for observer registration.
func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}

// NewWebSocketObserver creates an observer that forwards dispatcher events
// to connected WebSocket clients.
func (s *Server) NewWebSocketObserver() *websocket.Observer {
	return websocket.NewObserver(s.wsHub)
}

// Router exposes the chi router, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
