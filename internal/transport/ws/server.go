// Package ws serves the client-facing HTTP surface: a websocket carrying
// intents and pushed events, a plain HTTP intent endpoint, health and
// Prometheus metrics.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/clippy-oss/homie/convo-engine/internal/apperr"
	"github.com/clippy-oss/homie/convo-engine/internal/auth"
	"github.com/clippy-oss/homie/convo-engine/internal/domain"
	"github.com/clippy-oss/homie/convo-engine/internal/intent"
	"github.com/clippy-oss/homie/convo-engine/internal/logger"
	"github.com/clippy-oss/homie/convo-engine/internal/metrics"
)

const maxBodySize = 1 << 20

type ServerConfig struct {
	Address        string
	IntentRPS      float64
	IntentBurst    int
	AllowedOrigins []string
}

type Server struct {
	dispatcher *intent.Dispatcher
	eventBus   domain.EventBus
	auth       *auth.Authenticator
	hub        *Hub
	limiters   *limiterPool
	upgrader   websocket.Upgrader
	config     ServerConfig
	router     chi.Router
	http       *http.Server
	log        zerolog.Logger
}

func NewServer(
	dispatcher *intent.Dispatcher,
	eventBus domain.EventBus,
	authenticator *auth.Authenticator,
	config ServerConfig,
) *Server {
	if config.IntentRPS <= 0 {
		config.IntentRPS = 20
	}
	if config.IntentBurst <= 0 {
		config.IntentBurst = 40
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"*"}
	}

	s := &Server{
		dispatcher: dispatcher,
		eventBus:   eventBus,
		auth:       authenticator,
		hub:        NewHub(),
		limiters:   newLimiterPool(config.IntentRPS, config.IntentBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		config: config,
		log:    logger.Module("http"),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              config.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(s.log))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", s.health)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(s.auth))
		r.Get("/ws", s.serveWS)
		r.Post("/api/intents", s.postIntent)
	})
	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Start() error {
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop closes every websocket and waits for in-flight HTTP requests.
func (s *Server) Stop(ctx context.Context) error {
	s.hub.CloseAll()
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(userID, conn, s.limiters.newLimiter(), s.log)
	s.hub.add(c)
	events := s.eventBus.Subscribe(domain.Filter{Recipient: userID})
	s.log.Debug().Str("user", userID).Msg("websocket connected")

	go c.writePump(events)
	c.readPump(r.Context(), s.dispatcher)

	c.close()
	s.eventBus.Unsubscribe(events)
	s.hub.remove(c)
	s.log.Debug().Str("user", userID).Msg("websocket disconnected")
}

func (s *Server) postIntent(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserFrom(r.Context())
	if !s.limiters.Allow(userID) {
		metrics.RateLimitHits.WithLabelValues("http").Inc()
		writeJSON(w, http.StatusTooManyRequests, rateLimited(""))
		return
	}

	var req intent.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, apperr.InvalidArgument("malformed request body"))
		return
	}

	result, err := s.dispatcher.Execute(r.Context(), userID, req.Action, req.Params)
	if err != nil {
		writeJSON(w, StatusFor(err), intent.NewResponse(req.ID, nil, err))
		return
	}
	writeJSON(w, http.StatusOK, intent.NewResponse(req.ID, result, nil))
}
