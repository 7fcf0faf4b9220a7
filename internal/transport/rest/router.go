package rest

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"guesswho/internal/service"
	"guesswho/internal/transport/rest/handler"
	"guesswho/internal/transport/rest/middleware"
	"guesswho/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService    *service.AuthService
	SessionService *service.SessionService
	WSHub          *ws.Hub
	Stream         *ws.Stream

	// Redis backs the rate limiter; nil disables it.
	Redis           *redis.Client
	RateLimitMax    int
	RateLimitWindow time.Duration

	CORSAllowedOrigins []string
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService)
	sessionHandler := handler.NewSessionHandler(c.SessionService)
	wsHandler := ws.NewHandler(c.WSHub, c.Stream, c.AuthService, c.SessionService)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.CORSAllowedOrigins))
	r.Use(middleware.Metrics)
	r.Use(middleware.RequestLogger)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(middleware.RateLimit(c.Redis, c.RateLimitMax, c.RateLimitWindow))

	// Public routes
	v1.HandleFunc("/auth/token", authHandler.IssueToken).Methods("POST", "OPTIONS")

	// Subscriptions (token in query param)
	v1.HandleFunc("/ws/sessions/{sessionId}", wsHandler.SessionWS).Methods("GET")
	v1.HandleFunc("/sessions/{sessionId}/events", wsHandler.SessionEvents).Methods("GET")

	// Catalog (token optional)
	openRoutes := v1.NewRoute().Subrouter()
	openRoutes.Use(authMW.OptionalCaller)
	openRoutes.HandleFunc("/roles", sessionHandler.ListRoles).Methods("GET", "OPTIONS")

	// Caller routes (require a caller token)
	callerRoutes := v1.NewRoute().Subrouter()
	callerRoutes.Use(authMW.RequireCaller)

	callerRoutes.HandleFunc("/sessions", sessionHandler.Create).Methods("POST", "OPTIONS")
	callerRoutes.HandleFunc("/sessions/instance/{instanceId}", sessionHandler.GetByInstance).Methods("GET", "OPTIONS")
	callerRoutes.HandleFunc("/players/{playerId}/role", sessionHandler.AssignRole).Methods("POST", "OPTIONS")
	callerRoutes.HandleFunc("/sessions/{sessionId}/guesses", sessionHandler.SubmitGuesses).Methods("POST", "OPTIONS")
	callerRoutes.HandleFunc("/sessions/{sessionId}/next-round", sessionHandler.AdvanceRound).Methods("POST", "OPTIONS")
	callerRoutes.HandleFunc("/sessions/{sessionId}/results", sessionHandler.Results).Methods("GET", "OPTIONS")
	callerRoutes.HandleFunc("/sessions/{sessionId}/leaderboard", sessionHandler.Leaderboard).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(allowedOrigins []string) mux.MiddlewareFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowAll:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
