/*
Package handler provides the HTTP handlers and routing setup for the DM Chat Server.

This file defines the main Router, applying necessary middleware like logging, CORS,
and IP-based rate limiting before delegating requests to specific handlers (API and WebSocket).
*/
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"golang.org/x/time/rate"

	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/limiter"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/resp"
)

const (
	SignupRate  = 0.05
	SignupBurst = 3
	LoginRate   = 0.2
	LoginBurst  = 5
	WSRate      = 1
	WSBurst     = 10
)

// Router sets up the main HTTP routing table (chi.Router) for the application.
// It initializes IP-based rate limiters, configures CORS, and applies global and per-route middleware.
// Background limiter cleanup stops when ctx is done.
func Router(ctx context.Context, deps *AppDeps) http.Handler {
	signupLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(SignupRate), SignupBurst)
	loginLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(LoginRate), LoginBurst)
	wsLimiter := limiter.NewIPRateLimiter(ctx, rate.Limit(WSRate), WSBurst)

	r := chi.NewRouter()

	allowedOrigins := make(map[string]struct{})
	for _, origin := range deps.Config.AllowedOrigins {
		allowedOrigins[origin] = struct{}{}
	}

	var wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if deps.Config.IsDevelopment() {
				return true
			}

			origin := r.Header.Get("Origin")
			if _, ok := allowedOrigins[origin]; ok {
				return true
			}

			logx.Warn("WebSocket connection rejected: Origin not allowed.", "origin", origin)
			return false
		},
	}

	corsAllowedOrigins := []string{}
	if deps.Config.IsDevelopment() {
		corsAllowedOrigins = []string{"*"}
	} else if len(deps.Config.AllowedOrigins) > 0 {
		corsAllowedOrigins = deps.Config.AllowedOrigins
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-PoW-Token"},
		ExposedHeaders:   []string{},
		AllowCredentials: true,
		MaxAge:           300,
	})
	r.Use(c.Handler)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logx.RequestLogger())
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		data := map[string]string{
			"status":  "ok",
			"service": "DM Chat Server",
		}
		resp.RespondSuccess(w, r, data)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret))

		api.Get("/status", func(w http.ResponseWriter, r *http.Request) {
			resp.RespondSuccess(w, r, map[string]any{
				"status":      "ok",
				"onlineUsers": len(deps.Hub.OnlineUserIDs()),
			})
		})

		api.Route("/auth", func(auth chi.Router) {
			auth.With(signupLimiter.Middleware).Post("/signup", HandleSignup(deps))
			auth.With(loginLimiter.Middleware).Post("/login", HandleLogin(deps))
			auth.Get("/challenge", HandleGetChallenge(deps))
			auth.Post("/challenge", HandleSolveChallenge(deps))

			auth.Group(func(private chi.Router) {
				private.Use(jwt.RequireIdentity)
				private.Get("/check", HandleCheckAuth(deps))
				private.Put("/update-profile-info", HandleUpdateProfileInfo(deps))
				private.Put("/update-profile-image", HandleUpdateProfileImage(deps))
			})
		})

		api.Route("/messages", func(messages chi.Router) {
			messages.Use(jwt.RequireIdentity)
			messages.Get("/users", HandleGetRoster(deps))
			messages.Post("/send/{id}", HandleSendMessage(deps))
			messages.Put("/mark/{id}", HandleMarkSeen(deps))
			messages.Get("/{id}", HandleGetMessages(deps))
		})
	})

	r.With(jwt.IdentityExtractorMiddleware(deps.Config.JWTSecret)).
		Get("/ws", HandleWebSocket(deps, wsUpgrader, wsLimiter))

	return r
}
