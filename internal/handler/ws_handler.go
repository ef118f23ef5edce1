package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"dmchat/internal/app/chat"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/limiter"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
// The identity comes from the token (header or "token" query parameter).
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rateLimiter.Allow(r) {
			logx.Warn("WebSocket connection rejected: Rate limit exceeded.", "ip", limiter.ClientIP(r))
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			logx.Warn("WebSocket request rejected: missing or invalid token")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := chat.NewClient(deps.Hub, conn, chat.ClientOptions{
			UserID:      identity.ID,
			TokenExpiry: identity.ExpiresAt(),
			JWTSecret:   deps.Config.JWTSecret,
			OnEvent:     deps.Chat.HandleInbound,
		})

		logx.Info("WebSocket connection established", "user_id", identity.ID, "conn_id", client.ID())

		client.Serve()
	}
}
