package logx

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// quietPaths are probed constantly and only logged at debug level.
var quietPaths = map[string]struct{}{
	"/health": {},
}

type requestUserKey struct{}

// SetRequestUser records the authenticated user on the request so the completion
// line carries it. It is a no-op outside RequestLogger.
func SetRequestUser(ctx context.Context, userID string) {
	if holder, ok := ctx.Value(requestUserKey{}).(*string); ok {
		*holder = userID
	}
}

// anonymizeIP keeps the /24 of an IPv4 address or the /64 of an IPv6 address.
func anonymizeIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	ip := net.ParseIP(addr)
	switch {
	case ip == nil:
		return "unknown_ip"
	case ip.IsLoopback():
		return "127.0.0.1"
	case ip.To4() != nil:
		return ip.To4()[:3].String() + ".0"
	default:
		return ip.Mask(net.CIDRMask(64, 128)).String()
	}
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// RequestLogger injects a request-scoped logger into the context and logs one line per
// request. Websocket upgrades are logged when they open and again when the connection
// ends, since the handler runs for the connection's lifetime.
func RequestLogger() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := Logger().With().
				Str("component", "http").
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote_ip", anonymizeIP(r.RemoteAddr)).
				Str("request_method", r.Method).
				Str("request_uri", r.RequestURI).
				Logger()

			userID := new(string)
			ctx := context.WithValue(logger.WithContext(r.Context()), requestUserKey{}, userID)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			upgrade := isWebSocketUpgrade(r)
			if upgrade {
				logger.Info().Msg("WebSocket upgrade requested")
			}

			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if upgrade && status == 0 {
				// Hijacked by the upgrader, which wrote the 101 itself.
				status = http.StatusSwitchingProtocols
			}

			event := logger.Info()
			switch {
			case status >= http.StatusInternalServerError:
				event = logger.Error()
			case status >= http.StatusBadRequest:
				event = logger.Warn()
			default:
				if _, quiet := quietPaths[r.URL.Path]; quiet {
					event = logger.Debug()
				}
			}

			if *userID != "" {
				event = event.Str("user_id", *userID)
			}

			msg := "Request completed"
			if upgrade && status == http.StatusSwitchingProtocols {
				msg = "WebSocket connection ended"
			}

			event.
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", time.Since(start)).
				Msg(msg)
		})
	}
}
