package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// ActorHeader carries the acting user. It is asserted, not authenticated.
const ActorHeader = "X-Actor-ID"

type actorKey struct{}

func withActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// actorFromContext returns the asserted actor, empty when the header was not
// sent. The engine rejects empty actors on operations that need one.
func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorKey{}).(string)
	return actor
}

func newActorMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			actor := strings.TrimSpace(req.Header.Get(ActorHeader))
			if actor != "" && req.Method != http.MethodGet {
				logger.DebugContext(req.Context(), "request", "method", req.Method, "path", req.URL.Path, "actor", actor)
			}
			next.ServeHTTP(w, req.WithContext(withActor(req.Context(), actor)))
		})
	}
}
