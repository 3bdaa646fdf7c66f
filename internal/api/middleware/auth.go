package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/cloo-solutions/docrag/internal/api"
	"github.com/cloo-solutions/docrag/internal/domain"
)

type contextKey string

const (
	ActorIDKey     contextKey = "actor_id"
	actorHolderKey contextKey = "actor_holder"
)

// actorHolder lets outer middleware see the actor resolved further down.
type actorHolder struct {
	id string
}

func withActorHolder(ctx context.Context, h *actorHolder) context.Context {
	return context.WithValue(ctx, actorHolderKey, h)
}

// TokenValidator resolves a bearer token to the acting user id.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

// StaticTokens validates tokens against a fixed actor→token table. Only
// SHA-256 digests are kept in memory.
type StaticTokens struct {
	digests map[string][sha256.Size]byte
}

func NewStaticTokens(actorTokens map[string]string) *StaticTokens {
	digests := make(map[string][sha256.Size]byte, len(actorTokens))
	for actor, token := range actorTokens {
		if actor == "" || token == "" {
			continue
		}
		digests[actor] = sha256.Sum256([]byte(token))
	}
	return &StaticTokens{digests: digests}
}

func (s *StaticTokens) ValidateToken(_ context.Context, token string) (string, error) {
	sum := sha256.Sum256([]byte(token))
	// every entry is compared so timing does not reveal which actor matched
	matched := ""
	for actor, digest := range s.digests {
		if subtle.ConstantTimeCompare(sum[:], digest[:]) == 1 {
			matched = actor
		}
	}
	if matched == "" {
		return "", domain.ErrInvalidAPIKey
	}
	return matched, nil
}

func BearerAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "invalid authorization format")
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")

			actorID, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				api.Error(w, http.StatusUnauthorized, "invalid api token")
				return
			}

			if holder, ok := r.Context().Value(actorHolderKey).(*actorHolder); ok {
				holder.id = actorID
			}
			ctx := context.WithValue(r.Context(), ActorIDKey, actorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetActorID(ctx context.Context) string {
	actorID, _ := ctx.Value(ActorIDKey).(string)
	return actorID
}
