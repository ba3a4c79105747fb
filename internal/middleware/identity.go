package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/shiva/ridedispatch/internal/model"
)

// Identity headers honoured when no token verifier is configured.
const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"
	HeaderChannel  = "X-Client-Channel"
)

// VerifiedToken is the subset of an ID token the API uses.
type VerifiedToken struct {
	UID    string
	Claims map[string]any
}

// TokenVerifier checks a bearer ID token.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*VerifiedToken, error)
}

type firebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier verifies tokens with the Firebase Admin SDK.
func NewFirebaseVerifier(client *auth.Client) TokenVerifier {
	return &firebaseVerifier{client: client}
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*VerifiedToken, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &VerifiedToken{UID: token.UID, Claims: token.Claims}, nil
}

type actorKey struct{}

// WithActor returns ctx carrying a.
func WithActor(ctx context.Context, a model.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the authenticated caller.
func ActorFrom(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(model.Actor)
	return a, ok
}

// parseRole accepts only roles a caller may claim. The system role is
// reserved for in-process sweepers.
func parseRole(raw string) (model.UserRole, bool) {
	switch r := model.UserRole(strings.ToLower(strings.TrimSpace(raw))); r {
	case model.RolePassenger, model.RoleDriver, model.RoleOperator, model.RoleAdmin:
		return r, true
	case "":
		return model.RolePassenger, true
	}
	return "", false
}

// Identity resolves the caller and stores it in the request context.
//
// With a verifier, an "Authorization: Bearer <ID token>" header is required
// and the role comes from the token's "role" claim. Without one, the
// X-User-Id and X-User-Role headers set by the upstream gateway are trusted.
// The channel always comes from X-Client-Channel.
func Identity(verifier TokenVerifier, log *zap.Logger) func(http.Handler) http.Handler {
	log = log.Named("identity")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var (
				id      string
				rawRole string
			)

			if verifier != nil {
				header := r.Header.Get("Authorization")
				token, ok := strings.CutPrefix(header, "Bearer ")
				if !ok || strings.TrimSpace(token) == "" {
					writeError(w, http.StatusUnauthorized, "unauthorized", "Bearer token required.")
					return
				}
				verified, err := verifier.VerifyIDToken(r.Context(), strings.TrimSpace(token))
				if err != nil {
					log.Debug("token rejected", zap.Error(err))
					writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid token.")
					return
				}
				id = verified.UID
				rawRole, _ = verified.Claims["role"].(string)
			} else {
				id = strings.TrimSpace(r.Header.Get(HeaderUserID))
				rawRole = r.Header.Get(HeaderUserRole)
			}

			if id == "" {
				writeError(w, http.StatusUnauthorized, "unauthorized", "Caller identity required.")
				return
			}
			role, ok := parseRole(rawRole)
			if !ok {
				writeError(w, http.StatusForbidden, "forbidden", "Unknown role.")
				return
			}

			actor := model.Actor{ID: id, Role: role, Channel: r.Header.Get(HeaderChannel)}
			if actor.Channel == "" {
				actor.Channel = "api"
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}
