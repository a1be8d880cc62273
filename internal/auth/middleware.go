package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kuitang/shared-notes/internal/obs"
)

type contextKey string

const userIDKey contextKey = "userID"

// ErrMissingToken is returned when the Authorization header has no token field.
var ErrMissingToken = errors.New("missing bearer token")

// Authenticator turns an Authorization header into a user id.
type Authenticator struct {
	tokens TokenCodec
}

// NewAuthenticator creates an authenticator that verifies tokens with codec.
func NewAuthenticator(codec TokenCodec) *Authenticator {
	return &Authenticator{tokens: codec}
}

// Authenticate extracts the token from an Authorization header value and
// verifies it. The header is split on whitespace and the second field is the
// token; the scheme word is not checked, so "Bearer x" and "Token x" both work.
func (a *Authenticator) Authenticate(header string) (string, error) {
	fields := strings.Fields(header)
	if len(fields) < 2 {
		return "", ErrMissingToken
	}
	claims, err := a.tokens.Verify(fields[1])
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// RequireAuth rejects requests without a valid token with 401 and otherwise
// stores the user id in the request context.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			obs.From(r.Context()).With("pkg", "auth").Debug("authentication failed", "error", err)
			writeJSON(w, http.StatusUnauthorized, messageResponse{Message: MsgUnauthorized})
			return
		}

		ctx := obs.WithUserID(r.Context(), userID)
		ctx = WithUserID(ctx, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithUserID returns a context carrying an authenticated user id.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the authenticated user id, or "" if none.
func UserIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(userIDKey).(string)
	return userID
}
