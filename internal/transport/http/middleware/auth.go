package httpmw

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/cwrk-planet/spaces/internal/auth"
	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/pkg/errs"
	"github.com/cwrk-planet/spaces/pkg/httputil"
)

type ctxKey string

const ctxKeyUser ctxKey = "user"

type TokenVerifier interface {
	ParseAndValidate(token string) (*auth.AccessClaims, error)
}

// Auth требует Bearer-токен и кладёт пользователя из sub/name в контекст.
func Auth(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				httputil.Error(r.Context(), w, "missing bearer token", errs.ErrUnauthorized)
				return
			}
			user, err := Authenticate(v, token)
			if err != nil {
				httputil.Error(r.Context(), w, "invalid token", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// Authenticate validates a raw token; the ws endpoint passes it in the query.
func Authenticate(v TokenVerifier, token string) (domain.User, error) {
	claims, err := v.ParseAndValidate(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", errs.ErrUnauthorized, err)
	}
	user, err := auth.UserFromClaims(claims)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", errs.ErrUnauthorized, err)
	}
	return user, nil
}

func BearerToken(r *http.Request) (string, bool) {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func WithUser(ctx context.Context, u domain.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, u)
}

func UserFromCtx(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(ctxKeyUser).(domain.User)
	return u, ok && u.ID != ""
}
