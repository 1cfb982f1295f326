package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/vladislavdragonenkov/cartsync/internal/domain"
)

// Authenticator сопоставляет bearer-токен владельцу корзины.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (ownerID string, err error)
}

// TokenAsOwner считает сам токен идентификатором владельца. Годится для локального запуска.
type TokenAsOwner struct{}

// Authenticate возвращает токен как ownerID.
func (TokenAsOwner) Authenticate(_ context.Context, token string) (string, error) {
	if token == "" {
		return "", domain.ErrUnauthorized
	}
	return token, nil
}

// StaticTokens сопоставляет токены владельцам по фиксированной таблице.
type StaticTokens map[string]string

// ParseStaticTokens разбирает строку вида "tok1:user-1,tok2:user-2".
func ParseStaticTokens(raw string) (StaticTokens, error) {
	tokens := StaticTokens{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, owner, ok := strings.Cut(pair, ":")
		token, owner = strings.TrimSpace(token), strings.TrimSpace(owner)
		if !ok || token == "" || owner == "" {
			return nil, fmt.Errorf("invalid token mapping %q, expected token:owner", pair)
		}
		tokens[token] = owner
	}
	return tokens, nil
}

// Authenticate ищет владельца токена.
func (t StaticTokens) Authenticate(_ context.Context, token string) (string, error) {
	owner, ok := t[token]
	if !ok {
		return "", domain.ErrUnauthorized
	}
	return owner, nil
}

type ownerCtx struct{}

func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerCtx{}).(string)
	return owner
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		owner, err := s.auth.Authenticate(r.Context(), strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerCtx{}, owner)))
	})
}
