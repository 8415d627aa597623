package accounts

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

type accountContextKey struct{}

// AccountFromContext returns the account attached by ExtractAccount, or nil
// for anonymous requests.
func AccountFromContext(ctx context.Context) *Account {
	a, _ := ctx.Value(accountContextKey{}).(*Account)
	return a
}

// WithAccount attaches account to ctx.
func WithAccount(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// Middleware resolves the requester from the session first and then from a
// bearer token, in the Authorization header or the auth token cookie.
type Middleware struct {
	Auth                *Authenticator
	AuthTokenCookieName string
}

func (m *Middleware) requester(r *http.Request) (*Account, error) {
	ctx := r.Context()
	if id := m.Auth.CurrentAccountID(ctx); id != "" {
		return m.load(ctx, id)
	}

	var tokens []string
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			tokens = append(tokens, strings.TrimSpace(t))
		}
	}
	if m.AuthTokenCookieName != "" {
		for _, c := range r.CookiesNamed(m.AuthTokenCookieName) {
			if c.Value != "" {
				tokens = append(tokens, c.Value)
			}
		}
	}
	for _, t := range tokens {
		id, err := m.Auth.VerifyToken(t)
		if err != nil {
			slog.Debug("rejected auth token", "error", err)
			continue
		}
		return m.load(ctx, id)
	}
	return nil, nil
}

func (m *Middleware) load(ctx context.Context, id string) (*Account, error) {
	account, err := m.Auth.Store.GetAccountByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("load requester", err)
	}
	if !account.IsActive {
		return nil, nil
	}
	return account, nil
}

// ExtractAccount attaches the requester, if any, to the request context. It
// never rejects a request for being anonymous.
func (m *Middleware) ExtractAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, err := m.requester(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if account != nil {
			r = r.WithContext(WithAccount(r.Context(), account))
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureAccount is ExtractAccount that answers 401 for anonymous requests.
func (m *Middleware) EnsureAccount(next http.Handler) http.Handler {
	return m.ExtractAccount(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if AccountFromContext(r.Context()) == nil {
			writeError(w, r, ErrNotAuthenticated)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
