package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
)

func (s *Service) handleOAuthBegin(w http.ResponseWriter, r *http.Request) {
	target, err := s.Handshake.Begin(r.Context(), mux.Vars(r)["provider"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// handleOAuthCallback completes the round trip and admits the account. Every
// failure goes back to the login page carrying only a generic error code.
func (s *Service) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	if _, _, err := s.Handshake.Provider(provider); err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	ctx := r.Context()

	email, accountType, err := s.Handshake.Complete(ctx, provider, q.Get("state"), q.Get("code"))
	if err == nil {
		var account *Account
		account, err = s.Reconciler.ResolveOrCreate(ctx, email, accountType)
		if err == nil {
			var sess *Session
			sess, err = s.Auth.Admit(ctx, account, accountType)
			if err == nil {
				s.setAuthCookie(w, sess)
				http.Redirect(w, r, s.AfterLoginURL, http.StatusFound)
				return
			}
		} else {
			s.Metrics.RecordAuth(accountType, err)
		}
	}

	if errors.Is(err, ErrStoreUnavailable) {
		slog.Error("oauth login failed", "provider", provider, "error", err)
	}
	authErr, _ := PublicError(err)
	u, _ := url.Parse(s.LoginURL)
	v := u.Query()
	v.Set("error", authErr.Code)
	u.RawQuery = v.Encode()
	http.Redirect(w, r, u.String(), http.StatusFound)
}
