package accounts

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// sessionResponse is the body answered on a successful login.
type sessionResponse struct {
	AccountID string    `json:"account_id"`
	Alias     string    `json:"alias"`
	Timezone  string    `json:"timezone,omitempty"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Service) handleLogin(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	email, password := form["email"], form["password"]
	if email == "" || password == "" {
		writeError(w, r, validationError(ErrCodeMissingField, "Email and password are required", "email"))
		return
	}
	sess, err := s.Auth.Login(r.Context(), email, password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.setAuthCookie(w, sess)
	writeJSON(w, http.StatusOK, sessionResponse{
		AccountID: sess.AccountID,
		Alias:     sess.Alias,
		Timezone:  sess.Timezone,
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (s *Service) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.Auth.Logout(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	s.setAuthCookie(w, nil)
	writeMessage(w, http.StatusOK, "You have been logged out.")
}

func (s *Service) handleActivate(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if _, err := s.Ledger.Activate(r.Context(), vars["alias"], vars["token"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Your account has been activated successfully.")
}

func (s *Service) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Reconciler.RequestPasswordReset(r.Context(), form["email"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Instructions on how to reset your password has been sent via email. "+
		"Please check your mail box in a few moments.")
}

// handleResetCheck tells whether a reset link is still usable, without
// consuming it.
func (s *Service) handleResetCheck(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.Ledger.Validate(r.Context(), TokenKindPasswordReset, vars["alias"], vars["token"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

func (s *Service) handleResetSet(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	form, err := readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := ValidateNewPassword(form["new"], form["repeat"]); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.Ledger.ResetPassword(r.Context(), vars["alias"], vars["token"], form["new"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Your password has been changed.")
}
