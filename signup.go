package accounts

import (
	"net/http"
)

func (s *Service) handleSignup(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	creds := &Credentials{
		Email:    form["email"],
		Password: form["password"],
		Repeat:   form["repeat"],
	}
	if _, err := s.Reconciler.Register(r.Context(), creds); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusCreated, "We have sent activation instructions to your email address. "+
		"Please check your mail box in a few moments.")
}
