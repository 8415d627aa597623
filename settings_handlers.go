package accounts

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

func (s *Service) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	account := AccountFromContext(r.Context())
	if err := s.Settings.ChangePassword(r.Context(), account, form["current"], form["new"], form["repeat"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Your password has been changed.")
}

func (s *Service) handleTimezone(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	account := AccountFromContext(r.Context())
	if err := s.Settings.SetTimezone(r.Context(), account, form["timezone"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"timezone": account.Timezone})
}

func (s *Service) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.Settings.DeleteAccount(r.Context(), AccountFromContext(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	s.setAuthCookie(w, nil)
	writeMessage(w, http.StatusOK, "Your account has been deleted.")
}

type journalEntryResponse struct {
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Service) handleJournal(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Settings.Journal(r.Context(), AccountFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]journalEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, journalEntryResponse{Message: e.Message, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func (s *Service) handleClearJournal(w http.ResponseWriter, r *http.Request) {
	if err := s.Settings.ClearJournal(r.Context(), AccountFromContext(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Journal cleared.")
}

type domainResponse struct {
	Name         string       `json:"name"`
	Access       AccessPolicy `json:"access_type"`
	Owner        string       `json:"owner,omitempty"`
	OwnerOnly    bool         `json:"owner_only"`
	Capabilities Capabilities `json:"permissions"`
	CreatedAt    time.Time    `json:"created_at"`
}

func (s *Service) toDomainResponse(r *http.Request, d *Domain, caps Capabilities) domainResponse {
	out := domainResponse{
		Name:         d.Name,
		Access:       d.Access,
		OwnerOnly:    d.OwnerOnly,
		Capabilities: caps,
		CreatedAt:    d.CreatedAt,
	}
	requester := AccountFromContext(r.Context())
	if d.PublicOwner || (requester != nil && requester.ID == d.OwnerID) {
		if owner, err := s.Store.GetAccountByID(r.Context(), d.OwnerID); err == nil {
			out.Owner = owner.Alias
		}
	}
	return out
}

func (s *Service) handleCreateDomain(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	owner := AccountFromContext(r.Context())
	domain, err := s.Domains.Create(r.Context(), owner, DomainRequest{
		Name:        form["name"],
		Access:      AccessPolicy(form["access_type"]),
		PublicOwner: formBool(form["public_owner"]),
		OwnerOnly:   formBool(form["owner_only"]),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.toDomainResponse(r, domain, CapsAll))
}

func (s *Service) handleListDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := s.Domains.List(r.Context(), AccountFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]domainResponse, 0, len(domains))
	for _, d := range domains {
		out = append(out, s.toDomainResponse(r, d, CapsAll))
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": out})
}

func (s *Service) handleDomainDetail(w http.ResponseWriter, r *http.Request) {
	domain, caps, err := s.Domains.Get(r.Context(), AccountFromContext(r.Context()), mux.Vars(r)["name"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.toDomainResponse(r, domain, caps))
}

func (s *Service) handleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	if err := s.Domains.Delete(r.Context(), AccountFromContext(r.Context()), mux.Vars(r)["name"]); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Domain deleted.")
}
