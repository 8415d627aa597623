package accounts

import (
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"

	"github.com/ydns/accounts/oauth2"
)

// Service wires the account components together and serves them over HTTP.
type Service struct {
	Store   Store
	Session *scs.SessionManager
	Mailer  Mailer
	Metrics *Metrics

	// BaseURL is the externally visible root, used in mailed links.
	BaseURL string

	JWTSecretKey string

	// AuthTokenCookieName is the cookie carrying the session JWT. Defaults to
	// "ydns_auth".
	AuthTokenCookieName string

	// LoginURL is where failed OAuth round trips are sent. Defaults to
	// "/accounts/login".
	LoginURL string
	// AfterLoginURL is where successful OAuth round trips are sent. Defaults
	// to "/".
	AfterLoginURL string

	// Limiter throttles login, signup and reset requests per client IP.
	// Nil disables throttling.
	Limiter RateLimiter
	// TrustedProxies are the reverse proxies whose X-Forwarded-For and
	// X-Real-IP headers identify the client. Empty means the peer address
	// is always used.
	TrustedProxies TrustedProxies

	Providers []oauth2.Provider

	// Now defaults to time.Now in UTC.
	Now func() time.Time

	Ledger     *Ledger
	Reconciler *Reconciler
	Auth       *Authenticator
	Handshake  *Handshake
	Settings   *Settings
	Domains    *Domains
	Middleware *Middleware
}

// EnsureDefaults builds every component that is not set yet from the shared
// fields.
func (s *Service) EnsureDefaults() *Service {
	if s.Now == nil {
		s.Now = func() time.Time { return time.Now().UTC() }
	}
	if s.Session == nil {
		s.Session = scs.New()
	}
	if s.AuthTokenCookieName == "" {
		s.AuthTokenCookieName = "ydns_auth"
	}
	if s.LoginURL == "" {
		s.LoginURL = "/accounts/login"
	}
	if s.AfterLoginURL == "" {
		s.AfterLoginURL = "/"
	}
	if s.Ledger == nil {
		s.Ledger = &Ledger{Tokens: s.Store, Journal: s.Store, Metrics: s.Metrics, Now: s.Now}
	}
	s.Ledger.EnsureDefaults()
	if s.Reconciler == nil {
		s.Reconciler = &Reconciler{Store: s.Store, Ledger: s.Ledger, Mailer: s.Mailer, BaseURL: s.BaseURL, Now: s.Now}
	}
	s.Reconciler.EnsureDefaults()
	if s.Auth == nil {
		s.Auth = &Authenticator{
			Store:          s.Store,
			Session:        s.Session,
			Metrics:        s.Metrics,
			JWTSecretKey:   s.JWTSecretKey,
			SessionTimeout: s.Session.Lifetime,
			Now:            s.Now,
		}
	}
	s.Auth.EnsureDefaults()
	if s.Handshake == nil {
		s.Handshake = NewHandshake(s.Session, s.Providers...)
	}
	if s.Settings == nil {
		s.Settings = &Settings{Store: s.Store, Auth: s.Auth, Now: s.Now}
	}
	s.Settings.EnsureDefaults()
	if s.Domains == nil {
		s.Domains = &Domains{Store: s.Store, Now: s.Now}
	}
	s.Domains.EnsureDefaults()
	if s.Middleware == nil {
		s.Middleware = &Middleware{Auth: s.Auth, AuthTokenCookieName: s.AuthTokenCookieName}
	}
	return s
}

// Handler returns the HTTP surface with session loading applied.
func (s *Service) Handler() http.Handler {
	return s.Session.LoadAndSave(s.NewRouter())
}

// NewRouter mounts the account and domain routes.
func (s *Service) NewRouter() *mux.Router {
	s.EnsureDefaults()
	r := mux.NewRouter()
	limit := func(scope string, h http.HandlerFunc) http.Handler {
		return LimitByIP(s.Limiter, s.TrustedProxies, scope, h)
	}
	authed := func(h http.HandlerFunc) http.Handler {
		return s.Middleware.EnsureAccount(h)
	}

	a := r.PathPrefix("/accounts").Subrouter()
	a.Handle("/signup", limit("signup", s.handleSignup)).Methods(http.MethodPost)
	a.HandleFunc("/activate/{alias}/{token}", s.handleActivate).Methods(http.MethodGet)
	a.Handle("/login", limit("login", s.handleLogin)).Methods(http.MethodPost)
	a.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	a.Handle("/reset-password", limit("reset", s.handleResetRequest)).Methods(http.MethodPost)
	a.HandleFunc("/reset-password/{alias}/{token}", s.handleResetCheck).Methods(http.MethodGet)
	a.HandleFunc("/reset-password/{alias}/{token}", s.handleResetSet).Methods(http.MethodPost)
	a.HandleFunc("/oauth/{provider}", s.handleOAuthBegin).Methods(http.MethodPost)
	a.HandleFunc("/oauth/{provider}", s.handleOAuthCallback).Methods(http.MethodGet)

	st := a.PathPrefix("/settings").Subrouter()
	st.Handle("/change-password", authed(s.handleChangePassword)).Methods(http.MethodPost)
	st.Handle("/timezone", authed(s.handleTimezone)).Methods(http.MethodPost)
	st.Handle("/delete-account", authed(s.handleDeleteAccount)).Methods(http.MethodPost)
	st.Handle("/journal", authed(s.handleJournal)).Methods(http.MethodGet)
	st.Handle("/journal/clear", authed(s.handleClearJournal)).Methods(http.MethodPost)

	d := r.PathPrefix("/domains").Subrouter()
	d.Handle("", authed(s.handleListDomains)).Methods(http.MethodGet)
	d.Handle("", authed(s.handleCreateDomain)).Methods(http.MethodPost)
	d.Handle("/{name}", s.Middleware.ExtractAccount(http.HandlerFunc(s.handleDomainDetail))).Methods(http.MethodGet)
	d.Handle("/{name}/delete", authed(s.handleDeleteDomain)).Methods(http.MethodPost)

	return r
}

// setAuthCookie sets (or, with an empty token, clears) the auth token cookie.
func (s *Service) setAuthCookie(w http.ResponseWriter, sess *Session) {
	c := &http.Cookie{
		Name:     s.AuthTokenCookieName,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.Session.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if sess == nil || sess.Token == "" {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	} else {
		c.Value = sess.Token
		c.Expires = sess.ExpiresAt
	}
	http.SetCookie(w, c)
}
