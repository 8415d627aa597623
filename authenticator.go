package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session keys.
const (
	SessionKeyAccountID = "account_id"
	SessionKeyTimezone  = "timezone"
)

// SessionStore is the part of a session manager the core relies on.
// *scs.SessionManager satisfies it.
type SessionStore interface {
	Put(ctx context.Context, key string, val any)
	GetString(ctx context.Context, key string) string
	PopString(ctx context.Context, key string) string
	Remove(ctx context.Context, key string)
	RenewToken(ctx context.Context) error
	Destroy(ctx context.Context) error
}

// Session describes an admitted login.
type Session struct {
	AccountID string
	Alias     string
	Channel   AccountType
	Timezone  string

	// Token is a signed JWT carrying the account ID, for clients that cannot
	// hold the session cookie (and for sibling services).
	Token     string
	ExpiresAt time.Time
}

// Authenticator is the single place a session gets bound to an account. Every
// channel, local or OAuth, ends in Admit.
type Authenticator struct {
	Store   Store
	Session SessionStore
	Metrics *Metrics

	JWTSecretKey string
	JwtIssuer    string

	// How long an admitted session's token is valid. Defaults to 1 day.
	SessionTimeout time.Duration

	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

func (a *Authenticator) EnsureDefaults() *Authenticator {
	if a.Now == nil {
		a.Now = func() time.Time { return time.Now().UTC() }
	}
	if a.SessionTimeout <= 0 {
		a.SessionTimeout = 24 * time.Hour
	}
	if a.JwtIssuer == "" {
		a.JwtIssuer = "ydns-accounts"
	}
	return a
}

// Admit binds account to a fresh session. The session token is renewed so
// that an identifier planted before login cannot be reused after it.
func (a *Authenticator) Admit(ctx context.Context, account *Account, channel AccountType) (*Session, error) {
	a.EnsureDefaults()
	sess, err := a.admit(ctx, account, channel)
	a.Metrics.RecordAuth(channel, err)
	return sess, err
}

func (a *Authenticator) admit(ctx context.Context, account *Account, channel AccountType) (*Session, error) {
	if account == nil {
		return nil, ErrNotAuthenticated
	}
	if account.Type != channel {
		return nil, ErrAccountTypeMismatch
	}
	if !account.IsActive {
		slog.Info("login refused, account inactive", "account_id", account.ID, "channel", channel)
		return nil, ErrAccountInactive
	}

	if err := a.Session.RenewToken(ctx); err != nil {
		return nil, storeError("renew session", err)
	}
	a.Session.Put(ctx, SessionKeyAccountID, account.ID)
	if account.Timezone != "" {
		a.Session.Put(ctx, SessionKeyTimezone, account.Timezone)
	} else {
		a.Session.Remove(ctx, SessionKeyTimezone)
	}

	now := a.Now()
	sess := &Session{
		AccountID: account.ID,
		Alias:     account.Alias,
		Channel:   channel,
		Timezone:  account.Timezone,
		ExpiresAt: now.Add(a.SessionTimeout),
	}
	if a.JWTSecretKey != "" {
		tok, err := a.mintToken(account, now, sess.ExpiresAt)
		if err != nil {
			return nil, err
		}
		sess.Token = tok
	}

	recordJournal(ctx, a.Store, now, account.ID, fmt.Sprintf("Login via %s", channel.Label()))
	slog.Info("login", "account_id", account.ID, "channel", channel)
	return sess, nil
}

// Login checks a local email and password and admits the account. Unknown
// emails, wrong passwords and non-local accounts all yield
// ErrInvalidCredentials. A correct password on an account that is not yet
// activated yields ErrAccountInactive.
func (a *Authenticator) Login(ctx context.Context, email, password string) (*Session, error) {
	a.EnsureDefaults()
	account, err := a.Store.GetAccountByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		a.Metrics.RecordAuth(AccountTypeLocal, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, storeError("login", err)
	}
	if account.Type != AccountTypeLocal || !CheckPassword(account, password) {
		a.Metrics.RecordAuth(AccountTypeLocal, ErrInvalidCredentials)
		return nil, ErrInvalidCredentials
	}
	return a.Admit(ctx, account, AccountTypeLocal)
}

// Logout destroys the current session.
func (a *Authenticator) Logout(ctx context.Context) error {
	if err := a.Session.Destroy(ctx); err != nil {
		return storeError("logout", err)
	}
	return nil
}

// CurrentAccountID returns the account bound to the session, or "".
func (a *Authenticator) CurrentAccountID(ctx context.Context) string {
	return a.Session.GetString(ctx, SessionKeyAccountID)
}

// CurrentAccount loads the account bound to the session. ErrNotAuthenticated
// when there is none or it no longer exists.
func (a *Authenticator) CurrentAccount(ctx context.Context) (*Account, error) {
	id := a.CurrentAccountID(ctx)
	if id == "" {
		return nil, ErrNotAuthenticated
	}
	account, err := a.Store.GetAccountByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotAuthenticated
	}
	if err != nil {
		return nil, storeError("load session account", err)
	}
	return account, nil
}

// ApplyTimezone updates the timezone of the live session.
func (a *Authenticator) ApplyTimezone(ctx context.Context, tz string) {
	if tz == "" {
		a.Session.Remove(ctx, SessionKeyTimezone)
		return
	}
	a.Session.Put(ctx, SessionKeyTimezone, tz)
}

func (a *Authenticator) mintToken(account *Account, now, expires time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": account.ID,
		"iss": a.JwtIssuer,
		"exp": expires.Unix(),
		"iat": now.Unix(),
	})
	s, err := token.SignedString([]byte(a.JWTSecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return s, nil
}

// VerifyToken checks a token minted by Admit and returns its account ID.
func (a *Authenticator) VerifyToken(tokenString string) (string, error) {
	a.EnsureDefaults()
	if a.JWTSecretKey == "" {
		return "", errors.New("token verification disabled")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return []byte(a.JWTSecretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.JwtIssuer),
		jwt.WithTimeFunc(a.Now),
	)
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	if sub == "" {
		return "", errors.New("subject not found")
	}
	return sub, nil
}
