package accounts

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	// TokenValidity is how long an activation or reset token stays usable.
	TokenValidity = 24 * time.Hour

	TokenLength = 64
	AliasLength = 16
)

const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateSecureToken returns a 64 character crypto-random token value.
func GenerateSecureToken() (string, error) {
	return randomString(TokenLength)
}

// GenerateAlias returns a 16 character crypto-random account alias.
func GenerateAlias() (string, error) {
	return randomString(AliasLength)
}

func randomString(n int) (string, error) {
	// 248 is the largest multiple of 62 below 256; anything above is
	// rejected so every character is equally likely.
	const limit = 256 - 256%len(tokenAlphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate token: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// Ledger issues and consumes the single-use activation and password reset
// tokens. Every consumption and its effect on the account commit together.
type Ledger struct {
	Tokens  TokenStore
	Journal JournalStore
	Metrics *Metrics

	// Now defaults to time.Now in UTC.
	Now func() time.Time

	// MaxAttempts bounds regeneration of a token value that collided with an
	// existing one. Defaults to 5.
	MaxAttempts uint64
}

func (l *Ledger) EnsureDefaults() {
	if l.Now == nil {
		l.Now = func() time.Time { return time.Now().UTC() }
	}
	if l.MaxAttempts == 0 {
		l.MaxAttempts = 5
	}
}

// cutoff is the oldest creation time still inside the validity window.
func (l *Ledger) cutoff() time.Time {
	return l.Now().Add(-TokenValidity)
}

// Issue creates a token of the given kind for account. A password reset is
// refused with ErrRequestAlreadyPending while an unexpired one exists.
func (l *Ledger) Issue(ctx context.Context, kind TokenKind, account *Account) (*Token, error) {
	l.EnsureDefaults()
	tok, err := l.issue(ctx, kind, account)
	l.Metrics.RecordToken(kind, "issue", err)
	if err != nil {
		return nil, err
	}
	if kind == TokenKindPasswordReset {
		l.journal(ctx, account.ID, "Password reset request")
	}
	return tok, nil
}

func (l *Ledger) issue(ctx context.Context, kind TokenKind, account *Account) (*Token, error) {
	if account == nil || account.ID == "" {
		return nil, errors.New("issue token: account required")
	}
	var tok *Token
	err := withRegeneration(ctx, l.MaxAttempts, func(ctx context.Context) error {
		value, err := GenerateSecureToken()
		if err != nil {
			return err
		}
		tok = &Token{AccountID: account.ID, Value: value, Kind: kind, CreatedAt: l.Now()}
		if kind == TokenKindPasswordReset {
			return l.Tokens.CreateExclusiveToken(ctx, tok, l.cutoff())
		}
		return l.Tokens.CreateToken(ctx, tok)
	}, ErrDuplicateToken)
	switch {
	case err == nil:
		return tok, nil
	case errors.Is(err, ErrRequestAlreadyPending):
		slog.Info("password reset already pending", "account_id", account.ID)
		return nil, ErrRequestAlreadyPending
	}
	return nil, storeError("issue token", err)
}

// NewToken builds an unsaved token for a caller that stores it itself,
// together with a new account.
func (l *Ledger) NewToken(kind TokenKind, account *Account) (*Token, error) {
	l.EnsureDefaults()
	value, err := GenerateSecureToken()
	if err != nil {
		return nil, err
	}
	return &Token{AccountID: account.ID, Value: value, Kind: kind, CreatedAt: l.Now()}, nil
}

// Validate reports whether (alias, value) names a live token of kind without
// consuming it. Used to decide whether to show the set-password form.
func (l *Ledger) Validate(ctx context.Context, kind TokenKind, alias, value string) error {
	l.EnsureDefaults()
	if alias == "" || value == "" {
		return ErrTokenInvalidOrExpired
	}
	_, err := l.Tokens.GetToken(ctx, kind, alias, value, l.cutoff())
	if errors.Is(err, ErrNotFound) {
		return ErrTokenInvalidOrExpired
	}
	if err != nil {
		return storeError("validate token", err)
	}
	return nil
}

// Activate consumes an activation token and marks its account active.
func (l *Ledger) Activate(ctx context.Context, alias, value string) (*Account, error) {
	account, err := l.consume(ctx, TokenKindActivation, alias, value, func(a *Account) error {
		a.IsActive = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("account activated", "account_id", account.ID, "alias", account.Alias)
	l.journal(ctx, account.ID, "Activation")
	return account, nil
}

// ResetPassword consumes a password reset token and installs the new
// password in the same transaction.
func (l *Ledger) ResetPassword(ctx context.Context, alias, value, newPassword string) (*Account, error) {
	if err := ValidateNewPassword(newPassword, newPassword); err != nil {
		return nil, err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	account, err := l.consume(ctx, TokenKindPasswordReset, alias, value, func(a *Account) error {
		if a.Type != AccountTypeLocal {
			return ErrNotFound
		}
		a.CredentialHash = hash
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("password reset", "account_id", account.ID, "alias", account.Alias)
	l.journal(ctx, account.ID, "Password changed")
	return account, nil
}

func (l *Ledger) consume(ctx context.Context, kind TokenKind, alias, value string, fn func(*Account) error) (*Account, error) {
	l.EnsureDefaults()
	if alias == "" || value == "" {
		l.Metrics.RecordToken(kind, "consume", ErrTokenInvalidOrExpired)
		return nil, ErrTokenInvalidOrExpired
	}
	account, err := l.Tokens.ConsumeToken(ctx, kind, alias, value, l.cutoff(), fn)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		err = ErrTokenInvalidOrExpired
	default:
		err = storeError("consume token", err)
	}
	l.Metrics.RecordToken(kind, "consume", err)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Reap deletes tokens that have left the validity window. Correctness never
// depends on it; expired tokens are already ignored on lookup.
func (l *Ledger) Reap(ctx context.Context) (int64, error) {
	l.EnsureDefaults()
	n, err := l.Tokens.DeleteExpiredTokens(ctx, l.cutoff())
	if err != nil {
		return 0, storeError("reap tokens", err)
	}
	slog.Info("reaped expired tokens", "count", n)
	return n, nil
}

func (l *Ledger) journal(ctx context.Context, accountID, message string) {
	if l.Journal == nil {
		return
	}
	recordJournal(ctx, l.Journal, l.Now(), accountID, message)
}

// withRegeneration runs fn until it returns something other than one of the
// collision errors, at most attempts times. fn regenerates its random values
// on every call.
func withRegeneration(ctx context.Context, attempts uint64, fn func(ctx context.Context) error, collisions ...error) error {
	b := retry.WithMaxRetries(attempts-1, retry.NewConstant(time.Millisecond))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		for _, c := range collisions {
			if errors.Is(err, c) {
				return retry.RetryableError(err)
			}
		}
		return err
	})
}
