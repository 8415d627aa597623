package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Reconciler maps a verified email address from any channel onto exactly one
// account, creating it when needed. Email uniqueness is left to the store's
// insert-or-fail; a lost creation race is recovered by reading the winner.
type Reconciler struct {
	Store  Store
	Ledger *Ledger
	Mailer Mailer

	// BaseURL prefixes the links put into mails, e.g. "https://ydns.io".
	BaseURL string

	SignupValidator CredentialsValidator

	// Now defaults to time.Now in UTC.
	Now func() time.Time

	// MaxAttempts bounds alias and token regeneration on collision.
	MaxAttempts uint64
}

func (r *Reconciler) EnsureDefaults() {
	if r.Now == nil {
		r.Now = func() time.Time { return time.Now().UTC() }
	}
	if r.MaxAttempts == 0 {
		r.MaxAttempts = 5
	}
	if r.SignupValidator == nil {
		r.SignupValidator = DefaultSignupValidator
	}
	if r.Ledger == nil {
		r.Ledger = &Ledger{Tokens: r.Store, Journal: r.Store, Now: r.Now}
	}
	r.Ledger.EnsureDefaults()
}

// ResolveOrCreate returns the account for email, provisioning an active
// account of accountType if none exists. An existing account is only
// returned when it was created through the same channel; otherwise the
// result is ErrAccountTypeMismatch. Local accounts are never provisioned
// here, they go through Register.
func (r *Reconciler) ResolveOrCreate(ctx context.Context, email string, accountType AccountType) (*Account, error) {
	r.EnsureDefaults()
	email = NormalizeEmail(email)
	if email == "" {
		return nil, validationError(ErrCodeMissingField, "Email is required", "email")
	}
	if !accountType.Valid() || accountType == AccountTypeLocal {
		return nil, fmt.Errorf("resolve account: %w: unsupported channel %q", ErrValidation, accountType)
	}

	account, err := r.Store.GetAccountByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		account, err = r.createAccount(ctx, email, accountType, "", nil)
		if errors.Is(err, ErrEmailTaken) {
			// Lost a concurrent signup for the same email.
			account, err = r.Store.GetAccountByEmail(ctx, email)
			if err != nil {
				return nil, storeError("resolve account", err)
			}
		} else if err != nil {
			return nil, err
		} else {
			r.welcome(account, nil)
		}
	default:
		return nil, storeError("resolve account", err)
	}

	if account.Type != accountType {
		slog.Warn("account type mismatch", "account_id", account.ID, "channel", accountType)
		return nil, ErrAccountTypeMismatch
	}
	if !account.IsActive {
		return nil, ErrAccountInactive
	}
	return account, nil
}

// Register performs a local signup. An email already in use is refused, never
// merged. The account starts inactive and is created together with its
// activation token, whose link is mailed in the welcome message.
func (r *Reconciler) Register(ctx context.Context, creds *Credentials) (*Account, error) {
	r.EnsureDefaults()
	if err := r.SignupValidator(creds); err != nil {
		return nil, err
	}
	email := NormalizeEmail(creds.Email)

	if _, err := r.Store.GetAccountByEmail(ctx, email); err == nil {
		return nil, ErrEmailInUse
	} else if !errors.Is(err, ErrNotFound) {
		return nil, storeError("register", err)
	}

	hash, err := HashPassword(creds.Password)
	if err != nil {
		return nil, err
	}
	var activation *Token
	account, err := r.createAccount(ctx, email, AccountTypeLocal, hash, func(a *Account) (*Token, error) {
		tok, err := r.Ledger.NewToken(TokenKindActivation, a)
		activation = tok
		return tok, err
	})
	if errors.Is(err, ErrEmailTaken) {
		return nil, ErrEmailInUse
	}
	if err != nil {
		return nil, err
	}
	r.Ledger.Metrics.RecordToken(TokenKindActivation, "issue", nil)
	r.welcome(account, activation)
	return account, nil
}

// RequestPasswordReset issues a password reset token for the local account
// owning email and mails the set-password link. OAuth accounts have no
// password and are answered like an unknown email.
func (r *Reconciler) RequestPasswordReset(ctx context.Context, email string) error {
	r.EnsureDefaults()
	if err := ValidateEmail(email); err != nil {
		return err
	}
	account, err := r.Store.GetAccountByEmail(ctx, NormalizeEmail(email))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return storeError("request password reset", err)
	}
	if err != nil || account.Type != AccountTypeLocal {
		return validationError(ErrCodeNotFound, "This email address is not known to us", "email")
	}
	tok, err := r.Ledger.Issue(ctx, TokenKindPasswordReset, account)
	if err != nil {
		return err
	}
	url := r.link("accounts/reset-password", account.Alias, tok.Value)
	sendAsync(r.Mailer, TemplateResetPassword, map[string]any{
		"email": account.Email,
		"alias": account.Alias,
		"token": tok.Value,
		"url":   url,
	}, account.Email)
	return nil
}

// createAccount inserts a new account, regenerating the alias (and the
// initial token, if any) on collision. ErrEmailTaken is returned unwrapped.
func (r *Reconciler) createAccount(ctx context.Context, email string, accountType AccountType, hash string, initial func(*Account) (*Token, error)) (*Account, error) {
	now := r.Now()
	account := &Account{
		ID:             uuid.NewString(),
		Email:          email,
		CredentialHash: hash,
		Type:           accountType,
		IsActive:       accountType != AccountTypeLocal,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := withRegeneration(ctx, r.MaxAttempts, func(ctx context.Context) error {
		alias, err := GenerateAlias()
		if err != nil {
			return err
		}
		account.Alias = alias
		var tok *Token
		if initial != nil {
			if tok, err = initial(account); err != nil {
				return err
			}
		}
		return r.Store.CreateAccount(ctx, account, tok)
	}, ErrAliasTaken, ErrDuplicateToken)
	if errors.Is(err, ErrEmailTaken) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, storeError("create account", err)
	}

	slog.Info("account created", "account_id", account.ID, "alias", account.Alias,
		"email", account.Email, "channel", accountType)
	message := "User account created"
	if accountType != AccountTypeLocal {
		message = fmt.Sprintf("Account created via %s login", accountType.Label())
	}
	recordJournal(ctx, r.Store, now, account.ID, message)
	return account, nil
}

func (r *Reconciler) welcome(account *Account, activation *Token) {
	data := map[string]any{
		"email": account.Email,
		"alias": account.Alias,
	}
	if activation != nil {
		data["token"] = activation.Value
		data["url"] = r.link("accounts/activate", account.Alias, activation.Value)
	}
	sendAsync(r.Mailer, welcomeTemplate(account.Type), data, account.Email)
}

func (r *Reconciler) link(parts ...string) string {
	return strings.TrimRight(r.BaseURL, "/") + "/" + strings.Join(parts, "/")
}
