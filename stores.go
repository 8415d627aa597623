package accounts

import (
	"context"
	"strings"
	"time"
)

// AccountType is the authentication channel an account is bound to. It is
// fixed at creation and must match the channel used to sign in.
type AccountType string

const (
	AccountTypeLocal    AccountType = "local"
	AccountTypeFacebook AccountType = "facebook"
	AccountTypeGitHub   AccountType = "github"
	AccountTypeGoogle   AccountType = "google"
)

// Valid reports whether t is one of the four known channels.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeLocal, AccountTypeFacebook, AccountTypeGitHub, AccountTypeGoogle:
		return true
	}
	return false
}

// Label is the human readable channel name used in journal entries.
func (t AccountType) Label() string {
	switch t {
	case AccountTypeFacebook:
		return "Facebook"
	case AccountTypeGitHub:
		return "GitHub"
	case AccountTypeGoogle:
		return "Google"
	}
	return "Email"
}

// Account is the canonical identity record.
type Account struct {
	ID             string
	Alias          string // public locator used in activation and reset links
	Email          string // stored case-folded
	CredentialHash string // empty for OAuth-only accounts
	Type           AccountType
	IsActive       bool
	Timezone       string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasPassword reports whether the account can sign in with a local password.
func (a *Account) HasPassword() bool {
	return a.CredentialHash != ""
}

// TokenKind distinguishes the two single-use token flows.
type TokenKind string

const (
	TokenKindActivation    TokenKind = "activation"
	TokenKindPasswordReset TokenKind = "password_reset"
)

// Token is a single-use bearer credential bound to exactly one account.
type Token struct {
	AccountID string
	Value     string
	Kind      TokenKind
	CreatedAt time.Time
}

// JournalEntry is one line of an account's audit journal.
type JournalEntry struct {
	AccountID string
	Message   string
	CreatedAt time.Time
}

// NormalizeEmail case-folds and trims an email address. All account lookups
// go through this so that matching is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AccountStore persists accounts. Email and alias uniqueness must be enforced
// by the backend itself (unique index or transactional marker), never by a
// read-then-write in the caller.
type AccountStore interface {
	// CreateAccount inserts the account and, when initial is non-nil, the
	// token in the same transaction. Returns ErrEmailTaken, ErrAliasTaken or
	// ErrDuplicateToken on the corresponding unique violation.
	CreateAccount(ctx context.Context, account *Account, initial *Token) error

	// GetAccountByID returns ErrNotFound when absent.
	GetAccountByID(ctx context.Context, id string) (*Account, error)

	// GetAccountByEmail looks up by normalized email; ErrNotFound when absent.
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)

	// GetAccountByAlias returns ErrNotFound when absent.
	GetAccountByAlias(ctx context.Context, alias string) (*Account, error)

	// SaveAccount updates the mutable fields: active flag, credential hash
	// and timezone.
	SaveAccount(ctx context.Context, account *Account) error

	// DeleteAccount removes the account together with its tokens, journal
	// and owned domains.
	DeleteAccount(ctx context.Context, id string) error
}

// TokenStore persists activation and password reset tokens.
type TokenStore interface {
	// CreateToken inserts a token, returning ErrDuplicateToken if the value
	// is already in use.
	CreateToken(ctx context.Context, token *Token) error

	// CreateExclusiveToken inserts a token unless the account already holds a
	// token of the same kind created at or after since, in which case it
	// returns ErrRequestAlreadyPending. Check and insert share a transaction.
	CreateExclusiveToken(ctx context.Context, token *Token, since time.Time) error

	// ConsumeToken finds the token by (account alias, value, kind) created at
	// or after since, applies fn to the owning account, saves the account and
	// deletes the token, all in one transaction. Returns ErrNotFound when no
	// such token exists; an error from fn aborts the transaction unchanged.
	ConsumeToken(ctx context.Context, kind TokenKind, alias, value string, since time.Time, fn func(*Account) error) (*Account, error)

	// GetToken returns the token with the same lookup rules as ConsumeToken
	// without consuming it.
	GetToken(ctx context.Context, kind TokenKind, alias, value string, since time.Time) (*Token, error)

	// DeleteAccountTokens removes every token owned by the account.
	DeleteAccountTokens(ctx context.Context, accountID string) error

	// DeleteExpiredTokens removes tokens created before the cutoff.
	DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// JournalStore persists the per-account audit journal.
type JournalStore interface {
	AddJournalEntry(ctx context.Context, entry *JournalEntry) error
	ListJournal(ctx context.Context, accountID string, limit int) ([]*JournalEntry, error)
	ClearJournal(ctx context.Context, accountID string) error
}

// DomainStore persists domains, the resources guarded by the permission
// evaluator.
type DomainStore interface {
	// CreateDomain returns ErrDomainExists when the name is taken.
	CreateDomain(ctx context.Context, domain *Domain) error
	GetDomain(ctx context.Context, name string) (*Domain, error)
	DeleteDomain(ctx context.Context, name string) error
	ListDomainsByOwner(ctx context.Context, ownerID string) ([]*Domain, error)
}

// Store combines every store the core needs. Both bundled backends
// (stores/gorm and stores/gae) implement it.
type Store interface {
	AccountStore
	TokenStore
	JournalStore
	DomainStore
}
