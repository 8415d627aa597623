package accounts

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Settings holds the signed-in account's own operations: password change,
// timezone preference, journal and deletion.
type Settings struct {
	Store Store
	Auth  *Authenticator

	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

func (s *Settings) EnsureDefaults() {
	if s.Now == nil {
		s.Now = func() time.Time { return time.Now().UTC() }
	}
}

// ChangePassword replaces the password of a local account after checking
// the current one.
func (s *Settings) ChangePassword(ctx context.Context, account *Account, current, password, repeat string) error {
	s.EnsureDefaults()
	if account.Type != AccountTypeLocal {
		return validationError(ErrCodeInvalidCreds, "This account has no password", "current")
	}
	if !CheckPassword(account, current) {
		return validationError(ErrCodeInvalidCreds, "The current password is wrong", "current")
	}
	if err := ValidateNewPassword(password, repeat); err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	account.CredentialHash = hash
	account.UpdatedAt = s.Now()
	if err := s.Store.SaveAccount(ctx, account); err != nil {
		return storeError("change password", err)
	}
	recordJournal(ctx, s.Store, s.Now(), account.ID, "Password changed")
	slog.Info("password changed", "account_id", account.ID)
	return nil
}

// SetTimezone stores an IANA timezone preference ("" clears it) and applies
// it to the live session.
func (s *Settings) SetTimezone(ctx context.Context, account *Account, tz string) error {
	s.EnsureDefaults()
	if tz != "" {
		if _, err := time.LoadLocation(tz); err != nil || tz == "Local" {
			return validationError(ErrCodeInvalidTimezone, "Unknown timezone", "timezone")
		}
	}
	account.Timezone = tz
	account.UpdatedAt = s.Now()
	if err := s.Store.SaveAccount(ctx, account); err != nil {
		return storeError("set timezone", err)
	}
	if s.Auth != nil {
		s.Auth.ApplyTimezone(ctx, tz)
	}
	return nil
}

// Journal lists the account's most recent journal entries, newest first.
func (s *Settings) Journal(ctx context.Context, account *Account) ([]*JournalEntry, error) {
	entries, err := s.Store.ListJournal(ctx, account.ID, DefaultJournalLimit)
	if err != nil {
		return nil, storeError("list journal", err)
	}
	return entries, nil
}

// ClearJournal removes every journal entry of the account.
func (s *Settings) ClearJournal(ctx context.Context, account *Account) error {
	if err := s.Store.ClearJournal(ctx, account.ID); err != nil {
		return storeError("clear journal", err)
	}
	return nil
}

// DeleteAccount removes the account with its tokens, journal and domains and
// ends the session. Outstanding activation and reset links stop working and
// the domain names become free.
func (s *Settings) DeleteAccount(ctx context.Context, account *Account) error {
	err := s.Store.DeleteAccount(ctx, account.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return storeError("delete account", err)
	}
	slog.Info("account deleted", "account_id", account.ID)
	if s.Auth != nil {
		if err := s.Auth.Logout(ctx); err != nil {
			slog.Warn("failed to end session of deleted account", "account_id", account.ID, "error", err)
		}
	}
	return nil
}
