//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	oa "github.com/ydns/accounts"
)

// AutoMigrate runs database migrations for all account tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AccountModel{},
		&TokenModel{},
		&JournalEntryModel{},
		&DomainModel{},
	)
}

// Store implements oa.Store using GORM
type Store struct {
	db *gorm.DB
}

var _ oa.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) AutoMigrate() error {
	return AutoMigrate(s.db)
}

// =============================================================================
// AccountStore
// =============================================================================

func (s *Store) CreateAccount(ctx context.Context, account *oa.Account, initial *oa.Token) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(AccountToModel(account)).Error; err != nil {
			return err
		}
		if initial != nil {
			if err := tx.Create(TokenToModel(initial)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return accountCreateError(err)
}

func (s *Store) getAccount(ctx context.Context, column, value string) (*oa.Account, error) {
	var model AccountModel
	if err := s.db.WithContext(ctx).First(&model, column+" = ?", value).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToAccount(), nil
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*oa.Account, error) {
	return s.getAccount(ctx, "id", id)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*oa.Account, error) {
	return s.getAccount(ctx, "email", oa.NormalizeEmail(email))
}

func (s *Store) GetAccountByAlias(ctx context.Context, alias string) (*oa.Account, error) {
	return s.getAccount(ctx, "alias", alias)
}

func (s *Store) SaveAccount(ctx context.Context, account *oa.Account) error {
	return saveAccount(s.db.WithContext(ctx), account)
}

// saveAccount writes the mutable account fields. A map is used so that
// false and empty values are written too.
func saveAccount(tx *gorm.DB, account *oa.Account) error {
	res := tx.Model(&AccountModel{}).Where("id = ?", account.ID).Updates(map[string]any{
		"is_active":       account.IsActive,
		"credential_hash": account.CredentialHash,
		"timezone":        account.Timezone,
		"updated_at":      time.Now().UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return oa.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&TokenModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("account_id = ?", id).Delete(&JournalEntryModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("owner_id = ?", id).Delete(&DomainModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&AccountModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return oa.ErrNotFound
		}
		return nil
	})
}

// =============================================================================
// TokenStore
// =============================================================================

func (s *Store) CreateToken(ctx context.Context, token *oa.Token) error {
	return tokenCreateError(s.db.WithContext(ctx).Create(TokenToModel(token)).Error)
}

func (s *Store) CreateExclusiveToken(ctx context.Context, token *oa.Token, since time.Time) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the owning account so concurrent requests for it queue up
		// behind this check.
		var owner AccountModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&owner, "id = ?", token.AccountID).Error; err != nil {
			return notFound(err)
		}
		var count int64
		if err := tx.Model(&TokenModel{}).
			Where("account_id = ? AND kind = ? AND created_at >= ?", token.AccountID, string(token.Kind), since.UTC()).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return oa.ErrRequestAlreadyPending
		}
		return tx.Create(TokenToModel(token)).Error
	})
	return tokenCreateError(err)
}

// findToken looks up a live token by the alias of its account.
func findToken(tx *gorm.DB, kind oa.TokenKind, alias, value string, since time.Time) (*TokenModel, *AccountModel, error) {
	var account AccountModel
	if err := tx.First(&account, "alias = ?", alias).Error; err != nil {
		return nil, nil, notFound(err)
	}
	var token TokenModel
	err := tx.First(&token, "value = ? AND account_id = ? AND kind = ? AND created_at >= ?",
		value, account.ID, string(kind), since.UTC()).Error
	if err != nil {
		return nil, nil, notFound(err)
	}
	return &token, &account, nil
}

func (s *Store) GetToken(ctx context.Context, kind oa.TokenKind, alias, value string, since time.Time) (*oa.Token, error) {
	token, _, err := findToken(s.db.WithContext(ctx), kind, alias, value, since)
	if err != nil {
		return nil, err
	}
	return token.ToToken(), nil
}

func (s *Store) ConsumeToken(ctx context.Context, kind oa.TokenKind, alias, value string, since time.Time, fn func(*oa.Account) error) (*oa.Account, error) {
	var out *oa.Account
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		token, model, err := findToken(tx, kind, alias, value, since)
		if err != nil {
			return err
		}
		// Deleting first makes a concurrent consumer of the same token wait
		// and then find nothing to delete.
		res := tx.Where("value = ?", token.Value).Delete(&TokenModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return oa.ErrNotFound
		}
		account := model.ToAccount()
		if err := fn(account); err != nil {
			return err
		}
		if err := saveAccount(tx, account); err != nil {
			return err
		}
		out = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteAccountTokens(ctx context.Context, accountID string) error {
	return s.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&TokenModel{}).Error
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", before.UTC()).Delete(&TokenModel{})
	return res.RowsAffected, res.Error
}

// =============================================================================
// JournalStore
// =============================================================================

func (s *Store) AddJournalEntry(ctx context.Context, entry *oa.JournalEntry) error {
	return s.db.WithContext(ctx).Create(&JournalEntryModel{
		AccountID: entry.AccountID,
		Message:   entry.Message,
		CreatedAt: entry.CreatedAt.UTC(),
	}).Error
}

func (s *Store) ListJournal(ctx context.Context, accountID string, limit int) ([]*oa.JournalEntry, error) {
	var models []JournalEntryModel
	q := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*oa.JournalEntry, len(models))
	for i := range models {
		out[i] = models[i].ToJournalEntry()
	}
	return out, nil
}

func (s *Store) ClearJournal(ctx context.Context, accountID string) error {
	return s.db.WithContext(ctx).Where("account_id = ?", accountID).Delete(&JournalEntryModel{}).Error
}

// =============================================================================
// DomainStore
// =============================================================================

func (s *Store) CreateDomain(ctx context.Context, domain *oa.Domain) error {
	return domainCreateError(s.db.WithContext(ctx).Create(DomainToModel(domain)).Error)
}

func (s *Store) GetDomain(ctx context.Context, name string) (*oa.Domain, error) {
	var model DomainModel
	if err := s.db.WithContext(ctx).First(&model, "name = ?", name).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

func (s *Store) DeleteDomain(ctx context.Context, name string) error {
	res := s.db.WithContext(ctx).Where("name = ?", name).Delete(&DomainModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return oa.ErrNotFound
	}
	return nil
}

func (s *Store) ListDomainsByOwner(ctx context.Context, ownerID string) ([]*oa.Domain, error) {
	var models []DomainModel
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order("name").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*oa.Domain, len(models))
	for i := range models {
		out[i] = models[i].ToDomain()
	}
	return out, nil
}
