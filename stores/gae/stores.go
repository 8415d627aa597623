//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	oa "github.com/ydns/accounts"
)

// Kind constants for Datastore entities
const (
	KindAccount      = "Account"
	KindAccountEmail = "AccountEmail"
	KindAccountAlias = "AccountAlias"
	KindToken        = "Token"
	KindJournal      = "JournalEntry"
	KindDomain       = "Domain"
)

// Datastore caps mutations per commit at 500.
const batchSize = 500

// Store implements oa.Store using Google Cloud Datastore
type Store struct {
	client    *datastore.Client
	namespace string
}

var _ oa.Store = (*Store)(nil)

// New creates a Datastore-backed Store. An empty namespace is the default
// namespace.
func New(client *datastore.Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace}
}

func (s *Store) namespacedKey(kind, name string, parent *datastore.Key) *datastore.Key {
	key := datastore.NameKey(kind, name, parent)
	key.Namespace = s.namespace
	return key
}

func (s *Store) accountKey(id string) *datastore.Key {
	return s.namespacedKey(KindAccount, id, nil)
}

func (s *Store) tokenKey(accountID, value string) *datastore.Key {
	return s.namespacedKey(KindToken, value, s.accountKey(accountID))
}

func (s *Store) query(kind string) *datastore.Query {
	q := datastore.NewQuery(kind)
	if s.namespace != "" {
		q = q.Namespace(s.namespace)
	}
	return q
}

func notFound(err error) error {
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return oa.ErrNotFound
	}
	return err
}

// exists reports whether key is present, reading within tx.
func exists(tx *datastore.Transaction, key *datastore.Key, dst any) (bool, error) {
	err := tx.Get(key, dst)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return false, nil
	}
	return err == nil, err
}

// =============================================================================
// AccountStore
// =============================================================================

// CreateAccount reserves the email and alias markers and writes the account
// in one transaction. A concurrent creator of the same email fails its commit,
// retries and then finds the marker.
func (s *Store) CreateAccount(ctx context.Context, account *oa.Account, initial *oa.Token) error {
	email := oa.NormalizeEmail(account.Email)
	key := s.accountKey(account.ID)
	emailKey := s.namespacedKey(KindAccountEmail, email, nil)
	aliasKey := s.namespacedKey(KindAccountAlias, account.Alias, nil)

	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var marker MarkerEntity
		if found, err := exists(tx, emailKey, &marker); err != nil {
			return err
		} else if found {
			return oa.ErrEmailTaken
		}
		if found, err := exists(tx, aliasKey, &marker); err != nil {
			return err
		} else if found {
			return oa.ErrAliasTaken
		}

		mutations := []*datastore.Mutation{
			datastore.NewInsert(key, AccountToEntity(account, key)),
			datastore.NewInsert(emailKey, &MarkerEntity{AccountID: account.ID}),
			datastore.NewInsert(aliasKey, &MarkerEntity{AccountID: account.ID}),
		}
		if initial != nil {
			tokenKey := s.tokenKey(account.ID, initial.Value)
			mutations = append(mutations, datastore.NewInsert(tokenKey, &TokenEntity{
				Kind:      string(initial.Kind),
				CreatedAt: initial.CreatedAt.UTC(),
			}))
		}
		_, err := tx.Mutate(mutations...)
		return err
	})
	return err
}

func (s *Store) GetAccountByID(ctx context.Context, id string) (*oa.Account, error) {
	var entity AccountEntity
	if err := s.client.Get(ctx, s.accountKey(id), &entity); err != nil {
		return nil, notFound(err)
	}
	return entity.ToAccount(), nil
}

func (s *Store) getByMarker(ctx context.Context, kind, value string) (*oa.Account, error) {
	var marker MarkerEntity
	if err := s.client.Get(ctx, s.namespacedKey(kind, value, nil), &marker); err != nil {
		return nil, notFound(err)
	}
	return s.GetAccountByID(ctx, marker.AccountID)
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*oa.Account, error) {
	email = oa.NormalizeEmail(email)
	if email == "" {
		return nil, oa.ErrNotFound
	}
	return s.getByMarker(ctx, KindAccountEmail, email)
}

func (s *Store) GetAccountByAlias(ctx context.Context, alias string) (*oa.Account, error) {
	if alias == "" {
		return nil, oa.ErrNotFound
	}
	return s.getByMarker(ctx, KindAccountAlias, alias)
}

// saveAccount writes the mutable account fields within tx.
func (s *Store) saveAccount(tx *datastore.Transaction, account *oa.Account) error {
	key := s.accountKey(account.ID)
	var entity AccountEntity
	if err := tx.Get(key, &entity); err != nil {
		return notFound(err)
	}
	entity.IsActive = account.IsActive
	entity.CredentialHash = account.CredentialHash
	entity.Timezone = account.Timezone
	entity.UpdatedAt = time.Now().UTC()
	_, err := tx.Put(key, &entity)
	return err
}

func (s *Store) SaveAccount(ctx context.Context, account *oa.Account) error {
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		return s.saveAccount(tx, account)
	})
	return err
}

// DeleteAccount removes the account's tokens, journal and owned domains,
// then the account and its markers. The dependents go first so a failure
// leaves a deletable account behind rather than orphans.
func (s *Store) DeleteAccount(ctx context.Context, id string) error {
	key := s.accountKey(id)
	for _, kind := range []string{KindToken, KindJournal} {
		if err := s.deleteChildren(ctx, kind, key); err != nil {
			return err
		}
	}
	domains, err := s.client.GetAll(ctx, s.query(KindDomain).FilterField("owner_id", "=", id).KeysOnly(), nil)
	if err != nil {
		return err
	}
	if _, err := s.deleteKeys(ctx, domains); err != nil {
		return err
	}
	_, err = s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity AccountEntity
		if err := tx.Get(key, &entity); err != nil {
			return notFound(err)
		}
		return tx.DeleteMulti([]*datastore.Key{
			key,
			s.namespacedKey(KindAccountEmail, entity.Email, nil),
			s.namespacedKey(KindAccountAlias, entity.Alias, nil),
		})
	})
	return err
}

func (s *Store) deleteChildren(ctx context.Context, kind string, parent *datastore.Key) error {
	keys, err := s.client.GetAll(ctx, s.query(kind).Ancestor(parent).KeysOnly(), nil)
	if err != nil {
		return err
	}
	_, err = s.deleteKeys(ctx, keys)
	return err
}

func (s *Store) deleteKeys(ctx context.Context, keys []*datastore.Key) (int64, error) {
	var deleted int64
	for batch := range slices.Chunk(keys, batchSize) {
		if err := s.client.DeleteMulti(ctx, batch); err != nil {
			return deleted, err
		}
		deleted += int64(len(batch))
	}
	return deleted, nil
}

// =============================================================================
// TokenStore
// =============================================================================

func (s *Store) CreateToken(ctx context.Context, token *oa.Token) error {
	key := s.tokenKey(token.AccountID, token.Value)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing TokenEntity
		if found, err := exists(tx, key, &existing); err != nil {
			return err
		} else if found {
			return oa.ErrDuplicateToken
		}
		_, err := tx.Put(key, &TokenEntity{Kind: string(token.Kind), CreatedAt: token.CreatedAt.UTC()})
		return err
	})
	return err
}

// CreateExclusiveToken runs the pending check as an ancestor query inside
// the transaction, which puts the whole account entity group under
// optimistic concurrency control.
func (s *Store) CreateExclusiveToken(ctx context.Context, token *oa.Token, since time.Time) error {
	accountKey := s.accountKey(token.AccountID)
	key := s.tokenKey(token.AccountID, token.Value)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var owner AccountEntity
		if err := tx.Get(accountKey, &owner); err != nil {
			return notFound(err)
		}
		var pending []TokenEntity
		q := s.query(KindToken).Ancestor(accountKey).FilterField("kind", "=", string(token.Kind)).Transaction(tx)
		if _, err := s.client.GetAll(ctx, q, &pending); err != nil {
			return err
		}
		cutoff := since.UTC()
		for _, p := range pending {
			if !p.CreatedAt.Before(cutoff) {
				return oa.ErrRequestAlreadyPending
			}
			if p.Key.Name == token.Value {
				return oa.ErrDuplicateToken
			}
		}
		_, err := tx.Put(key, &TokenEntity{Kind: string(token.Kind), CreatedAt: token.CreatedAt.UTC()})
		return err
	})
	return err
}

// findToken resolves alias to account and reads the live token within tx.
func (s *Store) findToken(tx *datastore.Transaction, kind oa.TokenKind, alias, value string, since time.Time) (*TokenEntity, string, error) {
	if alias == "" || value == "" {
		return nil, "", oa.ErrNotFound
	}
	var marker MarkerEntity
	if err := tx.Get(s.namespacedKey(KindAccountAlias, alias, nil), &marker); err != nil {
		return nil, "", notFound(err)
	}
	var token TokenEntity
	if err := tx.Get(s.tokenKey(marker.AccountID, value), &token); err != nil {
		return nil, "", notFound(err)
	}
	if token.Kind != string(kind) || token.CreatedAt.Before(since.UTC()) {
		return nil, "", oa.ErrNotFound
	}
	return &token, marker.AccountID, nil
}

func (s *Store) GetToken(ctx context.Context, kind oa.TokenKind, alias, value string, since time.Time) (*oa.Token, error) {
	tx, err := s.client.NewTransaction(ctx, datastore.ReadOnly)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	token, _, err := s.findToken(tx, kind, alias, value, since)
	if err != nil {
		return nil, err
	}
	return token.ToToken(), nil
}

// ConsumeToken deletes the token and saves the account in one transaction.
// Two consumers racing on the same token conflict at commit; the retried
// loser no longer finds the token.
func (s *Store) ConsumeToken(ctx context.Context, kind oa.TokenKind, alias, value string, since time.Time, fn func(*oa.Account) error) (*oa.Account, error) {
	var out *oa.Account
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		token, accountID, err := s.findToken(tx, kind, alias, value, since)
		if err != nil {
			return err
		}
		var entity AccountEntity
		if err := tx.Get(s.accountKey(accountID), &entity); err != nil {
			return notFound(err)
		}
		account := entity.ToAccount()
		if err := fn(account); err != nil {
			return err
		}
		if err := tx.Delete(token.Key); err != nil {
			return err
		}
		if err := s.saveAccount(tx, account); err != nil {
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
	return s.deleteChildren(ctx, KindToken, s.accountKey(accountID))
}

func (s *Store) DeleteExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	q := s.query(KindToken).FilterField("created_at", "<", before.UTC()).KeysOnly()
	keys, err := s.client.GetAll(ctx, q, nil)
	if err != nil {
		return 0, err
	}
	return s.deleteKeys(ctx, keys)
}

// =============================================================================
// JournalStore
// =============================================================================

func (s *Store) AddJournalEntry(ctx context.Context, entry *oa.JournalEntry) error {
	key := datastore.IncompleteKey(KindJournal, s.accountKey(entry.AccountID))
	key.Namespace = s.namespace
	_, err := s.client.Put(ctx, key, &JournalEntity{
		Message:   entry.Message,
		CreatedAt: entry.CreatedAt.UTC(),
	})
	return err
}

func (s *Store) ListJournal(ctx context.Context, accountID string, limit int) ([]*oa.JournalEntry, error) {
	q := s.query(KindJournal).Ancestor(s.accountKey(accountID)).Order("-created_at")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var entries []*oa.JournalEntry
	it := s.client.Run(ctx, q)
	for {
		var entity JournalEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, &oa.JournalEntry{
			AccountID: accountID,
			Message:   entity.Message,
			CreatedAt: entity.CreatedAt.UTC(),
		})
	}
	return entries, nil
}

func (s *Store) ClearJournal(ctx context.Context, accountID string) error {
	return s.deleteChildren(ctx, KindJournal, s.accountKey(accountID))
}

// =============================================================================
// DomainStore
// =============================================================================

func (s *Store) CreateDomain(ctx context.Context, domain *oa.Domain) error {
	key := s.namespacedKey(KindDomain, domain.Name, nil)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing DomainEntity
		if found, err := exists(tx, key, &existing); err != nil {
			return err
		} else if found {
			return oa.ErrDomainExists
		}
		_, err := tx.Put(key, DomainToEntity(domain, key))
		return err
	})
	return err
}

func (s *Store) GetDomain(ctx context.Context, name string) (*oa.Domain, error) {
	var entity DomainEntity
	if err := s.client.Get(ctx, s.namespacedKey(KindDomain, name, nil), &entity); err != nil {
		return nil, notFound(err)
	}
	return entity.ToDomain(), nil
}

func (s *Store) DeleteDomain(ctx context.Context, name string) error {
	key := s.namespacedKey(KindDomain, name, nil)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var entity DomainEntity
		if err := tx.Get(key, &entity); err != nil {
			return notFound(err)
		}
		return tx.Delete(key)
	})
	return err
}

func (s *Store) ListDomainsByOwner(ctx context.Context, ownerID string) ([]*oa.Domain, error) {
	q := s.query(KindDomain).FilterField("owner_id", "=", ownerID)

	var domains []*oa.Domain
	it := s.client.Run(ctx, q)
	for {
		var entity DomainEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		domains = append(domains, entity.ToDomain())
	}
	// Sorted here to avoid a composite index on (owner_id, __key__).
	slices.SortFunc(domains, func(a, b *oa.Domain) int {
		return strings.Compare(a.Name, b.Name)
	})
	return domains, nil
}
