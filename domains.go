package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// Domain is a hosted zone owned by one account.
type Domain struct {
	Name        string // ASCII (punycode), lower case
	OwnerID     string
	Access      AccessPolicy
	PublicOwner bool // owner details may be shown to others
	OwnerOnly   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (d *Domain) ResourceOwnerID() string      { return d.OwnerID }
func (d *Domain) ResourcePolicy() AccessPolicy { return d.Access }
func (d *Domain) ResourceOwnerOnly() bool      { return d.OwnerOnly }

var domainProfile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(true),
	idna.ValidateLabels(true),
	idna.BidiRule(),
)

// NormalizeDomainName converts a (possibly internationalised) domain name to
// its lower case ASCII form.
func NormalizeDomainName(name string) (string, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	if name == "" {
		return "", validationError(ErrCodeMissingField, "Domain name is required", "name")
	}
	ascii, err := domainProfile.ToASCII(name)
	if err != nil || !strings.Contains(ascii, ".") || len(ascii) > 253 {
		return "", validationError(ErrCodeInvalidDomain, "Enter a valid domain name", "name")
	}
	return strings.ToLower(ascii), nil
}

// Domains guards domain operations with the permission evaluator.
type Domains struct {
	Store Store

	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

func (d *Domains) EnsureDefaults() {
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
}

// DomainRequest is the create form.
type DomainRequest struct {
	Name        string
	Access      AccessPolicy
	PublicOwner bool
	OwnerOnly   bool
}

// Create registers a new domain owned by owner.
func (d *Domains) Create(ctx context.Context, owner *Account, req DomainRequest) (*Domain, error) {
	d.EnsureDefaults()
	if owner == nil {
		return nil, ErrNotAuthenticated
	}
	name, err := NormalizeDomainName(req.Name)
	if err != nil {
		return nil, err
	}
	if req.Access == "" {
		req.Access = AccessPrivate
	}
	if !req.Access.Valid() {
		return nil, validationError(ErrCodeMissingField, "Choose a valid access type", "access_type")
	}
	now := d.Now()
	domain := &Domain{
		Name:        name,
		OwnerID:     owner.ID,
		Access:      req.Access,
		PublicOwner: req.PublicOwner,
		OwnerOnly:   req.OwnerOnly,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.Store.CreateDomain(ctx, domain); err != nil {
		if errors.Is(err, ErrDomainExists) {
			return nil, ErrDomainExists
		}
		return nil, storeError("create domain", err)
	}
	slog.Info("domain created", "account_id", owner.ID, "domain", name)
	return domain, nil
}

// Get returns the domain if requester may read it.
func (d *Domains) Get(ctx context.Context, requester *Account, name string) (*Domain, Capabilities, error) {
	domain, err := d.load(ctx, name)
	if err != nil {
		return nil, CapsNone, err
	}
	if err := Authorize(requester, domain, "r"); err != nil {
		return nil, CapsNone, err
	}
	return domain, CapabilitiesFor(requester, domain), nil
}

// Delete removes the domain. Needs write and admin capability.
func (d *Domains) Delete(ctx context.Context, requester *Account, name string) error {
	d.EnsureDefaults()
	domain, err := d.load(ctx, name)
	if err != nil {
		return err
	}
	if err := Authorize(requester, domain, "wa"); err != nil {
		return err
	}
	if err := d.Store.DeleteDomain(ctx, domain.Name); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return storeError("delete domain", err)
	}
	recordJournal(ctx, d.Store, d.Now(), requester.ID, fmt.Sprintf("Deleted domain %s", domain.Name))
	slog.Info("domain deleted", "account_id", requester.ID, "domain", domain.Name)
	return nil
}

// List returns the domains owned by owner.
func (d *Domains) List(ctx context.Context, owner *Account) ([]*Domain, error) {
	if owner == nil {
		return nil, ErrNotAuthenticated
	}
	out, err := d.Store.ListDomainsByOwner(ctx, owner.ID)
	if err != nil {
		return nil, storeError("list domains", err)
	}
	return out, nil
}

func (d *Domains) load(ctx context.Context, name string) (*Domain, error) {
	name, err := NormalizeDomainName(name)
	if err != nil {
		return nil, ErrNotFound
	}
	domain, err := d.Store.GetDomain(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeError("load domain", err)
	}
	return domain, nil
}
