//go:build !wasm
// +build !wasm

package gorm

import (
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	oa "github.com/ydns/accounts"
)

// uniqueViolation reports whether err is a unique constraint violation and,
// when the driver tells, which constraint or column was hit.
func uniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgerrcode.UniqueViolation {
			return pgErr.ConstraintName, true
		}
		return "", false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return "", true
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key") {
		return msg, true
	}
	return "", false
}

// accountCreateError maps a failed account (plus initial token) insert.
func accountCreateError(err error) error {
	where, ok := uniqueViolation(err)
	if !ok {
		return err
	}
	switch {
	case strings.Contains(where, "alias"):
		return oa.ErrAliasTaken
	case strings.Contains(where, "tokens"):
		return oa.ErrDuplicateToken
	}
	return oa.ErrEmailTaken
}

func tokenCreateError(err error) error {
	if _, ok := uniqueViolation(err); ok {
		return oa.ErrDuplicateToken
	}
	return err
}

func domainCreateError(err error) error {
	if _, ok := uniqueViolation(err); ok {
		return oa.ErrDomainExists
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return oa.ErrNotFound
	}
	return err
}
