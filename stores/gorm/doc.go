//go:build !wasm
// +build !wasm

// Package gorm provides the GORM implementation of the accounts.Store
// interface. It runs on PostgreSQL in production and on SQLite in tests.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - accounts: canonical identities, unique on email and on alias
//   - tokens: activation and password reset tokens, keyed by value
//   - journal_entries: per-account audit journal
//   - domains: owned domains, keyed by name
//
// Email and alias uniqueness is enforced by unique indexes; a violated index
// is reported as the matching accounts store error.
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	store := gormstore.New(db)
//	if err := store.AutoMigrate(); err != nil { ... }
package gorm
