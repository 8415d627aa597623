//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of the
// accounts.Store interface, for deployment on Google Cloud Platform.
//
// # Datastore Kinds
//
//   - Account: accounts, keyed by account id
//   - AccountEmail, AccountAlias: uniqueness markers keyed by the reserved
//     value, written in the same transaction as the account
//   - Token: activation and password reset tokens, children of their account
//   - JournalEntry: audit journal lines, children of their account
//   - Domain: domains, keyed by name
//
// Keeping tokens under their account lets the pending-reset check run as an
// ancestor query inside a transaction.
//
// # Namespacing
//
// Pass a namespace to isolate tenants or test runs:
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.New(client, "") // default namespace
package gae
