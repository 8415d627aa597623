// Package grpc carries the authenticated account between the accounts HTTP
// service and sibling gRPC services (the DNS service) via request metadata,
// so both sides evaluate permissions for the same requester.
package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc/metadata"
)

// Default metadata keys for the requester.
const (
	// DefaultMetadataKeyToken carries "Bearer <token>", the signed token
	// minted at login.
	DefaultMetadataKeyToken = "authorization"

	// DefaultMetadataKeyAccountID carries a bare account id. It is only
	// honoured when TrustAccountID is set, i.e. behind an internal gateway
	// that has already authenticated the caller.
	DefaultMetadataKeyAccountID = "x-ydns-account-id"
)

// Config holds the metadata key configuration.
type Config struct {
	MetadataKeyToken     string
	MetadataKeyAccountID string

	// TrustAccountID accepts the account id header without a token.
	// Never enable on a listener reachable from outside.
	TrustAccountID bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MetadataKeyToken:     DefaultMetadataKeyToken,
		MetadataKeyAccountID: DefaultMetadataKeyAccountID,
	}
}

// EnsureDefaults fills in default values for any unset fields.
func (c *Config) EnsureDefaults() {
	if c.MetadataKeyToken == "" {
		c.MetadataKeyToken = DefaultMetadataKeyToken
	}
	if c.MetadataKeyAccountID == "" {
		c.MetadataKeyAccountID = DefaultMetadataKeyAccountID
	}
}

// TokenVerifier checks a signed token and returns the account id it names.
// *accounts.Authenticator implements it.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

type accountIDKey struct{}

// WithAccountID returns a context carrying the resolved requester.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, accountIDKey{}, accountID)
}

// AccountIDFromContext returns the requester resolved by the interceptors,
// or "" for an anonymous call.
func AccountIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(accountIDKey{}).(string)
	return id
}

// IsAuthenticated reports whether the call has a resolved requester.
func IsAuthenticated(ctx context.Context) bool {
	return AccountIDFromContext(ctx) != ""
}

// TokenToOutgoingContext attaches a signed account token to outgoing calls.
func TokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyToken, "Bearer "+token)
}

// AccountIDToOutgoingContext attaches a bare account id to outgoing calls.
func AccountIDToOutgoingContext(ctx context.Context, accountID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeyAccountID, accountID)
}

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

func bearerToken(value string) string {
	if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
		return strings.TrimSpace(value[7:])
	}
	return ""
}
