package grpc

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// InterceptorConfig configures the requester interceptors.
type InterceptorConfig struct {
	*Config

	// Verifier checks bearer tokens. Without one, token metadata is ignored.
	Verifier TokenVerifier

	// RequireAuth rejects anonymous calls outside PublicMethods.
	RequireAuth bool

	// PublicMethods holds full method names like "/pkg.Service/Method".
	PublicMethods map[string]bool
}

// DefaultInterceptorConfig returns a config that requires auth for all methods.
func DefaultInterceptorConfig(verifier TokenVerifier) *InterceptorConfig {
	return &InterceptorConfig{
		Config:        DefaultConfig(),
		Verifier:      verifier,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
}

// NewPublicMethodsConfig requires auth except for the listed methods.
func NewPublicMethodsConfig(verifier TokenVerifier, publicMethods ...string) *InterceptorConfig {
	config := DefaultInterceptorConfig(verifier)
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig lets anonymous calls through; handlers then see an
// empty AccountIDFromContext and apply anonymous permissions.
func OptionalAuthConfig(verifier TokenVerifier) *InterceptorConfig {
	config := DefaultInterceptorConfig(verifier)
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() *InterceptorConfig {
	if c == nil {
		c = DefaultInterceptorConfig(nil)
	}
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
	return c
}

// UnaryAuthInterceptor resolves the requester and stores it in the handler
// context.
func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config = config.ensureDefaults()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor is the streaming counterpart of UnaryAuthInterceptor.
func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config = config.ensureDefaults()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &requesterStream{ServerStream: ss, ctx: ctx})
	}
}

type requesterStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *requesterStream) Context() context.Context { return s.ctx }

func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	accountID, err := c.extractAccountID(ctx)
	if err != nil {
		slog.Warn("grpc token rejected", "method", method, "error", err)
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	if accountID == "" && c.RequireAuth && !c.PublicMethods[method] {
		return nil, status.Error(codes.Unauthenticated, "authentication required")
	}
	return WithAccountID(ctx, accountID), nil
}

// extractAccountID prefers a verified token over the trusted id header. A
// token that is present but fails verification is an error, not anonymous.
func (c *InterceptorConfig) extractAccountID(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", nil
	}
	if c.Verifier != nil {
		if token := bearerToken(firstValue(md, c.MetadataKeyToken)); token != "" {
			return c.Verifier.VerifyToken(token)
		}
	}
	if c.TrustAccountID {
		return firstValue(md, c.MetadataKeyAccountID), nil
	}
	return "", nil
}
