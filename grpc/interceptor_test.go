package grpc

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeVerifier accepts exactly one token.
type fakeVerifier struct{}

func (fakeVerifier) VerifyToken(token string) (string, error) {
	if token == "good" {
		return "acc-1", nil
	}
	return "", errors.New("bad token")
}

func incoming(pairs ...string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(pairs...))
}

func callUnary(t *testing.T, config *InterceptorConfig, ctx context.Context, method string) (string, bool, error) {
	t.Helper()
	var seen string
	called := false
	_, err := UnaryAuthInterceptor(config)(ctx, nil, &grpc.UnaryServerInfo{FullMethod: method},
		func(ctx context.Context, req any) (any, error) {
			called = true
			seen = AccountIDFromContext(ctx)
			return nil, nil
		})
	return seen, called, err
}

func TestUnaryAuthInterceptor(t *testing.T) {
	const method = "/ydns.dns.v1.Records/List"

	tests := []struct {
		name       string
		config     *InterceptorConfig
		ctx        context.Context
		wantID     string
		wantCalled bool
		wantCode   codes.Code
	}{
		{
			name:     "anonymous rejected",
			config:   DefaultInterceptorConfig(fakeVerifier{}),
			ctx:      context.Background(),
			wantCode: codes.Unauthenticated,
		},
		{
			name:       "valid token",
			config:     DefaultInterceptorConfig(fakeVerifier{}),
			ctx:        incoming("authorization", "Bearer good"),
			wantID:     "acc-1",
			wantCalled: true,
		},
		{
			name:     "invalid token is not downgraded to anonymous",
			config:   OptionalAuthConfig(fakeVerifier{}),
			ctx:      incoming("authorization", "Bearer forged"),
			wantCode: codes.Unauthenticated,
		},
		{
			name:     "account id header ignored unless trusted",
			config:   DefaultInterceptorConfig(fakeVerifier{}),
			ctx:      incoming(DefaultMetadataKeyAccountID, "acc-2"),
			wantCode: codes.Unauthenticated,
		},
		{
			name: "trusted account id header",
			config: func() *InterceptorConfig {
				c := DefaultInterceptorConfig(nil)
				c.TrustAccountID = true
				return c
			}(),
			ctx:        incoming(DefaultMetadataKeyAccountID, "acc-2"),
			wantID:     "acc-2",
			wantCalled: true,
		},
		{
			name:       "public method",
			config:     NewPublicMethodsConfig(fakeVerifier{}, method),
			ctx:        context.Background(),
			wantCalled: true,
		},
		{
			name:       "optional auth",
			config:     OptionalAuthConfig(fakeVerifier{}),
			ctx:        context.Background(),
			wantCalled: true,
		},
		{
			name:     "nil config requires auth",
			config:   nil,
			ctx:      context.Background(),
			wantCode: codes.Unauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, called, err := callUnary(t, tt.config, tt.ctx, method)
			assert.Equal(t, tt.wantCalled, called)
			if tt.wantCode != codes.OK {
				assert.Equal(t, tt.wantCode, status.Code(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
		})
	}
}

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *fakeStream) Context() context.Context { return s.ctx }

func TestStreamAuthInterceptor(t *testing.T) {
	interceptor := StreamAuthInterceptor(DefaultInterceptorConfig(fakeVerifier{}))
	info := &grpc.StreamServerInfo{FullMethod: "/ydns.dns.v1.Records/Watch"}

	var seen string
	err := interceptor(nil, &fakeStream{ctx: incoming("authorization", "Bearer good")}, info,
		func(srv any, ss grpc.ServerStream) error {
			seen = AccountIDFromContext(ss.Context())
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, "acc-1", seen)

	err = interceptor(nil, &fakeStream{ctx: context.Background()}, info,
		func(srv any, ss grpc.ServerStream) error {
			t.Error("handler should not be called")
			return nil
		})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestInterceptorOverConnection(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryAuthInterceptor(DefaultInterceptorConfig(fakeVerifier{}))))
	healthpb.RegisterHealthServer(srv, health.NewServer())
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	_, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	resp, err := client.Check(TokenToOutgoingContext(context.Background(), "good"), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)
}
