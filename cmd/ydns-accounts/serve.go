package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	accounts "github.com/ydns/accounts"
	"github.com/ydns/accounts/config"
	ydnsgrpc "github.com/ydns/accounts/grpc"
	"github.com/ydns/accounts/oauth2"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service (and the gRPC listener when YDNS_GRPC_ADDR is set)",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	svc := newService(cfg, store, registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", accounts.MetricsHandler(registry))
	mux.Handle("/", svc.Handler())

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 2)
	go func() {
		slog.Info("http listening", "addr", cfg.ListenAddr, "driver", cfg.Database.Driver)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		grpcServer, err = startGRPC(cfg, svc.Auth, errs)
		if err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
	case err = <-errs:
		slog.Error("server failed", "error", err)
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

func newService(cfg *config.Config, store accounts.Store, registry prometheus.Registerer) *accounts.Service {
	proxies, err := accounts.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		// config.Load already rejected malformed entries.
		slog.Error("ignoring trusted proxies", "error", err)
	}
	session := scs.New()
	session.Lifetime = cfg.SessionLifetime
	session.Cookie.Name = "ydns_session"
	session.Cookie.Secure = cfg.SecureCookies
	session.Cookie.SameSite = http.SameSiteLaxMode

	if cfg.JWTSecret == "" {
		slog.Warn("YDNS_JWT_SECRET not set, auth token cookies are disabled")
	}

	svc := &accounts.Service{
		Store:          store,
		Session:        session,
		Mailer:         &accounts.ConsoleMailer{},
		Metrics:        accounts.NewMetrics(registry),
		BaseURL:        cfg.BaseURL,
		JWTSecretKey:   cfg.JWTSecret,
		Limiter:        accounts.NewKeyRateLimiter(float64(cfg.RateLimit.PerMinute), cfg.RateLimit.Burst),
		TrustedProxies: proxies,
		Providers:      providers(cfg),
	}
	return svc.EnsureDefaults()
}

func providers(cfg *config.Config) []oauth2.Provider {
	var out []oauth2.Provider
	if p := cfg.Facebook; p.Enabled() {
		out = append(out, oauth2.NewFacebookOAuth2(p.ClientID, p.ClientSecret, p.CallbackURL))
	}
	if p := cfg.GitHub; p.Enabled() {
		out = append(out, oauth2.NewGithubOAuth2(p.ClientID, p.ClientSecret, p.CallbackURL))
	}
	if p := cfg.Google; p.Enabled() {
		out = append(out, oauth2.NewGoogleOAuth2(p.ClientID, p.ClientSecret, p.CallbackURL))
	}
	for _, p := range out {
		slog.Info("oauth provider enabled", "provider", p.Name())
	}
	return out
}

// startGRPC serves the health service behind the requester interceptors.
// The DNS service registers its own services on the same listener.
func startGRPC(cfg *config.Config, verifier ydnsgrpc.TokenVerifier, errs chan<- error) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return nil, err
	}
	icfg := ydnsgrpc.NewPublicMethodsConfig(verifier, healthpb.Health_Check_FullMethodName, healthpb.Health_Watch_FullMethodName)
	icfg.TrustAccountID = cfg.TrustGRPCAccountID

	server := grpc.NewServer(
		grpc.UnaryInterceptor(ydnsgrpc.UnaryAuthInterceptor(icfg)),
		grpc.StreamInterceptor(ydnsgrpc.StreamAuthInterceptor(icfg)),
	)
	healthpb.RegisterHealthServer(server, health.NewServer())

	go func() {
		slog.Info("grpc listening", "addr", cfg.GRPCAddr, "trust_account_id", cfg.TrustGRPCAccountID)
		if err := server.Serve(lis); err != nil {
			errs <- err
		}
	}()
	return server, nil
}
