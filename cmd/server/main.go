package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	accountrepo "tenant-identity-provider/internal/account/repository"
	"tenant-identity-provider/internal/audit"
	auditrepo "tenant-identity-provider/internal/audit/repository"
	authhandler "tenant-identity-provider/internal/auth/handler"
	"tenant-identity-provider/internal/auth/service"
	"tenant-identity-provider/internal/config"
	"tenant-identity-provider/internal/db"
	"tenant-identity-provider/internal/federation"
	healthhandler "tenant-identity-provider/internal/health/handler"
	"tenant-identity-provider/internal/interaction"
	"tenant-identity-provider/internal/security"
	"tenant-identity-provider/internal/server/middleware"
	"tenant-identity-provider/internal/session"
	sessionrepo "tenant-identity-provider/internal/session/repository"
	telemetryotel "tenant-identity-provider/internal/telemetry/otel"
	"tenant-identity-provider/internal/tenant"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx := context.Background()

	providers, err := telemetryotel.NewProviders(ctx, cfg.OTLPEndpoint, "idp-server", false)
	if err != nil {
		log.Fatalf("telemetry: %v", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	signer, err := security.ParsePrivateKey(cfg.JWTPrivateKey)
	if err != nil {
		log.Fatalf("JWT_PRIVATE_KEY: %v", err)
	}
	pub, err := security.ParsePublicKey(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("JWT_PUBLIC_KEY: %v", err)
	}
	tokens := security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionDuration())
	hasher := security.NewHasher(cfg.BcryptCost)

	accounts := accountrepo.NewPostgresRepository(database)
	sessions := sessionrepo.NewPostgresRepository(database)
	auditLog := audit.NewLogger(auditrepo.NewPostgresRepository(database), middleware.ClientIP).
		WithEmitter(telemetryotel.NewEventEmitter(providers.LoggerProvider))

	manager := session.NewManager(sessions, accounts, hasher, tokens,
		cfg.SessionDuration(), cfg.MaxFailedLogins, cfg.LockoutWindow())

	registry := federation.NewRegistry()
	providerCfgs, err := cfg.ExternalProviderList()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	for _, pc := range providerCfgs {
		p, err := federation.NewOIDCProvider(ctx, pc.Name, pc.IssuerURL, pc.ClientID, pc.ClientSecret, pc.RedirectURL, nil)
		if err != nil {
			log.Fatalf("provider %s: %v", pc.Name, err)
		}
		registry.Register(federation.SchemeDescriptor{Name: pc.Name, DisplayName: pc.DisplayName}, p)
		log.Printf("registered external scheme %s (%s)", pc.Name, pc.IssuerURL)
	}

	schemeTable, err := cfg.TenantSchemeTable()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	resolver := tenant.NewResolver(schemeTable, cfg.DefaultScheme)

	states := federation.NewStateStore(cfg.ExternalStateWindow())
	external := service.NewExternalService(registry, states, accounts, manager, auditLog)
	login := service.NewLoginService(resolver, registry, external, manager, accounts, hasher, auditLog)

	clientCfgs, err := cfg.ClientList()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	clients := make([]interaction.Client, 0, len(clientCfgs))
	for _, cc := range clientCfgs {
		clients = append(clients, interaction.Client{
			ID:                     cc.ID,
			Name:                   cc.Name,
			PostLogoutRedirectURIs: cc.PostLogoutRedirectURIs,
		})
	}
	logout := service.NewLogoutService(manager,
		interaction.NewLogoutStore(cfg.LogoutContextWindow()),
		interaction.NewClientRegistry(clients), cfg.LoggedOutURL, auditLog)

	router := mux.NewRouter()
	authhandler.NewHandler(login, external, logout, cfg.Env == "production").Register(router)
	router.Handle("/healthz", healthhandler.NewHandler(database)).Methods(http.MethodGet)

	tracer := providers.TracerProvider.Tracer("idp.http")
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           middleware.Chain(tracer, router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("HTTP server stopped")
}
