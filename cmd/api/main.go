package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"alwr.org/internal/apikey"
	"alwr.org/internal/audit"
	"alwr.org/internal/auth"
	"alwr.org/internal/config"
	"alwr.org/internal/httpapi"
	"alwr.org/internal/migrate"
	"alwr.org/internal/obs"
	"alwr.org/internal/settings"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Logger is not up yet.
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log, err := obs.NewLogger(cfg.Mode)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	obs.SetLogger(log)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var db *sql.DB
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatal("open db", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		if err := migrate.Up(db); err != nil {
			log.Fatal("apply migrations", zap.Error(err))
		}
	}

	var (
		identityStore auth.IdentityStore
		sessionStore  auth.SessionStore
		auditStore    audit.Store
		keyStore      apikey.Store
		settingsStore settings.Store
	)
	if db != nil {
		identityStore = auth.NewPGIdentityStore(db)
		sessionStore = auth.NewPGSessionStore(db)
		auditStore = audit.NewPGStore(db)
		keyStore = apikey.NewPGStore(db)
		settingsStore = settings.NewPGStore(db)
	} else {
		// Development only: config.Load refuses a production run
		// without a DSN.
		log.Warn("no ALWR_PG_DSN set, using in-process stores")
		identityStore = auth.NewMemoryIdentityStore()
		sessionStore = auth.NewMemorySessionStore()
		auditStore = audit.NewMemoryStore()
		keyStore = apikey.NewMemoryStore()
		settingsStore = settings.NewMemoryStore()
	}

	recorder := audit.NewRecorder(auditStore, log)
	registrationOpen := settings.New(cfg.SettingsTTL, settings.RegistrationLoader(settingsStore))

	authOpts := []auth.ServiceOption{
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithIdleTTL(cfg.SessionIdleTTL),
		auth.WithSessionSecret(cfg.SessionSecret),
	}
	var verifier *auth.DelegatedVerifier
	if cfg.OIDCIssuer != "" {
		verifier, err = auth.NewDelegatedVerifier(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCSecret)
		if err != nil {
			log.Fatal("delegated verifier", zap.Error(err))
		}
		tokenURL := strings.TrimRight(cfg.OIDCIssuer, "/") + "/oauth/token"
		authOpts = append(authOpts, auth.WithRefresher(
			auth.NewHTTPRefresher(tokenURL, cfg.OIDCClientID, cfg.OIDCSecret)))
	}

	authSvc, err := auth.NewService(identityStore, sessionStore, recorder, authOpts...)
	if err != nil {
		log.Fatal("auth service", zap.Error(err))
	}
	keySvc, err := apikey.NewService(keyStore, recorder)
	if err != nil {
		log.Fatal("apikey service", zap.Error(err))
	}

	api := httpapi.New(httpapi.Options{
		Auth:               authSvc,
		APIKeys:            keySvc,
		Audit:              recorder,
		Verifier:           verifier,
		Settings:           settingsStore,
		RegistrationOpen:   registrationOpen,
		Mode:               cfg.Mode,
		AdminIPs:           cfg.AdminIPs,
		SessionTTL:         cfg.SessionTTL,
		LoginRateBurst:     cfg.LoginRateBurst,
		LoginRatePerSecond: cfg.LoginRatePerSecond,
		ReadyProbe:         httpapi.ReadyProbe{DB: db},
		Version:            version,
		Logger:             log,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info("starting alwr-api",
		zap.String("version", version),
		zap.String("addr", srv.Addr),
		zap.String("mode", cfg.Mode),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Info("stopped")
}
