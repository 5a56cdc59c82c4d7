package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mereside/opsgate/internal/auth"
	"github.com/mereside/opsgate/internal/background"
	"github.com/mereside/opsgate/internal/config"
	"github.com/mereside/opsgate/internal/database"
	"github.com/mereside/opsgate/internal/handlers"
	"github.com/mereside/opsgate/internal/identity"
	"github.com/mereside/opsgate/internal/loginflow"
	middlewareCustom "github.com/mereside/opsgate/internal/middleware"
	"github.com/mereside/opsgate/internal/otp"
	"github.com/mereside/opsgate/internal/repositories"
	"github.com/mereside/opsgate/internal/routes"
	"github.com/mereside/opsgate/internal/services"
	"github.com/mereside/opsgate/internal/trust"
	pkghttp "github.com/mereside/opsgate/pkg/http"
	pkglogger "github.com/mereside/opsgate/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Initialize repositories
	deviceRepo := repositories.NewTrustedDeviceRepository(db)
	challengeRepo := repositories.NewOTPChallengeRepository(db)
	directoryRepo := repositories.NewUserDirectoryRepository(db)

	// Database cleanup for expired challenges and lapsed devices
	cleanupManager := background.NewCleanupManager(challengeRepo, deviceRepo, logger, cfg.Login.CleanupInterval)

	auditLogger := pkglogger.NewAuditLogger(logger)

	// Timing delay keeps rejected credential checks from being
	// distinguishable by response time.
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Login.TimingDelayBaseMs,
		RandomDelayMs: cfg.Login.TimingDelayRandMs,
	})

	// Device trust
	trustService := trust.NewService(deviceRepo, cfg.Login.TrustWindow, logger, auditLogger)

	// One-time code delivery
	emailSender, err := services.NewAWSSESEmailSender(cfg.Delivery.AWSRegion, cfg.Delivery.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize email sender", slog.Any("error", err))
		os.Exit(1)
	}
	smsSender, err := services.NewAWSSNSSMSSender(cfg.Delivery.AWSRegion, cfg.Delivery.SMSSenderID, logger)
	if err != nil {
		logger.Error("failed to initialize sms sender", slog.Any("error", err))
		os.Exit(1)
	}

	otpService := otp.NewService(challengeRepo, directoryRepo, emailSender, smsSender, cfg.Login.CodeExpiry, logger, auditLogger)

	// Login attempt machinery
	attemptStore := loginflow.NewStore(cfg.Login.CleanupInterval, logger)
	machineConfig := loginflow.MachineConfig{
		ResendCooldown: time.Duration(cfg.Login.ResendCooldown) * time.Second,
		AttemptTTL:     cfg.Login.ChallengeExpiry,
	}
	// Each attempt gets its own provider scope so concurrent logins
	// never share a cached session or a suppression flag.
	newMachine := func(fingerprint string) *loginflow.Machine {
		provider := identity.NewHTTPProvider(cfg.Identity, logger)
		verifier := identity.NewVerifier(provider, timingDelay, logger)
		sessionGuard := identity.NewSessionGuard(provider, logger)
		return loginflow.NewMachine(fingerprint, verifier, sessionGuard, trustService, otpService, machineConfig, logger, auditLogger)
	}

	tokenManager := auth.NewChallengeTokenManager(cfg.Login.ChallengeSecret, cfg.Login.ChallengeExpiry)

	ipConfig := &pkghttp.IPConfig{}
	flowHandler := handlers.NewLoginFlowHandler(attemptStore, newMachine, tokenManager, ipConfig, auditLogger)

	// Setup CORS middleware
	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, flowHandler, db)

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start background tasks
	backgroundCtx, backgroundCancel := context.WithCancel(context.Background())
	defer backgroundCancel()

	go cleanupManager.Start(backgroundCtx)
	go attemptStore.Start(backgroundCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	backgroundCancel()
	cleanupManager.Stop()
	attemptStore.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
