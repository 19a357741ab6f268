package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yudi-prasetyo/psychchat-backend/internal/appointments"
	"github.com/yudi-prasetyo/psychchat-backend/internal/auth"
	"github.com/yudi-prasetyo/psychchat-backend/internal/config"
	"github.com/yudi-prasetyo/psychchat-backend/internal/database"
	"github.com/yudi-prasetyo/psychchat-backend/internal/identity"
	"github.com/yudi-prasetyo/psychchat-backend/internal/logging"
	"github.com/yudi-prasetyo/psychchat-backend/internal/metrics"
	"github.com/yudi-prasetyo/psychchat-backend/internal/psychologists"
	"github.com/yudi-prasetyo/psychchat-backend/internal/server"
	"github.com/yudi-prasetyo/psychchat-backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "psychchat-api",
		Short: "PsychChat appointment backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	flags.StringSlice("allowed-origins", nil, "Origins allowed to send credentialed requests")
	flags.String("database-path", defaults.GetString("database.path"), "SQLite database path")
	flags.String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.String("identity-provider", defaults.GetString("identity.provider"), "Identity provider (local, firebase)")
	flags.String("signing-secret", "", "Local identity signing secret (overrides env)")
	flags.String("firebase-project-id", "", "Firebase project id")
	flags.String("mail-amqp-url", "", "AMQP broker URL for outbound mail jobs")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "identity.provider", "identity-provider")
	bindFlag(cmd, "identity.signing_secret", "signing-secret")
	bindFlag(cmd, "firebase.project_id", "firebase-project-id")
	bindFlag(cmd, "mail.amqp_url", "mail-amqp-url")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	provider, verifier, closeIdentity, err := buildIdentity(appConfig, db, logger)
	if err != nil {
		return err
	}
	defer closeIdentity()

	sessions, err := auth.NewSessionValidator(auth.SessionValidatorConfig{Verifier: verifier})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Identity: provider,
		Logger:   logger.Named("users"),
	})
	if err != nil {
		return err
	}

	directory, err := psychologists.NewService(psychologists.ServiceConfig{
		Database:  db,
		Registrar: userService,
		Logger:    logger.Named("psychologists"),
	})
	if err != nil {
		return err
	}

	book, err := appointments.NewService(appointments.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: appointments.NewUUIDProvider(),
		Logger:     logger.Named("appointments"),
	})
	if err != nil {
		return err
	}

	deps := server.Dependencies{
		Sessions:               sessions,
		Roles:                  userService,
		Accounts:               userService,
		Identity:               provider,
		Psychologists:          directory,
		Appointments:           book,
		Realtime:               server.NewRealtimeDispatcher(),
		Logger:                 logger.Named("http"),
		BasePath:               appConfig.BasePath,
		AllowedOrigins:         appConfig.AllowedOrigins,
		CookieSecure:           appConfig.CookieSecure,
		AllowAdminRegistration: appConfig.AllowAdminRegistration,
		HeartbeatInterval:      appConfig.HeartbeatInterval,
	}
	if appConfig.MetricsEnabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		deps.Metrics = metrics.NewCollector(registry)
		deps.MetricsHandler = metrics.Handler(registry)
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("identity_provider", appConfig.IdentityProvider),
		)
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildIdentity selects the identity provider and the matching token verifier.
func buildIdentity(appConfig config.AppConfig, db *gorm.DB, logger *zap.Logger) (identity.Provider, auth.TokenVerifier, func(), error) {
	identityLogger := logger.Named("identity")

	if appConfig.IdentityProvider == config.ProviderFirebase {
		verifier, err := auth.NewFirebaseVerifier(auth.FirebaseVerifierConfig{
			ProjectID: appConfig.FirebaseProjectID,
			JWKSURL:   appConfig.FirebaseJWKSURL,
			Logger:    identityLogger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		provider, err := identity.NewFirebaseProvider(identity.FirebaseProviderConfig{
			APIKey:  appConfig.FirebaseAPIKey,
			BaseURL: appConfig.FirebaseBaseURL,
			Logger:  identityLogger,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return provider, verifier, func() {}, nil
	}

	mailer, closeMailer, err := buildMailer(appConfig, identityLogger)
	if err != nil {
		return nil, nil, nil, err
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.IdentityIssuer,
		Audience:      appConfig.IdentityAudience(),
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		closeMailer()
		return nil, nil, nil, err
	}
	provider, err := identity.NewLocalProvider(identity.LocalProviderConfig{
		Database: db,
		Issuer:   issuer,
		Mailer:   mailer,
		Logger:   identityLogger,
	})
	if err != nil {
		closeMailer()
		return nil, nil, nil, err
	}
	return provider, issuer, closeMailer, nil
}

func buildMailer(appConfig config.AppConfig, logger *zap.Logger) (identity.Mailer, func(), error) {
	if appConfig.MailAMQPURL == "" {
		return identity.NewLogMailer(logger), func() {}, nil
	}
	mailer, err := identity.DialAMQPMailer(appConfig.MailAMQPURL, appConfig.MailExchange, appConfig.MailRoutingKey)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("mail jobs published to broker", zap.String("routing_key", appConfig.MailRoutingKey))
	return mailer, func() {
		if closeErr := mailer.Close(); closeErr != nil {
			logger.Warn("mail broker close failed", zap.Error(closeErr))
		}
	}, nil
}
