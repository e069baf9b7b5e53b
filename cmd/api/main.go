package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/mail"
	resetrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/passwordreset/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/remote"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/resilience"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-auth-go")

	cfg := config.ConfigFromEnv()

	secret, err := jwtSecret(cfg.JWT, sugar)
	if err != nil {
		sugar.Fatalf("jwt secret: %v", err)
	}
	codec, err := token.NewCodec(secret, cfg.JWT.Issuer, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)
	if err != nil {
		sugar.Fatalf("token codec: %v", err)
	}

	s, err := openStores(cfg.StoreDriver, sugar)
	if err != nil {
		sugar.Fatalf("stores: %v", err)
	}
	defer s.close()

	var revocations token.RevocationStore = token.NoopRevocationStore{}
	if cfg.RedisURL != "" {
		rdb, err := database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			sugar.Fatalf("redis connect: %v", err)
		}
		defer rdb.Close()
		revocations = token.NewRedisRevocationStore(rdb)
		sugar.Info("token revocation enabled")
	} else {
		sugar.Warn("REDIS_URL not set; logout will not revoke tokens")
	}

	profiles, notifications := remoteClients(cfg, sugar)

	sender, err := mail.NewSender(cfg.Mail, sugar)
	if err != nil {
		sugar.Fatalf("mail sender: %v", err)
	}
	mailer := mail.NewBreakingSender(sender, resilience.NewBreaker("email-service", cfg.Breaker, sugar))

	users := user.NewUserService(s.users, user.BcryptHasher{Cost: cfg.BcryptCost})
	svc, err := auth.NewService(auth.Deps{
		Users:         users,
		ResetTokens:   s.resetTokens,
		Codec:         codec,
		Revocations:   revocations,
		Profiles:      profiles,
		Notifications: notifications,
		Mailer:        mailer,
		Logger:        sugar.Named("auth"),
	}, auth.Options{
		NotificationToken:  cfg.NotificationServiceToken,
		MailFailureIsFatal: cfg.Mail.FailureIsFatal,
	})
	if err != nil {
		sugar.Fatalf("auth service: %v", err)
	}

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := router.RegisterRoutes(sugar, auth.NewHandler(svc, cfg.BaseURL, sugar.Named("http")))
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		sugar.Infow("http server listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	if err := s.ping(doneCtx); err != nil {
		sugar.Warnf("store ping on shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}

// jwtSecret refuses short secrets. With JWT_ALLOW_EPHEMERAL=1 a random one is
// generated, which invalidates all tokens on restart.
func jwtSecret(cfg config.JWTConfig, logger *zap.SugaredLogger) ([]byte, error) {
	if len(cfg.Secret) >= token.MinSecretLen {
		return []byte(cfg.Secret), nil
	}
	if !cfg.AllowEphemeral {
		if cfg.Secret == "" {
			return nil, errors.New("JWT_SECRET is not set")
		}
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes", token.MinSecretLen)
	}
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	logger.Warn("using an ephemeral JWT secret; tokens will not survive a restart")
	return buf, nil
}

// remoteClients builds breaker-guarded HTTP clients for the configured sibling
// services. An unconfigured service gets a disabled client without a breaker.
func remoteClients(cfg config.Config, logger *zap.SugaredLogger) (remote.ProfileClient, remote.NotificationClient) {
	httpClient := &http.Client{Timeout: cfg.Breaker.CallTimeout}

	var profiles remote.ProfileClient = remote.DisabledProfileClient{}
	if cfg.UserServiceURL != "" {
		profiles = remote.NewBreakingProfileClient(
			remote.NewHTTPProfileClient(cfg.UserServiceURL, httpClient),
			resilience.NewBreaker("user-service", cfg.Breaker, logger),
		)
	} else {
		logger.Warn("USER_SERVICE_URL not set; profiles will not be propagated")
	}

	var notifications remote.NotificationClient = remote.DisabledNotificationClient{}
	if cfg.NotificationServiceURL != "" {
		notifications = remote.NewBreakingNotificationClient(
			remote.NewHTTPNotificationClient(cfg.NotificationServiceURL, httpClient),
			resilience.NewBreaker("notification-service", cfg.Breaker, logger),
			logger,
		)
	} else {
		logger.Warn("NOTIFICATION_SERVICE_URL not set; notifications disabled")
	}
	return profiles, notifications
}

type stores struct {
	users       userrepo.Store
	resetTokens resetrepo.Store
	ping        func(ctx context.Context) error
	close       func()
}

// openStores connects the selected backend and prepares its indexes or tables.
func openStores(driver string, logger *zap.SugaredLogger) (*stores, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch driver {
	case "mongo", "mongodb":
		client, db, err := database.ConnectMongo(database.MongoConfigFromEnv())
		if err != nil {
			return nil, err
		}
		users := userrepo.NewMongoUserRepo(db)
		resets := resetrepo.NewMongoRepo(db)
		if err := users.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("user indexes: %w", err)
		}
		if err := resets.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("reset token indexes: %w", err)
		}
		logger.Infow("mongo connected", "database", db.Name())
		return &stores{
			users:       users,
			resetTokens: resets,
			ping:        func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close: func() {
				if err := client.Disconnect(context.Background()); err != nil {
					logger.Warnf("mongo disconnect: %v", err)
				}
			},
		}, nil
	case "postgres", "postgresql":
		db, err := database.Connect(database.ConfigFromEnv())
		if err != nil {
			return nil, err
		}
		users := userrepo.NewUserRepo(db)
		resets := resetrepo.NewTokenRepo(db)
		if err := users.EnsureTable(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("users table: %w", err)
		}
		if err := resets.EnsureTable(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("reset tokens table: %w", err)
		}
		logger.Info("postgres connected")
		return &stores{
			users:       users,
			resetTokens: resets,
			ping:        db.PingContext,
			close:       func() { _ = db.Close() },
		}, nil
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", driver)
	}
}
