package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/preplab/server/internal/config"
	"github.com/preplab/server/internal/crypto"
	"github.com/preplab/server/internal/db"
	internalhttp "github.com/preplab/server/internal/http"
	"github.com/preplab/server/internal/mailer"
	"github.com/preplab/server/internal/oauth"
	"github.com/preplab/server/internal/otp"
	"github.com/preplab/server/internal/ratelimit"
	"github.com/preplab/server/internal/repository"
	"github.com/preplab/server/internal/token"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connection failed")
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.WithError(err).Fatal("redis connection failed")
	}

	store := repository.NewStore(pool)

	if cfg.SuperAdminEmail != "" && cfg.SuperAdminPassword != "" {
		hash, err := crypto.HashPassword(cfg.SuperAdminPassword, cfg.BcryptCost)
		if err != nil {
			log.WithError(err).Fatal("super admin password hash failed")
		}
		created, err := store.EnsureSuperAdmin(ctx, cfg.SuperAdminEmail, hash)
		if err != nil {
			log.WithError(err).Fatal("super admin seeding failed")
		}
		if created {
			log.WithField("email", cfg.SuperAdminEmail).Info("super admin created")
		}
	}

	var mail mailer.Sender = mailer.NopSender{}
	if cfg.SMTPHost != "" {
		sender, err := mailer.NewSMTPSender(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			log.WithError(err).Fatal("smtp configuration invalid")
		}
		mail = sender
	} else {
		log.Warn("SMTP not configured, outbound email disabled")
	}

	codec := token.NewCodec(cfg.JWTIssuer, token.Secrets{
		Access:  cfg.JWTAccessSecret,
		Refresh: cfg.JWTRefreshSecret,
		Reset:   cfg.JWTResetSecret,
	}, token.TTLs{
		Access:  cfg.AccessTokenTTL,
		Refresh: cfg.RefreshTokenTTL,
		Reset:   cfg.ResetTokenTTL,
	})

	branding := mailer.Branding{
		CompanyName:  cfg.CompanyName,
		FrontendURL:  cfg.FrontendURL,
		SupportEmail: cfg.SupportEmail,
	}
	engine := otp.NewEngine(store, otp.NewStore(rdb, cfg.OTPTTL), mail, branding, log)
	limiter := ratelimit.New(rdb, cfg.RateLimitWindow, cfg.RateLimitMax)
	google := oauth.NewGoogleClient(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)

	server := internalhttp.NewServer(cfg, store, codec, engine, limiter, google, mail, log)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("identity service listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
}
