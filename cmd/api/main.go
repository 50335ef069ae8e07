package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"moai/api/internal/app"
	"moai/api/internal/config"
	"moai/api/internal/email"
	"moai/api/internal/logging"
	"moai/api/internal/media"
	"moai/api/internal/realtime"
	"moai/api/internal/search"
	"moai/api/internal/session"
	"moai/api/internal/store"
	"moai/api/internal/translate"
)

const memoryDatabaseURL = "memory://"

func main() {
	cfg := config.Load()
	logging.Configure(cfg.LogLevel)
	log := logging.Logger
	ctx := context.Background()

	deps := app.Dependencies{
		Email: email.NewService(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			Inbox:    cfg.ContactInbox,
		}),
		Translator: translate.NewClient(cfg.TranslateURL, cfg.TranslateAPIKey),
	}

	mediaStore, err := media.NewStore(media.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		log.WithError(err).Fatal("media store setup failed")
	}
	deps.Media = mediaStore

	// Refresh tokens, the access token denylist and stream fan-out share one
	// Redis connection when configured.
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("redis connection failed")
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
		deps.Broker = realtime.NewRedisBroker(redisStore.Client())
		log.Info("using redis for sessions and realtime events")
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meili.Close()
	}

	var service *app.Service
	if cfg.DatabaseURL == memoryDatabaseURL {
		log.Warn("using in-memory store; data is lost on restart")
		if meili != nil {
			deps.Search = search.NewService(meili, nil, nil)
		}
		service = app.New(cfg, store.NewMemoryStore(), deps)
	} else {
		db, err := store.Open(ctx, cfg.DatabaseURL, store.DefaultPool)
		if err != nil {
			log.WithError(err).Fatal("database connection failed")
		}
		defer db.Close()

		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			log.WithError(err).Fatal("migrations failed")
		}
		if len(applied) > 0 {
			log.WithField("migrations", applied).Info("applied migrations")
		}

		pgfts := search.NewPgFTS(db)
		if meili != nil {
			deps.Search = search.NewService(meili, pgfts, pgfts)
		} else {
			deps.Search = search.NewService(nil, pgfts, pgfts)
		}
		service = app.New(cfg, store.NewPostgresStore(db), deps)
	}

	if err := service.Bootstrap(ctx); err != nil {
		log.WithError(err).Warn("bootstrap error")
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{
			"addr":  cfg.Addr,
			"email": service.EmailConfigured(),
			"media": mediaStore != nil,
			"redis": deps.Broker != nil,
		}).Info("MOAI API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}
}
