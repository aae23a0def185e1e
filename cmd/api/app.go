package main

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"mellow-backend/internal/analytics"
	"mellow-backend/internal/auth"
	"mellow-backend/internal/chat"
	"mellow-backend/internal/communities"
	"mellow-backend/internal/config"
	"mellow-backend/internal/db"
	"mellow-backend/internal/goals"
	"mellow-backend/internal/logging"
	"mellow-backend/internal/media"
	"mellow-backend/internal/posts"
	"mellow-backend/internal/profiles"
)

// app holds everything built from configuration, shared by the commands.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	db    *sqlx.DB
	media *media.Storage

	profiles    *profiles.Service
	goals       *goals.Service
	communities *communities.Service
	posts       *posts.Service
	chat        *chat.Service
	hub         *chat.Hub
	events      *analytics.Recorder
}

func loadBase() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newApp(ctx context.Context) (*app, error) {
	cfg, log, err := loadBase()
	if err != nil {
		return nil, err
	}

	database, err := db.Connect(ctx, cfg.ConnString())
	if err != nil {
		return nil, err
	}
	log.Info("connected to postgres", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))

	store, err := media.New(media.Options{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		UseSSL:    cfg.MinioUseSSL,
		Bucket:    cfg.MediaBucket,
		PublicURL: cfg.MediaPublicURL,
		MaxBytes:  cfg.MediaMaxBytes,
	})
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: database, media: store}
	a.wire()
	return a, nil
}

func (a *app) wire() {
	a.events = analytics.NewRecorder(analytics.NewSQLSink(a.db), a.log)

	a.profiles = profiles.NewService(profiles.NewSQLStore(a.db), a.media)
	a.goals = goals.NewService(goals.NewSQLStore(a.db), a.profiles)
	a.communities = communities.NewService(communities.NewSQLStore(a.db))
	a.posts = posts.NewService(posts.NewSQLStore(a.db), a.communities, a.media, posts.Options{
		ReportThreshold: a.cfg.PostReportThreshold,
		TTL:             a.cfg.PostTTL,
	}, a.log)
	a.hub = chat.NewHub(32)
	a.chat = chat.NewService(chat.NewSQLStore(a.db), a.hub)
}

func (a *app) handlers() *handlers {
	return &handlers{
		auth:        auth.NewHandler(auth.NewSQLStore(a.db), []byte(a.cfg.JWTSecret), a.media, a.log),
		profiles:    profiles.NewHandler(a.profiles, a.cfg.MediaMaxBytes, a.log),
		goals:       goals.NewHandler(a.goals, a.events, a.log),
		communities: communities.NewHandler(a.communities, a.events, a.log),
		posts:       posts.NewHandler(a.posts, a.cfg.MediaMaxBytes, a.events, a.log),
		chat:        chat.NewHandler(a.chat, a.hub, a.events, a.log),
		events:      a.events,
	}
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn("closing database", zap.Error(err))
	}
	_ = a.log.Sync()
}

func (a *app) migrate(ctx context.Context) error {
	if err := db.Migrate(ctx, a.db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	a.log.Info("migrations applied")
	return nil
}
