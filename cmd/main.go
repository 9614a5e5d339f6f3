package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	httpapi "github.com/immxrtalbeast/pairline/internal/api/http"
	"github.com/immxrtalbeast/pairline/internal/config"
	"github.com/immxrtalbeast/pairline/internal/domain"
	"github.com/immxrtalbeast/pairline/internal/repository"
	"github.com/immxrtalbeast/pairline/internal/repository/model"
	"github.com/immxrtalbeast/pairline/internal/service"
	"github.com/immxrtalbeast/pairline/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	sessionRepo, userRepo, err := buildRepositories(cfg.Database, log)
	if err != nil {
		log.Error("failed to set up storage", slog.Any("error", err))
		os.Exit(1)
	}

	presence := service.NewPresenceService(log)
	roomService := service.NewRoomService(sessionRepo, presence, log)
	matchService := service.NewMatchService(presence, roomService, log)
	relayService := service.NewRelayService(presence, roomService, log)
	userService := service.NewUserService(userRepo, log)

	// The online feed: every register/unregister pushes the fresh count
	// to everyone still connected.
	presence.Subscribe(func(ev service.PresenceEvent) {
		presence.BroadcastEvent(domain.EventOnlineCount, map[string]any{"count": ev.OnlineCount})
	})

	// Missed heartbeats take the same path as a transport close.
	presence.SetEvictHandler(func(identity string) {
		if conn, ok := presence.Lookup(identity); ok {
			presence.Unregister(identity, conn.ID())
			conn.Close()
		}
		matchService.Cancel(identity)
		roomService.HandleDisconnect(context.Background(), identity)
	})
	presence.StartSweeper(context.Background(), cfg.Heartbeat.SweepInterval, cfg.Heartbeat.MaxIdle())

	signalController := httpapi.NewSignalController(presence, matchService, roomService, relayService, userService, cfg.WebRTC, log)
	userController := httpapi.NewUserController(userService)
	sessionController := httpapi.NewSessionController(sessionRepo)

	router := httpapi.SetupRouter(signalController, userController, sessionController)

	log.Info("starting application", slog.String("addr", cfg.HTTP.Address))
	if err := router.Run(cfg.HTTP.Address); err != nil {
		log.Error("http server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func buildRepositories(cfg config.DatabaseConfig, log *slog.Logger) (repository.SessionRepository, repository.UserRepository, error) {
	if cfg.DSN == "" {
		log.Warn("database dsn is empty, using in-memory store")
		return repository.NewInMemorySessionRepository(), repository.NewInMemoryUserRepository(), nil
	}

	db, err := connectDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}

	return repository.NewPostgresSessionRepository(db), repository.NewPostgresUserRepository(db), nil
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	db.AutoMigrate(&model.Session{}, &model.User{})

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}
