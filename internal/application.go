package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/connectfour-backend/internal/config"
	"github.com/rocketscienceinc/connectfour-backend/internal/replication"
	"github.com/rocketscienceinc/connectfour-backend/internal/repository"
	"github.com/rocketscienceinc/connectfour-backend/internal/repository/storage"
	"github.com/rocketscienceinc/connectfour-backend/internal/usecase"
	"github.com/rocketscienceinc/connectfour-backend/transport/rest"
	"github.com/rocketscienceinc/connectfour-backend/transport/websocket"
)

const shutdownTimeout = 10 * time.Second

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application until SIGINT or SIGTERM.
func RunApp(logger *zap.Logger, conf *config.Config) (err error) {
	log := logger.With(zap.String("component", "app"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisAddrString := conf.Redis.GetRedisAddr()
	if conf.Redis.Host == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedis(ctx, storage.RedisOptions{
		Addr:     redisAddrString,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		err = multierr.Append(err, redisStorage.Close())
	}()

	var archiveRepo repository.ArchiveRepository

	if conf.Postgres.DSN != "" {
		archiveStorage, pgErr := storage.NewPostgres(ctx, conf.Postgres.DSN)
		if pgErr != nil {
			return fmt.Errorf("could not connect to archive storage: %w", pgErr)
		}

		defer func() {
			err = multierr.Append(err, archiveStorage.Close())
		}()

		if pgErr = archiveStorage.Init(ctx); pgErr != nil {
			return fmt.Errorf("could not prepare archive storage: %w", pgErr)
		}

		archiveRepo = repository.NewArchiveRepository(archiveStorage.Connection)
	} else {
		log.Info("postgres dsn not set, finished games are not archived")
	}

	gameRepo := repository.NewGameRepository(redisStorage, conf.Game.TTL)

	gameManager := usecase.NewGameManager(logger, gameRepo, archiveRepo, usecase.Options{
		MaxAttempts:  conf.Game.MaxAttempts,
		RetryBackoff: conf.Game.RetryBackoff,
		StoreTimeout: conf.Game.StoreTimeout,
	})

	hub := replication.NewHub(logger, redisStorage, gameRepo, conf.Game.StoreTimeout)
	defer hub.Close()

	router := rest.NewRouter(
		logger,
		rest.NewPingHandler(logger, storage.NewRedisPinger(redisStorage)),
		rest.NewGameHandlers(logger, gameManager),
		websocket.New(logger, gameManager, hub),
	)

	srv := rest.NewServer(conf.HTTPPort, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("Starting HTTP server", zap.String("port", conf.HTTPPort))

		if srvErr := srv.ListenAndServe(); srvErr != nil && !errors.Is(srvErr, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", srvErr)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()

		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		hub.Close()

		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			return fmt.Errorf("HTTP server shutdown: %w", shutdownErr)
		}

		return nil
	})

	return group.Wait()
}
