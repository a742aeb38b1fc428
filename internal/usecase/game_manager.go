package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/connectfour"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
	"go.uber.org/zap"
)

type gameRepo interface {
	Create(ctx context.Context, game *entity.Game) error
	GetByID(ctx context.Context, id string) (*entity.Game, error)
	UpdateIfVersion(ctx context.Context, game *entity.Game, expectedVersion string) error
	Replace(ctx context.Context, game *entity.Game) error
	DeleteByID(ctx context.Context, id string) error
}

type archiveRepo interface {
	Save(ctx context.Context, game *entity.Game) error
	GetByID(ctx context.Context, id string) (*entity.ArchivedGame, error)
}

type Options struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	StoreTimeout time.Duration
}

// GameManager - applies moves to the shared game with optimistic concurrency.
// It holds no lock: the store's conditional write decides which move lands first.
type GameManager struct {
	logger      *zap.Logger
	gameRepo    gameRepo
	archiveRepo archiveRepo
	opts        Options
	newID       func() string
}

// NewGameManager - archiveRepo may be nil, finished games are then not archived.
func NewGameManager(logger *zap.Logger, gameRepo gameRepo, archiveRepo archiveRepo, opts Options) *GameManager {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	return &GameManager{
		logger:      logger.With(zap.String("component", "game_manager")),
		gameRepo:    gameRepo,
		archiveRepo: archiveRepo,
		opts:        opts,
		newID:       uuid.NewString,
	}
}

// SubmitMove - drops the current player's token into column of the game.
// Rule rejections return the state they were judged against together with the error.
func (that *GameManager) SubmitMove(ctx context.Context, gameID string, column int) (*entity.Game, error) {
	log := that.logger.With(zap.String("method", "SubmitMove"), zap.String("gameID", gameID), zap.Int("column", column))

	if err := connectfour.ValidateColumn(column); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= that.opts.MaxAttempts; attempt++ {
		current, err := that.getGame(ctx, gameID)
		if err != nil {
			return nil, err
		}

		next, err := connectfour.ApplyMove(current, column)
		if err != nil {
			return current, err
		}

		err = that.updateGame(ctx, next, current.Version)
		if err == nil {
			log.Info("move committed",
				zap.Int("attempt", attempt),
				zap.Int("moveCount", next.MoveCount),
				zap.String("status", string(next.Status)),
			)

			if next.IsFinished() {
				that.archiveGame(ctx, next)
			}

			return next, nil
		}

		if !errors.Is(err, apperror.ErrConcurrentUpdate) {
			return nil, err
		}

		log.Debug("concurrent update, retrying", zap.Int("attempt", attempt))

		if attempt < that.opts.MaxAttempts {
			if err = that.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	log.Warn("retry budget exhausted", zap.Int("attempts", that.opts.MaxAttempts))

	return nil, fmt.Errorf("%w: game %s after %d attempts", apperror.ErrConcurrentUpdateExhausted, gameID, that.opts.MaxAttempts)
}

// ResetGame - replaces an existing game with a fresh one regardless of concurrent moves.
func (that *GameManager) ResetGame(ctx context.Context, gameID string) (*entity.Game, error) {
	fresh := connectfour.NewGame(gameID)

	storeCtx, cancel := context.WithTimeout(ctx, that.opts.StoreTimeout)
	defer cancel()

	if err := that.gameRepo.Replace(storeCtx, fresh); err != nil {
		return nil, fmt.Errorf("failed to reset game: %w", err)
	}

	that.logger.Info("game reset", zap.String("gameID", gameID), zap.String("version", fresh.Version))

	return fresh, nil
}

func (that *GameManager) CreateGame(ctx context.Context) (*entity.Game, error) {
	game := connectfour.NewGame(that.newID())

	storeCtx, cancel := context.WithTimeout(ctx, that.opts.StoreTimeout)
	defer cancel()

	if err := that.gameRepo.Create(storeCtx, game); err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}

	that.logger.Info("game created", zap.String("gameID", game.ID))

	return game, nil
}

func (that *GameManager) GetGame(ctx context.Context, gameID string) (*entity.Game, error) {
	return that.getGame(ctx, gameID)
}

func (that *GameManager) DeleteGame(ctx context.Context, gameID string) error {
	storeCtx, cancel := context.WithTimeout(ctx, that.opts.StoreTimeout)
	defer cancel()

	if err := that.gameRepo.DeleteByID(storeCtx, gameID); err != nil {
		return fmt.Errorf("failed to delete game: %w", err)
	}

	that.logger.Info("game deleted", zap.String("gameID", gameID))

	return nil
}

// GetArchivedGame - the archived result of a finished game.
func (that *GameManager) GetArchivedGame(ctx context.Context, gameID string) (*entity.ArchivedGame, error) {
	if that.archiveRepo == nil {
		return nil, apperror.ErrArchiveDisabled
	}

	storeCtx, cancel := context.WithTimeout(ctx, that.opts.StoreTimeout)
	defer cancel()

	archived, err := that.archiveRepo.GetByID(storeCtx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get archived game: %w", err)
	}

	return archived, nil
}

func (that *GameManager) getGame(ctx context.Context, gameID string) (*entity.Game, error) {
	storeCtx, cancel := context.WithTimeout(ctx, that.opts.StoreTimeout)
	defer cancel()

	game, err := that.gameRepo.GetByID(storeCtx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to get game: %w", err)
	}

	return game, nil
}

func (that *GameManager) updateGame(ctx context.Context, game *entity.Game, expectedVersion string) error {
	storeCtx, cancel := context.WithTimeout(ctx, that.opts.StoreTimeout)
	defer cancel()

	if err := that.gameRepo.UpdateIfVersion(storeCtx, game, expectedVersion); err != nil {
		return fmt.Errorf("failed to update game: %w", err)
	}

	return nil
}

// archiveGame - best effort, the move is already committed. The caller leaving does not stop it.
func (that *GameManager) archiveGame(ctx context.Context, game *entity.Game) {
	if that.archiveRepo == nil {
		return
	}

	log := that.logger.With(zap.String("method", "archiveGame"), zap.String("gameID", game.ID))

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), that.opts.StoreTimeout)
	defer cancel()

	if err := that.archiveRepo.Save(storeCtx, game); err != nil {
		log.Error("failed to archive game", zap.Error(err))
		return
	}

	log.Info("game archived", zap.String("status", string(game.Status)))
}

func (that *GameManager) backoff(ctx context.Context, attempt int) error {
	if that.opts.RetryBackoff <= 0 {
		return nil
	}

	timer := time.NewTimer(that.opts.RetryBackoff * time.Duration(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("move abandoned: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
