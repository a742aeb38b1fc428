package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
	"github.com/rocketscienceinc/connectfour-backend/internal/repository"
	"github.com/rocketscienceinc/connectfour-backend/testing/suite"
)

var errRedisDown = errors.New("redis down")

type mockGameRepo struct {
	mock.Mock
}

func (that *mockGameRepo) Create(ctx context.Context, game *entity.Game) error {
	return that.Called(ctx, game).Error(0)
}

func (that *mockGameRepo) GetByID(ctx context.Context, id string) (*entity.Game, error) {
	args := that.Called(ctx, id)
	game, _ := args.Get(0).(*entity.Game)

	return game, args.Error(1)
}

func (that *mockGameRepo) UpdateIfVersion(ctx context.Context, game *entity.Game, expectedVersion string) error {
	return that.Called(ctx, game, expectedVersion).Error(0)
}

func (that *mockGameRepo) Replace(ctx context.Context, game *entity.Game) error {
	return that.Called(ctx, game).Error(0)
}

func (that *mockGameRepo) DeleteByID(ctx context.Context, id string) error {
	return that.Called(ctx, id).Error(0)
}

type mockArchiveRepo struct {
	mock.Mock
}

func (that *mockArchiveRepo) Save(ctx context.Context, game *entity.Game) error {
	return that.Called(ctx, game).Error(0)
}

func (that *mockArchiveRepo) GetByID(ctx context.Context, id string) (*entity.ArchivedGame, error) {
	args := that.Called(ctx, id)
	archived, _ := args.Get(0).(*entity.ArchivedGame)

	return archived, args.Error(1)
}

func testOptions() Options {
	return Options{
		MaxAttempts:  3,
		RetryBackoff: time.Millisecond,
		StoreTimeout: time.Second,
	}
}

func storedGame(version string) *entity.Game {
	return &entity.Game{
		ID:            "123",
		CurrentPlayer: entity.PlayerA,
		Status:        entity.StatusInProgress,
		Version:       version,
	}
}

// almostWonGame - A holds columns 0..2 of the bottom row and is to move.
func almostWonGame(version string) *entity.Game {
	game := storedGame(version)
	game.Board[entity.Rows-1][0] = entity.PlayerA
	game.Board[entity.Rows-1][1] = entity.PlayerA
	game.Board[entity.Rows-1][2] = entity.PlayerA
	game.Board[entity.Rows-2][0] = entity.PlayerB
	game.Board[entity.Rows-2][1] = entity.PlayerB
	game.MoveCount = 5

	return game
}

func TestGameManager_SubmitMove(t *testing.T) {
	ctx := context.Background()

	t.Run("Rejects an out of range column without touching the store", func(t *testing.T) {
		// Given: a repository that expects no calls
		gameRepo := &mockGameRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())

		// When: a move into column 7 is submitted
		game, err := manager.SubmitMove(ctx, "123", entity.Columns)

		// Then: the input is rejected
		require.ErrorIs(t, err, apperror.ErrInvalidColumn)
		require.ErrorIs(t, err, apperror.ErrInvalidInput)
		assert.Nil(t, game)
		gameRepo.AssertExpectations(t)
	})

	t.Run("Commits the move against the version it read", func(t *testing.T) {
		// Given: a fresh game at version v1
		gameRepo := &mockGameRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())

		gameRepo.On("GetByID", mock.Anything, "123").Return(storedGame("v1"), nil).Once()
		gameRepo.On("UpdateIfVersion", mock.Anything, mock.AnythingOfType("*entity.Game"), "v1").Return(nil).Once()

		// When: A drops into column 3
		game, err := manager.SubmitMove(ctx, "123", 3)

		// Then: the token lands at the bottom and B is to move
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerA, game.Board[entity.Rows-1][3])
		assert.Equal(t, entity.PlayerB, game.CurrentPlayer)
		assert.Equal(t, 1, game.MoveCount)
		gameRepo.AssertExpectations(t)
	})

	t.Run("Re-reads and reapplies after a version conflict", func(t *testing.T) {
		// Given: a concurrent move lands between the first read and write
		gameRepo := &mockGameRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())

		afterConcurrentMove := storedGame("v2")
		afterConcurrentMove.Board[entity.Rows-1][3] = entity.PlayerA
		afterConcurrentMove.CurrentPlayer = entity.PlayerB
		afterConcurrentMove.MoveCount = 1

		gameRepo.On("GetByID", mock.Anything, "123").Return(storedGame("v1"), nil).Once()
		gameRepo.On("UpdateIfVersion", mock.Anything, mock.AnythingOfType("*entity.Game"), "v1").
			Return(repository.ErrVersionMismatch).Once()
		gameRepo.On("GetByID", mock.Anything, "123").Return(afterConcurrentMove, nil).Once()
		gameRepo.On("UpdateIfVersion", mock.Anything, mock.AnythingOfType("*entity.Game"), "v2").Return(nil).Once()

		// When: the move into column 3 is submitted
		game, err := manager.SubmitMove(ctx, "123", 3)

		// Then: it stacks on top of the concurrent move as B
		require.NoError(t, err)
		assert.Equal(t, entity.PlayerA, game.Board[entity.Rows-1][3])
		assert.Equal(t, entity.PlayerB, game.Board[entity.Rows-2][3])
		assert.Equal(t, 2, game.MoveCount)
		gameRepo.AssertExpectations(t)
	})

	t.Run("Gives up after the retry budget", func(t *testing.T) {
		// Given: every write loses the race
		gameRepo := &mockGameRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())

		gameRepo.On("GetByID", mock.Anything, "123").Return(storedGame("v1"), nil).Times(3)
		gameRepo.On("UpdateIfVersion", mock.Anything, mock.AnythingOfType("*entity.Game"), "v1").
			Return(repository.ErrVersionMismatch).Times(3)

		// When: a move is submitted
		game, err := manager.SubmitMove(ctx, "123", 0)

		// Then: the move is abandoned with a distinct error
		require.ErrorIs(t, err, apperror.ErrConcurrentUpdateExhausted)
		assert.Nil(t, game)
		gameRepo.AssertExpectations(t)
	})

	t.Run("Does not retry when the store is unavailable", func(t *testing.T) {
		// Given: the write fails for infrastructure reasons
		gameRepo := &mockGameRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())

		storeErr := errors.Join(apperror.ErrStoreUnavailable, errRedisDown)
		gameRepo.On("GetByID", mock.Anything, "123").Return(storedGame("v1"), nil).Once()
		gameRepo.On("UpdateIfVersion", mock.Anything, mock.AnythingOfType("*entity.Game"), "v1").
			Return(storeErr).Once()

		// When: a move is submitted
		_, err := manager.SubmitMove(ctx, "123", 0)

		// Then: the error surfaces after one attempt
		require.ErrorIs(t, err, apperror.ErrStoreUnavailable)
		assert.NotErrorIs(t, err, apperror.ErrConcurrentUpdateExhausted)
		gameRepo.AssertExpectations(t)
	})

	t.Run("Returns the current state when the column is full", func(t *testing.T) {
		// Given: column 0 is full
		gameRepo := &mockGameRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())

		current := storedGame("v1")
		for row := 0; row < entity.Rows; row++ {
			current.Board[row][0] = entity.Cell(row%2 + 1)
		}
		current.MoveCount = entity.Rows

		gameRepo.On("GetByID", mock.Anything, "123").Return(current, nil).Once()

		// When: a move into column 0 is submitted
		game, err := manager.SubmitMove(ctx, "123", 0)

		// Then: the move is rejected without a write
		require.ErrorIs(t, err, apperror.ErrColumnFull)
		require.ErrorIs(t, err, apperror.ErrIllegalMove)
		assert.Equal(t, current, game)
		gameRepo.AssertExpectations(t)
	})

	t.Run("Rejects moves on a finished game", func(t *testing.T) {
		// Given: a game that is already won
		gameRepo := &mockGameRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())

		finished := storedGame("v1")
		finished.Status = entity.StatusWon
		finished.Winner = entity.PlayerA

		gameRepo.On("GetByID", mock.Anything, "123").Return(finished, nil).Once()

		// When: a move is submitted
		_, err := manager.SubmitMove(ctx, "123", 4)

		// Then: it is rejected as game over
		require.ErrorIs(t, err, apperror.ErrGameOver)
		gameRepo.AssertExpectations(t)
	})

	t.Run("Returns not found for an unknown game", func(t *testing.T) {
		gameRepo := &mockGameRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())

		gameRepo.On("GetByID", mock.Anything, "missing").Return(nil, apperror.ErrGameNotFound).Once()

		_, err := manager.SubmitMove(ctx, "missing", 4)

		require.ErrorIs(t, err, apperror.ErrGameNotFound)
	})

	t.Run("Archives the game after the winning move", func(t *testing.T) {
		// Given: A is one move from a horizontal line
		gameRepo := &mockGameRepo{}
		archiveRepo := &mockArchiveRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, archiveRepo, testOptions())

		gameRepo.On("GetByID", mock.Anything, "123").Return(almostWonGame("v5"), nil).Once()
		gameRepo.On("UpdateIfVersion", mock.Anything, mock.AnythingOfType("*entity.Game"), "v5").Return(nil).Once()
		archiveRepo.On("Save", mock.Anything, mock.MatchedBy(func(game *entity.Game) bool {
			return game.Status == entity.StatusWon && game.Winner == entity.PlayerA
		})).Return(nil).Once()

		// When: A completes the line
		game, err := manager.SubmitMove(ctx, "123", 3)

		// Then: the win is committed and archived
		require.NoError(t, err)
		assert.Equal(t, entity.StatusWon, game.Status)
		gameRepo.AssertExpectations(t)
		archiveRepo.AssertExpectations(t)
	})

	t.Run("Keeps the committed win when archiving fails", func(t *testing.T) {
		// Given: the archive is down
		gameRepo := &mockGameRepo{}
		archiveRepo := &mockArchiveRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, archiveRepo, testOptions())

		gameRepo.On("GetByID", mock.Anything, "123").Return(almostWonGame("v5"), nil).Once()
		gameRepo.On("UpdateIfVersion", mock.Anything, mock.AnythingOfType("*entity.Game"), "v5").Return(nil).Once()
		archiveRepo.On("Save", mock.Anything, mock.AnythingOfType("*entity.Game")).Return(errRedisDown).Once()

		// When: A completes the line
		game, err := manager.SubmitMove(ctx, "123", 3)

		// Then: the caller still sees the win
		require.NoError(t, err)
		assert.Equal(t, entity.StatusWon, game.Status)
		archiveRepo.AssertExpectations(t)
	})

	t.Run("Archives the win even when the caller leaves after the commit", func(t *testing.T) {
		// Given: a caller that disconnects as soon as the winning move is stored
		gameRepo := &mockGameRepo{}
		archiveRepo := &mockArchiveRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, archiveRepo, testOptions())

		callerCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		var archiveCtxErr error

		gameRepo.On("GetByID", mock.Anything, "123").Return(almostWonGame("v5"), nil).Once()
		gameRepo.On("UpdateIfVersion", mock.Anything, mock.AnythingOfType("*entity.Game"), "v5").
			Run(func(mock.Arguments) { cancel() }).
			Return(nil).Once()
		archiveRepo.On("Save", mock.Anything, mock.AnythingOfType("*entity.Game")).
			Run(func(args mock.Arguments) {
				archiveCtxErr = args.Get(0).(context.Context).Err()
			}).
			Return(nil).Once()

		// When: A completes the line
		game, err := manager.SubmitMove(callerCtx, "123", 3)

		// Then: the win is returned and the archive write ran on a live context
		require.NoError(t, err)
		assert.Equal(t, entity.StatusWon, game.Status)
		require.Error(t, callerCtx.Err())
		assert.NoError(t, archiveCtxErr)
		archiveRepo.AssertExpectations(t)
	})

	t.Run("A cancelled caller is not a store outage", func(t *testing.T) {
		storeCtx, st := suite.New(t)

		gameRepo := repository.NewGameRepository(st.Storage, time.Hour)
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())
		require.NoError(t, gameRepo.Create(storeCtx, storedGame("")))

		// Given: a caller that already went away
		callerCtx, cancel := context.WithCancel(storeCtx)
		cancel()

		// When: a move is submitted
		_, err := manager.SubmitMove(callerCtx, "123", 0)

		// Then: the cancellation comes back as such
		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, apperror.ErrStoreUnavailable)
	})

	t.Run("Stops backing off when the caller goes away", func(t *testing.T) {
		// Given: a long backoff and a caller that cancels after the first conflict
		gameRepo := &mockGameRepo{}
		opts := testOptions()
		opts.RetryBackoff = time.Hour
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, opts)

		cancelCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		gameRepo.On("GetByID", mock.Anything, "123").Return(storedGame("v1"), nil).Once()
		gameRepo.On("UpdateIfVersion", mock.Anything, mock.AnythingOfType("*entity.Game"), "v1").
			Run(func(mock.Arguments) { cancel() }).
			Return(repository.ErrVersionMismatch).Once()

		// When: a move is submitted
		_, err := manager.SubmitMove(cancelCtx, "123", 0)

		// Then: the wait is abandoned
		require.ErrorIs(t, err, context.Canceled)
		gameRepo.AssertExpectations(t)
	})
}

func TestGameManager_ResetGame(t *testing.T) {
	ctx := context.Background()

	t.Run("Replaces the game with a fresh one", func(t *testing.T) {
		gameRepo := &mockGameRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())

		gameRepo.On("Replace", mock.Anything, mock.MatchedBy(func(game *entity.Game) bool {
			return game.ID == "123" && game.MoveCount == 0 && game.CurrentPlayer == entity.PlayerA
		})).Return(nil).Once()

		game, err := manager.ResetGame(ctx, "123")

		require.NoError(t, err)
		assert.Equal(t, entity.StatusInProgress, game.Status)
		assert.Equal(t, entity.Board{}, game.Board)
		gameRepo.AssertExpectations(t)
	})

	t.Run("Does not create an unknown game", func(t *testing.T) {
		storeCtx, st := suite.New(t)

		gameRepo := repository.NewGameRepository(st.Storage, time.Hour)
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())

		// When: a game id that was never created is reset
		game, err := manager.ResetGame(storeCtx, "anything")

		// Then: not found, and the id stays free
		require.ErrorIs(t, err, apperror.ErrGameNotFound)
		assert.Nil(t, game)

		_, err = manager.GetGame(storeCtx, "anything")
		require.ErrorIs(t, err, apperror.ErrGameNotFound)
	})

	t.Run("Returns the store error", func(t *testing.T) {
		gameRepo := &mockGameRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())

		gameRepo.On("Replace", mock.Anything, mock.AnythingOfType("*entity.Game")).
			Return(apperror.ErrStoreUnavailable).Once()

		_, err := manager.ResetGame(ctx, "123")

		require.ErrorIs(t, err, apperror.ErrStoreUnavailable)
	})
}

func TestGameManager_CreateGame(t *testing.T) {
	ctx := context.Background()

	gameRepo := &mockGameRepo{}
	manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())
	manager.newID = func() string { return "fixed-id" }

	gameRepo.On("Create", mock.Anything, mock.AnythingOfType("*entity.Game")).Return(nil).Once()

	game, err := manager.CreateGame(ctx)

	require.NoError(t, err)
	assert.Equal(t, "fixed-id", game.ID)
	assert.Equal(t, entity.PlayerA, game.CurrentPlayer)
	gameRepo.AssertExpectations(t)
}

func TestGameManager_DeleteGame(t *testing.T) {
	ctx := context.Background()

	gameRepo := &mockGameRepo{}
	manager := NewGameManager(zaptest.NewLogger(t), gameRepo, nil, testOptions())

	gameRepo.On("DeleteByID", mock.Anything, "missing").Return(apperror.ErrGameNotFound).Once()

	err := manager.DeleteGame(ctx, "missing")

	require.ErrorIs(t, err, apperror.ErrGameNotFound)
}

func TestGameManager_GetArchivedGame(t *testing.T) {
	ctx := context.Background()

	t.Run("Returns the archived result", func(t *testing.T) {
		archiveRepo := &mockArchiveRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), &mockGameRepo{}, archiveRepo, testOptions())

		archived := &entity.ArchivedGame{ID: "123", Status: entity.StatusWon, Winner: "A", MoveCount: 7}
		archiveRepo.On("GetByID", mock.Anything, "123").Return(archived, nil).Once()

		game, err := manager.GetArchivedGame(ctx, "123")

		require.NoError(t, err)
		assert.Equal(t, archived, game)
		archiveRepo.AssertExpectations(t)
	})

	t.Run("Game never archived", func(t *testing.T) {
		archiveRepo := &mockArchiveRepo{}
		manager := NewGameManager(zaptest.NewLogger(t), &mockGameRepo{}, archiveRepo, testOptions())

		archiveRepo.On("GetByID", mock.Anything, "123").Return(nil, apperror.ErrGameNotFound).Once()

		_, err := manager.GetArchivedGame(ctx, "123")

		require.ErrorIs(t, err, apperror.ErrGameNotFound)
	})

	t.Run("Archive not configured", func(t *testing.T) {
		manager := NewGameManager(zaptest.NewLogger(t), &mockGameRepo{}, nil, testOptions())

		_, err := manager.GetArchivedGame(ctx, "123")

		require.ErrorIs(t, err, apperror.ErrArchiveDisabled)
	})
}

// interleavedRepo - lets another writer commit right before the first conditional write.
type interleavedRepo struct {
	repository.GameRepository

	once   sync.Once
	before func()
}

func (that *interleavedRepo) UpdateIfVersion(ctx context.Context, game *entity.Game, expectedVersion string) error {
	that.once.Do(that.before)

	return that.GameRepository.UpdateIfVersion(ctx, game, expectedVersion)
}

func TestGameManager_TwoProcessesSameVersion(t *testing.T) {
	ctx, st := suite.New(t)

	// Given: two processes with their own connection to the same store
	first := repository.NewGameRepository(st.Storage, time.Hour)
	second := repository.NewGameRepository(st.NewClient(), time.Hour)

	game := storedGame("")
	require.NoError(t, first.Create(ctx, game))

	secondManager := NewGameManager(st.Logger, second, nil, testOptions())

	var secondErr error
	interleaved := &interleavedRepo{
		GameRepository: first,
		before: func() {
			_, secondErr = secondManager.SubmitMove(ctx, "123", 3)
		},
	}
	firstManager := NewGameManager(st.Logger, interleaved, nil, testOptions())

	// When: both read the same version and move into column 3
	result, err := firstManager.SubmitMove(ctx, "123", 3)

	// Then: both moves land and neither overwrites the other
	require.NoError(t, secondErr)
	require.NoError(t, err)
	assert.Equal(t, 2, result.MoveCount)
	assert.Equal(t, entity.PlayerA, result.Board[entity.Rows-1][3])
	assert.Equal(t, entity.PlayerB, result.Board[entity.Rows-2][3])
	assert.Equal(t, entity.PlayerA, result.CurrentPlayer)

	stored, err := first.GetByID(ctx, "123")
	require.NoError(t, err)
	assert.Equal(t, result, stored)
}

func TestGameManager_ConcurrentMovesNeverLost(t *testing.T) {
	ctx, st := suite.New(t)

	gameRepo := repository.NewGameRepository(st.Storage, time.Hour)
	require.NoError(t, gameRepo.Create(ctx, storedGame("")))

	opts := testOptions()
	opts.MaxAttempts = 50

	// Given: one coordinator per goroutine, as separate processes would have
	const writers = entity.Columns

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		committed int
	)

	for column := 0; column < writers; column++ {
		manager := NewGameManager(st.Logger, repository.NewGameRepository(st.NewClient(), time.Hour), nil, opts)

		wg.Add(1)
		go func(column int) {
			defer wg.Done()

			// When: every writer drops into its own column at once
			_, err := manager.SubmitMove(ctx, "123", column)
			if err != nil {
				assert.ErrorIs(t, err, apperror.ErrConcurrentUpdateExhausted)
				return
			}

			mu.Lock()
			committed++
			mu.Unlock()
		}(column)
	}

	wg.Wait()

	// Then: the stored board holds exactly one token per committed move
	stored, err := gameRepo.GetByID(ctx, "123")
	require.NoError(t, err)
	assert.Equal(t, committed, stored.MoveCount)

	tokens := 0
	for column := 0; column < entity.Columns; column++ {
		if stored.Board[entity.Rows-1][column] != entity.Empty {
			tokens++
		}
	}
	assert.Equal(t, committed, tokens)
}
