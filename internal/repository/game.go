package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
)

const maxReplaceAttempts = 10

// ErrVersionMismatch - the record changed since it was read.
var ErrVersionMismatch = fmt.Errorf("%w: version mismatch", apperror.ErrConcurrentUpdate)

const (
	fieldCurrentPlayer = "current_player"
	fieldStatus        = "status"
	fieldWinner        = "winner"
	fieldMoveCount     = "move_count"
	fieldVersion       = "version"
)

type GameRepository interface {
	Create(ctx context.Context, game *entity.Game) error
	GetByID(ctx context.Context, id string) (*entity.Game, error)
	UpdateIfVersion(ctx context.Context, game *entity.Game, expectedVersion string) error
	Replace(ctx context.Context, game *entity.Game) error
	DeleteByID(ctx context.Context, id string) error
}

type txPipeliner interface {
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

type dbGame struct {
	client     *redis.Client
	ttl        time.Duration
	newVersion func() string
}

func NewGameRepository(client *redis.Client, ttl time.Duration) GameRepository {
	return &dbGame{
		client:     client,
		ttl:        ttl,
		newVersion: uuid.NewString,
	}
}

func GameKey(id string) string {
	return "game:" + id
}

// UpdatesChannel - pub/sub channel carrying every committed snapshot of a game.
func UpdatesChannel(id string) string {
	return GameKey(id) + ":updates"
}

// Create - writes a new game, fails with ErrGameAlreadyExists if the id is taken.
func (that *dbGame) Create(ctx context.Context, game *entity.Game) error {
	gameKey := GameKey(game.ID)
	version := that.newVersion()

	err := that.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, gameKey).Result()
		if err != nil {
			return err
		}

		if exists > 0 {
			return apperror.ErrGameAlreadyExists
		}

		return that.write(ctx, tx, game, version, false)
	}, gameKey)
	if err != nil {
		if errors.Is(err, apperror.ErrGameAlreadyExists) {
			return fmt.Errorf("%w: %s", apperror.ErrGameAlreadyExists, game.ID)
		}

		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("%w: %s", apperror.ErrGameAlreadyExists, game.ID)
		}

		return storeError("failed to create game", err)
	}

	game.Version = version

	return nil
}

func (that *dbGame) GetByID(ctx context.Context, id string) (*entity.Game, error) {
	fields, err := that.client.HGetAll(ctx, GameKey(id)).Result()
	if err != nil {
		return nil, storeError("failed to get game", err)
	}

	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", apperror.ErrGameNotFound, id)
	}

	game, err := decodeGame(id, fields)
	if err != nil {
		return nil, fmt.Errorf("failed to decode game %s: %w", id, err)
	}

	return game, nil
}

// UpdateIfVersion - writes game only if the stored version still equals expectedVersion.
// On success game.Version holds the new token.
func (that *dbGame) UpdateIfVersion(ctx context.Context, game *entity.Game, expectedVersion string) error {
	gameKey := GameKey(game.ID)
	version := that.newVersion()

	err := that.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, gameKey, fieldVersion).Result()
		if errors.Is(err, redis.Nil) {
			return apperror.ErrGameNotFound
		}

		if err != nil {
			return err
		}

		if current != expectedVersion {
			return ErrVersionMismatch
		}

		return that.write(ctx, tx, game, version, false)
	}, gameKey)
	if err != nil {
		switch {
		case errors.Is(err, ErrVersionMismatch), errors.Is(err, redis.TxFailedErr):
			return fmt.Errorf("%w: game %s", ErrVersionMismatch, game.ID)
		case errors.Is(err, apperror.ErrGameNotFound):
			return fmt.Errorf("%w: %s", apperror.ErrGameNotFound, game.ID)
		default:
			return storeError("failed to update game", err)
		}
	}

	game.Version = version

	return nil
}

// Replace - overwrites an existing game regardless of its version. Concurrent conditional
// writes lose against it. Fails with ErrGameNotFound if the game does not exist.
func (that *dbGame) Replace(ctx context.Context, game *entity.Game) error {
	gameKey := GameKey(game.ID)
	version := that.newVersion()

	replace := func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, gameKey).Result()
		if err != nil {
			return err
		}

		if exists == 0 {
			return apperror.ErrGameNotFound
		}

		return that.write(ctx, tx, game, version, true)
	}

	// A move landing between EXISTS and EXEC aborts the transaction, the overwrite is simply retried.
	for i := 0; i < maxReplaceAttempts; i++ {
		err := that.client.Watch(ctx, replace, gameKey)
		switch {
		case err == nil:
			game.Version = version
			return nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, apperror.ErrGameNotFound):
			return fmt.Errorf("%w: %s", apperror.ErrGameNotFound, game.ID)
		default:
			return storeError("failed to replace game", err)
		}
	}

	return fmt.Errorf("%w: replace of game %s after %d attempts", apperror.ErrConcurrentUpdateExhausted, game.ID, maxReplaceAttempts)
}

// DeleteByID - removes the game and publishes a tombstone so watchers learn it is gone.
func (that *dbGame) DeleteByID(ctx context.Context, id string) error {
	tombstone, err := json.Marshal(entity.Game{ID: id})
	if err != nil {
		return fmt.Errorf("could not marshal tombstone: %w", err)
	}

	var deleted *redis.IntCmd

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, GameKey(id))
		pipe.Publish(ctx, UpdatesChannel(id), tombstone)

		return nil
	})
	if err != nil {
		return storeError("failed to delete game", err)
	}

	if deleted.Val() == 0 {
		return fmt.Errorf("%w: %s", apperror.ErrGameNotFound, id)
	}

	return nil
}

// write - stores the record and publishes the snapshot in one MULTI/EXEC.
func (that *dbGame) write(ctx context.Context, client txPipeliner, game *entity.Game, version string, replace bool) error {
	snapshot := game.Clone()
	snapshot.Version = version

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("could not marshal game: %w", err)
	}

	gameKey := GameKey(game.ID)

	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if replace {
			pipe.Del(ctx, gameKey)
		}

		pipe.HSet(ctx, gameKey, encodeGame(snapshot))
		if that.ttl > 0 {
			pipe.Expire(ctx, gameKey, that.ttl)
		}

		pipe.Publish(ctx, UpdatesChannel(game.ID), snapshotJSON)

		return nil
	})

	return err
}

func storeError(msg string, err error) error {
	return apperror.StoreFailure(msg, err)
}

func rowField(row int) string {
	return "row:" + strconv.Itoa(row)
}

// encodeGame - the board is kept as one digit string per row.
func encodeGame(game *entity.Game) map[string]any {
	fields := make(map[string]any, entity.Rows+5)

	for row := 0; row < entity.Rows; row++ {
		line := make([]byte, entity.Columns)
		for column := 0; column < entity.Columns; column++ {
			line[column] = byte('0' + game.Board[row][column])
		}
		fields[rowField(row)] = string(line)
	}

	fields[fieldCurrentPlayer] = strconv.Itoa(int(game.CurrentPlayer))
	fields[fieldStatus] = string(game.Status)
	fields[fieldWinner] = strconv.Itoa(int(game.Winner))
	fields[fieldMoveCount] = strconv.Itoa(game.MoveCount)
	fields[fieldVersion] = game.Version

	return fields
}

func decodeGame(id string, fields map[string]string) (*entity.Game, error) {
	game := &entity.Game{
		ID:      id,
		Status:  entity.Status(fields[fieldStatus]),
		Version: fields[fieldVersion],
	}

	for row := 0; row < entity.Rows; row++ {
		line, ok := fields[rowField(row)]
		if !ok || len(line) != entity.Columns {
			return nil, fmt.Errorf("malformed %s: %q", rowField(row), line)
		}

		for column := 0; column < entity.Columns; column++ {
			cell, err := decodeCell(line[column : column+1])
			if err != nil {
				return nil, fmt.Errorf("%s column %d: %w", rowField(row), column, err)
			}
			game.Board[row][column] = cell
		}
	}

	currentPlayer, err := decodeCell(fields[fieldCurrentPlayer])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fieldCurrentPlayer, err)
	}
	game.CurrentPlayer = currentPlayer

	winner, err := decodeCell(fields[fieldWinner])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fieldWinner, err)
	}
	game.Winner = winner

	game.MoveCount, err = strconv.Atoi(fields[fieldMoveCount])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fieldMoveCount, err)
	}

	return game, nil
}

func decodeCell(raw string) (entity.Cell, error) {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return entity.Empty, fmt.Errorf("invalid cell %q: %w", raw, err)
	}

	cell := entity.Cell(value)
	if cell != entity.Empty && !cell.IsPlayer() {
		return entity.Empty, fmt.Errorf("invalid cell %q", raw)
	}

	return cell, nil
}
