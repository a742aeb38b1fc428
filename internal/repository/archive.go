package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
)

type ArchiveRepository interface {
	Save(ctx context.Context, game *entity.Game) error
	GetByID(ctx context.Context, id string) (*entity.ArchivedGame, error)
}

type archiveRepository struct {
	conn *sql.DB
	now  func() time.Time
}

func NewArchiveRepository(conn *sql.DB) ArchiveRepository {
	return &archiveRepository{
		conn: conn,
		now:  time.Now,
	}
}

// Save - upserts a finished game. Replays of the same game id overwrite the row.
func (that *archiveRepository) Save(ctx context.Context, game *entity.Game) error {
	query := `INSERT INTO finished_games (game_id, status, winner, move_count, board, version, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (game_id) DO UPDATE SET
			status = EXCLUDED.status,
			winner = EXCLUDED.winner,
			move_count = EXCLUDED.move_count,
			board = EXCLUDED.board,
			version = EXCLUDED.version,
			finished_at = EXCLUDED.finished_at`

	_, err := that.conn.ExecContext(ctx, query,
		game.ID,
		string(game.Status),
		game.Winner.String(),
		game.MoveCount,
		FormatBoard(&game.Board),
		game.Version,
		that.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("can't save finished game: %w", err)
	}

	return nil
}

// GetByID - fails with ErrGameNotFound when the game was never archived.
func (that *archiveRepository) GetByID(ctx context.Context, id string) (*entity.ArchivedGame, error) {
	query := `SELECT game_id, status, winner, move_count, board, version, finished_at
		FROM finished_games WHERE game_id = $1`

	var archived entity.ArchivedGame
	var status string

	err := that.conn.QueryRowContext(ctx, query, id).Scan(
		&archived.ID,
		&status,
		&archived.Winner,
		&archived.MoveCount,
		&archived.Board,
		&archived.Version,
		&archived.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrGameNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("can't find finished game: %w", err)
	}

	archived.Status = entity.Status(status)

	return &archived, nil
}

// FormatBoard - one line per row, top first, '.' for empty cells.
func FormatBoard(board *entity.Board) string {
	var b strings.Builder

	for row := 0; row < entity.Rows; row++ {
		if row > 0 {
			b.WriteByte('\n')
		}

		for column := 0; column < entity.Columns; column++ {
			b.WriteString(board[row][column].String())
		}
	}

	return b.String()
}
