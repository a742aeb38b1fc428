package connectfour

import (
	"fmt"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
	"github.com/rocketscienceinc/connectfour-backend/internal/entity"
)

// NewGame - fresh board, PlayerA to move.
func NewGame(id string) *entity.Game {
	return &entity.Game{
		ID:            id,
		Board:         entity.Board{},
		CurrentPlayer: entity.PlayerA,
		Status:        entity.StatusInProgress,
	}
}

// ValidateColumn - rejects a column outside the board.
func ValidateColumn(column int) error {
	if !entity.IsValidColumn(column) {
		return fmt.Errorf("%w: %d", apperror.ErrInvalidColumn, column)
	}

	return nil
}

// ApplyMove - drops the current player's token into column and returns the next state.
// The input game is never modified, so callers holding it can retry against it.
func ApplyMove(gameInstance *entity.Game, column int) (*entity.Game, error) {
	if err := ValidateColumn(column); err != nil {
		return nil, err
	}

	if err := gameInstance.ConfirmInProgress(); err != nil {
		return nil, err
	}

	row, ok := gameInstance.Board.LowestEmptyRow(column)
	if !ok {
		return nil, fmt.Errorf("%w: column %d", apperror.ErrColumnFull, column)
	}

	next := gameInstance.Clone()
	next.Board = gameInstance.Board.Place(row, column, gameInstance.CurrentPlayer)
	next.MoveCount++

	updateGameStatus(next)

	return next, nil
}

// updateGameStatus - checks the game status after a move.
func updateGameStatus(gameInstance *entity.Game) {
	switch outcome := gameInstance.Board.EvaluateOutcome(); outcome.Kind {
	case entity.OutcomeWin:
		gameInstance.Winner = outcome.Winner
		gameInstance.Status = entity.StatusWon
	case entity.OutcomeDraw:
		gameInstance.Status = entity.StatusDraw
	default:
		gameInstance.CurrentPlayer = gameInstance.CurrentPlayer.Opponent()
	}
}
