package entity

import (
	"fmt"

	"github.com/rocketscienceinc/connectfour-backend/internal/apperror"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusWon        Status = "won"
	StatusDraw       Status = "draw"
)

// Game - one session's authoritative state. Version is the store's token of
// the committed record and is empty for a state that was never written.
type Game struct {
	ID            string `json:"id"`
	Board         Board  `json:"board"`
	CurrentPlayer Cell   `json:"current_player"`
	Status        Status `json:"status"`
	Winner        Cell   `json:"winner,omitempty"`
	MoveCount     int    `json:"move_count"`
	Version       string `json:"version,omitempty"`
}

func (that *Game) IsInProgress() bool {
	return that.Status == StatusInProgress
}

func (that *Game) IsFinished() bool {
	return that.Status == StatusWon || that.Status == StatusDraw
}

// ConfirmInProgress - returns ErrGameOver for terminal games.
func (that *Game) ConfirmInProgress() error {
	switch that.Status {
	case StatusInProgress:
		return nil
	case StatusWon, StatusDraw:
		return apperror.ErrGameOver
	default:
		return fmt.Errorf("unknown game status: %s", that.Status)
	}
}

// Clone - Board is an array so a shallow copy is a full copy.
func (that *Game) Clone() *Game {
	clone := *that
	return &clone
}
