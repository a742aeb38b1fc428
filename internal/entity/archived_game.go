package entity

import "time"

// ArchivedGame - a finished game as kept by the archive. Board is rendered top row first.
type ArchivedGame struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	Winner     string    `json:"winner"`
	MoveCount  int       `json:"move_count"`
	Board      string    `json:"board"`
	Version    string    `json:"version"`
	FinishedAt time.Time `json:"finished_at"`
}
