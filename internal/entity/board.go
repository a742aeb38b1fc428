package entity

const (
	Rows    = 6
	Columns = 7

	// WinLength is the number of aligned tokens that ends the game.
	WinLength = 4
)

type Cell int8

const (
	Empty Cell = iota
	PlayerA
	PlayerB
)

// Opponent - returns the other player. Empty has no opponent.
func (that Cell) Opponent() Cell {
	switch that {
	case PlayerA:
		return PlayerB
	case PlayerB:
		return PlayerA
	default:
		return Empty
	}
}

func (that Cell) IsPlayer() bool {
	return that == PlayerA || that == PlayerB
}

func (that Cell) String() string {
	switch that {
	case PlayerA:
		return "A"
	case PlayerB:
		return "B"
	default:
		return "."
	}
}

// Board - row 0 is the top of the grid, row Rows-1 the bottom.
type Board [Rows][Columns]Cell

// directions are scanned in this order: horizontal, vertical, diagonal down-right, diagonal up-right.
var directions = [4][2]int{
	{0, 1},
	{1, 0},
	{1, 1},
	{-1, 1},
}

type OutcomeKind int

const (
	OutcomeNone OutcomeKind = iota
	OutcomeWin
	OutcomeDraw
)

type Outcome struct {
	Kind   OutcomeKind
	Winner Cell
}

func IsValidColumn(column int) bool {
	return column >= 0 && column < Columns
}

// LowestEmptyRow - returns the row a token dropped into column would land on.
// ok is false when the column is full.
func (that *Board) LowestEmptyRow(column int) (int, bool) {
	for row := Rows - 1; row >= 0; row-- {
		if that[row][column] == Empty {
			return row, true
		}
	}

	return 0, false
}

// Place - returns a copy of the board with the cell set. Gravity is not re-checked.
func (that Board) Place(row, column int, cell Cell) Board {
	that[row][column] = cell
	return that
}

// EvaluateOutcome - looks for four equal tokens in any direction, then for a full board.
func (that *Board) EvaluateOutcome() Outcome {
	for row := 0; row < Rows; row++ {
		for column := 0; column < Columns; column++ {
			cell := that[row][column]
			if cell == Empty {
				continue
			}

			for _, dir := range directions {
				if that.hasLine(row, column, dir[0], dir[1]) {
					return Outcome{Kind: OutcomeWin, Winner: cell}
				}
			}
		}
	}

	if that.IsFull() {
		return Outcome{Kind: OutcomeDraw}
	}

	return Outcome{Kind: OutcomeNone}
}

func (that *Board) IsFull() bool {
	for row := 0; row < Rows; row++ {
		for column := 0; column < Columns; column++ {
			if that[row][column] == Empty {
				return false
			}
		}
	}

	return true
}

// hasLine - checks the WinLength window starting at (row, column).
func (that *Board) hasLine(row, column, dRow, dColumn int) bool {
	endRow := row + dRow*(WinLength-1)
	endColumn := column + dColumn*(WinLength-1)
	if endRow < 0 || endRow >= Rows || endColumn < 0 || endColumn >= Columns {
		return false
	}

	cell := that[row][column]
	for step := 1; step < WinLength; step++ {
		if that[row+dRow*step][column+dColumn*step] != cell {
			return false
		}
	}

	return true
}
