package entity

// Symbol is a player mark. Empty is used both for an empty cell and for "no symbol".
type Symbol string

const (
	PlayerX Symbol = "X"
	PlayerO Symbol = "O"

	Empty Symbol = ""
)

// AnyBoard marks that the player to move may choose any open sub-board.
const AnyBoard = -1

const BoardSize = 9

// Line is three cell indices of a sub-board, or three sub-board indices of the meta-board.
type Line [3]int

// SubBoard is one 3x3 board stored row-major.
type SubBoard [BoardSize]Symbol

// SubBoardResult is frozen once Winner is set.
type SubBoardResult struct {
	Winner      Symbol `json:"winner"`
	WinningLine *Line  `json:"winning_line"`
}

// GameState is the full position. It is a value: transitions build a new one and
// never mutate the Line values that WinningLine pointers refer to.
type GameState struct {
	Boards      [BoardSize]SubBoard       `json:"boards"`
	SubResults  [BoardSize]SubBoardResult `json:"sub_results"`
	Turn        Symbol                    `json:"turn"`
	ActiveBoard int                       `json:"active_board"`
	Winner      Symbol                    `json:"winner"`
	WinningLine *Line                     `json:"winning_line"`
}

func (that Symbol) IsValid() bool {
	return that == PlayerX || that == PlayerO
}

func (that Symbol) Opponent() Symbol {
	switch that {
	case PlayerX:
		return PlayerO
	case PlayerO:
		return PlayerX
	default:
		return Empty
	}
}

func (that GameState) IsFinished() bool {
	return that.Winner != Empty
}

// IsBoardClosed reports whether sub-board b has a recorded winner.
func (that GameState) IsBoardClosed(b int) bool {
	return that.SubResults[b].Winner != Empty
}
