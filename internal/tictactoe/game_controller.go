package tictactoe

import (
	"fmt"

	"github.com/rocketscienceinc/ultimate-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/entity"
)

// WinCombos is scanned in this order: rows, columns, diagonals. The first full line
// is the one reported as the winning line.
var WinCombos = [8]entity.Line{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// Move is a cell of a sub-board.
type Move struct {
	Board int
	Cell  int
}

// Reset returns the initial position: X to move anywhere.
func Reset() entity.GameState {
	return entity.GameState{
		Turn:        entity.PlayerX,
		ActiveBoard: entity.AnyBoard,
	}
}

// ApplyMove returns the position after player claims cell of board. On error the
// given state is returned unchanged.
func ApplyMove(state entity.GameState, player entity.Symbol, board, cell int) (entity.GameState, error) {
	if err := validateMove(state, player, board, cell); err != nil {
		return state, fmt.Errorf("invalid move: %w", err)
	}

	next := state
	next.Boards[board][cell] = player

	if next.SubResults[board].Winner == entity.Empty {
		if line, ok := findLine(func(i int) entity.Symbol { return next.Boards[board][i] }, player); ok {
			next.SubResults[board] = entity.SubBoardResult{Winner: player, WinningLine: &line}

			if metaLine, won := findLine(func(i int) entity.Symbol { return next.SubResults[i].Winner }, player); won {
				next.Winner = player
				next.WinningLine = &metaLine
			}
		}
	}

	next.ActiveBoard = nextActiveBoard(next, cell)
	next.Turn = player.Opponent()

	return next, nil
}

// IsBoardFull reports whether no empty cell remains.
func IsBoardFull(board entity.SubBoard) bool {
	for _, cell := range board {
		if cell == entity.Empty {
			return false
		}
	}

	return true
}

// LegalMoves lists every move the player to move may make.
func LegalMoves(state entity.GameState) []Move {
	if state.IsFinished() {
		return nil
	}

	boards := []int{state.ActiveBoard}
	if state.ActiveBoard == entity.AnyBoard {
		boards = boards[:0]
		for b := range entity.BoardSize {
			boards = append(boards, b)
		}
	}

	var moves []Move
	for _, b := range boards {
		if state.IsBoardClosed(b) {
			continue
		}

		for i, cell := range state.Boards[b] {
			if cell == entity.Empty {
				moves = append(moves, Move{Board: b, Cell: i})
			}
		}
	}

	return moves
}

// validateMove - checks if the move is valid. The order of the checks decides which
// error is reported when several rules are broken.
func validateMove(state entity.GameState, player entity.Symbol, board, cell int) error {
	if board < 0 || board >= entity.BoardSize || cell < 0 || cell >= entity.BoardSize {
		return fmt.Errorf("%w: board %d cell %d", apperror.ErrInvalidCell, board, cell)
	}

	if state.Turn != player {
		return apperror.ErrNotYourTurn
	}

	if state.IsFinished() {
		return apperror.ErrGameFinished
	}

	if state.ActiveBoard != entity.AnyBoard && board != state.ActiveBoard {
		return apperror.ErrWrongBoard
	}

	if state.Boards[board][cell] != entity.Empty {
		return apperror.ErrCellOccupied
	}

	if state.IsBoardClosed(board) {
		return apperror.ErrBoardClosed
	}

	return nil
}

func nextActiveBoard(state entity.GameState, target int) int {
	if state.IsFinished() || state.IsBoardClosed(target) || IsBoardFull(state.Boards[target]) {
		return entity.AnyBoard
	}

	return target
}

func findLine(at func(int) entity.Symbol, player entity.Symbol) (entity.Line, bool) {
	for _, combo := range WinCombos {
		if at(combo[0]) == player && at(combo[1]) == player && at(combo[2]) == player {
			return combo, true
		}
	}

	return entity.Line{}, false
}
