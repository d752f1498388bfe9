package apperror

import (
	"errors"
	"fmt"
)

// Rule violations returned by the game engine.
var (
	ErrNotYourTurn  = errors.New("it's not your turn")
	ErrGameFinished = errors.New("game is already finished")
	ErrWrongBoard   = errors.New("move must be played in the active board")
	ErrCellOccupied = errors.New("cell is already occupied")
	ErrBoardClosed  = errors.New("board is already won")
	ErrInvalidCell  = errors.New("invalid cell index")
)

// Session errors.
var (
	ErrDesync          = errors.New("game state is out of sync with the server")
	ErrNotInGame       = errors.New("game is not started")
	ErrMovePending     = errors.New("previous move is not confirmed yet")
	ErrWrongMode       = errors.New("operation is not available in this game mode")
	ErrInvalidRoomCode = errors.New("room code must be 6 letters or digits")
	ErrJoinInProgress  = errors.New("already joining a room")
	ErrJoinTimeout     = errors.New("no answer to the join request")
	ErrRoomSession     = errors.New("session already has a room")
)

// Room server errors.
var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrRoomFull      = errors.New("room is full")
	ErrNotInRoom     = errors.New("player is not in a room")
	ErrNotYourSymbol = errors.New("move symbol does not belong to the player")
	ErrAlreadyInRoom = errors.New("player is already in a room")
	ErrNoFreeCode    = errors.New("could not find a free room code")
)

// DesyncError reports a relayed move that the local engine rejected. It matches
// both ErrDesync and the underlying rule violation with errors.Is.
type DesyncError struct {
	Player string
	Board  int
	Cell   int
	Cause  error
}

func (that *DesyncError) Error() string {
	return fmt.Sprintf("%s: move %s b=%d i=%d: %v", ErrDesync, that.Player, that.Board, that.Cell, that.Cause)
}

func (that *DesyncError) Unwrap() []error {
	return []error{ErrDesync, that.Cause}
}
