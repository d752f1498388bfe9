package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rocketscienceinc/ultimate-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/entity"
)

// Message types.
const (
	TypeCreateRoom               = "CREATE_ROOM"
	TypeRoomCreated              = "ROOM_CREATED"
	TypeAssignSymbolAndStartGame = "ASSIGN_SYMBOL_AND_START_GAME"
	TypeJoinRoom                 = "JOIN_ROOM"
	TypeSendMove                 = "SEND_MOVE"
	TypeReceiveMove              = "RECEIVE_MOVE"
	TypeError                    = "ERROR"
	TypeLeaveRoom                = "LEAVE_ROOM"
)

const RoomCodeLength = 6

// Message is the envelope of every frame exchanged with the room server.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

type RoomBody struct {
	RoomCode string `json:"roomCode"`
}

type AssignSymbolBody struct {
	Symbol   entity.Symbol `json:"symbol"`
	RoomCode string        `json:"roomCode"`
}

// MoveBody carries SEND_MOVE (with RoomCode) and RECEIVE_MOVE (without).
type MoveBody struct {
	Player   entity.Symbol `json:"player"`
	B        int           `json:"b"`
	I        int           `json:"i"`
	RoomCode string        `json:"roomCode,omitempty"`
}

type ErrorBody struct {
	Message string `json:"message"`
	SubType string `json:"subType,omitempty"`
}

// New builds a message; a nil body is omitted from the envelope.
func New(msgType string, body any) (Message, error) {
	msg := Message{Type: msgType}
	if body == nil {
		return msg, nil
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s body: %w", msgType, err)
	}

	msg.Body = raw

	return msg, nil
}

// Decode unmarshals the body into v.
func (that Message) Decode(v any) error {
	if len(that.Body) == 0 {
		return fmt.Errorf("%s: empty body", that.Type)
	}

	if err := json.Unmarshal(that.Body, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s body: %w", that.Type, err)
	}

	return nil
}

// Relay turns an accepted SEND_MOVE into the RECEIVE_MOVE broadcast to both players.
func (that MoveBody) Relay() MoveBody {
	return MoveBody{Player: that.Player, B: that.B, I: that.I}
}

// NormalizeRoomCode trims and uppercases user input and checks the code shape.
func NormalizeRoomCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != RoomCodeLength {
		return "", fmt.Errorf("%w: %q", apperror.ErrInvalidRoomCode, code)
	}

	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", fmt.Errorf("%w: %q", apperror.ErrInvalidRoomCode, code)
		}
	}

	return code, nil
}
