package websocket

import (
	"context"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/ultimate-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/protocol"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/tictactoe"
)

// publicErrors are shown to clients as is, anything else is reported as an internal error.
var publicErrors = []error{
	apperror.ErrNotYourTurn,
	apperror.ErrGameFinished,
	apperror.ErrWrongBoard,
	apperror.ErrCellOccupied,
	apperror.ErrBoardClosed,
	apperror.ErrInvalidCell,
	apperror.ErrNotInGame,
	apperror.ErrInvalidRoomCode,
	apperror.ErrRoomNotFound,
	apperror.ErrRoomFull,
	apperror.ErrNotInRoom,
	apperror.ErrNotYourSymbol,
	apperror.ErrAlreadyInRoom,
}

func errorMessage(err error) string {
	for _, public := range publicErrors {
		if errors.Is(err, public) {
			return public.Error()
		}
	}

	return "internal server error"
}

func (that *Server) handleCreateRoom(ctx context.Context, playerID string, _ protocol.Message) error {
	log := that.logger.With("method", "handleCreateRoom", "playerID", playerID)

	room, err := that.rooms.CreateRoom(ctx, playerID)
	if err != nil {
		that.sendErrorResponse(ctx, playerID, protocol.TypeCreateRoom, errorMessage(err))
		return fmt.Errorf("failed to create room: %w", err)
	}

	if err = that.sendMessage(ctx, playerID, protocol.TypeRoomCreated, protocol.RoomBody{RoomCode: room.Code}); err != nil {
		return err
	}

	log.Info("room created", "roomCode", room.Code)

	return nil
}

func (that *Server) handleJoinRoom(ctx context.Context, playerID string, msg protocol.Message) error {
	log := that.logger.With("method", "handleJoinRoom", "playerID", playerID)

	var body protocol.RoomBody
	if err := msg.Decode(&body); err != nil {
		that.sendErrorResponse(ctx, playerID, msg.Type, "room code is required")
		return err
	}

	code, err := protocol.NormalizeRoomCode(body.RoomCode)
	if err != nil {
		that.sendErrorResponse(ctx, playerID, msg.Type, errorMessage(err))
		return err
	}

	room, err := that.rooms.JoinRoom(ctx, code, playerID)
	if err != nil {
		that.sendErrorResponse(ctx, playerID, msg.Type, errorMessage(err))
		return fmt.Errorf("failed to join room %s: %w", code, err)
	}

	that.broadcast(ctx, room, func(player *entity.Player) (string, any) {
		return protocol.TypeAssignSymbolAndStartGame, protocol.AssignSymbolBody{Symbol: player.Symbol, RoomCode: room.Code}
	})

	log.Info("game started", "roomCode", room.Code)

	return nil
}

func (that *Server) handleSendMove(ctx context.Context, playerID string, msg protocol.Message) error {
	log := that.logger.With("method", "handleSendMove", "playerID", playerID)

	var body protocol.MoveBody
	if err := msg.Decode(&body); err != nil {
		that.sendErrorResponse(ctx, playerID, msg.Type, "move is required")
		return err
	}

	room, err := that.rooms.MakeMove(ctx, playerID, body.Player, tictactoe.Move{Board: body.B, Cell: body.I})
	if err != nil {
		that.sendErrorResponse(ctx, playerID, msg.Type, errorMessage(err))
		return fmt.Errorf("failed to make move: %w", err)
	}

	if body.RoomCode != "" && body.RoomCode != room.Code {
		log.Warn("move names another room", "roomCode", body.RoomCode, "playerRoom", room.Code)
	}

	relay := body.Relay()
	that.broadcast(ctx, room, func(*entity.Player) (string, any) {
		return protocol.TypeReceiveMove, relay
	})

	return nil
}

func (that *Server) handleLeaveRoom(ctx context.Context, playerID string, msg protocol.Message) error {
	// the room code is optional, without it the current room is left
	var body protocol.RoomBody
	if len(msg.Body) > 0 {
		if err := msg.Decode(&body); err != nil {
			that.sendErrorResponse(ctx, playerID, msg.Type, "malformed room code")
			return err
		}
	}

	room, err := that.rooms.LeaveRoom(ctx, playerID, body.RoomCode)
	if errors.Is(err, apperror.ErrNotInRoom) {
		return nil
	}

	if err != nil {
		that.sendErrorResponse(ctx, playerID, msg.Type, errorMessage(err))
		return fmt.Errorf("failed to leave room: %w", err)
	}

	that.notifyOpponent(ctx, room, playerID, "opponent left the room")

	return nil
}

// broadcast - sends a message built per player to every member of the room.
func (that *Server) broadcast(ctx context.Context, room *entity.Room, build func(player *entity.Player) (string, any)) {
	log := that.logger.With("method", "broadcast", "roomCode", room.Code)

	for _, player := range room.Players {
		msgType, body := build(player)

		if err := that.sendMessage(ctx, player.ID, msgType, body); err != nil {
			log.Error("failed to send room update", "playerID", player.ID, "error", err)
		}
	}
}
