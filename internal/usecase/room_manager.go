package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/ultimate-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/pkg"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/protocol"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/repository"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/tictactoe"
)

const DefaultCodeAttempts = 10

type playerRepo interface {
	CreateOrUpdate(ctx context.Context, player *entity.Player) error
	GetByID(ctx context.Context, id string) (*entity.Player, error)
	DeleteByID(ctx context.Context, id string) error
}

type roomRepo interface {
	CreateOrUpdate(ctx context.Context, room *entity.Room) error
	GetByCode(ctx context.Context, code string) (*entity.Room, error)
	DeleteByCode(ctx context.Context, code string) error
	Exists(ctx context.Context, code string) (bool, error)
}

// RoomManager is the authoritative side of online games: it pairs two players in a room
// and validates every move before it is relayed.
type RoomManager struct {
	logger     *slog.Logger
	playerRepo playerRepo
	roomRepo   roomRepo

	codeAttempts int
	generateCode func(length int) (string, error)

	// serialises read-modify-write cycles on rooms and players
	mu sync.Mutex
}

func NewRoomManager(logger *slog.Logger, playerRepo playerRepo, roomRepo roomRepo, codeAttempts int) *RoomManager {
	if codeAttempts <= 0 {
		codeAttempts = DefaultCodeAttempts
	}

	return &RoomManager{
		logger: logger.With("component", "room_manager"),

		playerRepo: playerRepo,
		roomRepo:   roomRepo,

		codeAttempts: codeAttempts,
		generateCode: pkg.GenerateRoomCode,
	}
}

// CreateRoom - opens a new waiting room with the player as its first member.
func (that *RoomManager) CreateRoom(ctx context.Context, playerID string) (*entity.Room, error) {
	log := that.logger.With("method", "CreateRoom", "playerID", playerID)

	that.mu.Lock()
	defer that.mu.Unlock()

	player, err := that.getFreePlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	code, err := that.newRoomCode(ctx)
	if err != nil {
		return nil, err
	}

	player.RoomCode = code
	player.Symbol = entity.Empty

	room := entity.NewRoom(code)
	room.State = tictactoe.Reset()
	room.Players = []*entity.Player{player}

	if err = that.updateRoom(ctx, room); err != nil {
		return nil, err
	}

	if err = that.updatePlayer(ctx, player); err != nil {
		return nil, err
	}

	log.Info("room created", "roomCode", code)

	return room, nil
}

// JoinRoom - adds the player to a waiting room, assigns both symbols at random and starts the game.
func (that *RoomManager) JoinRoom(ctx context.Context, code, playerID string) (*entity.Room, error) {
	log := that.logger.With("method", "JoinRoom", "playerID", playerID, "roomCode", code)

	that.mu.Lock()
	defer that.mu.Unlock()

	room, err := that.getRoom(ctx, code)
	if err != nil {
		return nil, err
	}

	if _, ok := room.Player(playerID); ok {
		return nil, apperror.ErrAlreadyInRoom
	}

	if len(room.Players) == 0 {
		return nil, fmt.Errorf("%w: %s has no creator", apperror.ErrRoomNotFound, code)
	}

	if room.IsFull() || !room.IsWaiting() {
		return nil, fmt.Errorf("%w: %s", apperror.ErrRoomFull, code)
	}

	player, err := that.getFreePlayer(ctx, playerID)
	if err != nil {
		return nil, err
	}

	creatorMark, joinerMark := room.GetRandomMarks()

	creator := room.Players[0]
	creator.Symbol = creatorMark

	player.RoomCode = room.Code
	player.Symbol = joinerMark

	room.Players = append(room.Players, player)
	room.Status = entity.StatusOngoing
	room.State = tictactoe.Reset()

	if err = that.updateRoom(ctx, room); err != nil {
		return nil, err
	}

	for _, member := range room.Players {
		if err = that.updatePlayer(ctx, member); err != nil {
			return nil, err
		}
	}

	log.Info("player joined room", "symbol", joinerMark)

	return room, nil
}

// MakeMove - validates the move against the room's game and applies it.
func (that *RoomManager) MakeMove(ctx context.Context, playerID string, symbol entity.Symbol, move tictactoe.Move) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	player, err := that.getMember(ctx, playerID)
	if err != nil {
		return nil, err
	}

	room, err := that.getRoom(ctx, player.RoomCode)
	if err != nil {
		return nil, err
	}

	switch {
	case room.IsFinished():
		return nil, apperror.ErrGameFinished
	case !room.IsOngoing():
		return nil, apperror.ErrNotInGame
	case symbol != player.Symbol:
		return nil, fmt.Errorf("%w: %q", apperror.ErrNotYourSymbol, symbol)
	}

	next, err := tictactoe.ApplyMove(room.State, symbol, move.Board, move.Cell)
	if err != nil {
		return nil, err
	}

	room.State = next
	if next.IsFinished() || len(tictactoe.LegalMoves(next)) == 0 {
		room.Status = entity.StatusFinished
	}

	if err = that.updateRoom(ctx, room); err != nil {
		return nil, err
	}

	if room.IsFinished() {
		that.logger.Info("game finished", "roomCode", room.Code, "winner", next.Winner)
	}

	return room, nil
}

// LeaveRoom - closes the player's room. A non-empty code must name that room, so a stale request
// never closes a newer one. The returned room still lists both members so the opponent can be notified.
func (that *RoomManager) LeaveRoom(ctx context.Context, playerID, code string) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.leaveRoom(ctx, playerID, code)
}

// Disconnect - leaves the player's room, if any, and forgets the player.
func (that *RoomManager) Disconnect(ctx context.Context, playerID string) (*entity.Room, error) {
	log := that.logger.With("method", "Disconnect", "playerID", playerID)

	that.mu.Lock()
	defer that.mu.Unlock()

	room, err := that.leaveRoom(ctx, playerID, "")
	if err != nil && !errors.Is(err, apperror.ErrNotInRoom) {
		log.Error("failed to leave room", "error", err)
	}

	if err = that.playerRepo.DeleteByID(ctx, playerID); err != nil {
		return room, fmt.Errorf("failed to delete player: %w", err)
	}

	return room, nil
}

// GetRoom - returns the room with the given code.
func (that *RoomManager) GetRoom(ctx context.Context, code string) (*entity.Room, error) {
	return that.getRoom(ctx, code)
}

func (that *RoomManager) leaveRoom(ctx context.Context, playerID, code string) (*entity.Room, error) {
	log := that.logger.With("method", "leaveRoom", "playerID", playerID)

	player, err := that.getMember(ctx, playerID)
	if err != nil {
		return nil, err
	}

	if code != "" && code != player.RoomCode {
		return nil, fmt.Errorf("%w: %s", apperror.ErrNotInRoom, code)
	}

	room, err := that.getRoom(ctx, player.RoomCode)
	if errors.Is(err, apperror.ErrRoomNotFound) {
		// the room expired, only the membership is left
		player.RoomCode = ""
		player.Symbol = entity.Empty

		if err = that.updatePlayer(ctx, player); err != nil {
			return nil, err
		}

		return nil, apperror.ErrNotInRoom
	}

	if err != nil {
		return nil, err
	}

	if err = that.roomRepo.DeleteByCode(ctx, room.Code); err != nil && !errors.Is(err, apperror.ErrRoomNotFound) {
		return nil, fmt.Errorf("failed to delete room: %w", err)
	}

	for _, member := range room.Players {
		released := *member
		released.RoomCode = ""
		released.Symbol = entity.Empty

		if err = that.updatePlayer(ctx, &released); err != nil {
			log.Error("failed to release player", "memberID", member.ID, "error", err)
		}
	}

	log.Info("room closed", "roomCode", room.Code)

	return room, nil
}

// newRoomCode - generates codes until a free one is found.
func (that *RoomManager) newRoomCode(ctx context.Context) (string, error) {
	for range that.codeAttempts {
		code, err := that.generateCode(protocol.RoomCodeLength)
		if err != nil {
			return "", err
		}

		exists, err := that.roomRepo.Exists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check room code: %w", err)
		}

		if !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("%w after %d attempts", apperror.ErrNoFreeCode, that.codeAttempts)
}

// getFreePlayer - returns the player, creating it on first use. A player may only be in one room.
func (that *RoomManager) getFreePlayer(ctx context.Context, id string) (*entity.Player, error) {
	player, err := that.playerRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		return &entity.Player{ID: id}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	if !player.InRoom() {
		return player, nil
	}

	exists, err := that.roomRepo.Exists(ctx, player.RoomCode)
	if err != nil {
		return nil, fmt.Errorf("failed to check room: %w", err)
	}

	if exists {
		return nil, fmt.Errorf("%w: %s", apperror.ErrAlreadyInRoom, player.RoomCode)
	}

	player.RoomCode = ""
	player.Symbol = entity.Empty

	return player, nil
}

func (that *RoomManager) getMember(ctx context.Context, id string) (*entity.Player, error) {
	player, err := that.playerRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrPlayerNotFound) {
		return nil, apperror.ErrNotInRoom
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	if !player.InRoom() {
		return nil, apperror.ErrNotInRoom
	}

	return player, nil
}

func (that *RoomManager) getRoom(ctx context.Context, code string) (*entity.Room, error) {
	room, err := that.roomRepo.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	return room, nil
}

func (that *RoomManager) updateRoom(ctx context.Context, room *entity.Room) error {
	if err := that.roomRepo.CreateOrUpdate(ctx, room); err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}

	return nil
}

func (that *RoomManager) updatePlayer(ctx context.Context, player *entity.Player) error {
	if err := that.playerRepo.CreateOrUpdate(ctx, player); err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	return nil
}
