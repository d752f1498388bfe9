package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/ultimate-tictactoe/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/protocol"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/tictactoe"
)

// Coordinator connects the local participant to the game engine, either directly
// (hot-seat) or through the room server. In online mode the engine only applies
// moves relayed by the server, including the local participant's own moves.
//
// All state changes happen under one mutex: UI commands, inbound messages and timer
// callbacks are serialised. The mutex is never held while waiting on the channel.
type Coordinator struct {
	logger  *slog.Logger
	mode    Mode
	channel Channel
	opts    Options

	mu        sync.Mutex
	version   uint64
	state     entity.GameState
	room      RoomSession
	pending   *protocol.MoveBody
	fault     error
	errorText string

	joinAttempt uint64
	joinTimer   *time.Timer
	errorSeq    uint64
	errorTimer  *time.Timer

	subsMu  sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

// NewLocal creates a hot-seat session: both symbols are played on this side.
func NewLocal(logger *slog.Logger, opts Options) *Coordinator {
	return newCoordinator(logger, ModeLocal, nil, opts, PhaseInGame)
}

// NewOnline creates a session that plays through channel.
func NewOnline(logger *slog.Logger, channel Channel, opts Options) *Coordinator {
	return newCoordinator(logger, ModeOnline, channel, opts, PhaseIdle)
}

func newCoordinator(logger *slog.Logger, mode Mode, channel Channel, opts Options, phase Phase) *Coordinator {
	return &Coordinator{
		logger:  logger.With("component", "session", "mode", mode.String()),
		mode:    mode,
		channel: channel,
		opts:    opts.withDefaults(),
		state:   tictactoe.Reset(),
		room:    RoomSession{Phase: phase},
		subs:    make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current state.
func (that *Coordinator) Snapshot() Snapshot {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.snapshotLocked()
}

// Subscribe registers fn to be called after every transition and returns a function
// that removes it.
func (that *Coordinator) Subscribe(fn func(Snapshot)) func() {
	that.subsMu.Lock()
	defer that.subsMu.Unlock()

	id := that.nextSub
	that.nextSub++
	that.subs[id] = fn

	return func() {
		that.subsMu.Lock()
		defer that.subsMu.Unlock()
		delete(that.subs, id)
	}
}

// AttemptMove is the UI move command.
func (that *Coordinator) AttemptMove(ctx context.Context, board, cell int) error {
	if that.mode == ModeOnline {
		return that.SubmitLocalMove(ctx, board, cell)
	}

	that.mu.Lock()
	next, err := tictactoe.ApplyMove(that.state, that.state.Turn, board, cell)
	if err != nil {
		that.mu.Unlock()
		return err
	}

	that.state = next
	snap := that.commitLocked()
	that.mu.Unlock()

	that.publish(snap)

	return nil
}

// SubmitLocalMove proposes a move to the server. The move is applied when the server
// relays it back.
func (that *Coordinator) SubmitLocalMove(ctx context.Context, board, cell int) error {
	log := that.logger.With("method", "SubmitLocalMove")

	that.mu.Lock()
	if err := that.checkCanMoveLocked(); err != nil {
		that.mu.Unlock()
		return err
	}

	if _, err := tictactoe.ApplyMove(that.state, that.room.LocalSymbol, board, cell); err != nil {
		that.mu.Unlock()
		return err
	}

	move := &protocol.MoveBody{Player: that.room.LocalSymbol, B: board, I: cell, RoomCode: that.room.RoomCode}
	that.pending = move
	snap := that.commitLocked()
	that.mu.Unlock()

	that.publish(snap)

	msg, err := protocol.New(protocol.TypeSendMove, move)
	if err == nil {
		err = that.channel.Send(ctx, msg)
	}

	if err != nil {
		log.Error("failed to send move", "error", err)
		that.dropPending(move)

		return fmt.Errorf("failed to send move: %w", err)
	}

	return nil
}

// CreateRoom asks the server for a new room.
func (that *Coordinator) CreateRoom(ctx context.Context) error {
	that.mu.Lock()
	if err := that.checkIdleLocked(); err != nil {
		that.mu.Unlock()
		return err
	}

	that.room = RoomSession{Phase: PhaseAwaitingCode}
	snap := that.commitLocked()
	that.mu.Unlock()

	that.publish(snap)

	err := that.channel.WaitReady(ctx)
	if err == nil {
		var msg protocol.Message
		if msg, err = protocol.New(protocol.TypeCreateRoom, nil); err == nil {
			err = that.channel.Send(ctx, msg)
		}
	}

	if err != nil {
		that.mu.Lock()
		reverted := that.room.Phase == PhaseAwaitingCode
		if reverted {
			that.room = RoomSession{Phase: PhaseIdle}
			snap = that.commitLocked()
		}
		that.mu.Unlock()

		if reverted {
			that.publish(snap)
		}

		return fmt.Errorf("failed to create room: %w", err)
	}

	return nil
}

// JoinRoom asks the server to join the room with the given code. Without any answer
// within the join timeout the attempt is abandoned and may be retried.
func (that *Coordinator) JoinRoom(ctx context.Context, code string) error {
	log := that.logger.With("method", "JoinRoom")

	code, err := protocol.NormalizeRoomCode(code)
	if err != nil {
		return err
	}

	that.mu.Lock()
	if err = that.checkIdleLocked(); err != nil {
		that.mu.Unlock()
		return err
	}

	that.joinAttempt++
	attempt := that.joinAttempt
	that.room = RoomSession{Phase: PhaseJoining}
	that.joinTimer = time.AfterFunc(that.opts.JoinTimeout, func() {
		if that.cancelJoin(attempt) {
			log.Info("join request timed out", "roomCode", code)
		}
	})
	snap := that.commitLocked()
	that.mu.Unlock()

	that.publish(snap)

	if err = that.channel.WaitReady(ctx); err != nil {
		that.cancelJoin(attempt)
		return fmt.Errorf("failed to join room: %w", err)
	}

	that.mu.Lock()
	stale := attempt != that.joinAttempt
	that.mu.Unlock()

	if stale {
		return apperror.ErrJoinTimeout
	}

	msg, err := protocol.New(protocol.TypeJoinRoom, protocol.RoomBody{RoomCode: code})
	if err == nil {
		err = that.channel.Send(ctx, msg)
	}

	if err != nil {
		that.cancelJoin(attempt)
		return fmt.Errorf("failed to join room: %w", err)
	}

	return nil
}

// Quit leaves the room, if any, and starts over with a fresh game. The server is told
// about the departure on a best-effort basis.
func (that *Coordinator) Quit(ctx context.Context) error {
	log := that.logger.With("method", "Quit")

	that.mu.Lock()
	roomCode := that.room.RoomCode
	that.stopTimersLocked()
	that.errorText = ""
	that.pending = nil
	that.fault = nil
	that.state = tictactoe.Reset()
	if that.mode == ModeOnline {
		that.room = RoomSession{Phase: PhaseIdle}
	}
	snap := that.commitLocked()
	that.mu.Unlock()

	that.publish(snap)

	if that.mode != ModeOnline || roomCode == "" {
		return nil
	}

	msg, err := protocol.New(protocol.TypeLeaveRoom, protocol.RoomBody{RoomCode: roomCode})
	if err == nil {
		err = that.channel.Send(ctx, msg)
	}

	if err != nil {
		log.Warn("failed to notify server about leaving", "roomCode", roomCode, "error", err)
	}

	return nil
}

// Close cancels pending timers.
func (that *Coordinator) Close() {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.stopTimersLocked()
}

// HandleMessage applies one inbound protocol message.
func (that *Coordinator) HandleMessage(msg protocol.Message) error {
	log := that.logger.With("method", "HandleMessage", "type", msg.Type)

	if that.mode != ModeOnline {
		log.Warn("message ignored in local mode")
		return nil
	}

	switch msg.Type {
	case protocol.TypeRoomCreated:
		return that.handleRoomCreated(msg)
	case protocol.TypeAssignSymbolAndStartGame:
		return that.handleGameStart(msg)
	case protocol.TypeReceiveMove:
		return that.handleReceiveMove(msg)
	case protocol.TypeError:
		return that.handleError(msg)
	default:
		log.Warn("unknown message type")
		return nil
	}
}

func (that *Coordinator) handleRoomCreated(msg protocol.Message) error {
	var body protocol.RoomBody
	if err := msg.Decode(&body); err != nil {
		return err
	}

	that.mu.Lock()
	if that.room.Phase != PhaseAwaitingCode {
		phase := that.room.Phase
		that.mu.Unlock()
		that.logger.Debug("room code ignored", "phase", phase)
		return nil
	}

	that.room.RoomCode = body.RoomCode
	that.room.Phase = PhaseAwaitingOpponent
	snap := that.commitLocked()
	that.mu.Unlock()

	that.publish(snap)

	return nil
}

func (that *Coordinator) handleGameStart(msg protocol.Message) error {
	log := that.logger.With("method", "handleGameStart")

	var body protocol.AssignSymbolBody
	if err := msg.Decode(&body); err != nil {
		return err
	}

	if !body.Symbol.IsValid() {
		return fmt.Errorf("%s: invalid symbol %q", msg.Type, body.Symbol)
	}

	that.mu.Lock()
	var accepted bool
	switch that.room.Phase {
	case PhaseAwaitingCode, PhaseJoining:
		accepted = true
	case PhaseAwaitingOpponent:
		accepted = body.RoomCode == that.room.RoomCode
	}

	if !accepted {
		phase := that.room.Phase
		duplicate := phase == PhaseInGame && body.RoomCode == that.room.RoomCode
		that.mu.Unlock()

		log.Info("game start ignored", "phase", phase, "roomCode", body.RoomCode)

		// the server seated us in a room we no longer wait for
		if !duplicate {
			that.leaveStaleRoom(body.RoomCode)
		}

		return nil
	}

	that.stopJoinTimerLocked()
	that.room = RoomSession{RoomCode: body.RoomCode, LocalSymbol: body.Symbol, Phase: PhaseInGame}
	that.state = tictactoe.Reset()
	that.pending = nil
	that.fault = nil
	snap := that.commitLocked()
	that.mu.Unlock()

	that.publish(snap)

	log.Info("game started", "roomCode", body.RoomCode, "symbol", body.Symbol)

	return nil
}

func (that *Coordinator) handleReceiveMove(msg protocol.Message) error {
	log := that.logger.With("method", "handleReceiveMove")

	var body protocol.MoveBody
	if err := msg.Decode(&body); err != nil {
		return err
	}

	that.mu.Lock()
	if that.room.Phase != PhaseInGame {
		that.mu.Unlock()
		log.Warn("move outside of a game ignored")
		return nil
	}

	if that.fault != nil {
		fault := that.fault
		that.mu.Unlock()
		return fault
	}

	next, err := tictactoe.ApplyMove(that.state, body.Player, body.B, body.I)
	if err != nil {
		fault := &apperror.DesyncError{Player: string(body.Player), Board: body.B, Cell: body.I, Cause: err}
		that.fault = fault
		that.pending = nil
		snap := that.commitLocked()
		that.mu.Unlock()

		that.publish(snap)
		log.Error("relayed move rejected", "error", fault)

		return fault
	}

	that.state = next
	if body.Player == that.room.LocalSymbol {
		that.pending = nil
	}
	snap := that.commitLocked()
	that.mu.Unlock()

	that.publish(snap)

	return nil
}

func (that *Coordinator) handleError(msg protocol.Message) error {
	log := that.logger.With("method", "handleError")

	var body protocol.ErrorBody
	if err := msg.Decode(&body); err != nil {
		return err
	}

	log.Info("server error", "message", body.Message, "subType", body.SubType)

	that.mu.Lock()
	that.showErrorLocked(body.Message)

	switch body.SubType {
	case protocol.TypeJoinRoom:
		if that.room.Phase == PhaseJoining {
			that.stopJoinTimerLocked()
			that.room = RoomSession{Phase: PhaseIdle}
		}
	case protocol.TypeCreateRoom:
		if that.room.Phase == PhaseAwaitingCode {
			that.room = RoomSession{Phase: PhaseIdle}
		}
	case protocol.TypeSendMove:
		that.pending = nil
	case protocol.TypeLeaveRoom:
		// the room is gone on the server; the board stays visible until quit
		if that.room.Phase != PhaseJoining {
			that.room = RoomSession{Phase: PhaseIdle}
			that.pending = nil
		}
	}

	snap := that.commitLocked()
	that.mu.Unlock()

	that.publish(snap)

	return nil
}

// leaveStaleRoom tells the server to release a room this session abandoned. Best effort.
func (that *Coordinator) leaveStaleRoom(roomCode string) {
	ctx, cancel := context.WithTimeout(context.Background(), staleLeaveTimeout)
	defer cancel()

	msg, err := protocol.New(protocol.TypeLeaveRoom, protocol.RoomBody{RoomCode: roomCode})
	if err == nil {
		err = that.channel.Send(ctx, msg)
	}

	if err != nil {
		that.logger.Warn("failed to leave stale room", "roomCode", roomCode, "error", err)
	}
}

// cancelJoin abandons the join attempt if it is still the current one.
func (that *Coordinator) cancelJoin(attempt uint64) bool {
	that.mu.Lock()
	if attempt != that.joinAttempt || that.room.Phase != PhaseJoining {
		that.mu.Unlock()
		return false
	}

	that.stopJoinTimerLocked()
	that.room = RoomSession{Phase: PhaseIdle}
	snap := that.commitLocked()
	that.mu.Unlock()

	that.publish(snap)

	return true
}

func (that *Coordinator) dropPending(move *protocol.MoveBody) {
	that.mu.Lock()
	if that.pending != move {
		that.mu.Unlock()
		return
	}

	that.pending = nil
	snap := that.commitLocked()
	that.mu.Unlock()

	that.publish(snap)
}

func (that *Coordinator) clearError(seq uint64) {
	that.mu.Lock()
	if seq != that.errorSeq {
		that.mu.Unlock()
		return
	}

	that.errorText = ""
	that.errorTimer = nil
	snap := that.commitLocked()
	that.mu.Unlock()

	that.publish(snap)
}

// showErrorLocked replaces the displayed error and restarts its expiry.
func (that *Coordinator) showErrorLocked(text string) {
	that.errorSeq++
	seq := that.errorSeq

	if that.errorTimer != nil {
		that.errorTimer.Stop()
	}

	that.errorText = text
	that.errorTimer = time.AfterFunc(that.opts.ErrorTTL, func() {
		that.clearError(seq)
	})
}

func (that *Coordinator) checkCanMoveLocked() error {
	switch {
	case that.mode != ModeOnline:
		return apperror.ErrWrongMode
	case that.room.Phase != PhaseInGame:
		return apperror.ErrNotInGame
	case that.fault != nil:
		return that.fault
	case that.pending != nil:
		return apperror.ErrMovePending
	case that.state.IsFinished():
		return apperror.ErrGameFinished
	case that.state.Turn != that.room.LocalSymbol:
		return apperror.ErrNotYourTurn
	}

	return nil
}

func (that *Coordinator) checkIdleLocked() error {
	switch {
	case that.mode != ModeOnline:
		return apperror.ErrWrongMode
	case that.room.Phase == PhaseJoining:
		return apperror.ErrJoinInProgress
	case that.room.Phase != PhaseIdle:
		return apperror.ErrRoomSession
	}

	return nil
}

func (that *Coordinator) stopJoinTimerLocked() {
	that.joinAttempt++
	if that.joinTimer != nil {
		that.joinTimer.Stop()
		that.joinTimer = nil
	}
}

func (that *Coordinator) stopTimersLocked() {
	that.stopJoinTimerLocked()

	that.errorSeq++
	if that.errorTimer != nil {
		that.errorTimer.Stop()
		that.errorTimer = nil
	}
}

func (that *Coordinator) commitLocked() Snapshot {
	that.version++
	return that.snapshotLocked()
}

func (that *Coordinator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:     that.version,
		Mode:        that.mode,
		State:       that.state,
		RoomCode:    that.room.RoomCode,
		LocalSymbol: that.room.LocalSymbol,
		Phase:       that.room.Phase,
		JoiningRoom: that.room.Phase == PhaseJoining,
		Error:       that.errorText,
		Fault:       that.fault,
	}

	if that.pending != nil {
		pending := *that.pending
		snap.Pending = &pending
	}

	return snap
}

func (that *Coordinator) publish(snap Snapshot) {
	that.subsMu.Lock()
	subs := make([]func(Snapshot), 0, len(that.subs))
	for _, fn := range that.subs {
		subs = append(subs, fn)
	}
	that.subsMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
