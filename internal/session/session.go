package session

import (
	"context"
	"time"

	"github.com/rocketscienceinc/ultimate-tictactoe/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe/internal/protocol"
)

type Mode int

const (
	ModeLocal Mode = iota
	ModeOnline
)

func (that Mode) String() string {
	if that == ModeOnline {
		return "online"
	}
	return "local"
}

// Phase is the connection phase of an online session.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseAwaitingCode     Phase = "awaiting_code"
	PhaseAwaitingOpponent Phase = "awaiting_opponent"
	PhaseJoining          Phase = "joining"
	PhaseInGame           Phase = "in_game"
)

const (
	DefaultJoinTimeout = 5 * time.Second
	DefaultErrorTTL    = 5 * time.Second

	staleLeaveTimeout = 5 * time.Second
)

// Channel is the duplex message channel to the room server. Inbound messages are
// delivered by the transport through Coordinator.HandleMessage.
type Channel interface {
	WaitReady(ctx context.Context) error
	Send(ctx context.Context, msg protocol.Message) error
}

type Options struct {
	JoinTimeout time.Duration
	ErrorTTL    time.Duration
}

func (that Options) withDefaults() Options {
	if that.JoinTimeout <= 0 {
		that.JoinTimeout = DefaultJoinTimeout
	}
	if that.ErrorTTL <= 0 {
		that.ErrorTTL = DefaultErrorTTL
	}
	return that
}

// RoomSession is the online room the local participant is in or trying to enter.
type RoomSession struct {
	RoomCode    string
	LocalSymbol entity.Symbol
	Phase       Phase
}

// Snapshot is what a renderer needs after every transition. Version grows with
// every transition; callbacks may race, so consumers should drop older versions.
type Snapshot struct {
	Version     uint64
	Mode        Mode
	State       entity.GameState
	RoomCode    string
	LocalSymbol entity.Symbol
	Phase       Phase
	JoiningRoom bool
	Error       string

	// Pending is the local move sent to the server and not relayed back yet.
	Pending *protocol.MoveBody
	// Fault is set once a relayed move was rejected by the local engine.
	Fault error
}

// IsLocalTurn reports whether the local participant may move now.
func (that Snapshot) IsLocalTurn() bool {
	if that.Mode == ModeLocal {
		return !that.State.IsFinished()
	}

	return that.Phase == PhaseInGame && that.Fault == nil && that.Pending == nil &&
		!that.State.IsFinished() && that.State.Turn == that.LocalSymbol
}
