package entity

import "math/rand"

const (
	StatusFinished = "finished"
	StatusOngoing  = "ongoing"
	StatusWaiting  = "waiting"
)

const MaxPlayers = 2

// Room is the server-side record of one online game.
type Room struct {
	Code    string    `json:"code"`
	Status  string    `json:"status"`
	Players []*Player `json:"players,omitempty"`
	State   GameState `json:"state"`
}

func NewRoom(code string) *Room {
	return &Room{
		Code:   code,
		Status: StatusWaiting,
	}
}

func (that *Room) IsFull() bool {
	return len(that.Players) >= MaxPlayers
}

func (that *Room) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Room) IsOngoing() bool {
	return that.Status == StatusOngoing
}

func (that *Room) IsFinished() bool {
	return that.Status == StatusFinished
}

// Player returns the room member with the given id.
func (that *Room) Player(id string) (*Player, bool) {
	for _, player := range that.Players {
		if player.ID == id {
			return player, true
		}
	}

	return nil, false
}

// Opponent returns the other member of the room, if any.
func (that *Room) Opponent(id string) (*Player, bool) {
	for _, player := range that.Players {
		if player.ID != id {
			return player, true
		}
	}

	return nil, false
}

func (that *Room) GetRandomMarks() (Symbol, Symbol) {
	if rand.Intn(2) == 0 { //nolint: gosec // it's ok
		return PlayerX, PlayerO
	}
	return PlayerO, PlayerX
}
