package entity

// Player is a connected participant of the room server.
type Player struct {
	ID       string `json:"id"`
	Symbol   Symbol `json:"symbol,omitempty"`
	RoomCode string `json:"room_code,omitempty"`
}

func (that *Player) InRoom() bool {
	return that.RoomCode != ""
}
