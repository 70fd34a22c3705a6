package domain

type (
	ServerID  string
	ChannelID string
)

// RoomKind tells server-wide rooms from per-channel rooms.
type RoomKind string

const (
	RoomServer  RoomKind = "server"
	RoomChannel RoomKind = "channel"
)

// RoomID is the broadcast group key on the server, e.g. "channel:42".
type RoomID string

func ServerRoom(id ServerID) RoomID   { return RoomID(string(RoomServer) + ":" + string(id)) }
func ChannelRoom(id ChannelID) RoomID { return RoomID(string(RoomChannel) + ":" + string(id)) }

type Room struct {
	ID   RoomID
	Kind RoomKind
}

type Channel struct {
	ID       ChannelID `json:"id"`
	ServerID ServerID  `json:"serverId"`
	Name     string    `json:"name"`
}
