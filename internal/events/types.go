// Package events defines the closed event taxonomy exchanged with the chat
// server, the typed payload carried by each event, and the in-process bus
// that fans envelopes out to subscribers.
package events

// Type is the tag of an event in the taxonomy.
type Type string

// Outbound: client to server.
const (
	TypeUserOnline   Type = "user_online"
	TypeUserOffline  Type = "user_offline"
	TypeJoinServer   Type = "join_server"
	TypeJoinChannel  Type = "join_channel"
	TypeLeaveServer  Type = "leave_server"
	TypeLeaveChannel Type = "leave_channel"
	TypeSendMessage  Type = "send_message"
	TypeTyping       Type = "typing"
	TypePing         Type = "ping"
)

// Inbound: server to client.
const (
	TypeNewMessage            Type = "new_message"
	TypeMessageUpdated        Type = "message_updated"
	TypeMessageDeleted        Type = "message_deleted"
	TypeMessagePinned         Type = "message_pinned"
	TypeMessageUnpinned       Type = "message_unpinned"
	TypeReactionAdded         Type = "message_reaction_added"
	TypeReactionRemoved       Type = "message_reaction_removed"
	TypeUserTyping            Type = "user_typing"
	TypeUserStatusChange      Type = "user_status_change"
	TypeServerMemberJoined    Type = "server_member_joined"
	TypeServerMemberLeft      Type = "server_member_left"
	TypeFriendRequestReceived Type = "friend_request_received"
	TypeFriendRequestAccepted Type = "friend_request_accepted"
	TypeVoiceUserJoined       Type = "voice_user_joined"
	TypeVoiceUserLeft         Type = "voice_user_left"
	TypePingAck               Type = "ping_ack"
	TypeError                 Type = "error"
)

// Local: published on the bus by client components, never sent on the wire.
const (
	TypeConnectionEstablished  Type = "connection.established"
	TypeConnectionLost         Type = "connection.lost"
	TypeConnectionReconnecting Type = "connection.reconnecting"
	TypeConnectionFailed       Type = "connection.failed"
	TypeConnectionClosed       Type = "connection.closed"
	TypeNotification           Type = "notification.show"
	TypePresenceNotice         Type = "presence.notice"
	TypeTypingChanged          Type = "typing.changed"
)

// Normalize maps inbound aliases onto their canonical type. Servers may relay
// peer typing under the outbound name.
func Normalize(t Type) Type {
	if t == TypeTyping {
		return TypeUserTyping
	}
	return t
}
