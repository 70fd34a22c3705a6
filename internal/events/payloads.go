package events

import (
	"time"

	"github.com/dkeye/Parley/internal/domain"
)

type UserRef struct {
	UserID domain.UserID `json:"userId" validate:"required"`
}

// RoomRef names a server or channel room to join or leave.
type RoomRef struct {
	ID string `json:"id" validate:"required,max=64"`
}

type SendMessage struct {
	ChannelID   domain.ChannelID    `json:"channelId" validate:"required"`
	UserID      domain.UserID       `json:"userId" validate:"required"`
	Content     string              `json:"content" validate:"required_without=Attachments,max=4000"`
	Attachments []domain.Attachment `json:"attachments,omitempty" validate:"omitempty,dive"`
}

type Typing struct {
	ChannelID domain.ChannelID `json:"channelId" validate:"required"`
	UserID    domain.UserID    `json:"userId" validate:"required"`
	IsTyping  bool             `json:"isTyping"`
}

type MessageDeleted struct {
	MessageID domain.MessageID `json:"messageId" validate:"required"`
	ChannelID domain.ChannelID `json:"channelId,omitempty"`
}

type MessagePin struct {
	MessageID domain.MessageID `json:"messageId" validate:"required"`
	ChannelID domain.ChannelID `json:"channelId,omitempty"`
	By        domain.UserID    `json:"by,omitempty"`
}

type Reaction struct {
	MessageID domain.MessageID `json:"messageId" validate:"required"`
	ChannelID domain.ChannelID `json:"channelId,omitempty"`
	Emoji     string           `json:"emoji" validate:"required"`
	UserID    domain.UserID    `json:"userId,omitempty"`
}

type StatusChange struct {
	UserID domain.UserID `json:"userId" validate:"required"`
	Status domain.Status `json:"status" validate:"required,oneof=online idle dnd offline"`
}

type ServerMember struct {
	ServerID domain.ServerID `json:"serverId" validate:"required"`
	UserID   domain.UserID   `json:"userId" validate:"required"`
	Username string          `json:"username,omitempty"`
}

type FriendRequest struct {
	From     domain.UserID `json:"from" validate:"required"`
	FromName string        `json:"fromName"`
}

type FriendAccepted struct {
	By     domain.UserID `json:"by" validate:"required"`
	ByName string        `json:"byName"`
}

// VoicePresence is decoded and published but nothing in the client acts on it.
type VoicePresence struct {
	ChannelID domain.ChannelID `json:"channelId"`
	UserID    domain.UserID    `json:"userId"`
}

type Ping struct {
	ID        string `json:"id" validate:"required"`
	Timestamp int64  `json:"timestamp"`
}

type ServerError struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Lifecycle payloads published by the connection manager.

type ConnectionEstablished struct {
	UserID domain.UserID
}

type ConnectionLost struct {
	Err error
}

type ConnectionReconnecting struct {
	Attempt int
	Delay   time.Duration
}

type ConnectionFailed struct {
	Attempts int
	Err      error
}

type ConnectionClosed struct {
	UserID domain.UserID
}
