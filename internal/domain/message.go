package domain

import "time"

type MessageID string

type Attachment struct {
	URL         string `json:"url" validate:"required"`
	Name        string `json:"name,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

type Author struct {
	ID          UserID `json:"id" validate:"required"`
	DisplayName string `json:"displayName,omitempty"`
	Username    string `json:"username,omitempty"`
}

// Name falls back to the username when no display name is set.
func (a Author) Name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	if a.Username != "" {
		return a.Username
	}
	return string(a.ID)
}

type Message struct {
	ID          MessageID    `json:"id" validate:"required"`
	ChannelID   ChannelID    `json:"channelId" validate:"required"`
	ServerID    ServerID     `json:"serverId,omitempty"`
	ChannelName string       `json:"channelName,omitempty"`
	Author      Author       `json:"author"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty" validate:"omitempty,dive"`
	Pinned      bool         `json:"pinned,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	EditedAt    *time.Time   `json:"editedAt,omitempty"`
}
