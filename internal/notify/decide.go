// Package notify decides whether an inbound event deserves a popup
// notification and builds it.
package notify

import (
	"unicode/utf8"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/dkeye/Parley/internal/events"
)

const (
	DefaultPreviewLen = 100
	ellipsis          = "..."
	attachmentPreview = "[attachment]"
)

type Kind string

const (
	KindMessage        Kind = "message"
	KindFriendRequest  Kind = "friend_request"
	KindFriendAccepted Kind = "friend_accepted"
)

// Reason says which rule settled a decision.
type Reason string

const (
	ReasonShow     Reason = "show"
	ReasonInline   Reason = "inline"
	ReasonSelf     Reason = "self"
	ReasonDisabled Reason = "disabled"
	ReasonDND      Reason = "dnd"
	ReasonIgnored  Reason = "ignored"
)

type Notification struct {
	Kind        Kind
	AuthorID    domain.UserID
	AuthorName  string
	ChannelID   domain.ChannelID
	ChannelName string
	Preview     string
	Sound       bool
}

// Context is everything outside the event that a decision depends on.
type Context struct {
	Focused    domain.ChannelID
	Self       domain.UserID
	Settings   domain.Settings
	Status     domain.Status
	PreviewLen int
}

type Decision struct {
	Reason       Reason
	Notification Notification
}

func (d Decision) Show() bool { return d.Reason == ReasonShow }

// Decide applies the rules in order, first match wins:
//  1. message in the focused channel: rendered inline, no popup
//  2. authored by the local user: suppressed
//  3. notifications switched off: suppressed
//  4. status dnd: suppressed
//  5. otherwise shown, with a sound cue
//
// Friend events only go through rule 2.
func Decide(env events.Envelope, ctx Context) Decision {
	switch p := env.Payload.(type) {
	case domain.Message:
		if env.Type != events.TypeNewMessage {
			return Decision{Reason: ReasonIgnored}
		}
		return decideMessage(p, ctx)
	case events.FriendRequest:
		return decideSocial(ctx, Notification{
			Kind:       KindFriendRequest,
			AuthorID:   p.From,
			AuthorName: nameOr(p.FromName, p.From),
		})
	case events.FriendAccepted:
		return decideSocial(ctx, Notification{
			Kind:       KindFriendAccepted,
			AuthorID:   p.By,
			AuthorName: nameOr(p.ByName, p.By),
		})
	default:
		return Decision{Reason: ReasonIgnored}
	}
}

func decideMessage(m domain.Message, ctx Context) Decision {
	switch {
	case ctx.Focused != "" && m.ChannelID == ctx.Focused:
		return Decision{Reason: ReasonInline}
	case m.Author.ID == ctx.Self:
		return Decision{Reason: ReasonSelf}
	case !ctx.Settings.NotificationsEnabled():
		return Decision{Reason: ReasonDisabled}
	case ctx.Status == domain.StatusDND:
		return Decision{Reason: ReasonDND}
	}

	content := m.Content
	if content == "" && len(m.Attachments) > 0 {
		content = attachmentPreview
	}
	channelName := m.ChannelName
	if channelName == "" {
		channelName = string(m.ChannelID)
	}
	return Decision{
		Reason: ReasonShow,
		Notification: Notification{
			Kind:        KindMessage,
			AuthorID:    m.Author.ID,
			AuthorName:  m.Author.Name(),
			ChannelID:   m.ChannelID,
			ChannelName: channelName,
			Preview:     Preview(content, ctx.PreviewLen),
			Sound:       ctx.Settings.SoundEnabled(),
		},
	}
}

func decideSocial(ctx Context, n Notification) Decision {
	if n.AuthorID == ctx.Self {
		return Decision{Reason: ReasonSelf}
	}
	n.Sound = ctx.Settings.SoundEnabled()
	return Decision{Reason: ReasonShow, Notification: n}
}

// Preview cuts content to limit characters (runes) and marks the cut with an
// ellipsis. limit <= 0 means DefaultPreviewLen.
func Preview(content string, limit int) string {
	if limit <= 0 {
		limit = DefaultPreviewLen
	}
	if utf8.RuneCountInString(content) <= limit {
		return content
	}
	runes := []rune(content)
	return string(runes[:limit]) + ellipsis
}

func nameOr(name string, id domain.UserID) string {
	if name != "" {
		return name
	}
	return string(id)
}
