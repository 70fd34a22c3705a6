package events

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"github.com/dkeye/Parley/internal/core"
	"github.com/dkeye/Parley/internal/domain"
)

var (
	ErrMalformed   = errors.New("malformed event")
	ErrUnknownType = errors.New("unknown event type")
)

var (
	json     = jsoniter.ConfigCompatibleWithStandardLibrary
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// frame is the wire shape of every event: {"type": "...", "payload": ...}.
type frame struct {
	Type    Type                `json:"type"`
	Payload jsoniter.RawMessage `json:"payload,omitempty"`
}

type decodeFunc func(raw []byte) (any, error)

var decoders = map[Type]decodeFunc{}

func register[P any](types ...Type) {
	for _, t := range types {
		decoders[t] = decodeAs[P]
	}
}

func decodeAs[P any](raw []byte) (any, error) {
	var p P
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return p, nil
}

func init() {
	register[UserRef](TypeUserOnline, TypeUserOffline)
	register[RoomRef](TypeJoinServer, TypeJoinChannel, TypeLeaveServer, TypeLeaveChannel)
	register[SendMessage](TypeSendMessage)
	register[Typing](TypeTyping, TypeUserTyping)
	register[Ping](TypePing, TypePingAck)
	register[domain.Message](TypeNewMessage, TypeMessageUpdated)
	register[MessageDeleted](TypeMessageDeleted)
	register[MessagePin](TypeMessagePinned, TypeMessageUnpinned)
	register[Reaction](TypeReactionAdded, TypeReactionRemoved)
	register[StatusChange](TypeUserStatusChange)
	register[ServerMember](TypeServerMemberJoined, TypeServerMemberLeft)
	register[FriendRequest](TypeFriendRequestReceived)
	register[FriendAccepted](TypeFriendRequestAccepted)
	register[VoicePresence](TypeVoiceUserJoined, TypeVoiceUserLeft)
	register[ServerError](TypeError)
}

// Known reports whether t belongs to the wire taxonomy.
func Known(t Type) bool {
	_, ok := decoders[t]
	return ok
}

// Decode parses and validates one wire frame. The returned envelope carries
// the concrete payload struct for its type.
func Decode(data []byte, receivedAt time.Time) (Envelope, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	dec, ok := decoders[f.Type]
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownType, f.Type)
	}
	p, err := dec(f.Payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("decode %s: %w", f.Type, err)
	}
	return NewEnvelope(f.Type, p, receivedAt), nil
}

// Encode validates payload and renders it as a wire frame.
func Encode(t Type, payload any) (core.Frame, error) {
	if !Known(t) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	if isStruct(payload) {
		if err := validate.Struct(payload); err != nil {
			return nil, fmt.Errorf("encode %s: %w: %v", t, ErrMalformed, err)
		}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	out, err := json.Marshal(frame{Type: t, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", t, err)
	}
	return out, nil
}

// MustEncode is Encode for payloads known to be valid; it panics otherwise.
func MustEncode(t Type, payload any) core.Frame {
	f, err := Encode(t, payload)
	if err != nil {
		panic(err)
	}
	return f
}

func isStruct(v any) bool {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	return rv.Kind() == reflect.Struct
}
