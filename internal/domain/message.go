package domain

import (
	"encoding/json"
	"errors"
)

const (
	TypeJoin      = "join"
	TypeLeave     = "leave"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
	TypeMute      = "mute"
	TypePing      = "ping"
	TypeUserLeft  = "user-left"
)

var ErrNoType = errors.New("message has no type")

// Message is a signaling envelope. Only type/from/to are decoded; Raw keeps
// the exact inbound bytes so relayed frames go out verbatim.
type Message struct {
	Type string        `json:"type"`
	From ParticipantID `json:"from,omitempty"`
	To   ParticipantID `json:"to,omitempty"`

	Raw []byte `json:"-"`
}

func ParseMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if m.Type == "" {
		return Message{}, ErrNoType
	}
	m.Raw = data
	return m, nil
}

// Broadcast reports whether the message has no explicit recipient.
func (m Message) Broadcast() bool { return m.To == "" }

// UserLeft is synthesized by the hub when a member leaves a room.
type UserLeft struct {
	Type string        `json:"type"`
	From ParticipantID `json:"from"`
	ID   ParticipantID `json:"id"`
}

func NewUserLeft(id ParticipantID) UserLeft {
	return UserLeft{Type: TypeUserLeft, From: id, ID: id}
}
