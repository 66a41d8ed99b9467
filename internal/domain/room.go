// Package domain contains identifiers and wire shapes, no transport or lifecycle logic.
package domain

import (
	"errors"
	"fmt"
)

const MaxIDLen = 64

var (
	ErrIDEmpty   = errors.New("id empty")
	ErrIDTooLong = errors.New("id too long")
)

type (
	RoomID        string
	ParticipantID string
	SpeakerID     string
)

func validateID(kind, raw string) error {
	if len(raw) == 0 {
		return fmt.Errorf("%s: %w", kind, ErrIDEmpty)
	}
	if len(raw) > MaxIDLen {
		return fmt.Errorf("%s: %w", kind, ErrIDTooLong)
	}
	return nil
}

func ParseRoomID(raw string) (RoomID, error) {
	if err := validateID("room", raw); err != nil {
		return "", err
	}
	return RoomID(raw), nil
}

func ParseParticipantID(raw string) (ParticipantID, error) {
	if err := validateID("participant", raw); err != nil {
		return "", err
	}
	return ParticipantID(raw), nil
}

func ParseSpeakerID(raw string) (SpeakerID, error) {
	if err := validateID("speaker", raw); err != nil {
		return "", err
	}
	return SpeakerID(raw), nil
}
