package domain

import "time"

const (
	TypeCaption      = "caption"
	TypeCaptionFinal = "caption_final"
)

// Caption is a recognized-text event fanned out to a room.
// Final is false for interim results; the end-of-session marker has empty Text.
type Caption struct {
	Type      string    `json:"type"`
	RoomID    RoomID    `json:"room_id"`
	Speaker   SpeakerID `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp float64   `json:"timestamp"`
	Final     bool      `json:"final"`
}

func NewCaption(room RoomID, speaker SpeakerID, text string, final bool, at time.Time) Caption {
	return Caption{
		Type:      TypeCaption,
		RoomID:    room,
		Speaker:   speaker,
		Text:      text,
		Timestamp: unixSeconds(at),
		Final:     final,
	}
}

// NewCaptionFinal builds the terminal marker emitted when a speaker's session ends.
func NewCaptionFinal(room RoomID, speaker SpeakerID, at time.Time) Caption {
	return Caption{
		Type:      TypeCaptionFinal,
		RoomID:    room,
		Speaker:   speaker,
		Timestamp: unixSeconds(at),
		Final:     true,
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
