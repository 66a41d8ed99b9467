package app

import (
	"errors"

	"github.com/dkeye/voicehub/internal/core"
	"github.com/dkeye/voicehub/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose connection rejected a frame.
type Policy interface {
	OnSendFailure(room domain.RoomID, id domain.ParticipantID, err error) BackpressureAction
}

// SimplePolicy evicts on any delivery failure.
type SimplePolicy struct{}

func (SimplePolicy) OnSendFailure(room domain.RoomID, id domain.ParticipantID, err error) BackpressureAction {
	return KickMember
}

// TolerantPolicy drops frames for slow consumers and evicts only closed connections.
type TolerantPolicy struct{}

func (TolerantPolicy) OnSendFailure(room domain.RoomID, id domain.ParticipantID, err error) BackpressureAction {
	if errors.Is(err, core.ErrBackpressure) {
		return DropFrame
	}
	return KickMember
}
