package stt

import (
	"context"
	"sync/atomic"

	"github.com/dkeye/voicehub/internal/domain"
	"github.com/sourcegraph/conc"
)

type sessionKey struct {
	room    domain.RoomID
	speaker domain.SpeakerID
}

// Session is the buffering state of one (room, speaker) stream.
// Only the Service creates and tears it down.
type Session struct {
	Room    domain.RoomID
	Speaker domain.SpeakerID

	queue  chan []byte
	active atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	inflight conc.WaitGroup
}

func newSession(room domain.RoomID, speaker domain.SpeakerID, queueSize int) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Room:    room,
		Speaker: speaker,
		queue:   make(chan []byte, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.active.Store(true)
	return s
}

func (s *Session) key() sessionKey { return sessionKey{room: s.Room, speaker: s.Speaker} }

func (s *Session) Active() bool { return s.active.Load() }

// Done is closed once the worker has emitted the terminal caption.
func (s *Session) Done() <-chan struct{} { return s.done }

// deactivate stops the worker cooperatively. Safe to call repeatedly.
func (s *Session) deactivate() bool {
	if !s.active.CompareAndSwap(true, false) {
		return false
	}
	s.cancel()
	select {
	case s.queue <- []byte{}:
	default:
	}
	return true
}
