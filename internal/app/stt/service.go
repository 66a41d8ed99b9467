// Package stt runs per-speaker streaming transcription and fans captions out
// to every caption connection of a room.
package stt

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/voicehub/internal/core"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/dkeye/voicehub/internal/transcribe"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type listenerSet map[core.Connection]struct{}

type listener struct {
	speaker domain.SpeakerID
	conn    core.Connection
}

// SpeakerStats is a read-only view for the REST room listing.
type SpeakerStats struct {
	Speaker     domain.SpeakerID `json:"speaker"`
	Connections int              `json:"connections"`
	Active      bool             `json:"active"`
}

type Service struct {
	cfg    Config
	engine *transcribe.Lazy
	opts   transcribe.Options
	now    func() time.Time

	baseCtx context.Context
	stop    context.CancelFunc

	mu        sync.Mutex
	listeners map[domain.RoomID]map[domain.SpeakerID]listenerSet
	sessions  map[sessionKey]*Session
	closed    bool
	workers   conc.WaitGroup

	inertOnce sync.Once
}

func NewService(cfg Config, engine *transcribe.Lazy) *Service {
	cfg = cfg.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:    cfg,
		engine: engine,
		opts: transcribe.Options{
			Language:  cfg.Language,
			VADFilter: true,
			BeamSize:  1,
		},
		now:       time.Now,
		baseCtx:   ctx,
		stop:      cancel,
		listeners: make(map[domain.RoomID]map[domain.SpeakerID]listenerSet),
		sessions:  make(map[sessionKey]*Session),
	}
}

func (s *Service) Config() Config { return s.cfg }

// Warmup loads the engine ahead of the first window. Failure only leaves the
// service inert.
func (s *Service) Warmup() {
	if _, err := s.engine.Get(s.baseCtx); err != nil {
		s.logInert(err)
	}
}

// RegisterConnection adds conn to the listener set of (room, speaker) and
// starts the speaker's session on the first connection.
func (s *Service) RegisterConnection(room domain.RoomID, speaker domain.SpeakerID, conn core.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	speakers, ok := s.listeners[room]
	if !ok {
		speakers = make(map[domain.SpeakerID]listenerSet)
		s.listeners[room] = speakers
	}
	set, ok := speakers[speaker]
	if !ok {
		set = make(listenerSet)
		speakers[speaker] = set
	}
	set[conn] = struct{}{}
	s.ensureSessionLocked(room, speaker)
	log.Info().Str("module", "stt").Str("room", string(room)).Str("speaker", string(speaker)).Int("connections", len(set)).Msg("connection registered")
}

// UnregisterConnection removes conn. The last connection of a speaker ends
// its session. Duplicate calls are no-ops.
func (s *Service) UnregisterConnection(room domain.RoomID, speaker domain.SpeakerID, conn core.Connection) {
	s.mu.Lock()
	sess := s.dropLocked(room, speaker, conn)
	s.mu.Unlock()
	if sess != nil && sess.deactivate() {
		log.Info().Str("module", "stt").Str("room", string(room)).Str("speaker", string(speaker)).Msg("session closing")
	}
}

// PushAudioChunk queues raw PCM16LE audio for (room, speaker). A full queue
// drops the chunk; the producer is never blocked.
func (s *Service) PushAudioChunk(room domain.RoomID, speaker domain.SpeakerID, chunk []byte) bool {
	if len(chunk) == 0 {
		return false
	}
	s.mu.Lock()
	sess := s.ensureSessionLocked(room, speaker)
	s.mu.Unlock()
	if sess == nil {
		return false
	}
	select {
	case sess.queue <- chunk:
		return true
	default:
		log.Warn().Str("module", "stt").Str("room", string(room)).Str("speaker", string(speaker)).Int("bytes", len(chunk)).Msg("audio queue full, chunk dropped")
		return false
	}
}

func (s *Service) ensureSessionLocked(room domain.RoomID, speaker domain.SpeakerID) *Session {
	if s.closed {
		return nil
	}
	key := sessionKey{room: room, speaker: speaker}
	if sess, ok := s.sessions[key]; ok {
		return sess
	}
	sess := newSession(room, speaker, s.cfg.QueueSize)
	s.sessions[key] = sess
	s.workers.Go(func() { s.run(sess) })
	log.Info().Str("module", "stt").Str("room", string(room)).Str("speaker", string(speaker)).Msg("session started")
	return sess
}

// dropLocked removes conn and, when the speaker has no connection left, the
// speaker's session. A session with no listeners at all (created by late
// audio after an eviction) is swept too. It returns the session to
// deactivate, if any.
func (s *Service) dropLocked(room domain.RoomID, speaker domain.SpeakerID, conn core.Connection) *Session {
	if speakers, ok := s.listeners[room]; ok {
		if set, ok := speakers[speaker]; ok {
			delete(set, conn)
			if len(set) > 0 {
				return nil
			}
			delete(speakers, speaker)
		}
		if len(speakers) == 0 {
			delete(s.listeners, room)
		}
	}
	key := sessionKey{room: room, speaker: speaker}
	sess, ok := s.sessions[key]
	if !ok {
		return nil
	}
	delete(s.sessions, key)
	return sess
}

// BroadcastToRoom sends ev to every caption connection in room. A connection
// that fails is evicted and closed; the rest still receive the event.
func (s *Service) BroadcastToRoom(room domain.RoomID, ev domain.Caption) int {
	b, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "stt").Msg("marshal caption")
		return 0
	}

	s.mu.Lock()
	var targets []listener
	for speaker, set := range s.listeners[room] {
		for conn := range set {
			targets = append(targets, listener{speaker: speaker, conn: conn})
		}
	}
	s.mu.Unlock()

	sent := 0
	var failed []listener
	for _, t := range targets {
		if err := t.conn.TrySend(b); err != nil {
			log.Warn().Err(err).Str("module", "stt").Str("room", string(room)).Str("speaker", string(t.speaker)).Msg("caption send failed")
			failed = append(failed, t)
			continue
		}
		sent++
	}
	if len(failed) > 0 {
		s.evict(room, failed)
	}
	return sent
}

func (s *Service) evict(room domain.RoomID, failed []listener) {
	var ended []*Session
	s.mu.Lock()
	for _, f := range failed {
		if sess := s.dropLocked(room, f.speaker, f.conn); sess != nil {
			ended = append(ended, sess)
		}
	}
	s.mu.Unlock()

	for _, f := range failed {
		f.conn.Close()
	}
	for _, sess := range ended {
		sess.deactivate()
	}
}

// Shutdown ends every session and waits for the workers or ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.deactivate()
	}

	done := make(chan struct{})
	go func() {
		if r := s.workers.WaitAndRecover(); r != nil {
			log.Error().Err(r.AsError()).Str("module", "stt").Msg("worker panicked")
		}
		close(done)
	}()
	defer s.stop()
	select {
	case <-done:
		log.Info().Str("module", "stt").Int("sessions", len(sessions)).Msg("shutdown complete")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Session(room domain.RoomID, speaker domain.SpeakerID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKey{room: room, speaker: speaker}]
	return sess, ok
}

func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) HasRoom(room domain.RoomID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.listeners[room]
	return ok
}

// Speakers lists the caption connections of room by speaker.
func (s *Service) Speakers(room domain.RoomID) []SpeakerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SpeakerStats, 0, len(s.listeners[room]))
	for speaker, set := range s.listeners[room] {
		sess, ok := s.sessions[sessionKey{room: room, speaker: speaker}]
		out = append(out, SpeakerStats{
			Speaker:     speaker,
			Connections: len(set),
			Active:      ok && sess.Active(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Speaker < out[j].Speaker })
	return out
}

// Rooms returns every room with at least one caption connection.
func (s *Service) Rooms() []domain.RoomID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RoomID, 0, len(s.listeners))
	for room := range s.listeners {
		out = append(out, room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Service) logInert(err error) {
	s.inertOnce.Do(func() {
		log.Warn().Err(err).Str("module", "stt").Msg("transcription engine unavailable, captions disabled")
	})
}
