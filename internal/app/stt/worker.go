package stt

import (
	"bytes"
	"context"
	"time"

	"github.com/dkeye/voicehub/internal/domain"
	"github.com/dkeye/voicehub/internal/transcribe"
	"github.com/rs/zerolog/log"
)

// run accumulates chunks for one session and dispatches overlapping windows
// until the session is deactivated, then emits the terminal caption.
func (s *Service) run(sess *Session) {
	defer close(sess.done)
	logger := log.With().Str("module", "stt.worker").Str("room", string(sess.Room)).Str("speaker", string(sess.Speaker)).Logger()

	windowBytes := s.cfg.WindowBytes()
	overlapBytes := s.cfg.OverlapBytes()
	maxBytes := s.cfg.MaxBufferBytes()

	buf := make([]byte, 0, maxBytes)
	pending := 0 // bytes not yet part of any dispatched window
	last := s.now()

	add := func(data []byte) {
		buf = append(buf, data...)
		pending += len(data)
		if len(buf) > maxBytes {
			logger.Warn().Int("bytes", len(buf)).Int("cap", maxBytes).Msg("audio buffer over cap, keeping most recent")
			buf = append(buf[:0], buf[len(buf)-maxBytes:]...)
			pending = min(pending, maxBytes)
		}
	}

	timer := time.NewTimer(s.cfg.PollTimeout)
	defer timer.Stop()

loop:
	for sess.Active() {
		timer.Reset(s.cfg.PollTimeout)
		select {
		case <-sess.ctx.Done():
			break loop
		case <-timer.C:
			continue
		case data := <-sess.queue:
			if len(data) == 0 {
				continue
			}
			add(data)

			now := s.now()
			if len(buf) >= windowBytes || now.Sub(last) > s.cfg.FlushAfter {
				window := bytes.Clone(buf)
				keep := min(overlapBytes, len(window))
				buf = append(buf[:0], window[len(window)-keep:]...)
				pending = 0
				last = now
				sess.inflight.Go(func() { s.transcribeAndBroadcast(sess, window, true) })
			}
		}
	}

	if s.cfg.FlushOnClose {
	drain:
		for {
			select {
			case data := <-sess.queue:
				add(data)
			default:
				break drain
			}
		}
		if pending > 0 {
			s.transcribeAndBroadcast(sess, bytes.Clone(buf), false)
		}
	}

	if r := sess.inflight.WaitAndRecover(); r != nil {
		logger.Error().Err(r.AsError()).Msg("transcription panicked")
	}
	s.BroadcastToRoom(sess.Room, domain.NewCaptionFinal(sess.Room, sess.Speaker, s.now()))

	s.mu.Lock()
	if s.sessions[sess.key()] == sess {
		delete(s.sessions, sess.key())
	}
	s.mu.Unlock()
	logger.Info().Msg("session ended")
}

// transcribeAndBroadcast runs one window through the engine and fans the
// recognized text out. Errors drop the window only.
func (s *Service) transcribeAndBroadcast(sess *Session, audio []byte, partial bool) {
	engine, err := s.engine.Get(s.baseCtx)
	if err != nil {
		s.logInert(err)
		return
	}
	samples := transcribe.PCM16ToFloat32(audio)
	if len(samples) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.TranscribeTimeout)
	defer cancel()
	segs, err := engine.Transcribe(ctx, samples, s.opts)
	if err != nil {
		log.Warn().Err(err).Str("module", "stt.worker").Str("room", string(sess.Room)).Str("speaker", string(sess.Speaker)).Msg("transcription failed, window dropped")
		return
	}
	text := transcribe.JoinSegments(segs)
	if text == "" {
		return
	}
	s.BroadcastToRoom(sess.Room, domain.NewCaption(sess.Room, sess.Speaker, text, !partial, s.now()))
}
