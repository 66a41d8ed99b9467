// Package transcribe holds the pluggable speech-to-text engine used by the
// caption service, plus its lazy loader and an HTTP whisper-server backend.
package transcribe

//go:generate mockgen -destination=mock_engine.go -package=transcribe . Engine

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrDisabled = errors.New("transcription engine disabled")

// Segment is one recognized span of a window.
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Options are fixed per service: language, VAD filtering and beam width.
type Options struct {
	Language  string
	VADFilter bool
	BeamSize  int
}

// Engine turns normalized mono samples into recognized segments.
// Implementations must be safe for concurrent use.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32, opts Options) ([]Segment, error)
}

// EngineFunc adapts a plain function to Engine.
type EngineFunc func(ctx context.Context, samples []float32, opts Options) ([]Segment, error)

func (f EngineFunc) Transcribe(ctx context.Context, samples []float32, opts Options) ([]Segment, error) {
	return f(ctx, samples, opts)
}

// Loader builds an Engine. It may be slow (model load, server probe).
type Loader func(ctx context.Context) (Engine, error)

// Static returns a Loader that always yields e.
func Static(e Engine) Loader {
	return func(context.Context) (Engine, error) { return e, nil }
}

// Lazy loads an Engine on first use, exactly once. Concurrent first callers
// wait for the same load.
type Lazy struct {
	load Loader

	once   sync.Once
	engine Engine
	err    error
}

func NewLazy(load Loader) *Lazy {
	return &Lazy{load: load}
}

func (l *Lazy) Get(ctx context.Context) (Engine, error) {
	l.once.Do(func() {
		if l.load == nil {
			l.err = ErrDisabled
			return
		}
		l.engine, l.err = l.load(ctx)
		if l.err == nil && l.engine == nil {
			l.err = ErrDisabled
		}
	})
	return l.engine, l.err
}

// JoinSegments concatenates the non-empty trimmed segment texts with one space.
func JoinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
