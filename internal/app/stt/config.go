package stt

import (
	"time"

	"github.com/dkeye/voicehub/internal/transcribe"
)

// Config tunes windowing. Durations are converted to byte counts of 16-bit
// mono PCM at SampleRate.
type Config struct {
	SampleRate        int
	Window            time.Duration // size trigger
	Overlap           time.Duration // tail kept for the next window
	MaxBuffer         time.Duration // hard cap on accumulated audio
	FlushAfter        time.Duration // time trigger since the last pass
	PollTimeout       time.Duration
	QueueSize         int
	Language          string
	TranscribeTimeout time.Duration
	FlushOnClose      bool
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		Window:            500 * time.Millisecond,
		Overlap:           100 * time.Millisecond,
		MaxBuffer:         3 * time.Second,
		FlushAfter:        750 * time.Millisecond,
		PollTimeout:       time.Second,
		QueueSize:         300,
		Language:          "en",
		TranscribeTimeout: 30 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = d.SampleRate
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.Overlap >= c.Window {
		c.Overlap = c.Window / 5
	}
	if c.MaxBuffer < c.Window {
		c.MaxBuffer = 6 * c.Window
	}
	if c.FlushAfter <= 0 {
		c.FlushAfter = c.Window * 3 / 2
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.Language == "" {
		c.Language = d.Language
	}
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = d.TranscribeTimeout
	}
	return c
}

func (c Config) bytesFor(d time.Duration) int {
	samples := int64(d) * int64(c.SampleRate) / int64(time.Second)
	return int(samples) * transcribe.BytesPerSample
}

func (c Config) WindowBytes() int    { return c.bytesFor(c.Window) }
func (c Config) OverlapBytes() int   { return c.bytesFor(c.Overlap) }
func (c Config) MaxBufferBytes() int { return c.bytesFor(c.MaxBuffer) }
