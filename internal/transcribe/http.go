package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const transcriptionsPath = "/v1/audio/transcriptions"

type HTTPConfig struct {
	URL        string
	Model      string
	APIKey     string
	Timeout    time.Duration
	ProbePath  string
	SampleRate int
}

// HTTPEngine talks to an OpenAI-compatible whisper server
// (e.g. faster-whisper-server) over multipart POST.
type HTTPEngine struct {
	cfg      HTTPConfig
	base     *url.URL
	endpoint string
	client   *http.Client
}

func NewHTTPEngine(cfg HTTPConfig) (*HTTPEngine, error) {
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("engine url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, fmt.Errorf("engine url %q: must be absolute http(s)", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &HTTPEngine{
		cfg:      cfg,
		base:     u,
		endpoint: u.String() + transcriptionsPath,
		client:   &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Probe checks that the server answers on ProbePath.
func (e *HTTPEngine) Probe(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.base.String()+e.cfg.ProbePath, nil)
	if err != nil {
		return err
	}
	e.authorize(req)
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("probe http %d", resp.StatusCode)
	}
	return nil
}

type verboseResp struct {
	Text     string `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (e *HTTPEngine) Transcribe(ctx context.Context, samples []float32, opts Options) ([]Segment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := map[string]string{
		"response_format": "verbose_json",
		"vad_filter":      strconv.FormatBool(opts.VADFilter),
	}
	if e.cfg.Model != "" {
		fields["model"] = e.cfg.Model
	}
	if opts.Language != "" {
		fields["language"] = opts.Language
	}
	// Greedy decoding is the closest the OpenAI surface gets to beam size 1.
	if opts.BeamSize <= 1 {
		fields["temperature"] = "0"
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, err
		}
	}

	fw, err := mw.CreateFormFile("file", "window.wav")
	if err != nil {
		return nil, err
	}
	if err := WriteWAV(fw, samples, e.cfg.SampleRate); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, &body)
	if err != nil {
		return nil, err
	}
	e.authorize(req)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("whisper http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var vr verboseResp
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("decode whisper response: %w", err)
	}
	log.Debug().Str("module", "transcribe.http").Int("samples", len(samples)).Dur("took", time.Since(start)).Msg("window transcribed")

	if len(vr.Segments) == 0 {
		if strings.TrimSpace(vr.Text) == "" {
			return nil, nil
		}
		return []Segment{{Text: vr.Text}}, nil
	}
	out := make([]Segment, 0, len(vr.Segments))
	for _, s := range vr.Segments {
		out = append(out, Segment{Start: s.Start, End: s.End, Text: s.Text})
	}
	return out, nil
}

func (e *HTTPEngine) authorize(req *http.Request) {
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}
}

// NewLoader returns the Loader for the configured engine kind.
func NewLoader(kind string, cfg HTTPConfig) (Loader, error) {
	switch kind {
	case "", "none":
		return func(context.Context) (Engine, error) { return nil, ErrDisabled }, nil
	case "http":
		return func(ctx context.Context) (Engine, error) {
			e, err := NewHTTPEngine(cfg)
			if err != nil {
				return nil, err
			}
			if cfg.ProbePath != "" {
				if err := e.Probe(ctx); err != nil {
					return nil, err
				}
			}
			log.Info().Str("module", "transcribe.http").Str("url", e.base.String()).Str("model", cfg.Model).Msg("engine ready")
			return e, nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", kind)
	}
}
