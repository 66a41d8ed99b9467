package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
)

func TestHTTPEngine_Transcribe(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != transcriptionsPath || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		for k, want := range map[string]string{
			"model":           "tiny",
			"language":        "en",
			"vad_filter":      "true",
			"temperature":     "0",
			"response_format": "verbose_json",
		} {
			if got := r.FormValue(k); got != want {
				t.Errorf("field %s = %q, want %q", k, got, want)
			}
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
		} else {
			b, _ := io.ReadAll(f)
			if len(b) != 44+2*3 {
				t.Errorf("wav len = %d", len(b))
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"hello world","segments":[{"start":0,"end":0.3,"text":" hello"},{"start":0.3,"end":0.5,"text":" world"}]}`)
	}))
	defer ts.Close()

	e, err := NewHTTPEngine(HTTPConfig{URL: ts.URL + "/", Model: "tiny", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewHTTPEngine: %v", err)
	}
	segs, err := e.Transcribe(context.Background(), []float32{0, 0.1, -0.1}, Options{Language: "en", VADFilter: true, BeamSize: 1})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got := JoinSegments(segs); got != "hello world" {
		t.Fatalf("text = %q", got)
	}
}

func TestHTTPEngine_TextFallbackAndErrors(t *testing.T) {
	var mu sync.Mutex
	status := http.StatusOK
	body := `{"text":" just text "}`
	reply := func(code int, b string) {
		mu.Lock()
		defer mu.Unlock()
		status, body = code, b
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	defer ts.Close()

	e, err := NewHTTPEngine(HTTPConfig{URL: ts.URL})
	if err != nil {
		t.Fatal(err)
	}
	segs, err := e.Transcribe(context.Background(), nil, Options{})
	if err != nil || JoinSegments(segs) != "just text" {
		t.Fatalf("fallback = %v, %v", segs, err)
	}

	reply(http.StatusOK, `{"text":""}`)
	if segs, err := e.Transcribe(context.Background(), nil, Options{}); err != nil || len(segs) != 0 {
		t.Fatalf("empty = %v, %v", segs, err)
	}

	reply(http.StatusInternalServerError, "model crashed")
	if _, err := e.Transcribe(context.Background(), nil, Options{}); err == nil {
		t.Fatalf("expected error on http 500")
	}
}

func TestNewHTTPEngine_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "localhost:8000", "ftp://host"} {
		if _, err := NewHTTPEngine(HTTPConfig{URL: u}); err == nil {
			t.Fatalf("url %q accepted", u)
		}
	}
}

func TestNewLoader(t *testing.T) {
	load, err := NewLoader("none", HTTPConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := load(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("none loader err = %v", err)
	}
	if _, err := NewLoader("gpu-magic", HTTPConfig{}); err == nil {
		t.Fatalf("unknown kind accepted")
	}

	var healthy atomic.Bool
	healthy.Store(true)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer ts.Close()

	load, err = NewLoader("http", HTTPConfig{URL: ts.URL, ProbePath: "/health"})
	if err != nil {
		t.Fatal(err)
	}
	if e, err := load(context.Background()); err != nil || e == nil {
		t.Fatalf("probe ok: %v, %v", e, err)
	}
	healthy.Store(false)
	if _, err := load(context.Background()); err == nil {
		t.Fatalf("expected probe failure")
	}
}
