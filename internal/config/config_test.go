package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Mode != "release" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.Signal.Keepalive != 20*time.Second || cfg.Signal.RateLimit != 50 {
		t.Fatalf("signal = %+v", cfg.Signal)
	}
	if cfg.STT.Window != 500*time.Millisecond || cfg.STT.QueueSize != 300 || cfg.STT.Language != "en" {
		t.Fatalf("stt = %+v", cfg.STT)
	}
	if cfg.Engine.Kind != "none" {
		t.Fatalf("engine kind = %q", cfg.Engine.Kind)
	}
	if len(cfg.ICE.STUN) != 1 {
		t.Fatalf("ice = %+v", cfg.ICE)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.test.yaml")
	yaml := `
port: 9000
stt:
  window: 1s
  language: de
engine:
  kind: http
  url: http://whisper:8000
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("VOICE_STT_LANGUAGE", "fr")
	t.Setenv("VOICE_AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 9000 {
		t.Fatalf("port = %d", cfg.Port)
	}
	if cfg.STT.Window != time.Second {
		t.Fatalf("window = %v", cfg.STT.Window)
	}
	if cfg.STT.Language != "fr" {
		t.Fatalf("language = %q, want env override", cfg.STT.Language)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Fatalf("jwt secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Engine.Kind != "http" || cfg.Engine.URL != "http://whisper:8000" {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
	if cfg.STT.Overlap != 100*time.Millisecond {
		t.Fatalf("overlap default lost: %v", cfg.STT.Overlap)
	}
}

func TestLoad_NoStaticDirByDefault(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.StaticPath != "" {
		t.Fatalf("static_path = %q, want empty", cfg.StaticPath)
	}
	if cfg.Auth.JWTSecret != "" {
		t.Fatalf("jwt secret default = %q", cfg.Auth.JWTSecret)
	}
}
