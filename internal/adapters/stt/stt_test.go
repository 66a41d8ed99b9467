package stt

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/voicehub/internal/adapters/auth"
	"github.com/dkeye/voicehub/internal/adapters/ws"
	appstt "github.com/dkeye/voicehub/internal/app/stt"
	"github.com/dkeye/voicehub/internal/domain"
	"github.com/dkeye/voicehub/internal/transcribe"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

type env struct {
	svc      *appstt.Service
	verifier *auth.Verifier
	base     string
	calls    atomic.Int32
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, func(*STTWSController) {})
}

// newEnvWith lets a test adjust the controller before the server starts.
func newEnvWith(t *testing.T, configure func(*STTWSController)) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := &env{}
	engine := transcribe.EngineFunc(func(context.Context, []float32, transcribe.Options) ([]transcribe.Segment, error) {
		e.calls.Add(1)
		return []transcribe.Segment{{Text: "hello world"}}, nil
	})
	e.svc = appstt.NewService(appstt.Config{
		Window:      10 * time.Millisecond,
		Overlap:     2 * time.Millisecond,
		FlushAfter:  time.Hour,
		PollTimeout: 20 * time.Millisecond,
	}, transcribe.NewLazy(transcribe.Static(engine)))
	e.verifier, _ = auth.NewVerifier("secret", "")

	ctx, cancel := context.WithCancel(context.Background())
	ctl := NewSTTWSController(e.svc, e.verifier, ws.Options{})
	configure(ctl)
	r := gin.New()
	r.GET("/ws/stt", func(c *gin.Context) { ctl.HandleSTT(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		_ = e.svc.Shutdown(context.Background())
	})
	e.base = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/stt"
	return e
}

func (e *env) token(t *testing.T, sub string, rooms ...string) string {
	t.Helper()
	tok, err := e.verifier.Sign(auth.Claims{
		Rooms:            rooms,
		RegisteredClaims: jwt.RegisteredClaims{Subject: sub},
	})
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *env) dial(t *testing.T, token, room, user string) *websocket.Conn {
	t.Helper()
	q := url.Values{}
	if token != "" {
		q.Set("token", token)
	}
	if room != "" {
		q.Set("room_id", room)
	}
	if user != "" {
		q.Set("user_id", user)
	}
	c, _, err := websocket.DefaultDialer.Dial(e.base+"?"+q.Encode(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readCaption(t *testing.T, c *websocket.Conn) domain.Caption {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev domain.Caption
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return ev
}

func TestSTT_CaptionFanout(t *testing.T) {
	e := newEnv(t)
	bob := e.dial(t, e.token(t, "bob"), "r1", "bob")
	carol := e.dial(t, e.token(t, "carol", "r1"), "r1", "carol")
	waitFor(t, func() bool { return len(e.svc.Speakers("r1")) == 2 })

	if err := bob.WriteMessage(websocket.BinaryMessage, make([]byte, 320)); err != nil {
		t.Fatal(err)
	}
	for _, c := range []*websocket.Conn{bob, carol} {
		ev := readCaption(t, c)
		if ev.Type != domain.TypeCaption || ev.Speaker != "bob" || ev.Text != "hello world" || ev.RoomID != "r1" || ev.Final {
			t.Fatalf("caption = %+v", ev)
		}
	}

	if err := bob.WriteMessage(websocket.TextMessage, []byte(`{"type":"stop"}`)); err != nil {
		t.Fatal(err)
	}
	ev := readCaption(t, carol)
	if ev.Type != domain.TypeCaptionFinal || ev.Speaker != "bob" || ev.Text != "" || !ev.Final {
		t.Fatalf("terminal caption = %+v", ev)
	}
}

func TestSTT_Rejections(t *testing.T) {
	e := newEnv(t)
	good := e.token(t, "bob", "r1")
	tests := []struct {
		name              string
		token, room, user string
	}{
		{"no token", "", "r1", "bob"},
		{"no room", good, "", "bob"},
		{"no user", good, "r1", ""},
		{"bad token", "garbage", "r1", "bob"},
		{"subject mismatch", good, "r1", "mallory"},
		{"room not granted", good, "r2", "bob"},
		{"room too long", good, strings.Repeat("r", 65), "bob"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.dial(t, tt.token, tt.room, tt.user)
			_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err := c.ReadMessage()
			if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				t.Fatalf("err = %v, want close 1008", err)
			}
		})
	}
	if rooms := e.svc.Rooms(); len(rooms) != 0 {
		t.Fatalf("rejected connections registered: %v", rooms)
	}
}

func TestSTT_DisconnectCleansUp(t *testing.T) {
	e := newEnv(t)
	bob := e.dial(t, e.token(t, "bob"), "r1", "bob")
	waitFor(t, func() bool { return e.svc.HasRoom("r1") })

	if err := bob.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)); err != nil {
		t.Fatal(err)
	}
	bob.Close()
	waitFor(t, func() bool { return !e.svc.HasRoom("r1") })
	waitFor(t, func() bool { return e.svc.SessionCount() == 0 })
}

func TestSTT_NoVerifierRejectsEveryToken(t *testing.T) {
	e := newEnvWith(t, func(ctl *STTWSController) { ctl.Auth = nil })

	for _, tok := range []string{"forged", e.token(t, "alice")} {
		c := e.dial(t, tok, "r1", "alice")
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := c.ReadMessage()
		if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Fatalf("token %q: err = %v, want close 1008", tok, err)
		}
	}
	if speakers := e.svc.Speakers("r1"); len(speakers) != 0 {
		t.Fatalf("unverified connection registered: %+v", speakers)
	}
}

func TestSTT_AllowUnsignedForDebug(t *testing.T) {
	e := newEnvWith(t, func(ctl *STTWSController) {
		ctl.Auth = nil
		ctl.AllowUnsigned = true
	})
	e.dial(t, "anything", "r1", "alice")
	waitFor(t, func() bool { return len(e.svc.Speakers("r1")) == 1 })
}
