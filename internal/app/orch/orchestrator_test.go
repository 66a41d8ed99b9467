package orch

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/voicehub/internal/app"
	"github.com/dkeye/voicehub/internal/app/stt"
	"github.com/dkeye/voicehub/internal/core/coretest"
	"github.com/dkeye/voicehub/internal/transcribe"
)

func TestOrchestrator_RoomsMergesSubsystems(t *testing.T) {
	hub := app.NewHub(nil)
	svc := stt.NewService(stt.Config{PollTimeout: 10 * time.Millisecond}, transcribe.NewLazy(nil))
	o := New(hub, svc)

	hub.Register("a", "alice", coretest.NewConn("alice"))
	hub.Register("a", "bob", coretest.NewConn("bob"))
	svc.RegisterConnection("a", "bob", coretest.NewConn("bob-cc"))
	svc.RegisterConnection("b", "carol", coretest.NewConn("carol-cc"))

	rooms := o.Rooms()
	if len(rooms) != 2 {
		t.Fatalf("rooms = %+v", rooms)
	}
	if rooms[0].Room != "a" || rooms[0].Members != 2 || len(rooms[0].Speakers) != 1 {
		t.Fatalf("room a = %+v", rooms[0])
	}
	if rooms[1].Room != "b" || rooms[1].Members != 0 || rooms[1].Speakers[0].Speaker != "carol" {
		t.Fatalf("room b = %+v", rooms[1])
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := o.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if svc.SessionCount() != 0 {
		t.Fatal("sessions survived shutdown")
	}
}

func TestOrchestrator_EmptyRooms(t *testing.T) {
	o := New(app.NewHub(nil), nil)
	if rooms := o.Rooms(); len(rooms) != 0 {
		t.Fatalf("rooms = %+v", rooms)
	}
	if err := o.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}
