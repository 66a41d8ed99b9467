package transcribe

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLazy_LoadsOnceUnderConcurrency(t *testing.T) {
	var loads atomic.Int32
	stub := EngineFunc(func(context.Context, []float32, Options) ([]Segment, error) { return nil, nil })
	l := NewLazy(func(context.Context) (Engine, error) {
		loads.Add(1)
		time.Sleep(20 * time.Millisecond)
		return stub, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if e, err := l.Get(context.Background()); err != nil || e == nil {
				t.Errorf("Get = %v, %v", e, err)
			}
		}()
	}
	wg.Wait()
	if n := loads.Load(); n != 1 {
		t.Fatalf("loader ran %d times", n)
	}
}

func TestLazy_FailureIsSticky(t *testing.T) {
	boom := errors.New("no model")
	calls := 0
	l := NewLazy(func(context.Context) (Engine, error) {
		calls++
		return nil, boom
	})
	for i := 0; i < 3; i++ {
		if _, err := l.Get(context.Background()); !errors.Is(err, boom) {
			t.Fatalf("Get err = %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("loader ran %d times", calls)
	}
	if _, err := NewLazy(nil).Get(context.Background()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("nil loader err = %v", err)
	}
}

func TestJoinSegments(t *testing.T) {
	got := JoinSegments([]Segment{{Text: " hello "}, {Text: "  "}, {Text: "world"}, {}})
	if got != "hello world" {
		t.Fatalf("JoinSegments = %q", got)
	}
	if JoinSegments(nil) != "" {
		t.Fatalf("empty input should join to empty string")
	}
}
