package iostream

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestStreamEmitAndPause(t *testing.T) {
	s := NewStream()
	var got [][]byte
	s.OnData(func(b []byte) { got = append(got, append([]byte(nil), b...)) })

	ctx := context.Background()
	if err := s.Emit(ctx, []byte("a")); err != nil {
		t.Fatal(err)
	}

	s.Pause()
	emitted := make(chan error, 1)
	go func() { emitted <- s.Emit(ctx, []byte("b")) }()

	select {
	case <-emitted:
		t.Fatal("Emit should block while paused")
	case <-time.After(20 * time.Millisecond):
	}

	s.Resume()
	if err := <-emitted; err != nil {
		t.Fatal(err)
	}

	if len(got) != 2 || string(got[0]) != "a" || string(got[1]) != "b" {
		t.Fatalf("got %v", got)
	}
}

func TestStreamEmitCancelledWhilePaused(t *testing.T) {
	s := NewStream()
	s.Pause()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Emit(ctx, []byte("x")); err == nil {
		t.Fatal("expected context error while paused and cancelled")
	}
}

func TestConsumeWithLimitWithinLimit(t *testing.T) {
	s := NewStream()
	go func() {
		ctx := context.Background()
		_ = s.Emit(ctx, []byte("hello"))
		s.End()
	}()

	data, ended, err := ConsumeWithLimit(context.Background(), s, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !ended {
		t.Fatal("expected ended=true when stream ends within limit")
	}
	if string(data) != "hello" {
		t.Fatalf("data = %q", data)
	}
}

func TestConsumeWithLimitExceedsLimit(t *testing.T) {
	s := NewStream()
	go func() {
		ctx := context.Background()
		_ = s.Emit(ctx, []byte("0123456789"))
	}()

	data, ended, err := ConsumeWithLimit(context.Background(), s, 4)
	if err != nil {
		t.Fatal(err)
	}
	if ended {
		t.Fatal("expected ended=false when limit reached before end")
	}
	if string(data) != "0123" {
		t.Fatalf("data = %q", data)
	}
}

func TestMaterializeFromReader(t *testing.T) {
	src := FromReader(strings.NewReader("payload"))
	b, err := src.Materialize()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "payload" {
		t.Fatalf("got %q", b)
	}
}
