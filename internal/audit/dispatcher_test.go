package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	events  []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.release
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	if d := NewDispatcher(Config{Enabled: false}, NoOpSink{}); d != nil {
		t.Fatal("disabled dispatcher must be nil")
	}
	var d *Dispatcher
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher must report zero drops")
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "refresh_success"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected drops with a stalled sink")
	}
	close(sink.release)
	d.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if uint64(len(sink.events))+d.Dropped() != 10 {
		t.Fatalf("delivered %d + dropped %d != 10", len(sink.events), d.Dropped())
	}
}

func TestDispatcherFlushesOnClose(t *testing.T) {
	ch := NewChannelSink(16)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, ch)
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "login_success"})
	}
	d.Close()
	d.Emit(context.Background(), Event{EventType: "after_close"})

	got := 0
	timeout := time.After(time.Second)
	for got < 5 {
		select {
		case e := <-ch.Events():
			if e.EventType != "login_success" {
				t.Fatalf("unexpected event %q", e.EventType)
			}
			got++
		case <-timeout:
			t.Fatalf("only %d events delivered", got)
		}
	}
}

func TestJSONWriterSinkOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{EventType: "refresh_replay_detected", TokenRef: "abcd"})
	sink.Emit(context.Background(), Event{EventType: "logout", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.TokenRef != "abcd" || first.EventType != "refresh_replay_detected" {
		t.Fatalf("unexpected event %+v", first)
	}
}

type panicSink struct {
	calls atomic.Int32
}

func (s *panicSink) Emit(context.Context, Event) {
	if s.calls.Add(1) == 1 {
		panic("sink exploded")
	}
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	sink := &panicSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Close()

	if got := sink.calls.Load(); got != 2 {
		t.Fatalf("expected both events delivered, got %d", got)
	}
	if d.Failed() != 1 {
		t.Fatalf("expected one failed delivery, got %d", d.Failed())
	}
}

type deadlineSink struct {
	hasDeadline chan bool
}

func (s *deadlineSink) Emit(ctx context.Context, _ Event) {
	_, ok := ctx.Deadline()
	s.hasDeadline <- ok
}

func TestDispatcherBoundsSinkCalls(t *testing.T) {
	sink := &deadlineSink{hasDeadline: make(chan bool, 1)}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, SinkTimeout: time.Second}, sink)
	d.Emit(context.Background(), Event{EventType: "logout"})
	d.Close()

	if !<-sink.hasDeadline {
		t.Fatal("expected sink context to carry a deadline")
	}
}

func TestDispatcherBlockingEmitHonoursContext(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)

	// One event parks in the sink, one fills the buffer.
	d.Emit(context.Background(), Event{EventType: "a"})
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "c"})
	if d.Dropped() != 1 {
		t.Fatalf("expected the cancelled emit to count as dropped, got %d", d.Dropped())
	}

	close(sink.release)
	d.Close()
}

func TestSlogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	sink.Emit(context.Background(), Event{EventType: "refresh_success", Success: true, TokenRef: "0011"})
	sink.Emit(context.Background(), Event{
		EventType: "refresh_replay_detected",
		UserID:    "u1",
		Error:     "token_replayed",
		Metadata:  map[string]string{"revoked": "3"},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d", len(lines))
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec["level"] != "WARN" || rec["event_type"] != "refresh_replay_detected" || rec["meta.revoked"] != "3" {
		t.Fatalf("unexpected record %v", rec)
	}
	if !strings.Contains(lines[0], `"level":"INFO"`) || !strings.Contains(lines[0], `"token_ref":"0011"`) {
		t.Fatalf("unexpected record %s", lines[0])
	}
}
