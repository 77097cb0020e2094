// internal/poll/engine_test.go
package poll

import (
	"context"
	"errors"
	"io"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fcolinet/wxmodbus/internal/decode"
	"github.com/fcolinet/wxmodbus/internal/link"
)

// readOutcome scripts one link.Read result.
type readOutcome struct {
	regs []uint16
	err  error
}

// fakeLink replays scripted outcomes in call order.
type fakeLink struct {
	script []readOutcome
	calls  int
}

func (f *fakeLink) Read(ctx context.Context, unitID byte, address, quantity uint16) ([]uint16, error) {
	if f.calls >= len(f.script) {
		return nil, errors.New("fakeLink: script exhausted")
	}
	out := f.script[f.calls]
	f.calls++
	return out.regs, out.err
}

// recordSink collects readings.
type recordSink struct {
	got []Reading
	err error
}

func (s *recordSink) Publish(r Reading) error {
	if s.err != nil {
		return s.err
	}
	s.got = append(s.got, r)
	return nil
}

func testGroups() []GroupSpec {
	return []GroupSpec{
		{
			Name:   "bme280",
			UnitID: 1,
			Start:  0,
			Length: 3,
			Fields: []decode.FieldSpec{
				{Name: "outHumidity", Index: 0, Scale: 0.1, Type: decode.Int16},
				{Name: "outTemp", Index: 1, Scale: 0.1, Type: decode.Int16},
				{Name: "pressure", Index: 2, Scale: 1, Type: decode.Int16},
			},
		},
		{
			Name:   "light",
			UnitID: 1,
			Start:  2,
			Length: 2,
			Fields: []decode.FieldSpec{
				{Name: "radiation", Index: 0, Scale: 0.001, Type: decode.Int32},
			},
		},
	}
}

func newTestEngine(t *testing.T, l Link, sink Sink) *Engine {
	t.Helper()
	e, err := New(Config{Interval: time.Second, Groups: testGroups()}, l, sink, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return e
}

func TestPollOnce_AllGroupsEmit(t *testing.T) {
	fl := &fakeLink{script: []readOutcome{
		{regs: []uint16{651, 213, 10132}},
		{regs: []uint16{12, 59123}},
	}}
	sink := &recordSink{}
	e := newTestEngine(t, fl, sink)

	e.PollOnce(context.Background())

	want := map[string]float64{
		"outHumidity": 65.1,
		"outTemp":     21.3,
		"pressure":    10132,
		"radiation":   845.555,
	}
	if len(sink.got) != len(want) {
		t.Fatalf("emitted %d readings, want %d", len(sink.got), len(want))
	}
	for _, r := range sink.got {
		w, ok := want[r.Field]
		if !ok {
			t.Fatalf("unexpected field %q", r.Field)
		}
		if diff := r.Value - w; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("%s = %v, want %v", r.Field, r.Value, w)
		}
		if r.At.IsZero() {
			t.Fatalf("%s has zero timestamp", r.Field)
		}
	}
}

func TestPollOnce_SharedRoundTimestamp(t *testing.T) {
	fl := &fakeLink{script: []readOutcome{
		{regs: []uint16{1, 2, 3}},
		{regs: []uint16{0, 1}},
	}}
	sink := &recordSink{}
	e := newTestEngine(t, fl, sink)

	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	e.PollOnce(context.Background())

	for _, r := range sink.got {
		if !r.At.Equal(fixed) {
			t.Fatalf("%s timestamp = %v, want %v", r.Field, r.At, fixed)
		}
	}
}

func TestPollOnce_ProtocolErrorSkipsOnlyThatGroup(t *testing.T) {
	fl := &fakeLink{script: []readOutcome{
		{err: &link.ProtocolError{UnitID: 1, Address: 0, Code: link.ExcIllegalDataAddress}},
		{regs: []uint16{12, 59123}},
	}}
	sink := &recordSink{}
	e := newTestEngine(t, fl, sink)

	e.PollOnce(context.Background())

	if len(sink.got) != 1 || sink.got[0].Field != "radiation" {
		t.Fatalf("expected only radiation, got %v", sink.got)
	}
	if fl.calls != 2 {
		t.Fatalf("link called %d times, want 2", fl.calls)
	}
}

func TestPollOnce_ConnErrorSkipsGroupWithoutRetry(t *testing.T) {
	fl := &fakeLink{script: []readOutcome{
		{err: &link.ConnError{Op: "connect", Err: errors.New("refused")}},
		{err: &link.ConnError{Op: "connect", Err: errors.New("refused")}},
	}}
	sink := &recordSink{}
	e := newTestEngine(t, fl, sink)

	e.PollOnce(context.Background())

	if len(sink.got) != 0 {
		t.Fatalf("expected no readings, got %v", sink.got)
	}
	// One Read per group per round; the engine adds no retry loop on top
	// of the link's backoff.
	if fl.calls != 2 {
		t.Fatalf("link called %d times, want 2", fl.calls)
	}
}

func TestPollOnce_ShortReadSkipsFieldOnly(t *testing.T) {
	// The light group gets one register back instead of two: the int32
	// field is skipped, the other group still emits.
	fl := &fakeLink{script: []readOutcome{
		{regs: []uint16{651, 213, 10132}},
		{regs: []uint16{12}},
	}}
	sink := &recordSink{}
	e := newTestEngine(t, fl, sink)

	e.PollOnce(context.Background())

	if len(sink.got) != 3 {
		t.Fatalf("emitted %d readings, want 3: %v", len(sink.got), sink.got)
	}
	for _, r := range sink.got {
		if r.Field == "radiation" {
			t.Fatalf("radiation emitted from a short block")
		}
	}
}

func TestPollOnce_ScriptedRecoverySequence(t *testing.T) {
	// Four rounds: success, protocol error, connection error, success.
	fl := &fakeLink{script: []readOutcome{
		// round 1: both groups succeed
		{regs: []uint16{100, 200, 300}},
		{regs: []uint16{0, 1000}},
		// round 2: first group rejected, second succeeds
		{err: &link.ProtocolError{UnitID: 1, Address: 0, Code: link.ExcServerBusy}},
		{regs: []uint16{0, 2000}},
		// round 3: outage, both fail
		{err: &link.ConnError{Op: "connect", Err: errors.New("down")}},
		{err: &link.ConnError{Op: "connect", Err: errors.New("down")}},
		// round 4: full recovery
		{regs: []uint16{101, 201, 301}},
		{regs: []uint16{0, 3000}},
	}}
	sink := &recordSink{}
	e := newTestEngine(t, fl, sink)

	perRound := make([]int, 4)
	for i := range perRound {
		before := len(sink.got)
		e.PollOnce(context.Background())
		perRound[i] = len(sink.got) - before
	}

	want := []int{4, 1, 0, 4}
	for i := range want {
		if perRound[i] != want[i] {
			t.Fatalf("round %d emitted %d readings, want %d", i+1, perRound[i], want[i])
		}
	}
}

// steadyLink always succeeds and counts reads atomically so the test
// goroutine can watch Run's progress from outside.
type steadyLink struct {
	reads int64
}

func (l *steadyLink) Read(ctx context.Context, unitID byte, address, quantity uint16) ([]uint16, error) {
	atomic.AddInt64(&l.reads, 1)
	return []uint16{1, 2, 3}, nil
}

func TestRun_PollsOnTickAndStopsOnCancel(t *testing.T) {
	fl := &steadyLink{}
	sink := &recordSink{}
	e, err := New(Config{Interval: 5 * time.Millisecond, Groups: testGroups()}, fl, sink, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	// Two groups per round: the immediate first round plus at least two
	// ticked rounds means six reads.
	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&fl.reads) < 6 {
		if time.Now().After(deadline) {
			t.Fatalf("Run produced %d reads within 2s, want >= 6", atomic.LoadInt64(&fl.reads))
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancel")
	}

	// A round finishes before Run re-checks ctx, so every started round
	// published all four fields. Safe to inspect once Run returned.
	if len(sink.got) < 12 {
		t.Fatalf("emitted %d readings, want >= 12", len(sink.got))
	}
}

// slowLink's reads outrun the poll interval; it records whether two reads
// were ever in flight at once.
type slowLink struct {
	delay    time.Duration
	inflight int32
	overlap  int32
	reads    int32
}

func (l *slowLink) Read(ctx context.Context, unitID byte, address, quantity uint16) ([]uint16, error) {
	if atomic.AddInt32(&l.inflight, 1) > 1 {
		atomic.StoreInt32(&l.overlap, 1)
	}
	time.Sleep(l.delay)
	atomic.AddInt32(&l.inflight, -1)
	atomic.AddInt32(&l.reads, 1)
	return []uint16{1, 2, 3}, nil
}

func TestRun_OverrunningRoundsDoNotOverlap(t *testing.T) {
	// Each round takes ~4x the interval. Pending ticks may only delay the
	// next round until the current one completes, never start it
	// concurrently: a single in-flight read per device connection.
	fl := &slowLink{delay: 10 * time.Millisecond}
	sink := &recordSink{}
	e, err := New(Config{Interval: 5 * time.Millisecond, Groups: testGroups()}, fl, sink, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&fl.reads) < 6 {
		if time.Now().After(deadline) {
			t.Fatalf("Run produced %d reads within 5s, want >= 6", atomic.LoadInt32(&fl.reads))
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancel")
	}

	if atomic.LoadInt32(&fl.overlap) != 0 {
		t.Fatalf("observed concurrent in-flight reads")
	}
}

func TestNew_Validation(t *testing.T) {
	logger := log.New(io.Discard, "", 0)
	sink := &recordSink{}
	fl := &fakeLink{}

	if _, err := New(Config{Interval: 0, Groups: testGroups()}, fl, sink, logger); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := New(Config{Interval: time.Second}, fl, sink, logger); err == nil {
		t.Fatalf("expected error for empty groups")
	}
	if _, err := New(Config{Interval: time.Second, Groups: testGroups()}, nil, sink, logger); err == nil {
		t.Fatalf("expected error for nil link")
	}
}
