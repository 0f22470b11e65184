package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"BinPull/internal/domain/models"
	"BinPull/pkg/logger"
)

type dropCounter struct {
	mu    sync.Mutex
	kinds []string
}

func (d *dropCounter) RecordTick(string, float64)                           {}
func (d *dropCounter) RecordSignal(string, string, bool)                    {}
func (d *dropCounter) RecordTrade(string, models.TradeResult, float64)      {}
func (d *dropCounter) RecordBalance(string, float64)                        {}
func (d *dropCounter) RecordMartingaleLevel(string, int)                    {}
func (d *dropCounter) RecordConnectionPhase(string, models.ConnectionPhase) {}
func (d *dropCounter) RecordError(string)                                   {}
func (d *dropCounter) RecordLatency(string, float64)                        {}
func (d *dropCounter) RecordEventDropped(kind string) {
	d.mu.Lock()
	d.kinds = append(d.kinds, kind)
	d.mu.Unlock()
}

func tick(symbol string, price float64) models.Event {
	return models.Event{Kind: models.EventTick, SessionID: "s1", Symbol: symbol, Payload: price}
}

func TestPublishStampsAndFilters(t *testing.T) {
	b := New()
	all := b.Subscribe(4)
	onlyStatus := b.Subscribe(4, models.EventStatus)

	b.Publish(tick("R_100", 1))
	b.Publish(models.Event{Kind: models.EventStatus, SessionID: "s1"})

	e := <-all.C()
	if e.ID == "" || e.At.IsZero() {
		t.Fatalf("event not stamped: %+v", e)
	}
	if e.Kind != models.EventTick {
		t.Fatalf("first event kind = %s", e.Kind)
	}
	if got := (<-all.C()).Kind; got != models.EventStatus {
		t.Fatalf("second event kind = %s", got)
	}
	if got := (<-onlyStatus.C()).Kind; got != models.EventStatus {
		t.Fatalf("filtered subscriber got %s", got)
	}
	select {
	case e := <-onlyStatus.C():
		t.Fatalf("unexpected event %s", e.Kind)
	default:
	}
}

func TestFullSubscriberDropsOldest(t *testing.T) {
	dc := &dropCounter{}
	b := New(WithMetrics(dc))
	slow := b.Subscribe(2)

	for i := 1; i <= 5; i++ {
		b.Publish(tick("R_100", float64(i)))
	}

	if d := slow.Dropped(); d != 3 {
		t.Fatalf("dropped = %d, want 3", d)
	}
	first, second := <-slow.C(), <-slow.C()
	if first.Payload.(float64) != 4 || second.Payload.(float64) != 5 {
		t.Fatalf("kept %v,%v want newest 4,5", first.Payload, second.Payload)
	}
	if len(dc.kinds) != 3 || dc.kinds[0] != string(models.EventTick) {
		t.Fatalf("drop metrics = %v", dc.kinds)
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	_ = b.Subscribe(1) // never drained
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			b.Publish(tick("R_100", float64(i)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("publish blocked on a stalled subscriber")
	}
}

func TestCloseSubscriptionAndBus(t *testing.T) {
	b := New()
	s1 := b.Subscribe(1)
	s2 := b.Subscribe(1)

	s1.Close()
	s1.Close()
	if _, ok := <-s1.C(); ok {
		t.Fatalf("closed subscription still open")
	}
	b.Publish(tick("R_100", 1))
	if (<-s2.C()).Kind != models.EventTick {
		t.Fatalf("remaining subscriber missed event")
	}

	b.Close()
	if _, ok := <-s2.C(); ok {
		t.Fatalf("bus close must close subscriptions")
	}
	b.Publish(tick("R_100", 2))

	late := b.Subscribe(1)
	if _, ok := <-late.C(); ok {
		t.Fatalf("subscribe after close should return a closed channel")
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
	fail   bool
}

func (r *recordingSink) Publish(_ context.Context, e models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		r.fail = false
		return errors.New("broker down")
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Close() error { return nil }

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func TestForwardDrainsIntoSink(t *testing.T) {
	b := New()
	sink := &recordingSink{fail: true}
	sub := b.Subscribe(8)
	done := make(chan struct{})
	go func() {
		Forward(context.Background(), sub, sink, logger.Nop(), nil)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		b.Publish(tick("R_100", float64(i)))
	}
	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := sink.count(); n != 2 {
		t.Fatalf("sink got %d events, want 2 after one failure", n)
	}

	sub.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("forward did not stop after subscription close")
	}
}
