package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			m := r.queue[0]
			r.queue = r.queue[1:]
			r.mu.Unlock()
			return m, nil
		}
		r.mu.Unlock()
		select {
		case <-ctx.Done():
			return kafka.Message{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeDLQ struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (d *fakeDLQ) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	d.mu.Lock()
	d.msgs = append(d.msgs, msgs...)
	d.mu.Unlock()
	return nil
}

func (d *fakeDLQ) Close() error { return nil }

type funcHandler struct {
	topic string
	fn    func(ctx context.Context, b []byte) error
}

func (h funcHandler) Topic() string                              { return h.topic }
func (h funcHandler) Handle(ctx context.Context, b []byte) error { return h.fn(ctx, b) }

func newTestConsumer(t *testing.T, r *fakeReader, opts ...ConsumerOption) *Consumer {
	t.Helper()
	opts = append([]ConsumerOption{WithConsumerBrokers([]string{"localhost:9092"})}, opts...)
	c, err := NewConsumer(opts...)
	require.NoError(t, err)
	c.newReader = func(string) fetcher { return r }
	c.sleep = func(ctx context.Context, _ time.Duration) bool { return ctx.Err() == nil }
	return c
}

func msg(partition int, offset int64, value string) kafka.Message {
	return kafka.Message{Partition: partition, Offset: offset, Value: []byte(value)}
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{msg(0, 1, "a"), msg(0, 2, "b")}}
	c := newTestConsumer(t, r, WithConsumerRetry(3, time.Millisecond, time.Millisecond))

	var mu sync.Mutex
	calls := map[string]int{}
	c.RegisterHandler(funcHandler{topic: "cmd", fn: func(_ context.Context, b []byte) error {
		mu.Lock()
		defer mu.Unlock()
		calls[string(b)]++
		if string(b) == "a" && calls["a"] < 3 {
			return errors.New("flaky")
		}
		return nil
	}})
	require.NoError(t, c.Start())

	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))

	assert.Equal(t, []int64{1, 2}, r.commits())
	mu.Lock()
	assert.Equal(t, 3, calls["a"])
	mu.Unlock()
	assert.True(t, r.closed)
}

func TestConsumerPermanentErrorGoesToDLQ(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{msg(0, 7, "bad")}}
	c := newTestConsumer(t, r, WithConsumerDLQ("cmd.dlq"), WithConsumerRetry(5, time.Millisecond, time.Millisecond))
	dlq := &fakeDLQ{}
	c.dlq = dlq

	calls := 0
	c.RegisterHandler(funcHandler{topic: "cmd", fn: func(context.Context, []byte) error {
		calls++
		return ErrPermanent
	}})
	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return len(r.commits()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))

	assert.Equal(t, 1, calls)
	require.Len(t, dlq.msgs, 1)
	assert.Equal(t, "cmd.dlq", dlq.msgs[0].Topic)
	var src string
	for _, h := range dlq.msgs[0].Headers {
		if h.Key == "source_topic" {
			src = string(h.Value)
		}
	}
	assert.Equal(t, "cmd", src)
}

func TestConsumerWithoutDLQLeavesFailedOffset(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{msg(0, 1, "x")}}
	c := newTestConsumer(t, r, WithConsumerRetry(0, time.Millisecond, time.Millisecond))
	done := make(chan struct{})
	c.RegisterHandler(funcHandler{topic: "cmd", fn: func(context.Context, []byte) error {
		close(done)
		return errors.New("down")
	}})
	require.NoError(t, c.Start())
	<-done
	require.NoError(t, c.Stop(context.Background()))
	assert.Empty(t, r.commits())
}

func TestConsumerKeepsPartitionOrder(t *testing.T) {
	var queue []kafka.Message
	for i := 0; i < 20; i++ {
		queue = append(queue, msg(i%2, int64(i), string(rune('a'+i))))
	}
	r := &fakeReader{queue: queue}
	reg := prometheus.NewRegistry()
	c := newTestConsumer(t, r, WithConsumerWorkers(4), WithConsumerMetrics(reg))

	var mu sync.Mutex
	seen := map[int][]int64{}
	c.RegisterHandler(funcHandler{topic: "cmd", fn: func(_ context.Context, b []byte) error {
		i := int64(b[0] - 'a')
		mu.Lock()
		seen[int(i%2)] = append(seen[int(i%2)], i)
		mu.Unlock()
		return nil
	}})
	require.NoError(t, c.Start())
	require.Eventually(t, func() bool { return len(r.commits()) == 20 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Stop(context.Background()))

	for p, offs := range seen {
		for i := 1; i < len(offs); i++ {
			assert.Less(t, offs[i-1], offs[i], "partition %d out of order", p)
		}
	}
	assert.Equal(t, 20.0, testutil.ToFloat64(c.metrics.handled.WithLabelValues("cmd", "ok")))
}

func TestConsumerStartRequiresHandlers(t *testing.T) {
	c := newTestConsumer(t, &fakeReader{})
	assert.Error(t, c.Start())
}

func TestBackoffWithJitterBounds(t *testing.T) {
	for attempt := 1; attempt < 40; attempt++ {
		d := backoffWithJitter(50*time.Millisecond, 2*time.Second, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}
