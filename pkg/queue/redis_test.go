package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memClient keeps lists and sorted sets in memory.
type memClient struct {
	mu    sync.Mutex
	lists map[string][]string
	zsets map[string]map[string]float64
}

func newMemClient() *memClient {
	return &memClient{lists: map[string][]string{}, zsets: map[string]map[string]float64{}}
}

func (m *memClient) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("PONG")
	return cmd
}

func str(v interface{}) string {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case string:
		return x
	}
	panic("unexpected member type")
}

func (m *memClient) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range values {
		m.lists[key] = append([]string{str(v)}, m.lists[key]...)
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(m.lists[key])))
	return cmd
}

func (m *memClient) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	deadline := time.Now().Add(timeout)
	for {
		m.mu.Lock()
		for _, k := range keys {
			if l := m.lists[k]; len(l) > 0 {
				v := l[len(l)-1]
				m.lists[k] = l[:len(l)-1]
				m.mu.Unlock()
				cmd.SetVal([]string{k, v})
				return cmd
			}
		}
		m.mu.Unlock()
		if ctx.Err() != nil {
			cmd.SetErr(ctx.Err())
			return cmd
		}
		if time.Now().After(deadline) {
			cmd.SetErr(redis.Nil)
			return cmd
		}
		time.Sleep(time.Millisecond)
	}
}

func (m *memClient) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.zsets[key] == nil {
		m.zsets[key] = map[string]float64{}
	}
	for _, z := range members {
		m.zsets[key][str(z.Member)] = z.Score
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(members)))
	return cmd
}

func (m *memClient) ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) *redis.StringSliceCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	lo, _ := strconv.ParseFloat(opt.Min, 64)
	hi, _ := strconv.ParseFloat(opt.Max, 64)
	var out []string
	for k, s := range m.zsets[key] {
		if s >= lo && s <= hi {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	cmd := redis.NewStringSliceCmd(ctx)
	cmd.SetVal(out)
	return cmd
}

func (m *memClient) ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, v := range members {
		if _, ok := m.zsets[key][str(v)]; ok {
			delete(m.zsets[key], str(v))
			n++
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(n))
	return cmd
}

func (m *memClient) len(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists[key])
}

func (m *memClient) zlen(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.zsets[key])
}

type recordJob struct {
	mu   sync.Mutex
	got  []string
	fail error
}

func (j *recordJob) Type() string { return "session_command" }

func (j *recordJob) Handle(_ context.Context, payload []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.got = append(j.got, string(payload))
	return j.fail
}

func (j *recordJob) seen() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.got...)
}

func testConfig() Config {
	return Config{Workers: 1, RetryLimit: 1, RetryDelay: time.Second, PollTimeout: 5 * time.Millisecond, RetryEvery: time.Hour}
}

func TestEnqueueAndHandleInOrder(t *testing.T) {
	c := newMemClient()
	q := NewRedisQueue(nil, testConfig(), c)
	job := &recordJob{}
	q.RegisterJob(job)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, "session_command", map[string]string{"command": "start"}))
	require.NoError(t, q.Enqueue(ctx, "session_command", json.RawMessage(`{"command":"stop"}`)))
	assert.Error(t, q.Enqueue(ctx, "session_command", []byte("{not json")))

	require.NoError(t, q.Start())
	require.Eventually(t, func() bool { return len(job.seen()) == 2 }, time.Second, 2*time.Millisecond)
	require.NoError(t, q.Stop(ctx))

	assert.Equal(t, []string{`{"command":"start"}`, `{"command":"stop"}`}, job.seen())
}

func TestFailedMessageRetriesThenDeadLetters(t *testing.T) {
	c := newMemClient()
	q := NewRedisQueue(nil, testConfig(), c, WithKeyPrefix("t"))
	now := time.Unix(1_700_000_000, 0)
	q.now = func() time.Time { return now }
	job := &recordJob{fail: errors.New("venue down")}
	q.RegisterJob(job)

	raw, _ := json.Marshal(Message{ID: "m1", Type: "session_command", Payload: json.RawMessage(`{}`)})
	q.process(mustDecode(t, raw))
	assert.Equal(t, 1, c.zlen("t:retry"))

	// not due yet
	assert.Equal(t, 0, q.moveDueRetries(context.Background()))
	now = now.Add(2 * time.Second)
	assert.Equal(t, 1, q.moveDueRetries(context.Background()))
	assert.Equal(t, 0, c.zlen("t:retry"))
	require.Equal(t, 1, c.len("t:messages"))

	q.ctx = context.Background()
	q.processNext()
	assert.Equal(t, 1, c.len("t:dlq"))

	var dead Message
	require.NoError(t, json.Unmarshal([]byte(c.lists["t:dlq"][0]), &dead))
	assert.Equal(t, 2, dead.Attempts)
	assert.Equal(t, "venue down", dead.LastError)
}

func TestUnknownTypeDeadLettered(t *testing.T) {
	c := newMemClient()
	q := NewRedisQueue(nil, testConfig(), c)
	q.process(Message{ID: "x", Type: "mystery"})
	assert.Equal(t, 1, c.len(q.deadLetterKey()))
}

func TestStartTwiceFails(t *testing.T) {
	q := NewRedisQueue(nil, testConfig(), newMemClient())
	require.NoError(t, q.Start())
	assert.Error(t, q.Start())
	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()))
}

func mustDecode(t *testing.T, b []byte) Message {
	t.Helper()
	var m Message
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}
