package queue

import (
	"encoding/json"
	"time"
)

// Config contains the configuration for the queue.
type Config struct {
	Workers       int           // number of workers
	RetryLimit    int           // retries before a message is dead-lettered
	RetryDelay    time.Duration // delay before a failed message is retried
	PollTimeout   time.Duration // BRPOP block time
	RetryEvery    time.Duration // how often due retries are moved back
	HandleTimeout time.Duration // per-message handler deadline
}

func (c *Config) withDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 10 * time.Second
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = time.Second
	}
	if c.RetryEvery <= 0 {
		c.RetryEvery = 5 * time.Second
	}
	if c.HandleTimeout <= 0 {
		c.HandleTimeout = 45 * time.Second
	}
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
	LastError string          `json:"last_error,omitempty"`
}
