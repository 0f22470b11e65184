package venue

import (
	"encoding/json"
	"sync"
	"time"

	"BinPull/internal/domain/errs"
)

type result struct {
	msg json.RawMessage
	err error
}

type pendingEntry struct {
	deadline time.Time
	ch       chan result
}

// pendingTable correlates outstanding requests with their responses by req_id.
type pendingTable struct {
	mu      sync.Mutex
	entries map[int64]*pendingEntry
}

func newPendingTable() *pendingTable {
	return &pendingTable{entries: make(map[int64]*pendingEntry)}
}

func (p *pendingTable) add(id int64, deadline time.Time) <-chan result {
	ch := make(chan result, 1)
	p.mu.Lock()
	p.entries[id] = &pendingEntry{deadline: deadline, ch: ch}
	p.mu.Unlock()
	return ch
}

func (p *pendingTable) take(id int64) (*pendingEntry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if ok {
		delete(p.entries, id)
	}
	return e, ok
}

// resolve delivers a response. Unknown ids are ignored and reported false.
func (p *pendingTable) resolve(id int64, msg json.RawMessage, err error) bool {
	e, ok := p.take(id)
	if !ok {
		return false
	}
	e.ch <- result{msg: msg, err: err}
	return true
}

func (p *pendingTable) remove(id int64) { p.take(id) }

// purgeExpired resolves every entry past its deadline with a RequestTimeout.
func (p *pendingTable) purgeExpired(now time.Time) int {
	p.mu.Lock()
	var expired []*pendingEntry
	for id, e := range p.entries {
		if now.After(e.deadline) {
			expired = append(expired, e)
			delete(p.entries, id)
		}
	}
	p.mu.Unlock()
	for _, e := range expired {
		e.ch <- result{err: errs.New(errs.ErrRequestTimeout, "venue.request", nil)}
	}
	return len(expired)
}

// failAll resolves every entry with err.
func (p *pendingTable) failAll(err error) int {
	p.mu.Lock()
	all := p.entries
	p.entries = make(map[int64]*pendingEntry)
	p.mu.Unlock()
	for _, e := range all {
		e.ch <- result{err: err}
	}
	return len(all)
}

func (p *pendingTable) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
