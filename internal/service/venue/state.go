package venue

import (
	"fmt"
	"sync"

	"BinPull/internal/domain/models"
)

// legal lists the allowed link transitions. DISCONNECTED is left only through
// an explicit Connect.
var legal = map[models.ConnectionPhase][]models.ConnectionPhase{
	models.ConnDisconnected: {models.ConnConnecting},
	models.ConnConnecting:   {models.ConnConnected, models.ConnReconnecting, models.ConnDisconnected},
	models.ConnConnected:    {models.ConnReconnecting, models.ConnDisconnected},
	models.ConnReconnecting: {models.ConnConnecting, models.ConnDisconnected},
}

// stateCell guards the link phase. There is no raw setter.
type stateCell struct {
	mu    sync.Mutex
	phase models.ConnectionPhase
}

func newStateCell() *stateCell {
	return &stateCell{phase: models.ConnDisconnected}
}

func (s *stateCell) get() models.ConnectionPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// transition moves to `to` if the current phase is one of `from` (any phase
// when from is empty) and the edge is legal. It returns the previous phase.
func (s *stateCell) transition(to models.ConnectionPhase, from ...models.ConnectionPhase) (models.ConnectionPhase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.phase
	if len(from) > 0 && !contains(from, cur) {
		return cur, fmt.Errorf("venue: transition to %s from %s, want one of %v", to, cur, from)
	}
	if !contains(legal[cur], to) {
		return cur, fmt.Errorf("venue: illegal transition %s -> %s", cur, to)
	}
	s.phase = to
	return cur, nil
}

func contains(xs []models.ConnectionPhase, p models.ConnectionPhase) bool {
	for _, x := range xs {
		if x == p {
			return true
		}
	}
	return false
}
