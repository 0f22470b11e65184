package strategy

import (
	"sync"

	"BinPull/internal/domain/models"
)

// Selector holds the single active strategy of a session. Switch and Evaluate
// share one lock so an evaluation never straddles a switch.
type Selector struct {
	mu       sync.Mutex
	active   Strategy
	onSwitch func(models.Variant)
}

// NewSelector starts with the given variant.
func NewSelector(v models.Variant, onSwitch func(models.Variant)) (*Selector, error) {
	s, err := New(v)
	if err != nil {
		return nil, err
	}
	return &Selector{active: s, onSwitch: onSwitch}, nil
}

// Active returns the current variant.
func (s *Selector) Active() models.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.Variant()
}

// Switch replaces the active strategy. Switching to the active variant is a no-op.
func (s *Selector) Switch(v models.Variant) error {
	next, err := New(v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.active.Variant() == v {
		s.mu.Unlock()
		return nil
	}
	s.active = next
	s.mu.Unlock()

	if s.onSwitch != nil {
		s.onSwitch(v)
	}
	return nil
}

func (s *Selector) Evaluate(symbol string, st models.IndicatorState, recent []float64) models.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active.Evaluate(symbol, st, recent)
}
