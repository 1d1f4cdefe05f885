package export

import (
	"fmt"
	"sync"

	"github.com/bft-labs/pixport/internal/domain"
	"github.com/bft-labs/pixport/pkg/log"
)

// Phase is the state of one export run.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseHeadersPlaced
	PhaseRegionsProcessed
	PhaseHeadersPatched
	PhaseClosed
	PhaseFailed
)

// String returns a human-readable representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "Init"
	case PhaseHeadersPlaced:
		return "HeadersPlaced"
	case PhaseRegionsProcessed:
		return "RegionsProcessed"
	case PhaseHeadersPatched:
		return "HeadersPatched"
	case PhaseClosed:
		return "Closed"
	case PhaseFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no transition leaves the phase.
func (p Phase) Terminal() bool {
	return p == PhaseClosed || p == PhaseFailed
}

// PhaseObserver is called when the phase changes.
type PhaseObserver interface {
	OnPhaseChange(previous, current Phase, reason string)
}

// PhaseMachine validates and records the phase of an export run.
type PhaseMachine struct {
	mu       sync.RWMutex
	phase    Phase
	logger   log.Logger
	observer PhaseObserver
}

// NewPhaseMachine creates a machine in PhaseInit. observer may be nil.
func NewPhaseMachine(logger log.Logger, observer PhaseObserver) *PhaseMachine {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &PhaseMachine{phase: PhaseInit, logger: logger, observer: observer}
}

// Phase returns the current phase.
func (m *PhaseMachine) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// TransitionTo moves to next. Phases advance one step at a time; any
// non-terminal phase may fail.
func (m *PhaseMachine) TransitionTo(next Phase, reason string) error {
	m.mu.Lock()
	prev := m.phase
	valid := !prev.Terminal() && (next == PhaseFailed || next == prev+1)
	if !valid {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, prev, next)
	}
	m.phase = next
	m.mu.Unlock()

	if m.observer != nil {
		m.observer.OnPhaseChange(prev, next, reason)
	}

	fields := []log.Field{
		log.String("from", prev.String()),
		log.String("to", next.String()),
		log.String("reason", reason),
	}
	if next == PhaseFailed {
		m.logger.Error("export phase transition", fields...)
	} else {
		m.logger.Info("export phase transition", fields...)
	}
	return nil
}
