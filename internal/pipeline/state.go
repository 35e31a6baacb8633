package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/evidentlabs/beacon/internal/logger"
	"github.com/evidentlabs/beacon/internal/model"
)

// State names a pipeline stage. Runs move strictly forward; StateFailed is
// terminal and reachable from any non-terminal state.
type State string

const (
	StateRetrieving State = "RETRIEVING"
	StateExtracting State = "EXTRACTING"
	StateVerifying  State = "VERIFYING"
	StateComposing  State = "COMPOSING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
)

// validTransition reports whether the machine may move from one state to
// another.
func validTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateDone && from != StateFailed
	}
	switch from {
	case StateRetrieving:
		return to == StateExtracting
	case StateExtracting:
		return to == StateVerifying
	case StateVerifying:
		return to == StateComposing
	case StateComposing:
		return to == StateDone
	default:
		return false
	}
}

// fsm tracks the run's stage and records how long each stage took as the
// machine moves past it.
type fsm struct {
	state   State
	entered time.Time
	stats   *model.RunStats
}

func newFSM(stats *model.RunStats) *fsm {
	return &fsm{state: StateRetrieving, entered: time.Now(), stats: stats}
}

// to advances the machine, logging the transition and recording the time
// spent in the state being left.
func (m *fsm) to(next State) error {
	if !validTransition(m.state, next) {
		return fmt.Errorf("pipeline: illegal transition %s -> %s", m.state, next)
	}
	elapsed := time.Since(m.entered).Milliseconds()
	m.stats.StageMillis[strings.ToLower(string(m.state))] = elapsed
	logger.Info("pipeline: %s -> %s (%d ms)", m.state, next, elapsed)
	m.state = next
	m.entered = time.Now()
	return nil
}

// fail moves to the terminal failed state. Legal from every state the run
// can actually be in when an error surfaces.
func (m *fsm) fail() {
	if m.state == StateDone || m.state == StateFailed {
		return
	}
	_ = m.to(StateFailed)
}
