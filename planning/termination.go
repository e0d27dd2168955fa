package planning

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
)

// TerminationCondition is a cancellable signal polled by planners between
// iterations. It may be manual, timed, or both.
type TerminationCondition struct {
	terminated atomic.Bool
	clk        clock.Clock
	deadline   time.Time
	timed      bool
}

// NewTerminationCondition creates a manual condition that fires only on Terminate.
func NewTerminationCondition() *TerminationCondition {
	return &TerminationCondition{}
}

// TimedTerminationCondition creates a condition that fires once the duration
// elapses, or earlier on Terminate. Non-positive durations fire immediately.
func TimedTerminationCondition(d time.Duration, clk clock.Clock) *TerminationCondition {
	return &TerminationCondition{clk: clk, deadline: clk.Now().Add(d), timed: true}
}

// Fired reports whether the condition has triggered.
func (tc *TerminationCondition) Fired() bool {
	if tc.terminated.Load() {
		return true
	}
	if tc.timed && !tc.clk.Now().Before(tc.deadline) {
		return true
	}
	return false
}

// Terminate trips the condition. Safe to call from any goroutine, repeatedly.
func (tc *TerminationCondition) Terminate() {
	tc.terminated.Store(true)
}
