package planning

import (
	"math"
	"sync"

	"github.com/edaniels/golog"
	"go.uber.org/atomic"
)

// StateValidityChecker decides whether a single state is admissible.
type StateValidityChecker interface {
	Valid(s *State) bool
}

// MotionValidator checks straight-line motions between states and counts outcomes.
type MotionValidator struct {
	si         *SpaceInformation
	resolution float64
	valid      atomic.Int64
	invalid    atomic.Int64
}

// CheckMotion subdivides the motion at the validator's resolution and checks
// every intermediate state, endpoints included.
func (mv *MotionValidator) CheckMotion(a, b *State) bool {
	steps := int(math.Ceil(mv.si.space.Distance(a, b) / mv.resolution))
	if steps < 1 {
		steps = 1
	}
	interp := mv.si.AllocState()
	defer mv.si.FreeState(interp)
	for i := 0; i <= steps; i++ {
		mv.si.space.Interpolate(a, b, float64(i)/float64(steps), interp)
		if !mv.si.IsValid(interp) {
			mv.invalid.Inc()
			return false
		}
	}
	mv.valid.Inc()
	return true
}

// ResetMotionCounter zeroes the valid/invalid motion counters.
func (mv *MotionValidator) ResetMotionCounter() {
	mv.valid.Store(0)
	mv.invalid.Store(0)
}

// ValidMotionCount returns the number of motions found valid since the last reset.
func (mv *MotionValidator) ValidMotionCount() int64 {
	return mv.valid.Load()
}

// InvalidMotionCount returns the number of motions found invalid since the last reset.
func (mv *MotionValidator) InvalidMotionCount() int64 {
	return mv.invalid.Load()
}

// SpaceInformation bundles a state space with its validity checker, motion
// validator, and planner parameter set. All state allocation flows through it.
type SpaceInformation struct {
	mu        sync.RWMutex
	space     StateSpace
	checker   StateValidityChecker
	mv        *MotionValidator
	params    map[string]string
	setupDone bool
	allocated atomic.Int64
	logger    golog.Logger
}

// NewSpaceInformation creates a SpaceInformation over a state space.
func NewSpaceInformation(space StateSpace, logger golog.Logger) *SpaceInformation {
	si := &SpaceInformation{
		space:  space,
		params: map[string]string{},
		logger: logger,
	}
	si.mv = &MotionValidator{si: si, resolution: defaultMotionResolution}
	return si
}

// Setup finalizes derived quantities. Idempotent; safe to call again after
// parameters change.
func (si *SpaceInformation) Setup() {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.setupDone = true
}

// IsSetup reports whether Setup has run.
func (si *SpaceInformation) IsSetup() bool {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return si.setupDone
}

// StateSpace returns the underlying space.
func (si *SpaceInformation) StateSpace() StateSpace {
	return si.space
}

// SetStateValidityChecker installs the validity checker. A nil checker clears it.
func (si *SpaceInformation) SetStateValidityChecker(checker StateValidityChecker) {
	si.mu.Lock()
	defer si.mu.Unlock()
	si.checker = checker
}

// IsValid reports whether the state is within bounds and passes the checker.
func (si *SpaceInformation) IsValid(s *State) bool {
	if !si.space.SatisfiesBounds(s) {
		return false
	}
	si.mu.RLock()
	checker := si.checker
	si.mu.RUnlock()
	if checker == nil {
		return true
	}
	return checker.Valid(s)
}

// CheckMotion checks the straight-line motion between two states.
func (si *SpaceInformation) CheckMotion(a, b *State) bool {
	return si.mv.CheckMotion(a, b)
}

// MotionValidator returns the motion validator.
func (si *SpaceInformation) MotionValidator() *MotionValidator {
	return si.mv
}

// SetParams stores planner parameters. Unknown keys are kept; planners read the
// ones they recognize.
func (si *SpaceInformation) SetParams(params map[string]string) {
	si.mu.Lock()
	defer si.mu.Unlock()
	for k, v := range params {
		si.params[k] = v
	}
}

// Param returns the value of a stored parameter.
func (si *SpaceInformation) Param(key string) (string, bool) {
	si.mu.RLock()
	defer si.mu.RUnlock()
	v, ok := si.params[key]
	return v, ok
}

// AllocState allocates a zeroed state and records the allocation.
func (si *SpaceInformation) AllocState() *State {
	si.allocated.Inc()
	return si.space.newState()
}

// CloneState allocates a copy of the given state.
func (si *SpaceInformation) CloneState(s *State) *State {
	out := si.AllocState()
	si.space.CopyState(out, s)
	return out
}

// CopyState overwrites dst with src.
func (si *SpaceInformation) CopyState(dst, src *State) {
	si.space.CopyState(dst, src)
}

// FreeState releases a state allocated through this SpaceInformation.
func (si *SpaceInformation) FreeState(s *State) {
	if s == nil {
		return
	}
	si.allocated.Dec()
}

// FreeStates releases a batch of states.
func (si *SpaceInformation) FreeStates(states []*State) {
	for _, s := range states {
		si.FreeState(s)
	}
}

// AllocatedStates returns the number of states currently outstanding.
func (si *SpaceInformation) AllocatedStates() int64 {
	return si.allocated.Load()
}

// AllocSampler returns a state sampler via the space's installed allocator.
func (si *SpaceInformation) AllocSampler() StateSampler {
	return si.space.AllocSampler()
}
