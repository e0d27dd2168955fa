package planning

import (
	"sync"

	"github.com/viam-labs/strataplan/model"
)

// ConstrainedSampler is a state sampler that draws through a constraint sampler,
// falling back to the space's default sampler when constrained draws fail.
type ConstrainedSampler struct {
	pc       *PlanningContext
	cs       ConstraintSampler
	fallback StateSampler
	mu       sync.Mutex
	work     *model.RobotState
	seed     *model.RobotState
}

func newConstrainedSampler(pc *PlanningContext, space StateSpace, cs ConstraintSampler) *ConstrainedSampler {
	m := space.Model()
	return &ConstrainedSampler{
		pc:       pc,
		cs:       cs,
		fallback: space.DefaultSampler(),
		work:     model.NewRobotState(m),
		seed:     model.NewRobotState(m),
	}
}

// SampleUniform draws a constrained sample seeded by a uniform draw, falling
// back to the uniform draw itself when the constraint sampler fails.
func (s *ConstrainedSampler) SampleUniform(out *State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback.SampleUniform(out)
	if err := s.pc.spec.StateSpace.CopyToRobotState(s.seed, out); err != nil {
		return
	}
	if s.cs.Sample(s.work, s.seed, s.pc.maxStateSamplingAttempts) {
		if err := s.pc.spec.StateSpace.CopyFromRobotState(out, s.work); err == nil {
			return
		}
	}
	// keep the uniform draw
}

// validConstrainedSampler adapts a constraint sampler and its constraint set to
// the Follower's space-state sampling surface.
type validConstrainedSampler struct {
	pc          *PlanningContext
	constraints *KinematicConstraintSet
	cs          ConstraintSampler
	mu          sync.Mutex
	work        *model.RobotState
	seed        *model.RobotState
}

// NewValidConstrainedSampler builds a Follower stratum sampler from a constraint
// set and the constraint sampler selected for it.
func NewValidConstrainedSampler(pc *PlanningContext, constraints *KinematicConstraintSet, cs ConstraintSampler) ValidConstrainedSampler {
	m := pc.spec.StateSpace.Model()
	seed := model.NewRobotState(m)
	if initial := pc.CompleteInitialState(); initial != nil {
		seed = initial.Clone()
	}
	return &validConstrainedSampler{
		pc:          pc,
		constraints: constraints,
		cs:          cs,
		work:        model.NewRobotState(m),
		seed:        seed,
	}
}

func (s *validConstrainedSampler) Sample(out *State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cs.Sample(s.work, s.seed, s.pc.maxStateSamplingAttempts) {
		return false
	}
	if !s.constraints.Satisfied(s.work) {
		return false
	}
	return s.pc.spec.StateSpace.CopyFromRobotState(out, s.work) == nil
}

func (s *validConstrainedSampler) Project(state *State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pc.spec.StateSpace.CopyToRobotState(s.work, state); err != nil {
		return false
	}
	if !s.cs.Project(s.work, s.pc.maxStateSamplingAttempts) {
		return false
	}
	if !s.constraints.Satisfied(s.work) {
		return false
	}
	return s.pc.spec.StateSpace.CopyFromRobotState(state, s.work) == nil
}
