package planning

import (
	"math/rand"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/utils"

	"github.com/viam-labs/strataplan/model"
)

// GoalType tags the capabilities of a goal region.
type GoalType int

// Goal capability flags, combinable as a bitmask.
const (
	GoalRegionType GoalType = 1 << iota
	GoalSampleableRegionType
	GoalLazySamplesType
)

// Goal is a region of the configuration space a plan must end in.
type Goal interface {
	HasType(t GoalType) bool
	IsSatisfied(s *State) bool
}

// GoalSampleable is a goal region that can produce candidate states on demand.
type GoalSampleable interface {
	Goal
	// SampleGoal writes a candidate goal state and reports success.
	SampleGoal(out *State) bool
	// MaxSampleCount bounds how many samples this region can produce.
	MaxSampleCount() int
	// CouldSample reports whether a sample request might succeed.
	CouldSample() bool
}

// ConstrainedGoalSampler samples goal states from a constraint sampler, checking
// them against the merged goal constraint set.
type ConstrainedGoalSampler struct {
	pc          *PlanningContext
	constraints *KinematicConstraintSet
	sampler     ConstraintSampler
	mu          sync.Mutex
	work        *model.RobotState
	seed        *model.RobotState
}

func newConstrainedGoalSampler(pc *PlanningContext, constraints *KinematicConstraintSet, sampler ConstraintSampler) *ConstrainedGoalSampler {
	m := pc.spec.StateSpace.Model()
	seed := model.NewRobotState(m)
	if initial := pc.CompleteInitialState(); initial != nil {
		seed = initial.Clone()
	}
	return &ConstrainedGoalSampler{
		pc:          pc,
		constraints: constraints,
		sampler:     sampler,
		work:        model.NewRobotState(m),
		seed:        seed,
	}
}

// HasType reports the sampleable-region capability.
func (g *ConstrainedGoalSampler) HasType(t GoalType) bool {
	return t&(GoalRegionType|GoalSampleableRegionType) == t
}

// IsSatisfied reports whether the state meets the goal constraint set.
func (g *ConstrainedGoalSampler) IsSatisfied(s *State) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.pc.spec.StateSpace.CopyToRobotState(g.work, s); err != nil {
		return false
	}
	return g.constraints.Satisfied(g.work)
}

// SampleGoal draws one candidate goal state.
func (g *ConstrainedGoalSampler) SampleGoal(out *State) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for attempt := 0; attempt < g.pc.maxGoalSamplingAttempts; attempt++ {
		if !g.sampler.Sample(g.work, g.seed, g.pc.maxStateSamplingAttempts) {
			continue
		}
		if !g.constraints.Satisfied(g.work) {
			continue
		}
		if err := g.pc.spec.StateSpace.CopyFromRobotState(out, g.work); err != nil {
			return false
		}
		return true
	}
	return false
}

// MaxSampleCount bounds how many goal samples the context will consume.
func (g *ConstrainedGoalSampler) MaxSampleCount() int {
	return g.pc.maxGoalSamples
}

// CouldSample reports whether a sample request might succeed.
func (g *ConstrainedGoalSampler) CouldSample() bool {
	return g.MaxSampleCount() > 0
}

// goalSampleableMux multiplexes several sampleable goals into one. Each sample
// request delegates to one child chosen uniformly at random.
type goalSampleableMux struct {
	goals    []GoalSampleable
	mu       sync.Mutex
	randseed *rand.Rand
}

func newGoalSampleableMux(goals []GoalSampleable, randseed *rand.Rand) *goalSampleableMux {
	return &goalSampleableMux{goals: goals, randseed: randseed}
}

func (g *goalSampleableMux) HasType(t GoalType) bool {
	return t&(GoalRegionType|GoalSampleableRegionType) == t
}

func (g *goalSampleableMux) IsSatisfied(s *State) bool {
	for _, child := range g.goals {
		if child.IsSatisfied(s) {
			return true
		}
	}
	return false
}

func (g *goalSampleableMux) SampleGoal(out *State) bool {
	g.mu.Lock()
	child := g.goals[g.randseed.Intn(len(g.goals))]
	g.mu.Unlock()
	return child.SampleGoal(out)
}

func (g *goalSampleableMux) MaxSampleCount() int {
	count := 0
	for _, child := range g.goals {
		count += child.MaxSampleCount()
	}
	return count
}

func (g *goalSampleableMux) CouldSample() bool {
	for _, child := range g.goals {
		if child.CouldSample() {
			return true
		}
	}
	return false
}

// GoalLazySamples wraps a sampleable goal with a background goroutine that keeps
// drawing goal states into a shared store while planners consume them.
type GoalLazySamples struct {
	si       *SpaceInformation
	inner    GoalSampleable
	logger   golog.Logger
	mu       sync.Mutex
	states   []*State
	served   int
	sampling bool
	stop     chan struct{}
	done     chan struct{}
}

// NewGoalLazySamples creates a lazy-sampling wrapper around a sampleable goal.
func NewGoalLazySamples(si *SpaceInformation, inner GoalSampleable, logger golog.Logger) *GoalLazySamples {
	return &GoalLazySamples{si: si, inner: inner, logger: logger}
}

// HasType reports the lazy-samples and sampleable-region capabilities.
func (g *GoalLazySamples) HasType(t GoalType) bool {
	return t&(GoalRegionType|GoalSampleableRegionType|GoalLazySamplesType) == t
}

// IsSatisfied delegates to the wrapped goal.
func (g *GoalLazySamples) IsSatisfied(s *State) bool {
	return g.inner.IsSatisfied(s)
}

// StartSampling launches the background sampling goroutine. No-op if running.
func (g *GoalLazySamples) StartSampling() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sampling {
		return
	}
	g.sampling = true
	g.stop = make(chan struct{})
	g.done = make(chan struct{})
	stop, done := g.stop, g.done
	utils.PanicCapturingGo(func() {
		defer close(done)
		scratch := g.si.AllocState()
		defer g.si.FreeState(scratch)
		for {
			select {
			case <-stop:
				return
			default:
			}
			g.mu.Lock()
			stored, served := len(g.states), g.served
			g.mu.Unlock()
			if stored-served >= lazyGoalBacklog || stored >= g.inner.MaxSampleCount() {
				select {
				case <-stop:
					return
				case <-time.After(lazyGoalPollInterval):
				}
				continue
			}
			if g.inner.SampleGoal(scratch) {
				g.mu.Lock()
				g.states = append(g.states, g.si.CloneState(scratch))
				g.mu.Unlock()
			}
		}
	})
}

// StopSampling stops the background goroutine and waits for it to exit. No-op
// if not running.
func (g *GoalLazySamples) StopSampling() {
	g.mu.Lock()
	if !g.sampling {
		g.mu.Unlock()
		return
	}
	g.sampling = false
	stop, done := g.stop, g.done
	g.mu.Unlock()
	close(stop)
	<-done
}

// SampleGoal serves the next stored goal state, falling back to a direct draw
// once every stored state has been served.
func (g *GoalLazySamples) SampleGoal(out *State) bool {
	g.mu.Lock()
	if g.served < len(g.states) {
		g.si.CopyState(out, g.states[g.served])
		g.served++
		g.mu.Unlock()
		return true
	}
	g.mu.Unlock()
	return g.inner.SampleGoal(out)
}

// MaxSampleCount delegates to the wrapped goal.
func (g *GoalLazySamples) MaxSampleCount() int {
	return g.inner.MaxSampleCount()
}

// CouldSample delegates to the wrapped goal.
func (g *GoalLazySamples) CouldSample() bool {
	return g.inner.CouldSample()
}

// Clear stops sampling and frees all stored states.
func (g *GoalLazySamples) Clear() {
	g.StopSampling()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.si.FreeStates(g.states)
	g.states = nil
	g.served = 0
}
