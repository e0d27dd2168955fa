package planning

import (
	"math"
	"math/rand"
	"sync"
)

// PlannerStatus is the outcome of one planner invocation.
type PlannerStatus int

// The possible planner outcomes.
const (
	StatusUnknown PlannerStatus = iota
	StatusInvalidStart
	StatusInvalidGoal
	StatusUnrecognizedGoalType
	StatusTimeout
	StatusApproximateSolution
	StatusExactSolution
)

func (s PlannerStatus) String() string {
	switch s {
	case StatusInvalidStart:
		return "invalid start"
	case StatusInvalidGoal:
		return "invalid goal"
	case StatusUnrecognizedGoalType:
		return "unrecognized goal type"
	case StatusTimeout:
		return "timeout"
	case StatusApproximateSolution:
		return "approximate solution"
	case StatusExactSolution:
		return "exact solution"
	default:
		return "unknown"
	}
}

// Solved reports whether the status carries a usable path.
func (s PlannerStatus) Solved() bool {
	return s == StatusExactSolution || s == StatusApproximateSolution
}

// PathGeometric is an ordered list of states through a space. The path owns its
// states and frees them when cleared.
type PathGeometric struct {
	si     *SpaceInformation
	states []*State
}

// NewPathGeometric creates an empty path.
func NewPathGeometric(si *SpaceInformation) *PathGeometric {
	return &PathGeometric{si: si}
}

// Append clones the state onto the end of the path.
func (p *PathGeometric) Append(s *State) {
	p.states = append(p.states, p.si.CloneState(s))
}

// Reverse flips the path in place.
func (p *PathGeometric) Reverse() {
	for i, j := 0, len(p.states)-1; i < j; i, j = i+1, j-1 {
		p.states[i], p.states[j] = p.states[j], p.states[i]
	}
}

// Length returns the sum of distances between consecutive states.
func (p *PathGeometric) Length() float64 {
	length := 0.
	for i := 1; i < len(p.states); i++ {
		length += p.si.space.Distance(p.states[i-1], p.states[i])
	}
	return length
}

// StateCount returns the number of states on the path.
func (p *PathGeometric) StateCount() int {
	return len(p.states)
}

// State returns the i-th state. The path retains ownership.
func (p *PathGeometric) State(i int) *State {
	return p.states[i]
}

// Interpolate resamples the path to exactly count states, evenly spaced in
// arclength. Counts at or below the current state count leave the path unchanged.
func (p *PathGeometric) Interpolate(count int) {
	if len(p.states) < 2 || count <= len(p.states) {
		return
	}
	length := p.Length()
	if length <= 0 {
		return
	}

	segLens := make([]float64, len(p.states)-1)
	for i := 1; i < len(p.states); i++ {
		segLens[i-1] = p.si.space.Distance(p.states[i-1], p.states[i])
	}

	newStates := make([]*State, 0, count)
	newStates = append(newStates, p.si.CloneState(p.states[0]))
	seg, segStart := 0, 0.
	for i := 1; i < count-1; i++ {
		target := length * float64(i) / float64(count-1)
		for seg < len(segLens)-1 && segStart+segLens[seg] < target {
			segStart += segLens[seg]
			seg++
		}
		by := 0.
		if segLens[seg] > 0 {
			by = (target - segStart) / segLens[seg]
		}
		s := p.si.AllocState()
		p.si.space.Interpolate(p.states[seg], p.states[seg+1], by, s)
		newStates = append(newStates, s)
	}
	newStates = append(newStates, p.si.CloneState(p.states[len(p.states)-1]))

	p.si.FreeStates(p.states)
	p.states = newStates
}

// Clear frees all states on the path.
func (p *PathGeometric) Clear() {
	p.si.FreeStates(p.states)
	p.states = nil
}

// ProblemDefinition holds the start states, goal, and solutions of one problem.
type ProblemDefinition struct {
	mu          sync.Mutex
	si          *SpaceInformation
	startStates []*State
	goal        Goal
	solutions   []*PathGeometric
	approximate bool
}

// NewProblemDefinition creates an empty problem over the given space.
func NewProblemDefinition(si *SpaceInformation) *ProblemDefinition {
	return &ProblemDefinition{si: si}
}

// SetStartState replaces all start states with a clone of the given one.
func (pdef *ProblemDefinition) SetStartState(s *State) {
	pdef.mu.Lock()
	defer pdef.mu.Unlock()
	pdef.si.FreeStates(pdef.startStates)
	pdef.startStates = []*State{pdef.si.CloneState(s)}
}

// AddStartState appends a clone of the given state.
func (pdef *ProblemDefinition) AddStartState(s *State) {
	pdef.mu.Lock()
	defer pdef.mu.Unlock()
	pdef.startStates = append(pdef.startStates, pdef.si.CloneState(s))
}

// ClearStartStates frees and removes all start states.
func (pdef *ProblemDefinition) ClearStartStates() {
	pdef.mu.Lock()
	defer pdef.mu.Unlock()
	pdef.si.FreeStates(pdef.startStates)
	pdef.startStates = nil
}

// StartStateCount returns the number of start states.
func (pdef *ProblemDefinition) StartStateCount() int {
	pdef.mu.Lock()
	defer pdef.mu.Unlock()
	return len(pdef.startStates)
}

// StartState returns the i-th start state. The problem retains ownership.
func (pdef *ProblemDefinition) StartState(i int) *State {
	pdef.mu.Lock()
	defer pdef.mu.Unlock()
	return pdef.startStates[i]
}

// SetGoal installs the goal. A nil goal clears it.
func (pdef *ProblemDefinition) SetGoal(goal Goal) {
	pdef.mu.Lock()
	defer pdef.mu.Unlock()
	pdef.goal = goal
}

// Goal returns the installed goal, or nil.
func (pdef *ProblemDefinition) Goal() Goal {
	pdef.mu.Lock()
	defer pdef.mu.Unlock()
	return pdef.goal
}

// AddSolutionPath records a solution. The problem takes ownership of the path.
func (pdef *ProblemDefinition) AddSolutionPath(path *PathGeometric, approximate bool) {
	pdef.mu.Lock()
	defer pdef.mu.Unlock()
	pdef.solutions = append(pdef.solutions, path)
	if approximate {
		pdef.approximate = true
	}
}

// ClearSolutionPaths frees all recorded solutions.
func (pdef *ProblemDefinition) ClearSolutionPaths() {
	pdef.mu.Lock()
	defer pdef.mu.Unlock()
	for _, p := range pdef.solutions {
		p.Clear()
	}
	pdef.solutions = nil
	pdef.approximate = false
}

// HasSolution reports whether at least one solution path is recorded.
func (pdef *ProblemDefinition) HasSolution() bool {
	pdef.mu.Lock()
	defer pdef.mu.Unlock()
	return len(pdef.solutions) > 0
}

// HasApproximateSolution reports whether any recorded solution is approximate.
func (pdef *ProblemDefinition) HasApproximateSolution() bool {
	pdef.mu.Lock()
	defer pdef.mu.Unlock()
	return pdef.approximate
}

// SolutionPath returns the shortest recorded solution, or nil.
func (pdef *ProblemDefinition) SolutionPath() *PathGeometric {
	pdef.mu.Lock()
	defer pdef.mu.Unlock()
	var best *PathGeometric
	bestLen := math.Inf(1)
	for _, p := range pdef.solutions {
		if l := p.Length(); l < bestLen {
			best, bestLen = p, l
		}
	}
	return best
}

// SolutionCount returns the number of recorded solutions.
func (pdef *ProblemDefinition) SolutionCount() int {
	pdef.mu.Lock()
	defer pdef.mu.Unlock()
	return len(pdef.solutions)
}

// plannerInputStates streams valid start states and sampled goal states out of a
// problem definition, the way planners consume them.
type plannerInputStates struct {
	pdef       *ProblemDefinition
	si         *SpaceInformation
	nextStart  int
	goalsDrawn int
	scratch    *State
	randseed   *rand.Rand
	attempts   int
}

func newPlannerInputStates(pdef *ProblemDefinition, goalAttempts int, randseed *rand.Rand) *plannerInputStates {
	return &plannerInputStates{
		pdef:     pdef,
		si:       pdef.si,
		attempts: goalAttempts,
		randseed: randseed,
	}
}

// nextStartState returns the next valid start state, or nil when exhausted. The
// returned state is borrowed from the problem definition.
func (pis *plannerInputStates) nextStartState() *State {
	for pis.nextStart < pis.pdef.StartStateCount() {
		s := pis.pdef.StartState(pis.nextStart)
		pis.nextStart++
		if pis.si.IsValid(s) {
			return s
		}
	}
	return nil
}

// nextGoalState samples one more valid goal state, or returns nil when the goal
// is exhausted or no valid sample is found within the attempt bound. The
// returned state is owned by the stream and only valid until the next call.
func (pis *plannerInputStates) nextGoalState(ptc *TerminationCondition) *State {
	goal, ok := pis.pdef.Goal().(GoalSampleable)
	if !ok {
		return nil
	}
	if pis.scratch == nil {
		pis.scratch = pis.si.AllocState()
	}
	for attempt := 0; attempt < pis.attempts; attempt++ {
		if ptc != nil && ptc.Fired() {
			return nil
		}
		if pis.goalsDrawn >= goal.MaxSampleCount() || !goal.CouldSample() {
			return nil
		}
		if !goal.SampleGoal(pis.scratch) {
			continue
		}
		pis.goalsDrawn++
		if pis.si.IsValid(pis.scratch) {
			return pis.scratch
		}
	}
	return nil
}

// close releases the stream's scratch state.
func (pis *plannerInputStates) close() {
	if pis.scratch != nil {
		pis.si.FreeState(pis.scratch)
		pis.scratch = nil
	}
}
