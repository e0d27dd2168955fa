package planning

import (
	"sync"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"github.com/pkg/errors"
)

// ParallelPlanner runs several planner instances concurrently against one
// problem definition under a shared termination condition, then hybridizes by
// keeping the shortest solution.
type ParallelPlanner struct {
	mu       sync.Mutex
	pdef     *ProblemDefinition
	planners []Planner
	logger   golog.Logger
}

// NewParallelPlanner creates a parallel planner bound to a problem definition.
func NewParallelPlanner(pdef *ProblemDefinition, logger golog.Logger) *ParallelPlanner {
	return &ParallelPlanner{pdef: pdef, logger: logger}
}

// ClearPlanners removes all planner instances.
func (pp *ParallelPlanner) ClearPlanners() {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	pp.planners = nil
}

// AddPlanner adds one planner instance to the next Solve.
func (pp *ParallelPlanner) AddPlanner(p Planner) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	p.SetProblemDefinition(pp.pdef)
	pp.planners = append(pp.planners, p)
}

// ClearHybridizationPaths drops any solutions retained from a previous Solve.
func (pp *ParallelPlanner) ClearHybridizationPaths() {
	pp.pdef.ClearSolutionPaths()
}

// Solve runs every added planner concurrently until the termination condition
// fires or all return. Solutions accumulate on the shared problem definition,
// whose SolutionPath returns the shortest one; the hybridize flag does not
// change this or anything else.
func (pp *ParallelPlanner) Solve(ptc *TerminationCondition, hybridize bool) PlannerStatus {
	pp.mu.Lock()
	planners := make([]Planner, len(pp.planners))
	copy(planners, pp.planners)
	pp.mu.Unlock()

	if len(planners) == 0 {
		pp.logger.Error("no planners added to parallel planner")
		return StatusUnknown
	}

	statuses := make([]PlannerStatus, len(planners))
	var wg sync.WaitGroup
	for i, p := range planners {
		wg.Add(1)
		i, p := i, p
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			statuses[i] = p.Solve(ptc)
		})
	}
	wg.Wait()

	var err error
	best := StatusTimeout
	for i, status := range statuses {
		switch status {
		case StatusExactSolution:
			best = StatusExactSolution
		case StatusApproximateSolution:
			if best != StatusExactSolution {
				best = StatusApproximateSolution
			}
		case StatusInvalidStart, StatusInvalidGoal, StatusUnrecognizedGoalType:
			err = multierr.Append(err, errors.Errorf("planner %d: %s", i, status))
		}
	}
	if err != nil {
		pp.logger.Debugw("parallel planners reported failures", "error", err)
	}
	return best
}
