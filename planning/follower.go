package planning

import (
	"math/rand"

	"github.com/edaniels/golog"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// follower threads a trajectory through an ordered sequence of constraint
// strata. It builds a layered graph of valid samples, grows it probabilistically
// under a termination condition, propagates start-reachability forward, and
// extracts a path once the goal layer is reached.
//
// Layers are indexed 0..n+1: layer 0 holds start states, layers 1..n hold
// samples from the n strata, and layer n+1 holds goal states.
type follower struct {
	si       *SpaceInformation
	pdef     *ProblemDefinition
	pis      *plannerInputStates
	logger   golog.Logger
	goalBias float64
	randseed *rand.Rand
	attempts int
}

func newFollower(si *SpaceInformation, logger golog.Logger, randseed *rand.Rand, goalAttempts int) *follower {
	return &follower{
		si:       si,
		logger:   logger,
		goalBias: followerGoalBias,
		randseed: randseed,
		attempts: goalAttempts,
	}
}

func (f *follower) setProblemDefinition(pdef *ProblemDefinition) {
	f.pdef = pdef
	f.pis = newPlannerInputStates(pdef, f.attempts, f.randseed)
}

func (f *follower) follow(samplers []ValidConstrainedSampler, ptc *TerminationCondition) PlannerStatus {
	if !f.si.IsSetup() {
		f.si.Setup()
	}

	goal := f.pdef.Goal()
	if goal == nil || !goal.HasType(GoalSampleableRegionType) {
		f.logger.Error("The goal region must be sampleable")
		return StatusUnrecognizedGoalType
	}

	layers := len(samplers) + 2
	sets := make([][]*State, layers)
	defer func() {
		for i := range sets {
			f.logger.Debugf("Computed %d samples for constraints %d", len(sets[i]), i)
			f.si.FreeStates(sets[i])
		}
	}()
	defer f.pis.close()

	// fill in start states
	for st := f.pis.nextStartState(); st != nil; st = f.pis.nextStartState() {
		sets[0] = append(sets[0], f.si.CloneState(st))
	}
	if len(sets[0]) == 0 {
		f.logger.Error("No valid start states found.")
		return StatusInvalidStart
	}

	workArea := f.si.AllocState()
	defer f.si.FreeState(workArea)

	// try to generate at least one sample from every sampler
	for i := 0; i < len(samplers) && !ptc.Fired(); i++ {
		for len(sets[i+1]) == 0 && !ptc.Fired() {
			if len(sets[i]) == 0 {
				if samplers[i].Sample(workArea) && f.si.IsValid(workArea) {
					sets[i+1] = append(sets[i+1], f.si.CloneState(workArea))
				}
			} else {
				f.si.CopyState(workArea, sets[i][len(sets[i])-1])
				if (samplers[i].Project(workArea) || samplers[i].Sample(workArea)) && f.si.IsValid(workArea) {
					sets[i+1] = append(sets[i+1], f.si.CloneState(workArea))
				}
			}
		}
	}

	if ptc.Fired() {
		return StatusTimeout
	}

	// add at least one goal state
	if st := f.pis.nextGoalState(ptc); st != nil {
		sets[layers-1] = append(sets[layers-1], f.si.CloneState(st))
	} else {
		f.logger.Error("Unable to sample any valid states for goal tree")
		return StatusInvalidGoal
	}

	// connections[k][i] lists indices in layer k+1 reachable from state (k,i)
	// by a valid local motion.
	connections := make([][][]int, layers-1)

	// check connections between first states (heuristic)
	firstSampleWorked := true
	for i := 0; i < len(connections); i++ {
		connections[i] = make([][]int, len(sets[i]))
		if f.si.CheckMotion(sets[i][0], sets[i+1][0]) {
			connections[i][0] = append(connections[i][0], 0)
		} else {
			firstSampleWorked = false
		}
	}

	if firstSampleWorked {
		f.logger.Debug("First samples were successfully connected for all sets of constraints. Solution can be reported.")
		f.computeSolution(sets, connections)
		f.logger.Info("Successfully computed follow plan")
		return StatusExactSolution
	}

	// weighted distribution over layers 1..n+1, favoring sparse layers
	weightOffset := 1.0 / float64(layers)
	weights := make([]float64, layers-1)
	for i := 1; i < layers; i++ {
		weights[i-1] = 1.0 / (weightOffset + float64(len(sets[i])))
	}
	pdfSets := sampleuv.NewWeighted(weights, nil)

	// add further connections from start states (if any)
	for i := 1; i < len(sets[0]); i++ {
		if f.si.CheckMotion(sets[0][i], sets[1][0]) {
			connections[0][i] = append(connections[0][i], 0)
		}
	}

	// remember which states are connected to the start
	isStart := make([][]int, layers)
	isStart[0] = make([]int, len(sets[0]))
	for i := range isStart[0] {
		isStart[0][i] = 1
	}
	for i := 1; i < layers; i++ {
		isStart[i] = make([]int, len(sets[i]))
	}

	// propagate start info
	for i := 0; i < len(sets[0]); i++ {
		propagateStartInfo(0, i, isStart, connections)
	}

	goalIndex := layers - 1
	solved := goalReached(isStart[goalIndex])
	addingGoals := true

	for !ptc.Fired() && !solved {
		added := false
		drawn, ok := pdfSets.Take()
		if !ok {
			break
		}
		pdfSets.Reweight(drawn, weights[drawn])
		index := drawn + 1

		if index == goalIndex || (addingGoals && f.randseed.Float64() < f.goalBias) {
			if st := f.pis.nextGoalState(nil); st != nil {
				sets[goalIndex] = append(sets[goalIndex], f.si.CloneState(st))
				isStart[goalIndex] = append(isStart[goalIndex], 0)
				weights[goalIndex-1] = 1.0 / (weightOffset + float64(len(sets[goalIndex])))
				pdfSets.Reweight(goalIndex-1, weights[goalIndex-1])
				index = goalIndex
				added = true
			} else {
				addingGoals = false
			}
		} else {
			if samplers[index-1].Sample(workArea) && f.si.IsValid(workArea) {
				sets[index] = append(sets[index], f.si.CloneState(workArea))
				connections[index] = append(connections[index], nil)
				isStart[index] = append(isStart[index], 0)
				weights[index-1] = 1.0 / (weightOffset + float64(len(sets[index])))
				pdfSets.Reweight(index-1, weights[index-1])
				added = true
			}
		}

		if added {
			prev := sets[index-1]
			addedElemIndex := len(sets[index]) - 1
			for i := 0; i < len(prev); i++ {
				if f.si.CheckMotion(prev[i], sets[index][addedElemIndex]) {
					connections[index-1][i] = append(connections[index-1][i], addedElemIndex)
					if isStart[index-1][i] == 1 && isStart[index][addedElemIndex] == 0 {
						isStart[index][addedElemIndex] = 1
						propagateStartInfo(index, addedElemIndex, isStart, connections)
					}
				}
			}

			if index < goalIndex {
				next := sets[index+1]
				for i := 0; i < len(next); i++ {
					if f.si.CheckMotion(sets[index][addedElemIndex], next[i]) {
						connections[index][addedElemIndex] = append(connections[index][addedElemIndex], i)
						if isStart[index][addedElemIndex] == 1 && isStart[index+1][i] == 0 {
							isStart[index+1][i] = 1
							propagateStartInfo(index+1, i, isStart, connections)
						}
					}
				}
			}

			solved = goalReached(isStart[goalIndex])
		}
	}

	if solved {
		f.computeSolution(sets, connections)
		f.logger.Info("Successfully computed follow plan")
		return StatusExactSolution
	}
	f.logger.Info("Unable to compute follow plan")
	return StatusTimeout
}

func goalReached(goalLayer []int) bool {
	for _, flag := range goalLayer {
		if flag == 1 {
			return true
		}
	}
	return false
}

// propagateStartInfo marks every state reachable from (setIndex, elemIndex)
// through recorded forward connections as start-reachable. The layered graph is
// a DAG whose edges only point forward, so an explicit work stack bounded by
// the total sample count suffices.
func propagateStartInfo(setIndex, elemIndex int, isStart [][]int, connections [][][]int) {
	type frame struct{ set, elem int }
	stack := []frame{{setIndex, elemIndex}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if top.set >= len(connections) {
			continue
		}
		for _, next := range connections[top.set][top.elem] {
			if isStart[top.set+1][next] == 0 {
				isStart[top.set+1][next] = 1
			}
			stack = append(stack, frame{top.set + 1, next})
		}
	}
}

// findSolutionPath searches depth-first for a chain of connected states from
// (setIndex, elemIndex) to the goal layer, appending states on the way back so
// the assembled path is in reverse order.
func (f *follower) findSolutionPath(path *PathGeometric, setIndex, elemIndex int, sets [][]*State, connections [][][]int) bool {
	if setIndex == len(connections) {
		path.Append(sets[setIndex][elemIndex])
		return true
	}
	for _, next := range connections[setIndex][elemIndex] {
		if f.findSolutionPath(path, setIndex+1, next, sets, connections) {
			path.Append(sets[setIndex][elemIndex])
			return true
		}
	}
	return false
}

func (f *follower) computeSolution(sets [][]*State, connections [][][]int) {
	path := NewPathGeometric(f.si)
	found := false
	for i := 0; !found && i < len(sets[0]); i++ {
		found = f.findSolutionPath(path, 0, i, sets, connections)
	}
	if found {
		path.Reverse()
		f.pdef.AddSolutionPath(path, false)
	} else {
		path.Clear()
	}
}
