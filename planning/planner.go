package planning

import (
	"math"
	"math/rand"
	"strconv"
	"sync"

	"github.com/edaniels/golog"
)

// Planner solves the problem installed on it, honoring a termination condition.
type Planner interface {
	Name() string
	SetProblemDefinition(pdef *ProblemDefinition)
	Solve(ptc *TerminationCondition) PlannerStatus
	Clear()
}

// PlannerAllocator produces a fresh planner instance for a SpaceInformation.
// The parallel dispatcher uses it to instantiate N concurrent planners.
type PlannerAllocator func(si *SpaceInformation) Planner

// PlannerSelector maps a planner-type string to an allocator, or nil for
// unknown types.
type PlannerSelector func(plannerType string) PlannerAllocator

// NewRRTConnectAllocator returns an allocator for the default bidirectional planner.
func NewRRTConnectAllocator(logger golog.Logger, seed int64) PlannerAllocator {
	return func(si *SpaceInformation) Planner {
		//nolint:gosec
		return newRRTConnectPlanner(si, logger, rand.New(rand.NewSource(seed)))
	}
}

// defaultPlannerForGoal supplies the planner used when no allocator is
// registered. It returns the bidirectional RRT-connect planner for every goal;
// the goal type is not inspected, and that planner reports an unrecognized goal
// type for goals that are not sampleable.
func defaultPlannerForGoal(si *SpaceInformation, goal Goal, logger golog.Logger, seed int64) Planner {
	//nolint:gosec
	return newRRTConnectPlanner(si, logger, rand.New(rand.NewSource(seed)))
}

// rrtConnectPlanner grows two trees, one from the starts and one from sampled
// goal states, alternating extension toward a common target.
type rrtConnectPlanner struct {
	si       *SpaceInformation
	pdef     *ProblemDefinition
	logger   golog.Logger
	randseed *rand.Rand
	mu       sync.Mutex
	iter     int
}

func newRRTConnectPlanner(si *SpaceInformation, logger golog.Logger, randseed *rand.Rand) *rrtConnectPlanner {
	iter := defaultPlanIter
	if v, ok := si.Param("plan_iter"); ok {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			iter = parsed
		}
	}
	return &rrtConnectPlanner{si: si, logger: logger, randseed: randseed, iter: iter}
}

func (mp *rrtConnectPlanner) Name() string {
	return "RRTConnect"
}

func (mp *rrtConnectPlanner) SetProblemDefinition(pdef *ProblemDefinition) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.pdef = pdef
}

func (mp *rrtConnectPlanner) Clear() {}

type treeNode struct {
	state  *State
	parent *treeNode
}

func (mp *rrtConnectPlanner) Solve(ptc *TerminationCondition) PlannerStatus {
	mp.mu.Lock()
	pdef := mp.pdef
	mp.mu.Unlock()
	if pdef == nil {
		return StatusUnknown
	}

	pis := newPlannerInputStates(pdef, defaultGoalSamplingAttempts, mp.randseed)
	defer pis.close()

	var owned []*State
	defer func() {
		mp.si.FreeStates(owned)
	}()
	cloneOwned := func(s *State) *State {
		c := mp.si.CloneState(s)
		owned = append(owned, c)
		return c
	}

	startMap := make([]*treeNode, 0)
	for st := pis.nextStartState(); st != nil; st = pis.nextStartState() {
		startMap = append(startMap, &treeNode{state: cloneOwned(st)})
	}
	if len(startMap) == 0 {
		mp.logger.Errorf("%s: no valid start states", mp.Name())
		return StatusInvalidStart
	}

	goal := pdef.Goal()
	if goal == nil || !goal.HasType(GoalSampleableRegionType) {
		return StatusUnrecognizedGoalType
	}
	goalMap := make([]*treeNode, 0)
	if st := pis.nextGoalState(ptc); st != nil {
		goalMap = append(goalMap, &treeNode{state: cloneOwned(st)})
	}
	if len(goalMap) == 0 {
		if ptc.Fired() {
			return StatusTimeout
		}
		mp.logger.Errorf("%s: unable to sample any valid goal states", mp.Name())
		return StatusInvalidGoal
	}

	sampler := mp.si.AllocSampler()
	target := mp.si.AllocState()
	defer mp.si.FreeState(target)
	mp.si.space.Interpolate(startMap[0].state, goalMap[0].state, 0.5, target)

	map1, map2 := &startMap, &goalMap
	map1IsStart := true

	for i := 0; i < mp.iter; i++ {
		if ptc.Fired() {
			mp.logger.Debugf("%s: terminated after %d iterations", mp.Name(), i)
			return StatusTimeout
		}

		nearest1 := nearestTreeNode(mp.si, *map1, target)
		nearest2 := nearestTreeNode(mp.si, *map2, target)

		var node1, node2 *treeNode
		if mp.si.CheckMotion(nearest1.state, target) {
			node1 = &treeNode{state: cloneOwned(target), parent: nearest1}
			*map1 = append(*map1, node1)
		}
		if mp.si.CheckMotion(nearest2.state, target) {
			node2 = &treeNode{state: cloneOwned(target), parent: nearest2}
			*map2 = append(*map2, node2)
		}

		if node1 != nil && node2 != nil {
			startNode, goalNode := node1, node2
			if !map1IsStart {
				startNode, goalNode = node2, node1
			}
			mp.recordSolution(startNode, goalNode)
			return StatusExactSolution
		}

		// occasionally grow the goal tree with a fresh goal sample
		if mp.randseed.Float64() < defaultGoalBias {
			if st := pis.nextGoalState(ptc); st != nil {
				goalMap = append(goalMap, &treeNode{state: cloneOwned(st)})
			}
		}

		sampler.SampleUniform(target)
		map1, map2 = map2, map1
		map1IsStart = !map1IsStart
	}

	mp.logger.Debugf("%s: gave up after %d iterations", mp.Name(), mp.iter)
	return StatusTimeout
}

// recordSolution walks both trees from the matched pair outward and attaches the
// joined path to the problem definition.
func (mp *rrtConnectPlanner) recordSolution(startNode, goalNode *treeNode) {
	steps := make([]*State, 0)
	for n := startNode; n != nil; n = n.parent {
		steps = append(steps, n.state)
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	// skip the goal-side copy of the matched state
	for n := goalNode.parent; n != nil; n = n.parent {
		steps = append(steps, n.state)
	}

	path := NewPathGeometric(mp.si)
	for _, s := range steps {
		path.Append(s)
	}
	mp.pdef.AddSolutionPath(path, false)
}

func nearestTreeNode(si *SpaceInformation, tree []*treeNode, target *State) *treeNode {
	bestDist := math.Inf(1)
	var best *treeNode
	for _, n := range tree {
		if d := si.space.Distance(n.state, target); d < bestDist {
			bestDist = d
			best = n
		}
	}
	return best
}
