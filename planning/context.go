// Package planning configures sampling-based planners over composite robot
// configuration spaces under path and goal constraints, dispatches single and
// multi-threaded solves with a shared termination signal, and implements a
// layered follower that threads a trajectory through an ordered sequence of
// constraint regions.
package planning

import (
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/viam-labs/strataplan/model"
)

// default values for context limits and planner behavior.
const (
	// Number of planner iterations before giving up.
	defaultPlanIter = 20000

	// Check motions are still valid every this much distance.
	defaultMotionResolution = 0.1

	// Probability of drawing a goal sample instead of a tree extension.
	defaultGoalBias = 0.1

	// Follower goal-draw probability.
	followerGoalBias = 0.05

	// Bound on goal samples a context will consume per region.
	defaultMaxGoalSamples = 10

	// Attempt bounds for constrained sampling.
	defaultMaxStateSamplingAttempts = 4
	defaultMaxGoalSamplingAttempts  = 1000
	defaultGoalSamplingAttempts     = 1000

	// Parallel dispatch width.
	defaultMaxPlanningThreads = 4

	// Interpolation shape.
	defaultMaxSolutionSegmentLength = 0.5
	defaultMinimumWaypointCount     = 2

	// Lazy goal sampling pacing.
	lazyGoalBacklog      = 10
	lazyGoalPollInterval = 5 * time.Millisecond
)

// Specification is the immutable bundle a PlanningContext is constructed over.
type Specification struct {
	StateSpace               StateSpace
	PlannerSelector          PlannerSelector
	ConstraintSamplerManager ConstraintSamplerManager
	ConstraintsLibrary       ConstraintsApproximationLibrary
	Config                   map[string]string
	Group                    string
	Clock                    clock.Clock
	RandomSeed               int64
}

// PlanningContext coordinates one planning problem: it configures a sampling
// planner over the specification's state space, composes a goal region from
// goal constraint sets, and dispatches solves or follows.
type PlanningContext struct {
	name   string
	spec   Specification
	logger golog.Logger
	clk    clock.Clock

	si       *SpaceInformation
	pdef     *ProblemDefinition
	parallel *ParallelPlanner

	completeInitialState *model.RobotState
	scene                Scene

	goalConstraints    []*KinematicConstraintSet
	pathConstraints    *KinematicConstraintSet
	pathConstraintsMsg *Constraints
	followSamplers     []ValidConstrainedSampler

	spaceSignature []int

	plannerAllocator PlannerAllocator
	planner          Planner
	checker          *contextValidityChecker

	maxGoalSamples           int
	maxStateSamplingAttempts int
	maxGoalSamplingAttempts  int
	maxPlanningThreads       int
	maxSolutionSegmentLength float64
	minimumWaypointCount     int

	lastPlanTime     time.Duration
	lastSimplifyTime time.Duration

	ptcMu sync.Mutex
	ptc   *TerminationCondition

	randseed *rand.Rand
	randMu   sync.Mutex
}

// NewPlanningContext binds a context to a state space, computes the space
// signature, and installs the path-constrained state sampler allocator.
func NewPlanningContext(name string, spec Specification, logger golog.Logger) *PlanningContext {
	clk := spec.Clock
	if clk == nil {
		clk = clock.New()
	}
	seed := spec.RandomSeed
	if seed == 0 {
		seed = 1
	}
	pc := &PlanningContext{
		name:                     name,
		spec:                     spec,
		logger:                   logger,
		clk:                      clk,
		maxGoalSamples:           defaultMaxGoalSamples,
		maxStateSamplingAttempts: defaultMaxStateSamplingAttempts,
		maxGoalSamplingAttempts:  defaultMaxGoalSamplingAttempts,
		maxPlanningThreads:       defaultMaxPlanningThreads,
		maxSolutionSegmentLength: defaultMaxSolutionSegmentLength,
		minimumWaypointCount:     defaultMinimumWaypointCount,
		//nolint:gosec
		randseed: rand.New(rand.NewSource(seed)),
	}
	pc.si = NewSpaceInformation(spec.StateSpace, logger)
	pc.pdef = NewProblemDefinition(pc.si)
	pc.parallel = NewParallelPlanner(pc.pdef, logger)
	pc.spaceSignature = spec.StateSpace.Signature()
	spec.StateSpace.SetStateSamplerAllocator(pc.allocPathConstrainedSampler)
	return pc
}

// Name returns the context name.
func (pc *PlanningContext) Name() string {
	return pc.name
}

// SpaceInformation returns the context's space information.
func (pc *PlanningContext) SpaceInformation() *SpaceInformation {
	return pc.si
}

// ProblemDefinition returns the context's problem definition.
func (pc *PlanningContext) ProblemDefinition() *ProblemDefinition {
	return pc.pdef
}

// SpaceSignature returns the signature computed at construction, usable as a
// cache key for the bound state space.
func (pc *PlanningContext) SpaceSignature() []int {
	return pc.spaceSignature
}

// CompleteInitialState returns the initial robot state snapshot.
func (pc *PlanningContext) CompleteInitialState() *model.RobotState {
	return pc.completeInitialState
}

// PlanningScene returns the current scene.
func (pc *PlanningContext) PlanningScene() Scene {
	return pc.scene
}

// LastPlanTime returns the duration of the most recent solve or follow.
func (pc *PlanningContext) LastPlanTime() time.Duration {
	return pc.lastPlanTime
}

// LastSimplifyTime returns the duration of the most recent simplification.
func (pc *PlanningContext) LastSimplifyTime() time.Duration {
	return pc.lastSimplifyTime
}

// SetMaxPlanningThreads bounds the width of parallel solve batches.
func (pc *PlanningContext) SetMaxPlanningThreads(n int) {
	if n > 0 {
		pc.maxPlanningThreads = n
	}
}

// SetMaxSolutionSegmentLength sets the interpolation segment length.
func (pc *PlanningContext) SetMaxSolutionSegmentLength(l float64) {
	if l > 0 {
		pc.maxSolutionSegmentLength = l
	}
}

// SetMinimumWaypointCount sets the interpolation floor.
func (pc *PlanningContext) SetMinimumWaypointCount(n int) {
	if n > 0 {
		pc.minimumWaypointCount = n
	}
}

// SetMaxGoalSamples bounds goal samples consumed per goal region.
func (pc *PlanningContext) SetMaxGoalSamples(n int) {
	if n > 0 {
		pc.maxGoalSamples = n
	}
}

// SetCompleteInitialState replaces the initial robot state snapshot. Must
// precede Configure.
func (pc *PlanningContext) SetCompleteInitialState(state *model.RobotState) {
	pc.completeInitialState = state.Clone()
}

// SetPlanningScene replaces the scene snapshot. Must precede Configure.
func (pc *PlanningContext) SetPlanningScene(scene Scene) {
	pc.scene = scene
}

// SetPlanningVolume installs axis-aligned bounds on positional subspaces. An
// all-zero volume is taken as unspecified: a warning is logged but nothing fails.
func (pc *PlanningContext) SetPlanningVolume(min, max r3.Vector) {
	if min.X == max.X && min.X == 0 && min.Y == max.Y && min.Y == 0 && min.Z == max.Z && min.Z == 0 {
		pc.logger.Warn("It looks like the planning volume was not specified.")
	}
	pc.logger.Debugf("%s: Setting planning volume (affects positional joints only) to "+
		"x = [%f, %f], y = [%f, %f], z = [%f, %f]", pc.name, min.X, max.X, min.Y, max.Y, min.Z, max.Z)
	pc.spec.StateSpace.SetPlanningVolume(min, max)
}

// SetPathConstraints builds the path constraint set over the space's model and
// stores both the set and the raw message for approximation lookup. Sampler
// allocation degrades to the default sampler if the constraints cannot be
// sampled, so this never fails.
func (pc *PlanningContext) SetPathConstraints(msg *Constraints) {
	kset := NewKinematicConstraintSet(pc.spec.StateSpace.Model())
	kset.Add(msg)
	pc.pathConstraints = kset
	pc.pathConstraintsMsg = msg
}

// PathConstraints returns the current path constraint set, or nil.
func (pc *PlanningContext) PathConstraints() *KinematicConstraintSet {
	return pc.pathConstraints
}

// SetGoalConstraints merges each goal constraint set with the path constraints,
// drops empty results, and installs the composed goal region on the problem
// definition. Returns false with ErrorInvalidGoalConstraints when nothing
// sampleable remains.
func (pc *PlanningContext) SetGoalConstraints(goals []*Constraints, pathConstraints *Constraints) (bool, ErrorCode) {
	pc.goalConstraints = nil
	for _, g := range goals {
		merged := MergeConstraints(g, pathConstraints)
		kset := NewKinematicConstraintSet(pc.spec.StateSpace.Model())
		kset.Add(merged)
		if !kset.Empty() {
			pc.goalConstraints = append(pc.goalConstraints, kset)
		}
	}

	if len(pc.goalConstraints) == 0 {
		pc.logger.Warnf("%s: No goal constraints specified. There is no problem to solve.", pc.name)
		return false, ErrorInvalidGoalConstraints
	}

	goal := pc.constructGoal()
	pc.pdef.SetGoal(goal)
	if goal == nil {
		return false, ErrorInvalidGoalConstraints
	}
	return true, ErrorNone
}

// constructGoal builds a ConstrainedGoalSampler per goal constraint set and
// multiplexes them when more than one is sampleable.
func (pc *PlanningContext) constructGoal() Goal {
	goals := make([]GoalSampleable, 0, len(pc.goalConstraints))
	for _, kset := range pc.goalConstraints {
		var cs ConstraintSampler
		if pc.spec.ConstraintSamplerManager != nil {
			cs = pc.spec.ConstraintSamplerManager.SelectSampler(pc.scene, pc.spec.Group, kset.AllConstraints())
		}
		if cs != nil {
			goals = append(goals, newConstrainedGoalSampler(pc, kset, cs))
		}
	}

	if len(goals) == 0 {
		pc.logger.Error("Unable to construct goal representation")
		return nil
	}
	if len(goals) == 1 {
		return goals[0]
	}
	pc.randMu.Lock()
	seed := pc.randseed.Int63()
	pc.randMu.Unlock()
	//nolint:gosec
	return newGoalSampleableMux(goals, rand.New(rand.NewSource(seed)))
}

// SetFollowSamplers installs the ordered stratum samplers the Follower plans
// through, one per constraint region.
func (pc *PlanningContext) SetFollowSamplers(samplers []ValidConstrainedSampler) {
	pc.followSamplers = samplers
}

// allocPathConstrainedSampler is the state sampler allocator registered on the
// state space. Priority: precomputed approximation, then a constrained sampler
// from the manager, then the space default. Re-entrant; reads immutable context
// fields only.
func (pc *PlanningContext) allocPathConstrainedSampler(space StateSpace) StateSampler {
	if space != pc.spec.StateSpace {
		pc.logger.Errorf("%s: Attempted to allocate a state sampler for an unknown state space", pc.name)
		return nil
	}

	pc.logger.Debugf("%s: Allocating a new state sampler (attempts to use path constraints)", pc.name)

	if pc.pathConstraints != nil {
		if pc.spec.ConstraintsLibrary != nil {
			if ca := pc.spec.ConstraintsLibrary.ConstraintApproximation(pc.pathConstraintsMsg); ca != nil {
				if alloc := ca.StateSamplerAllocator(pc.pathConstraintsMsg); alloc != nil {
					if sampler := alloc(space); sampler != nil {
						pc.logger.Debug("Using precomputed state sampler (approximated constraint space)")
						return sampler
					}
				}
			}
		}

		var cs ConstraintSampler
		if pc.spec.ConstraintSamplerManager != nil {
			cs = pc.spec.ConstraintSamplerManager.SelectSampler(pc.scene, pc.spec.Group, pc.pathConstraints.AllConstraints())
		}
		if cs != nil {
			pc.logger.Debugf("%s: Allocating specialized state sampler for state space", pc.name)
			return newConstrainedSampler(pc, space, cs)
		}
	}
	pc.logger.Debugf("%s: Allocating default state sampler for state space", pc.name)
	return space.DefaultSampler()
}

// Configure copies the initial robot state into the space as the start,
// installs the state validity checker, and applies planner configuration. Space
// setup is skipped when the Follower is selected.
func (pc *PlanningContext) Configure() error {
	if pc.completeInitialState == nil {
		return errors.Errorf("%s: no complete initial state set", pc.name)
	}
	start := pc.si.AllocState()
	defer pc.si.FreeState(start)
	if err := pc.spec.StateSpace.CopyFromRobotState(start, pc.completeInitialState); err != nil {
		return errors.Wrapf(err, "%s: unable to convert initial state", pc.name)
	}
	pc.pdef.SetStartState(start)
	pc.checker = newContextValidityChecker(pc)
	pc.si.SetStateValidityChecker(pc.checker)

	pc.useConfig()
	if pc.pdef.Goal() != nil || len(pc.followSamplers) == 0 {
		pc.si.Setup()
	}
	return nil
}

// useConfig consumes the specification's configuration map: the projection
// evaluator, the planner type, then everything else as space parameters with a
// setup before and after so derived parameters refresh.
func (pc *PlanningContext) useConfig() {
	config := pc.spec.Config
	if len(config) == 0 {
		return
	}
	cfg := make(map[string]string, len(config))
	for k, v := range config {
		cfg[k] = v
	}

	if peval, ok := cfg["projection_evaluator"]; ok {
		pc.setProjectionEvaluator(strings.TrimSpace(peval))
		delete(cfg, "projection_evaluator")
	}

	if len(cfg) == 0 {
		return
	}

	if plannerType, ok := cfg["type"]; ok {
		delete(cfg, "type")
		var alloc PlannerAllocator
		if pc.spec.PlannerSelector != nil {
			alloc = pc.spec.PlannerSelector(plannerType)
		}
		if alloc == nil {
			pc.logger.Errorf("%s: Unknown planner type %q", pc.name, plannerType)
		} else {
			pc.plannerAllocator = alloc
			pc.logger.Infof("Planner configuration %q will use planner %q. "+
				"Additional configuration parameters will be set when the planner is constructed.", pc.name, plannerType)
		}
	} else if pc.name != pc.spec.Group {
		pc.logger.Warnf("%s: Attribute 'type' not specified in planner configuration", pc.name)
	}

	// call SetParams after Setup so derived parameters exist, then Setup again
	// for possibly new values
	pc.si.Setup()
	pc.si.SetParams(cfg)
	pc.si.Setup()
}

// Clear releases problem solutions, goals, the validity checker, and path and
// goal constraints, leaving the context reusable with the same state space.
// Idempotent.
func (pc *PlanningContext) Clear() {
	pc.pdef.ClearSolutionPaths()
	pc.pdef.ClearStartStates()
	if lazy, ok := pc.pdef.Goal().(*GoalLazySamples); ok {
		lazy.Clear()
	}
	pc.pdef.SetGoal(nil)
	pc.si.SetStateValidityChecker(nil)
	pc.checker = nil
	pc.planner = nil
	pc.pathConstraints = nil
	pc.pathConstraintsMsg = nil
	pc.goalConstraints = nil
}

// SetVerboseStateValidityChecks toggles per-rejection logging on the installed
// validity checker.
func (pc *PlanningContext) SetVerboseStateValidityChecks(flag bool) {
	if pc.checker != nil {
		pc.checker.setVerbose(flag)
	}
}

// SolutionPath converts the best recorded solution into a robot trajectory with
// zero dwell times. Returns false when no solution exists.
func (pc *PlanningContext) SolutionPath(traj *model.Trajectory) bool {
	traj.Clear()
	path := pc.pdef.SolutionPath()
	if path == nil {
		return false
	}
	ks := pc.completeInitialState.Clone()
	for i := 0; i < path.StateCount(); i++ {
		if err := pc.spec.StateSpace.CopyToRobotState(ks, path.State(i)); err != nil {
			return false
		}
		traj.AddSuffixWaypoint(ks, 0)
	}
	return true
}

// SimplifySolution shortcuts the best recorded solution within the timeout.
func (pc *PlanningContext) SimplifySolution(timeout time.Duration) {
	path := pc.pdef.SolutionPath()
	if path == nil {
		return
	}
	start := pc.clk.Now()
	pc.randMu.Lock()
	seed := pc.randseed.Int63()
	pc.randMu.Unlock()
	//nolint:gosec
	shortcutPath(path, pc.si, TimedTerminationCondition(timeout, pc.clk), rand.New(rand.NewSource(seed)))
	pc.lastSimplifyTime = pc.clk.Since(start)
}

// InterpolateSolution resamples the best recorded solution to
// max(round(length / max segment length), minimum waypoint count) states.
// Segments can come out slightly longer than the maximum, and a count at or
// below the path's current state count leaves the path unchanged.
func (pc *PlanningContext) InterpolateSolution() {
	path := pc.pdef.SolutionPath()
	if path == nil {
		return
	}
	count := int(math.Floor(0.5 + path.Length()/pc.maxSolutionSegmentLength))
	if count < pc.minimumWaypointCount {
		count = pc.minimumWaypointCount
	}
	path.Interpolate(count)
}

// registerTerminationCondition stores a borrowed condition for the duration of
// one solve.
func (pc *PlanningContext) registerTerminationCondition(ptc *TerminationCondition) {
	pc.ptcMu.Lock()
	defer pc.ptcMu.Unlock()
	pc.ptc = ptc
}

func (pc *PlanningContext) unregisterTerminationCondition() {
	pc.ptcMu.Lock()
	defer pc.ptcMu.Unlock()
	pc.ptc = nil
}

// TerminateSolve signals the termination condition of the solve in progress, if
// any. Safe to call from any goroutine.
func (pc *PlanningContext) TerminateSolve() {
	pc.ptcMu.Lock()
	defer pc.ptcMu.Unlock()
	if pc.ptc != nil {
		pc.ptc.Terminate()
	}
}

func (pc *PlanningContext) preSolve() {
	pc.pdef.ClearSolutionPaths()
	if pc.planner != nil {
		pc.planner.Clear()
	}
	if goal := pc.pdef.Goal(); goal != nil && goal.HasType(GoalLazySamplesType) {
		// just in case sampling is not started
		if lazy, ok := goal.(*GoalLazySamples); ok {
			lazy.StartSampling()
		}
	}
	pc.si.MotionValidator().ResetMotionCounter()
}

func (pc *PlanningContext) postSolve() {
	if goal := pc.pdef.Goal(); goal != nil && goal.HasType(GoalLazySamplesType) {
		// just in case we need to stop sampling
		if lazy, ok := goal.(*GoalLazySamples); ok {
			lazy.StopSampling()
		}
	}
	v := pc.si.MotionValidator().ValidMotionCount()
	iv := pc.si.MotionValidator().InvalidMotionCount()
	pc.logger.Debugf("There were %d valid motions and %d invalid motions.", v, iv)

	if pc.pdef.HasApproximateSolution() {
		pc.logger.Warn("Computed solution is approximate")
	}
}

// currentPlanner returns the planner for single solves, creating it from the
// registered allocator or the goal-derived default.
func (pc *PlanningContext) currentPlanner() Planner {
	if pc.planner != nil {
		return pc.planner
	}
	pc.randMu.Lock()
	seed := pc.randseed.Int63()
	pc.randMu.Unlock()
	if pc.plannerAllocator != nil {
		pc.planner = pc.plannerAllocator(pc.si)
	} else {
		pc.planner = defaultPlannerForGoal(pc.si, pc.pdef.Goal(), pc.logger, seed)
	}
	pc.planner.SetProblemDefinition(pc.pdef)
	return pc.planner
}

func (pc *PlanningContext) newBatchPlanner(seed int64) Planner {
	if pc.plannerAllocator != nil {
		return pc.plannerAllocator(pc.si)
	}
	return defaultPlannerForGoal(pc.si, pc.pdef.Goal(), pc.logger, seed)
}

// Solve plans once or many times. With count above one, planner instances are
// batched into parallel groups of at most the configured thread width, results
// hybridized within each batch and ANDed across batches.
func (pc *PlanningContext) Solve(timeout time.Duration, count int) bool {
	start := pc.clk.Now()
	pc.preSolve()

	result := false
	if count <= 1 {
		pc.logger.Debugf("%s: Solving the planning problem once...", pc.name)
		ptc := TimedTerminationCondition(timeout-pc.clk.Since(start), pc.clk)
		pc.registerTerminationCondition(ptc)
		result = pc.currentPlanner().Solve(ptc) == StatusExactSolution
		pc.lastPlanTime = pc.clk.Since(start)
		pc.unregisterTerminationCondition()
	} else {
		pc.logger.Debugf("%s: Solving the planning problem %d times...", pc.name, count)
		pc.parallel.ClearHybridizationPaths()
		ptc := TimedTerminationCondition(timeout-pc.clk.Since(start), pc.clk)
		pc.registerTerminationCondition(ptc)

		runBatch := func(size int) bool {
			pc.parallel.ClearPlanners()
			for i := 0; i < size; i++ {
				pc.randMu.Lock()
				seed := pc.randseed.Int63()
				pc.randMu.Unlock()
				pc.parallel.AddPlanner(pc.newBatchPlanner(seed))
			}
			return pc.parallel.Solve(ptc, true) == StatusExactSolution
		}

		if count <= pc.maxPlanningThreads {
			result = runBatch(count)
		} else {
			result = true
			n := count / pc.maxPlanningThreads
			for i := 0; i < n && !ptc.Fired(); i++ {
				result = runBatch(pc.maxPlanningThreads) && result
			}
			if rem := count % pc.maxPlanningThreads; rem > 0 && !ptc.Fired() {
				result = runBatch(rem) && result
			}
		}
		pc.lastPlanTime = pc.clk.Since(start)
		pc.unregisterTerminationCondition()
	}

	pc.postSolve()
	return result
}

// Follow runs the layered follower through the installed stratum samplers.
func (pc *PlanningContext) Follow(timeout time.Duration, count int) bool {
	start := pc.clk.Now()
	pc.preSolve()

	pc.randMu.Lock()
	seed := pc.randseed.Int63()
	pc.randMu.Unlock()
	//nolint:gosec
	f := newFollower(pc.si, pc.logger, rand.New(rand.NewSource(seed)), pc.maxGoalSamplingAttempts)
	f.setProblemDefinition(pc.pdef)

	ptc := TimedTerminationCondition(timeout, pc.clk)
	pc.registerTerminationCondition(ptc)
	result := f.follow(pc.followSamplers, ptc) == StatusExactSolution
	pc.lastPlanTime = pc.clk.Since(start)
	pc.unregisterTerminationCondition()

	pc.postSolve()
	return result
}
