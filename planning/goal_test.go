package planning

import (
	"testing"
	"time"

	"go.viam.com/test"
)

func TestGoalCompositionSingle(t *testing.T) {
	pc, _, _ := testContext(emptyScene{}, nil)
	ok, _ := pc.SetGoalConstraints([]*Constraints{goalAround(1, 0, 0.01)}, nil)
	test.That(t, ok, test.ShouldBeTrue)

	// one sampleable child means no multiplexer is interposed
	goal := pc.ProblemDefinition().Goal()
	_, isMux := goal.(*goalSampleableMux)
	test.That(t, isMux, test.ShouldBeFalse)
	_, isSingle := goal.(*ConstrainedGoalSampler)
	test.That(t, isSingle, test.ShouldBeTrue)
}

func TestGoalCompositionMux(t *testing.T) {
	pc, _, _ := testContext(emptyScene{}, nil)
	ok, _ := pc.SetGoalConstraints([]*Constraints{
		goalAround(1, 0, 0.01),
		goalAround(-1, 0, 0.01),
	}, nil)
	test.That(t, ok, test.ShouldBeTrue)

	goal := pc.ProblemDefinition().Goal()
	mux, isMux := goal.(*goalSampleableMux)
	test.That(t, isMux, test.ShouldBeTrue)
	test.That(t, mux.HasType(GoalSampleableRegionType), test.ShouldBeTrue)
	test.That(t, mux.CouldSample(), test.ShouldBeTrue)

	sum := 0
	for _, child := range mux.goals {
		sum += child.MaxSampleCount()
	}
	test.That(t, mux.MaxSampleCount(), test.ShouldEqual, sum)

	// samples land in one of the two regions and satisfy the disjunction
	s := pc.si.AllocState()
	defer pc.si.FreeState(s)
	for i := 0; i < 10; i++ {
		test.That(t, mux.SampleGoal(s), test.ShouldBeTrue)
		test.That(t, mux.IsSatisfied(s), test.ShouldBeTrue)
	}
}

func TestGoalMergesPathConstraints(t *testing.T) {
	pc, _, _ := testContext(emptyScene{}, nil)
	path := &Constraints{Name: "path", Joint: []JointConstraint{{JointName: "j1", Min: -0.2, Max: 0.2}}}
	ok, _ := pc.SetGoalConstraints([]*Constraints{goalAround(1, 0, 0.01)}, path)
	test.That(t, ok, test.ShouldBeTrue)

	// the installed goal set is the merge of goal and path constraints
	test.That(t, len(pc.goalConstraints), test.ShouldEqual, 1)
	merged := pc.goalConstraints[0].AllConstraints()
	test.That(t, len(merged.Joint), test.ShouldEqual, 3)
}

func TestGoalLazySamples(t *testing.T) {
	pc, _, _ := testContext(emptyScene{}, nil)
	ok, _ := pc.SetGoalConstraints([]*Constraints{goalAround(1, 0, 0.01)}, nil)
	test.That(t, ok, test.ShouldBeTrue)

	inner := pc.ProblemDefinition().Goal().(GoalSampleable)
	lazy := NewGoalLazySamples(pc.si, inner, quietLogger)
	pc.ProblemDefinition().SetGoal(lazy)
	test.That(t, lazy.HasType(GoalLazySamplesType), test.ShouldBeTrue)
	test.That(t, pc.Configure(), test.ShouldBeNil)

	// preSolve starts the sampling goroutine, postSolve stops it
	test.That(t, pc.Solve(5*time.Second, 1), test.ShouldBeTrue)
	lazy.mu.Lock()
	sampling := lazy.sampling
	lazy.mu.Unlock()
	test.That(t, sampling, test.ShouldBeFalse)

	lazy.Clear()
}
