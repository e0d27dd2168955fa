package planning

import (
	"testing"
	"time"

	"go.viam.com/test"

	"github.com/viam-labs/strataplan/model"
)

// followContext builds a context whose goal is a joint region around (3, 0) and
// whose strata are boxes of the first variable, widening the joint limits so
// the regions fit.
func followContext(t *testing.T, strata []ValidConstrainedSampler) *PlanningContext {
	t.Helper()
	limit := model.Limit{Min: -10, Max: 10}
	joints := []model.Joint{model.NewJoint("j0", limit), model.NewJoint("j1", limit)}
	m := model.NewModel("testbot", joints, nil)
	space := NewModelStateSpace("testbot", m, 5)
	mgr := &intervalSamplerManager{m: m}
	pc := NewPlanningContext("arm", Specification{
		StateSpace:               space,
		ConstraintSamplerManager: mgr,
		Group:                    "arm",
		RandomSeed:               17,
	}, quietLogger)
	pc.SetPlanningScene(emptyScene{})
	pc.SetCompleteInitialState(model.NewRobotState(m))
	ok, _ := pc.SetGoalConstraints([]*Constraints{{
		Name: "goal",
		Joint: []JointConstraint{
			{JointName: "j0", Min: 2.99, Max: 3.01},
			{JointName: "j1", Min: -0.01, Max: 0.01},
		},
	}}, nil)
	test.That(t, ok, test.ShouldBeTrue)
	pc.SetFollowSamplers(strata)
	test.That(t, pc.Configure(), test.ShouldBeNil)
	return pc
}

func TestFollowerTwoStrata(t *testing.T) {
	r1 := newBoxStratumSampler(0.9, 1.1, 31)
	r2 := newBoxStratumSampler(1.9, 2.1, 37)
	pc := followContext(t, []ValidConstrainedSampler{r1, r2})

	test.That(t, pc.Follow(10*time.Second, 1), test.ShouldBeTrue)

	path := pc.ProblemDefinition().SolutionPath()
	test.That(t, path, test.ShouldNotBeNil)

	// one state per layer: start, R1, R2, goal
	test.That(t, path.StateCount(), test.ShouldEqual, 4)
	test.That(t, path.State(0).Values()[0], test.ShouldAlmostEqual, 0)
	test.That(t, r1.contains(path.State(1)), test.ShouldBeTrue)
	test.That(t, r2.contains(path.State(2)), test.ShouldBeTrue)
	test.That(t, path.State(3).Values()[0], test.ShouldAlmostEqual, 3, 0.011)

	// each consecutive pair is connectable by a valid local motion
	for i := 1; i < path.StateCount(); i++ {
		test.That(t, pc.si.CheckMotion(path.State(i-1), path.State(i)), test.ShouldBeTrue)
	}
}

func TestFollowerResourceSafetyOnSuccess(t *testing.T) {
	r1 := newBoxStratumSampler(0.9, 1.1, 31)
	r2 := newBoxStratumSampler(1.9, 2.1, 37)
	pc := followContext(t, []ValidConstrainedSampler{r1, r2})

	baseline := pc.si.AllocatedStates()
	test.That(t, pc.Follow(10*time.Second, 1), test.ShouldBeTrue)

	// the follower's layers and scratch are freed; only the recorded solution
	// path remains outstanding
	path := pc.ProblemDefinition().SolutionPath()
	test.That(t, pc.si.AllocatedStates(), test.ShouldEqual, baseline+int64(path.StateCount()))

	pc.Clear()
	test.That(t, pc.si.AllocatedStates(), test.ShouldEqual, 0)
}

func TestFollowerTimeout(t *testing.T) {
	// a stratum that never yields a sample stalls phase 1 until termination
	stuck := newBoxStratumSampler(0.9, 1.1, 31)
	stuck.fail = true
	pc := followContext(t, []ValidConstrainedSampler{stuck})

	baseline := pc.si.AllocatedStates()
	test.That(t, pc.Follow(100*time.Millisecond, 1), test.ShouldBeFalse)
	test.That(t, pc.si.AllocatedStates(), test.ShouldEqual, baseline)
}

func TestFollowerUnsampleableGoal(t *testing.T) {
	r1 := newBoxStratumSampler(0.9, 1.1, 31)
	pc := followContext(t, []ValidConstrainedSampler{r1})
	pc.ProblemDefinition().SetGoal(nil)

	baseline := pc.si.AllocatedStates()
	test.That(t, pc.Follow(time.Second, 1), test.ShouldBeFalse)
	test.That(t, pc.si.AllocatedStates(), test.ShouldEqual, baseline)
}

func TestFollowerInvalidStart(t *testing.T) {
	r1 := newBoxStratumSampler(0.9, 1.1, 31)
	pc := followContext(t, []ValidConstrainedSampler{r1})
	pc.ProblemDefinition().ClearStartStates()

	baseline := pc.si.AllocatedStates()
	test.That(t, pc.Follow(time.Second, 1), test.ShouldBeFalse)
	test.That(t, pc.si.AllocatedStates(), test.ShouldEqual, baseline)
}

func TestFollowerGrowthWithWall(t *testing.T) {
	// a wall between the strata defeats the first-sample heuristic; the growth
	// loop must discover a detour through additional samples
	r1 := newBoxStratumSampler(0.9, 1.1, 31)
	r2 := newBoxStratumSampler(1.9, 2.1, 37)

	limit := model.Limit{Min: -10, Max: 10}
	joints := []model.Joint{model.NewJoint("j0", limit), model.NewJoint("j1", limit)}
	m := model.NewModel("testbot", joints, nil)
	space := NewModelStateSpace("testbot", m, 5)
	mgr := &intervalSamplerManager{m: m}
	pc := NewPlanningContext("arm", Specification{
		StateSpace:               space,
		ConstraintSamplerManager: mgr,
		Group:                    "arm",
		RandomSeed:               17,
	}, quietLogger)
	// wall across half the second variable between the strata
	pc.SetPlanningScene(bandScene{x0: 1.3, x1: 1.7, yBlockBelow: 5})
	pc.SetCompleteInitialState(model.NewRobotState(m))
	ok, _ := pc.SetGoalConstraints([]*Constraints{{
		Name: "goal",
		Joint: []JointConstraint{
			{JointName: "j0", Min: 2.99, Max: 3.01},
			{JointName: "j1", Min: 5.99, Max: 6.01},
		},
	}}, nil)
	test.That(t, ok, test.ShouldBeTrue)
	pc.SetFollowSamplers([]ValidConstrainedSampler{&ySpreadSampler{inner: r1}, &ySpreadSampler{inner: r2}})
	test.That(t, pc.Configure(), test.ShouldBeNil)

	test.That(t, pc.Follow(20*time.Second, 1), test.ShouldBeTrue)
	path := pc.ProblemDefinition().SolutionPath()
	test.That(t, path.StateCount(), test.ShouldEqual, 4)
	for i := 1; i < path.StateCount(); i++ {
		test.That(t, pc.si.CheckMotion(path.State(i-1), path.State(i)), test.ShouldBeTrue)
	}
}
