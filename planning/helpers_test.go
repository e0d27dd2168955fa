package planning

import (
	"math"
	"math/rand"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.uber.org/zap"

	"github.com/viam-labs/strataplan/model"
)

var quietLogger golog.Logger

func init() {
	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(zap.FatalLevel),
		Encoding:          "console",
		EncoderConfig:     zap.NewDevelopmentEncoderConfig(),
		DisableCaller:     true,
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	quietLogger = logger.Sugar()
}

// twoJointModel builds a planar two-joint arm whose end effector sits at
// (q0, q1, 0). A zero-DoF fixed joint is included for projection tests.
func twoJointModel() *model.Model {
	limit := model.Limit{Min: -math.Pi, Max: math.Pi}
	joints := []model.Joint{
		model.NewJoint("j0", limit),
		model.NewJoint("j1", limit),
		model.NewJoint("j_fixed"),
	}
	links := []model.Link{
		model.NewLink("base", func([]model.Input) r3.Vector { return r3.Vector{} }),
		model.NewLink("ee", func(inputs []model.Input) r3.Vector {
			return r3.Vector{X: inputs[0].Value, Y: inputs[1].Value}
		}),
	}
	return model.NewModel("testbot", joints, links)
}

// emptyScene accepts every state.
type emptyScene struct{}

func (emptyScene) Name() string                 { return "empty" }
func (emptyScene) Valid(*model.RobotState) bool { return true }

// wallScene rejects any state whose first variable lies in a band, splitting
// the space into two components.
type wallScene struct {
	low, high float64
}

func (wallScene) Name() string { return "wall" }

func (s wallScene) Valid(state *model.RobotState) bool {
	v := state.Positions()[0].Value
	return v <= s.low || v >= s.high
}

// bandScene rejects states inside a band of the first variable unless the
// second variable is high enough, forcing detours.
type bandScene struct {
	x0, x1      float64
	yBlockBelow float64
}

func (bandScene) Name() string { return "band" }

func (s bandScene) Valid(state *model.RobotState) bool {
	x := state.Positions()[0].Value
	y := state.Positions()[1].Value
	if x > s.x0 && x < s.x1 && y < s.yBlockBelow {
		return false
	}
	return true
}

// ySpreadSampler wraps a stratum sampler, spreading the second variable so
// growth can discover detours.
type ySpreadSampler struct {
	inner    *boxStratumSampler
	randseed *rand.Rand
}

func (s *ySpreadSampler) Sample(out *State) bool {
	if !s.inner.Sample(out) {
		return false
	}
	if s.randseed == nil {
		//nolint:gosec
		s.randseed = rand.New(rand.NewSource(43))
	}
	out.Values()[1] = s.randseed.Float64() * 8
	return true
}

func (s *ySpreadSampler) Project(state *State) bool {
	return s.inner.Project(state)
}

// intervalConstraintSampler samples each joint-constrained variable uniformly
// within its interval and copies everything else from the seed.
type intervalConstraintSampler struct {
	m        *model.Model
	msg      *Constraints
	randseed *rand.Rand
	samples  int
}

func newIntervalConstraintSampler(m *model.Model, msg *Constraints, seed int64) *intervalConstraintSampler {
	//nolint:gosec
	return &intervalConstraintSampler{m: m, msg: msg, randseed: rand.New(rand.NewSource(seed))}
}

func (s *intervalConstraintSampler) Sample(out, seed *model.RobotState, maxAttempts int) bool {
	out.CopyFrom(seed)
	positions := out.Positions()
	for _, jc := range s.msg.Joint {
		offset, count, err := s.m.JointOffset(jc.JointName)
		if err != nil || count != 1 {
			continue
		}
		positions[offset] = model.Input{Value: s.randseed.Float64()*(jc.Max-jc.Min) + jc.Min}
	}
	s.samples++
	return true
}

func (s *intervalConstraintSampler) Project(state *model.RobotState, maxAttempts int) bool {
	positions := state.Positions()
	for _, jc := range s.msg.Joint {
		offset, count, err := s.m.JointOffset(jc.JointName)
		if err != nil || count != 1 {
			continue
		}
		v := positions[offset].Value
		if v < jc.Min {
			positions[offset] = model.Input{Value: jc.Min}
		} else if v > jc.Max {
			positions[offset] = model.Input{Value: jc.Max}
		}
	}
	return true
}

// intervalSamplerManager selects interval samplers for any constraints that
// carry joint intervals.
type intervalSamplerManager struct {
	m        *model.Model
	selected []*intervalConstraintSampler
	seed     int64
}

func (mgr *intervalSamplerManager) SelectSampler(scene Scene, group string, constraints *Constraints) ConstraintSampler {
	if constraints == nil || len(constraints.Joint) == 0 {
		return nil
	}
	mgr.seed++
	cs := newIntervalConstraintSampler(mgr.m, constraints, mgr.seed)
	mgr.selected = append(mgr.selected, cs)
	return cs
}

// boxStratumSampler is a follower stratum over a box of the first variable.
type boxStratumSampler struct {
	min, max float64
	randseed *rand.Rand
	fail     bool
}

func newBoxStratumSampler(min, max float64, seed int64) *boxStratumSampler {
	//nolint:gosec
	return &boxStratumSampler{min: min, max: max, randseed: rand.New(rand.NewSource(seed))}
}

func (s *boxStratumSampler) Sample(out *State) bool {
	if s.fail {
		return false
	}
	values := out.Values()
	values[0] = s.randseed.Float64()*(s.max-s.min) + s.min
	for i := 1; i < len(values); i++ {
		values[i] = 0
	}
	return true
}

func (s *boxStratumSampler) Project(state *State) bool {
	if s.fail {
		return false
	}
	values := state.Values()
	if values[0] < s.min {
		values[0] = s.min
	} else if values[0] > s.max {
		values[0] = s.max
	}
	return true
}

func (s *boxStratumSampler) contains(st *State) bool {
	v := st.Values()[0]
	return v >= s.min && v <= s.max
}

// countingStateSampler wraps the default sampler and counts draws, for
// verifying the sampler allocation priority chain.
type countingStateSampler struct {
	inner StateSampler
	count *int
}

func (s *countingStateSampler) SampleUniform(out *State) {
	*s.count++
	s.inner.SampleUniform(out)
}

type fakeApproximation struct {
	alloc StateSamplerAllocator
}

func (a *fakeApproximation) StateSamplerAllocator(msg *Constraints) StateSamplerAllocator {
	return a.alloc
}

type fakeApproximationLibrary struct {
	approximations map[string]ConstraintApproximation
}

func (l *fakeApproximationLibrary) ConstraintApproximation(msg *Constraints) ConstraintApproximation {
	if l.approximations == nil {
		return nil
	}
	return l.approximations[msg.Signature()]
}

// testContext assembles a ready-to-configure context over the two-joint model.
func testContext(scene Scene, config map[string]string) (*PlanningContext, *model.Model, *intervalSamplerManager) {
	m := twoJointModel()
	space := NewModelStateSpace("testbot", m, 7)
	mgr := &intervalSamplerManager{m: m}
	spec := Specification{
		StateSpace:               space,
		ConstraintSamplerManager: mgr,
		Config:                   config,
		Group:                    "arm",
		RandomSeed:               11,
		PlannerSelector: func(plannerType string) PlannerAllocator {
			if plannerType == "RRTConnect" {
				return NewRRTConnectAllocator(quietLogger, 23)
			}
			return nil
		},
	}
	pc := NewPlanningContext("arm", spec, quietLogger)
	pc.SetPlanningScene(scene)
	pc.SetCompleteInitialState(model.NewRobotState(m))
	return pc, m, mgr
}

// goalAround builds a goal constraint message boxing both joints around a target.
func goalAround(q0, q1, tol float64) *Constraints {
	return &Constraints{
		Name: "goal",
		Joint: []JointConstraint{
			{JointName: "j0", Min: q0 - tol, Max: q0 + tol},
			{JointName: "j1", Min: q1 - tol, Max: q1 + tol},
		},
	}
}
