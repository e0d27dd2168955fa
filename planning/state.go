package planning

import (
	"math"
	"math/rand"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"github.com/viam-labs/strataplan/model"
)

// State is one point in a configuration space. States are allocated and freed
// through a SpaceInformation so outstanding allocations can be tracked.
type State struct {
	values []float64
}

// Values returns the state's variable values. The slice aliases the state.
func (s *State) Values() []float64 {
	return s.values
}

// StateSampler draws states from a space.
type StateSampler interface {
	SampleUniform(out *State)
}

// StateSamplerAllocator produces a sampler for a space. It must be safe to call
// from multiple planning threads.
type StateSamplerAllocator func(space StateSpace) StateSampler

// ProjectionEvaluator maps a state onto a low-dimensional euclidean projection.
type ProjectionEvaluator interface {
	Dimension() int
	Project(s *State, out []float64)
}

// StateSpace is a composite robot configuration space.
type StateSpace interface {
	Name() string
	Dimension() int
	Model() *model.Model

	// newState allocates a zeroed state. External code allocates through a
	// SpaceInformation instead, which tracks outstanding states.
	newState() *State

	CopyState(dst, src *State)
	Distance(a, b *State) float64
	Interpolate(from, to *State, by float64, out *State)
	SatisfiesBounds(s *State) bool

	// SetPlanningVolume installs axis-aligned bounds on positional subspaces only.
	SetPlanningVolume(min, max r3.Vector)

	// Signature is a stable digest of the space's content, usable as a cache key.
	Signature() []int

	DefaultSampler() StateSampler
	AllocSampler() StateSampler
	SetStateSamplerAllocator(alloc StateSamplerAllocator)

	RegisterDefaultProjection(pe ProjectionEvaluator)
	DefaultProjection() ProjectionEvaluator

	CopyToRobotState(dst *model.RobotState, src *State) error
	CopyFromRobotState(dst *State, src *model.RobotState) error
}

// ModelStateSpace is a joint-space StateSpace over a model's variables and limits.
type ModelStateSpace struct {
	mu                sync.RWMutex
	name              string
	model             *model.Model
	limits            []model.Limit
	positional        []int
	samplerAlloc      StateSamplerAllocator
	defaultProjection ProjectionEvaluator
	randseed          *rand.Rand
	randMu            sync.Mutex
}

// NewModelStateSpace creates a state space over the given model.
func NewModelStateSpace(name string, m *model.Model, seed int64) *ModelStateSpace {
	//nolint:gosec
	return &ModelStateSpace{
		name:       name,
		model:      m,
		limits:     m.DoF(),
		positional: m.PositionalIndices(),
		randseed:   rand.New(rand.NewSource(seed)),
	}
}

// Name returns the space name.
func (ss *ModelStateSpace) Name() string {
	return ss.name
}

// Dimension returns the number of variables in the space.
func (ss *ModelStateSpace) Dimension() int {
	return len(ss.limits)
}

// Model returns the underlying kinematic model.
func (ss *ModelStateSpace) Model() *model.Model {
	return ss.model
}

func (ss *ModelStateSpace) newState() *State {
	return &State{values: make([]float64, len(ss.limits))}
}

// CopyState overwrites dst with src.
func (ss *ModelStateSpace) CopyState(dst, src *State) {
	copy(dst.values, src.values)
}

// Distance returns the L2 norm between two states.
func (ss *ModelStateSpace) Distance(a, b *State) float64 {
	diff := make([]float64, len(a.values))
	floats.SubTo(diff, a.values, b.values)
	return floats.Norm(diff, 2)
}

// Interpolate writes the state the given fraction of the way from one state to another.
func (ss *ModelStateSpace) Interpolate(from, to *State, by float64, out *State) {
	for i, v := range from.values {
		out.values[i] = v + (to.values[i]-v)*by
	}
}

// SatisfiesBounds reports whether every variable is within its limit.
func (ss *ModelStateSpace) SatisfiesBounds(s *State) bool {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	for i, v := range s.values {
		if v < ss.limits[i].Min || v > ss.limits[i].Max {
			return false
		}
	}
	return true
}

// SetPlanningVolume bounds the positional subspace variables. Non-positional
// variables are unaffected.
func (ss *ModelStateSpace) SetPlanningVolume(min, max r3.Vector) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	bounds := []model.Limit{{Min: min.X, Max: max.X}, {Min: min.Y, Max: max.Y}, {Min: min.Z, Max: max.Z}}
	for i, idx := range ss.positional {
		ss.limits[idx] = bounds[i%3]
	}
}

// Signature digests the space dimension and limits. Two spaces with the same
// content produce the same signature.
func (ss *ModelStateSpace) Signature() []int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	sig := make([]int, 0, 1+2*len(ss.limits))
	sig = append(sig, len(ss.limits))
	for _, lim := range ss.limits {
		sig = append(sig, quantizeLimit(lim.Min), quantizeLimit(lim.Max))
	}
	return sig
}

func quantizeLimit(v float64) int {
	if math.IsInf(v, 1) {
		return math.MaxInt32
	}
	if math.IsInf(v, -1) {
		return math.MinInt32
	}
	return int(math.Round(v * 1e6))
}

// DefaultSampler returns a uniform sampler over the space bounds.
func (ss *ModelStateSpace) DefaultSampler() StateSampler {
	ss.randMu.Lock()
	seed := ss.randseed.Int63()
	ss.randMu.Unlock()
	//nolint:gosec
	return &uniformStateSampler{space: ss, randseed: rand.New(rand.NewSource(seed))}
}

// AllocSampler returns a sampler from the installed allocator, or the default
// sampler if none is installed.
func (ss *ModelStateSpace) AllocSampler() StateSampler {
	ss.mu.RLock()
	alloc := ss.samplerAlloc
	ss.mu.RUnlock()
	if alloc != nil {
		if sampler := alloc(ss); sampler != nil {
			return sampler
		}
	}
	return ss.DefaultSampler()
}

// SetStateSamplerAllocator installs the sampler allocator used by AllocSampler.
func (ss *ModelStateSpace) SetStateSamplerAllocator(alloc StateSamplerAllocator) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.samplerAlloc = alloc
}

// RegisterDefaultProjection installs the space's default projection.
func (ss *ModelStateSpace) RegisterDefaultProjection(pe ProjectionEvaluator) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.defaultProjection = pe
}

// DefaultProjection returns the registered default projection, or nil.
func (ss *ModelStateSpace) DefaultProjection() ProjectionEvaluator {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.defaultProjection
}

// CopyToRobotState round-trips a space state into a robot state.
func (ss *ModelStateSpace) CopyToRobotState(dst *model.RobotState, src *State) error {
	if len(src.values) != len(dst.Positions()) {
		return errors.Errorf("state dimension %d does not match robot state dimension %d", len(src.values), len(dst.Positions()))
	}
	return dst.SetPositions(model.FloatsToInputs(src.values))
}

// CopyFromRobotState round-trips a robot state into a space state.
func (ss *ModelStateSpace) CopyFromRobotState(dst *State, src *model.RobotState) error {
	if len(dst.values) != len(src.Positions()) {
		return errors.Errorf("robot state dimension %d does not match state dimension %d", len(src.Positions()), len(dst.values))
	}
	copy(dst.values, model.InputsToFloats(src.Positions()))
	return nil
}

type uniformStateSampler struct {
	space    *ModelStateSpace
	randseed *rand.Rand
}

func (s *uniformStateSampler) SampleUniform(out *State) {
	s.space.mu.RLock()
	defer s.space.mu.RUnlock()
	for i, lim := range s.space.limits {
		l, u := lim.Min, lim.Max
		if math.IsInf(l, -1) {
			l = -999
		}
		if math.IsInf(u, 1) {
			u = 999
		}
		out.values[i] = s.randseed.Float64()*(u-l) + l
	}
}
