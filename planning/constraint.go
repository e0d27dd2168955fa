package planning

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/viam-labs/strataplan/model"
)

// JointConstraint bounds one single-variable joint to an interval.
type JointConstraint struct {
	JointName string  `json:"joint_name"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
}

// PositionConstraint requires a link to lie within an axis-aligned box around a target.
type PositionConstraint struct {
	LinkName  string    `json:"link_name"`
	Target    r3.Vector `json:"target"`
	Tolerance r3.Vector `json:"tolerance"`
}

// Constraints is the message form of a constraint specification, used both as
// planner input and as a cache key for precomputed approximations.
type Constraints struct {
	Name     string               `json:"name"`
	Joint    []JointConstraint    `json:"joint,omitempty"`
	Position []PositionConstraint `json:"position,omitempty"`
}

// Empty reports whether the message names no constraints at all.
func (c *Constraints) Empty() bool {
	return c == nil || (len(c.Joint) == 0 && len(c.Position) == 0)
}

// Signature returns a stable digest of the message content, for cache keying.
func (c *Constraints) Signature() string {
	if c == nil {
		return ""
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Sprintf("unmarshalable:%s", c.Name)
	}
	return string(data)
}

// MergeConstraints combines two constraint messages; either may be nil.
func MergeConstraints(a, b *Constraints) *Constraints {
	merged := &Constraints{}
	if a != nil {
		merged.Name = a.Name
		merged.Joint = append(merged.Joint, a.Joint...)
		merged.Position = append(merged.Position, a.Position...)
	}
	if b != nil {
		if merged.Name == "" {
			merged.Name = b.Name
		}
		merged.Joint = append(merged.Joint, b.Joint...)
		merged.Position = append(merged.Position, b.Position...)
	}
	return merged
}

// Scene is the planning scene collaborator: it names the environment and decides
// whether a robot state is free of collisions.
type Scene interface {
	Name() string
	Valid(state *model.RobotState) bool
}

type jointIntervalCheck struct {
	offset   int
	min, max float64
}

type positionBoxCheck struct {
	link      model.Link
	target    r3.Vector
	tolerance r3.Vector
}

// KinematicConstraintSet is a compiled set of constraints evaluated against
// complete robot states. It does not consult a scene.
type KinematicConstraintSet struct {
	m        *model.Model
	msgs     []*Constraints
	joint    []jointIntervalCheck
	position []positionBoxCheck
	skipped  int
}

// NewKinematicConstraintSet creates an empty set bound to a model.
func NewKinematicConstraintSet(m *model.Model) *KinematicConstraintSet {
	return &KinematicConstraintSet{m: m}
}

// Add compiles a constraint message into the set. Constraints naming unknown
// joints or links are counted as skipped rather than failing the set.
func (k *KinematicConstraintSet) Add(msg *Constraints) {
	if msg == nil {
		return
	}
	k.msgs = append(k.msgs, msg)
	for _, jc := range msg.Joint {
		offset, count, err := k.m.JointOffset(jc.JointName)
		if err != nil || count != 1 {
			k.skipped++
			continue
		}
		k.joint = append(k.joint, jointIntervalCheck{offset: offset, min: jc.Min, max: jc.Max})
	}
	for _, pc := range msg.Position {
		link, ok := k.m.Link(pc.LinkName)
		if !ok {
			k.skipped++
			continue
		}
		k.position = append(k.position, positionBoxCheck{link: link, target: pc.Target, tolerance: pc.Tolerance})
	}
}

// Empty reports whether the set compiled no checks.
func (k *KinematicConstraintSet) Empty() bool {
	return len(k.joint) == 0 && len(k.position) == 0
}

// AllConstraints returns the merged message form of everything added to the set.
func (k *KinematicConstraintSet) AllConstraints() *Constraints {
	merged := &Constraints{}
	for _, msg := range k.msgs {
		merged = MergeConstraints(merged, msg)
	}
	return merged
}

// Satisfied reports whether the state meets every compiled check.
func (k *KinematicConstraintSet) Satisfied(state *model.RobotState) bool {
	positions := state.Positions()
	for _, jc := range k.joint {
		v := positions[jc.offset].Value
		if v < jc.min || v > jc.max {
			return false
		}
	}
	for _, pc := range k.position {
		pos := pc.link.Position(positions)
		if math.Abs(pos.X-pc.target.X) > pc.tolerance.X ||
			math.Abs(pos.Y-pc.target.Y) > pc.tolerance.Y ||
			math.Abs(pos.Z-pc.target.Z) > pc.tolerance.Z {
			return false
		}
	}
	return true
}

// Distance returns how far the state is from satisfying the set, zero when satisfied.
func (k *KinematicConstraintSet) Distance(state *model.RobotState) float64 {
	positions := state.Positions()
	dist := 0.
	for _, jc := range k.joint {
		v := positions[jc.offset].Value
		if v < jc.min {
			dist += jc.min - v
		} else if v > jc.max {
			dist += v - jc.max
		}
	}
	for _, pc := range k.position {
		pos := pc.link.Position(positions)
		dist += math.Max(0, math.Abs(pos.X-pc.target.X)-pc.tolerance.X)
		dist += math.Max(0, math.Abs(pos.Y-pc.target.Y)-pc.tolerance.Y)
		dist += math.Max(0, math.Abs(pos.Z-pc.target.Z)-pc.tolerance.Z)
	}
	return dist
}

// ConstraintSampler produces robot states satisfying one constraint set. It is
// built externally by a ConstraintSamplerManager.
type ConstraintSampler interface {
	// Sample writes a satisfying state near the seed, within the attempt bound.
	Sample(out, seed *model.RobotState, maxAttempts int) bool
	// Project moves the given state onto the constraint manifold in place.
	Project(state *model.RobotState, maxAttempts int) bool
}

// ConstraintSamplerManager selects a sampler for a group and constraint message,
// or nil when the constraints cannot be sampled.
type ConstraintSamplerManager interface {
	SelectSampler(scene Scene, group string, constraints *Constraints) ConstraintSampler
}

// ValidConstrainedSampler draws and projects space states for one Follower
// stratum. Both operations must produce states satisfying the stratum's
// constraints; validity is checked by the caller.
type ValidConstrainedSampler interface {
	Sample(out *State) bool
	Project(state *State) bool
}

// ConstraintApproximation is a precomputed approximation of one constraint
// manifold, offering a specialized sampler allocator.
type ConstraintApproximation interface {
	StateSamplerAllocator(msg *Constraints) StateSamplerAllocator
}

// ConstraintsApproximationLibrary looks approximations up by constraint message.
type ConstraintsApproximationLibrary interface {
	ConstraintApproximation(msg *Constraints) ConstraintApproximation
}
