// Package model describes robot kinematic models: named joints with motion limits,
// named links with position-only forward kinematics, and complete robot states that
// snapshot every variable of a model at once.
package model

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// Joint is a named group of model variables with limits. A joint may have zero
// variables (a fixed joint), one (revolute or prismatic), or several (a free base).
type Joint struct {
	name       string
	limits     []Limit
	positional bool
}

// NewJoint creates a joint with the given per-variable limits.
func NewJoint(name string, limits ...Limit) Joint {
	return Joint{name: name, limits: limits}
}

// NewPositionalJoint creates a joint whose variables are cartesian coordinates,
// in x, y, z order. Positional joints are the only ones affected by a planning volume.
func NewPositionalJoint(name string, limits ...Limit) Joint {
	return Joint{name: name, limits: limits, positional: true}
}

// Name returns the joint name.
func (j Joint) Name() string {
	return j.name
}

// DoF returns the limits of each variable of the joint. Its length is the
// variable count.
func (j Joint) DoF() []Limit {
	return j.limits
}

// Positional reports whether the joint's variables are cartesian coordinates.
func (j Joint) Positional() bool {
	return j.positional
}

// Link is a named rigid body whose position is a function of the model inputs.
type Link struct {
	name string
	fk   func([]Input) r3.Vector
}

// NewLink creates a link. The fk callback maps a full set of model inputs to the
// link's position; it may be nil for links whose position is never queried.
func NewLink(name string, fk func([]Input) r3.Vector) Link {
	return Link{name: name, fk: fk}
}

// Name returns the link name.
func (l Link) Name() string {
	return l.name
}

// Position computes the link position for the given complete set of model inputs.
func (l Link) Position(inputs []Input) r3.Vector {
	if l.fk == nil {
		return r3.Vector{}
	}
	return l.fk(inputs)
}

// Model is a robot kinematic model: an ordered list of joints plus the links
// attached to them.
type Model struct {
	name   string
	joints []Joint
	links  []Link
}

// NewModel creates a model from joints and links. Joint order determines the
// variable order of the model's DoF.
func NewModel(name string, joints []Joint, links []Link) *Model {
	return &Model{name: name, joints: joints, links: links}
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.name
}

// DoF returns the limits of all variables across all joints, in joint declaration order.
func (m *Model) DoF() []Limit {
	limits := make([]Limit, 0)
	for _, j := range m.joints {
		limits = append(limits, j.limits...)
	}
	return limits
}

// Joints returns the model's joints in declaration order.
func (m *Model) Joints() []Joint {
	return m.joints
}

// Joint looks a joint up by name.
func (m *Model) Joint(name string) (Joint, bool) {
	for _, j := range m.joints {
		if j.name == name {
			return j, true
		}
	}
	return Joint{}, false
}

// HasJoint reports whether the named joint exists.
func (m *Model) HasJoint(name string) bool {
	_, ok := m.Joint(name)
	return ok
}

// Link looks a link up by name.
func (m *Model) Link(name string) (Link, bool) {
	for _, l := range m.links {
		if l.name == name {
			return l, true
		}
	}
	return Link{}, false
}

// HasLink reports whether the named link exists.
func (m *Model) HasLink(name string) bool {
	_, ok := m.Link(name)
	return ok
}

// JointOffset returns the index of the named joint's first variable within the
// model's DoF ordering, along with its variable count.
func (m *Model) JointOffset(name string) (int, int, error) {
	offset := 0
	for _, j := range m.joints {
		if j.name == name {
			return offset, len(j.limits), nil
		}
		offset += len(j.limits)
	}
	return 0, 0, errors.Errorf("joint %q not found in model %q", name, m.name)
}

// PositionalIndices returns the DoF indices belonging to positional joints, in order.
func (m *Model) PositionalIndices() []int {
	indices := make([]int, 0)
	offset := 0
	for _, j := range m.joints {
		if j.positional {
			for i := range j.limits {
				indices = append(indices, offset+i)
			}
		}
		offset += len(j.limits)
	}
	return indices
}
