package model

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func testModel() *Model {
	limit := Limit{Min: -math.Pi, Max: math.Pi}
	joints := []Joint{
		NewPositionalJoint("base", Limit{-5, 5}, Limit{-5, 5}, Limit{0, 0}),
		NewJoint("shoulder", limit),
		NewJoint("wrist_fixed"),
		NewJoint("elbow", limit),
	}
	links := []Link{
		NewLink("ee", func(inputs []Input) r3.Vector {
			return r3.Vector{X: inputs[0].Value + inputs[3].Value, Y: inputs[1].Value + inputs[4].Value}
		}),
	}
	return NewModel("bot", joints, links)
}

func TestModelDoF(t *testing.T) {
	m := testModel()
	test.That(t, len(m.DoF()), test.ShouldEqual, 5)

	offset, count, err := m.JointOffset("shoulder")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, offset, test.ShouldEqual, 3)
	test.That(t, count, test.ShouldEqual, 1)

	offset, count, err = m.JointOffset("wrist_fixed")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, offset, test.ShouldEqual, 4)
	test.That(t, count, test.ShouldEqual, 0)

	_, _, err = m.JointOffset("nope")
	test.That(t, err, test.ShouldNotBeNil)
}

func TestPositionalIndices(t *testing.T) {
	m := testModel()
	test.That(t, m.PositionalIndices(), test.ShouldResemble, []int{0, 1, 2})
}

func TestModelLookups(t *testing.T) {
	m := testModel()
	test.That(t, m.HasJoint("elbow"), test.ShouldBeTrue)
	test.That(t, m.HasJoint("ee"), test.ShouldBeFalse)
	test.That(t, m.HasLink("ee"), test.ShouldBeTrue)
	test.That(t, m.HasLink("elbow"), test.ShouldBeFalse)
}

func TestRobotState(t *testing.T) {
	m := testModel()
	s := NewRobotState(m)
	test.That(t, len(s.Positions()), test.ShouldEqual, 5)

	err := s.SetPositions(FloatsToInputs([]float64{1, 2, 0, 0.5, -0.5}))
	test.That(t, err, test.ShouldBeNil)

	c := s.Clone()
	c.Positions()[0] = Input{9}
	test.That(t, s.Positions()[0].Value, test.ShouldAlmostEqual, 1)

	jp, err := s.JointPositions("elbow")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(jp), test.ShouldEqual, 1)
	test.That(t, jp[0].Value, test.ShouldAlmostEqual, -0.5)

	err = s.SetPositions(FloatsToInputs([]float64{1}))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestInterpolateInputs(t *testing.T) {
	from := FloatsToInputs([]float64{0, 0})
	to := FloatsToInputs([]float64{1, -2})
	mid := InterpolateInputs(from, to, 0.5)
	test.That(t, mid[0].Value, test.ShouldAlmostEqual, 0.5)
	test.That(t, mid[1].Value, test.ShouldAlmostEqual, -1)
}

func TestLinkPosition(t *testing.T) {
	m := testModel()
	link, ok := m.Link("ee")
	test.That(t, ok, test.ShouldBeTrue)
	pos := link.Position(FloatsToInputs([]float64{1, 2, 0, 0.5, -0.5}))
	test.That(t, pos.X, test.ShouldAlmostEqual, 1.5)
	test.That(t, pos.Y, test.ShouldAlmostEqual, 1.5)
}

func TestTrajectory(t *testing.T) {
	m := testModel()
	var traj Trajectory
	s := NewRobotState(m)
	traj.AddSuffixWaypoint(s, 0)
	test.That(t, traj.Len(), test.ShouldEqual, 1)

	// waypoints are cloned in
	s.Positions()[0] = Input{3}
	test.That(t, traj.Waypoint(0).State.Positions()[0].Value, test.ShouldAlmostEqual, 0)

	traj.Clear()
	test.That(t, traj.Len(), test.ShouldEqual, 0)
}
