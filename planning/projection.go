package planning

import (
	"strings"
	"sync"

	"github.com/viam-labs/strataplan/model"
)

// setProjectionEvaluator parses a projection description and registers the
// result as the state space's default projection. Malformed descriptions are
// logged and skipped.
func (pc *PlanningContext) setProjectionEvaluator(peval string) {
	if pc.spec.StateSpace == nil {
		pc.logger.Error("No state space is configured yet")
		return
	}
	if pe := pc.projectionEvaluator(peval); pe != nil {
		pc.spec.StateSpace.RegisterDefaultProjection(pe)
	}
}

// projectionEvaluator parses the two accepted textual forms:
//
//	link(<name>)
//	joints(<name>[,<name>...])
//
// Whitespace inside joints(...) is equivalent to commas. Anything else is an
// error and yields no evaluator.
func (pc *PlanningContext) projectionEvaluator(peval string) ProjectionEvaluator {
	m := pc.spec.StateSpace.Model()
	switch {
	case strings.HasPrefix(peval, "link(") && strings.HasSuffix(peval, ")"):
		linkName := peval[5 : len(peval)-1]
		link, ok := m.Link(linkName)
		if !ok {
			pc.logger.Errorf("Attempted to set projection evaluator with respect to position of link %q, "+
				"but that link is not known to the kinematic model.", linkName)
			return nil
		}
		return &linkPoseProjection{space: pc.spec.StateSpace, link: link}
	case strings.HasPrefix(peval, "joints(") && strings.HasSuffix(peval, ")"):
		names := strings.FieldsFunc(peval[7:len(peval)-1], func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		var offsets []jointVariableRange
		dim := 0
		for _, name := range names {
			if !m.HasJoint(name) {
				pc.logger.Errorf("%s: Attempted to set projection evaluator with respect to value of joint %q, "+
					"but that joint is not known to the group %q.", pc.name, name, pc.spec.Group)
				continue
			}
			offset, count, err := m.JointOffset(name)
			if err != nil {
				continue
			}
			if count == 0 {
				pc.logger.Warnf("%s: Ignoring joint %q in projection since it has 0 DOF", pc.name, name)
				continue
			}
			offsets = append(offsets, jointVariableRange{offset: offset, count: count})
			dim += count
		}
		if len(offsets) == 0 {
			pc.logger.Errorf("%s: No valid joints specified for joint projection", pc.name)
			return nil
		}
		return &jointValueProjection{offsets: offsets, dim: dim}
	default:
		pc.logger.Errorf("Unable to allocate projection evaluator based on description: %q", peval)
		return nil
	}
}

// linkPoseProjection projects a state onto the 3D position of one link.
type linkPoseProjection struct {
	space StateSpace
	link  model.Link
	mu    sync.Mutex
	work  *model.RobotState
}

func (p *linkPoseProjection) Dimension() int {
	return 3
}

func (p *linkPoseProjection) Project(s *State, out []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.work == nil {
		p.work = model.NewRobotState(p.space.Model())
	}
	if err := p.space.CopyToRobotState(p.work, s); err != nil {
		return
	}
	pos := p.link.Position(p.work.Positions())
	out[0], out[1], out[2] = pos.X, pos.Y, pos.Z
}

type jointVariableRange struct {
	offset int
	count  int
}

// jointValueProjection projects a state onto the concatenated variables of the
// listed joints, in the order they are listed.
type jointValueProjection struct {
	offsets []jointVariableRange
	dim     int
}

func (p *jointValueProjection) Dimension() int {
	return p.dim
}

func (p *jointValueProjection) Project(s *State, out []float64) {
	values := s.Values()
	i := 0
	for _, r := range p.offsets {
		for j := 0; j < r.count; j++ {
			out[i] = values[r.offset+j]
			i++
		}
	}
}
