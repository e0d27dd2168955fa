package planning

import (
	"sync"

	"github.com/viam-labs/strataplan/model"
)

// contextValidityChecker validates states against the context's scene and path
// constraints. Each planning thread shares one instance; the scratch robot
// state is guarded.
type contextValidityChecker struct {
	pc      *PlanningContext
	mu      sync.Mutex
	work    *model.RobotState
	verbose bool
}

func newContextValidityChecker(pc *PlanningContext) *contextValidityChecker {
	return &contextValidityChecker{pc: pc, work: model.NewRobotState(pc.spec.StateSpace.Model())}
}

func (c *contextValidityChecker) Valid(s *State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.pc.spec.StateSpace.CopyToRobotState(c.work, s); err != nil {
		return false
	}
	if scene := c.pc.PlanningScene(); scene != nil && !scene.Valid(c.work) {
		if c.verbose {
			c.pc.logger.Debugf("%s: state rejected by scene %q", c.pc.name, scene.Name())
		}
		return false
	}
	if pcs := c.pc.pathConstraints; pcs != nil && !pcs.Satisfied(c.work) {
		if c.verbose {
			c.pc.logger.Debugf("%s: state rejected by path constraints", c.pc.name)
		}
		return false
	}
	return true
}

func (c *contextValidityChecker) setVerbose(flag bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verbose = flag
}
