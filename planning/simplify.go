package planning

import "math/rand"

// shortcutPath repeatedly attempts to replace random subsections of the path
// with direct motions, keeping any replacement that passes the motion check.
// Runs until the termination condition fires or fewer than three states remain.
func shortcutPath(path *PathGeometric, si *SpaceInformation, ptc *TerminationCondition, randseed *rand.Rand) {
	for !ptc.Fired() {
		if path.StateCount() < 3 {
			return
		}
		i := randseed.Intn(path.StateCount() - 2)
		j := i + 2 + randseed.Intn(path.StateCount()-i-2)
		if si.CheckMotion(path.states[i], path.states[j]) {
			si.FreeStates(path.states[i+1 : j])
			path.states = append(path.states[:i+1], path.states[j:]...)
		}
	}
}
