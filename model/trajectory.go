package model

// Waypoint is one state along a trajectory, with the time to dwell at it.
type Waypoint struct {
	State *RobotState
	Dwell float64
}

// Trajectory is an ordered list of robot states.
type Trajectory struct {
	waypoints []Waypoint
}

// Clear removes all waypoints.
func (t *Trajectory) Clear() {
	t.waypoints = t.waypoints[:0]
}

// AddSuffixWaypoint appends a state, cloned, with the given dwell time.
func (t *Trajectory) AddSuffixWaypoint(state *RobotState, dwell float64) {
	t.waypoints = append(t.waypoints, Waypoint{State: state.Clone(), Dwell: dwell})
}

// Len returns the number of waypoints.
func (t *Trajectory) Len() int {
	return len(t.waypoints)
}

// Waypoint returns the i-th waypoint.
func (t *Trajectory) Waypoint(i int) Waypoint {
	return t.waypoints[i]
}
