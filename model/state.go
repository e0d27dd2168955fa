package model

import "github.com/pkg/errors"

// RobotState is a complete snapshot of every variable of a model.
type RobotState struct {
	model     *Model
	positions []Input
}

// NewRobotState creates a zeroed state for the given model.
func NewRobotState(m *Model) *RobotState {
	return &RobotState{model: m, positions: make([]Input, len(m.DoF()))}
}

// Model returns the model this state belongs to.
func (s *RobotState) Model() *Model {
	return s.model
}

// Positions returns the state's variable values in the model's DoF order.
func (s *RobotState) Positions() []Input {
	return s.positions
}

// SetPositions replaces the state's variable values.
func (s *RobotState) SetPositions(inputs []Input) error {
	if len(inputs) != len(s.positions) {
		return errors.Errorf("expected %d inputs for model %q, got %d", len(s.positions), s.model.Name(), len(inputs))
	}
	copy(s.positions, inputs)
	return nil
}

// CopyFrom overwrites this state with another state of the same model.
func (s *RobotState) CopyFrom(other *RobotState) {
	copy(s.positions, other.positions)
}

// Clone returns a deep copy of the state.
func (s *RobotState) Clone() *RobotState {
	positions := make([]Input, len(s.positions))
	copy(positions, s.positions)
	return &RobotState{model: s.model, positions: positions}
}

// JointPositions returns the values of the named joint's variables.
func (s *RobotState) JointPositions(jointName string) ([]Input, error) {
	offset, count, err := s.model.JointOffset(jointName)
	if err != nil {
		return nil, err
	}
	return s.positions[offset : offset+count], nil
}
