package model

import (
	"math"
	"math/rand"
)

// Input wraps one variable of a mutable joint, e.g. a joint angle or a base coordinate.
//   - revolute inputs should be in radians.
//   - prismatic inputs should be in mm.
type Input struct {
	Value float64
}

// FloatsToInputs wraps a slice of floats in Inputs.
func FloatsToInputs(floats []float64) []Input {
	inputs := make([]Input, len(floats))
	for i, f := range floats {
		inputs[i] = Input{f}
	}
	return inputs
}

// InputsToFloats unwraps Inputs to raw floats.
func InputsToFloats(inputs []Input) []float64 {
	floats := make([]float64, len(inputs))
	for i, in := range inputs {
		floats[i] = in.Value
	}
	return floats
}

// InterpolateInputs returns a set of inputs that are the specified percent between the two given sets of inputs.
func InterpolateInputs(from, to []Input, by float64) []Input {
	interp := make([]Input, 0, len(from))
	for i, j := range from {
		interp = append(interp, Input{j.Value + ((to[i].Value - j.Value) * by)})
	}
	return interp
}

// Limit represents the bounds of motion for one variable of a joint.
type Limit struct {
	Min float64
	Max float64
}

// RandomInputs produces a random set of in-bounds inputs for the given model.
func RandomInputs(m *Model, rSeed *rand.Rand) []Input {
	if rSeed == nil {
		//nolint:gosec
		rSeed = rand.New(rand.NewSource(1))
	}
	dof := m.DoF()
	pos := make([]Input, 0, len(dof))
	for _, lim := range dof {
		l, u := lim.Min, lim.Max

		// Default to [-999,999] as range if limits are infinite
		if l == math.Inf(-1) {
			l = -999
		}
		if u == math.Inf(1) {
			u = 999
		}
		pos = append(pos, Input{rSeed.Float64()*(u-l) + l})
	}
	return pos
}
