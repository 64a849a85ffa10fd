package qhash

import (
	"fmt"
	"math"

	"github.com/fourtytwo42/qhash/pkg/quantum"
)

// nibbleAngle maps a nibble to its rotation parameter. The sign and the
// pi/16 step are consensus constants.
func nibbleAngle(n byte) float64 {
	return -float64(n) * math.Pi / 16
}

// BuildCircuit emits the layered QHash circuit for the given nibbles.
//
// Each layer applies, per qubit in ascending order, a Y rotation parameterized
// by nibble[(2l*Q+i) mod M] followed by a Z rotation parameterized by
// nibble[((2l+1)*Q+i) mod M], then a linear CNOT chain i -> i+1.
func BuildCircuit(nibbles []byte, qubits, layers int) (*quantum.Program, error) {
	m := len(nibbles)
	if m == 0 {
		return nil, ErrEmptyNibbles
	}
	if qubits <= 0 || layers < 0 {
		return nil, fmt.Errorf("qhash: invalid circuit shape %d qubits x %d layers", qubits, layers)
	}

	p := quantum.NewProgram(qubits, layers*(3*qubits-1))
	for l := 0; l < layers; l++ {
		for i := 0; i < qubits; i++ {
			p.Rotate(quantum.AxisY, nibbleAngle(nibbles[(2*l*qubits+i)%m]), i)
			p.Rotate(quantum.AxisZ, nibbleAngle(nibbles[((2*l+1)*qubits+i)%m]), i)
		}
		for i := 0; i < qubits-1; i++ {
			p.CNOT(i, i+1)
		}
	}
	return p, nil
}
