package quantum

import (
	"fmt"
	"math"
	"strings"
)

// GateKind identifies the instruction type of a gate
type GateKind uint8

const (
	// GateRotation applies exp(i*Angle*P) for the Pauli axis P on Target
	GateRotation GateKind = iota

	// GateCNOT applies X on Target controlled by Control
	GateCNOT
)

// Axis is a Pauli axis
type Axis uint8

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	default:
		return fmt.Sprintf("Axis(%d)", uint8(a))
	}
}

// Gate is a single circuit instruction
type Gate struct {
	Kind    GateKind
	Axis    Axis
	Angle   float64
	Control int
	Target  int
}

func (g Gate) String() string {
	switch g.Kind {
	case GateRotation:
		return fmt.Sprintf("R%s(%.6f) q[%d]", g.Axis, g.Angle, g.Target)
	case GateCNOT:
		return fmt.Sprintf("CNOT q[%d], q[%d]", g.Control, g.Target)
	default:
		return fmt.Sprintf("Gate(%d)", uint8(g.Kind))
	}
}

// Program is an ordered gate list over a fixed number of qubits
type Program struct {
	Qubits int
	Gates  []Gate
}

// NewProgram creates an empty program with room for capacity gates
func NewProgram(qubits, capacity int) *Program {
	return &Program{Qubits: qubits, Gates: make([]Gate, 0, capacity)}
}

// Rotate appends a Pauli rotation exp(i*angle*P) on target
func (p *Program) Rotate(axis Axis, angle float64, target int) {
	p.Gates = append(p.Gates, Gate{Kind: GateRotation, Axis: axis, Angle: angle, Target: target})
}

// CNOT appends a controlled-NOT
func (p *Program) CNOT(control, target int) {
	p.Gates = append(p.Gates, Gate{Kind: GateCNOT, Control: control, Target: target})
}

// Counts returns the number of rotation and CNOT instructions
func (p *Program) Counts() (rotations, cnots int) {
	for _, g := range p.Gates {
		switch g.Kind {
		case GateRotation:
			rotations++
		case GateCNOT:
			cnots++
		}
	}
	return rotations, cnots
}

// Validate checks that every instruction is well formed
func (p *Program) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: nil program", ErrInvalidCircuit)
	}
	if p.Qubits <= 0 {
		return fmt.Errorf("%w: qubit count %d", ErrInvalidCircuit, p.Qubits)
	}
	for i, g := range p.Gates {
		if g.Target < 0 || g.Target >= p.Qubits {
			return fmt.Errorf("%w: gate %d target %d out of range", ErrInvalidCircuit, i, g.Target)
		}
		switch g.Kind {
		case GateRotation:
			if g.Axis > AxisZ {
				return fmt.Errorf("%w: gate %d has unknown axis %d", ErrInvalidCircuit, i, g.Axis)
			}
			if math.IsNaN(g.Angle) || math.IsInf(g.Angle, 0) {
				return fmt.Errorf("%w: gate %d has non-finite angle", ErrInvalidCircuit, i)
			}
		case GateCNOT:
			if g.Control < 0 || g.Control >= p.Qubits {
				return fmt.Errorf("%w: gate %d control %d out of range", ErrInvalidCircuit, i, g.Control)
			}
			if g.Control == g.Target {
				return fmt.Errorf("%w: gate %d control equals target", ErrInvalidCircuit, i)
			}
		default:
			return fmt.Errorf("%w: gate %d has unknown kind %d", ErrInvalidCircuit, i, g.Kind)
		}
	}
	return nil
}

// String renders the program one instruction per line
func (p *Program) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "qubits %d\n", p.Qubits)
	for _, g := range p.Gates {
		b.WriteString(g.String())
		b.WriteByte('\n')
	}
	return b.String()
}
