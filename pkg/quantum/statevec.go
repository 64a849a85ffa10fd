package quantum

import (
	"fmt"
	"math"
)

// MaxStateVectorQubits bounds the dense amplitude buffer to 2^24 entries (256 MiB).
const MaxStateVectorQubits = 24

// StateVectorBackend simulates circuits on a dense complex128 amplitude vector.
// Qubit q corresponds to bit q of the amplitude index.
type StateVectorBackend struct{}

// NewStateVectorBackend creates the dense state-vector backend
func NewStateVectorBackend() *StateVectorBackend {
	return &StateVectorBackend{}
}

// Name returns the backend name
func (b *StateVectorBackend) Name() string {
	return DefaultBackend
}

// NewSession allocates a zero-initialized state vector
func (b *StateVectorBackend) NewSession(qubits int) (Session, error) {
	if qubits <= 0 || qubits > MaxStateVectorQubits {
		return nil, fmt.Errorf("%w: cannot allocate state vector for %d qubits (max %d)",
			ErrResource, qubits, MaxStateVectorQubits)
	}
	s := &stateVectorSession{
		qubits: qubits,
		amps:   make([]complex128, 1<<qubits),
		exps:   make([]float64, qubits),
	}
	s.amps[0] = 1
	return s, nil
}

type stateVectorSession struct {
	qubits int
	amps   []complex128
	exps   []float64
	closed bool
}

func (s *stateVectorSession) Run(program *Program) ([]float64, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if err := program.Validate(); err != nil {
		return nil, err
	}
	if program.Qubits != s.qubits {
		return nil, fmt.Errorf("%w: program has %d qubits, session has %d",
			ErrInvalidCircuit, program.Qubits, s.qubits)
	}
	s.zero()

	for _, g := range program.Gates {
		switch g.Kind {
		case GateRotation:
			s.rotate(g.Axis, g.Angle, g.Target)
		case GateCNOT:
			s.cnot(g.Control, g.Target)
		}
	}

	s.expectations()
	out := make([]float64, s.qubits)
	for q, e := range s.exps {
		if math.IsNaN(e) || e < -1-1e-9 || e > 1+1e-9 {
			return nil, fmt.Errorf("%w: expectation of qubit %d is %v", ErrBackend, q, e)
		}
		out[q] = e
	}
	return out, nil
}

func (s *stateVectorSession) Reset() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.zero()
	return nil
}

func (s *stateVectorSession) Close() error {
	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true
	s.amps = nil
	s.exps = nil
	return nil
}

func (s *stateVectorSession) zero() {
	clear(s.amps)
	s.amps[0] = 1
}

// Every product below is wrapped in an explicit float64 conversion so the
// compiler cannot fuse it into a multiply-add; results must not depend on
// the target architecture.

// rotate applies exp(i*theta*P) to qubit q.
func (s *stateVectorSession) rotate(axis Axis, theta float64, q int) {
	c, sn := math.Cos(theta), math.Sin(theta)
	bit := 1 << q
	n := len(s.amps)

	for base := 0; base < n; base += bit << 1 {
		for i := base; i < base+bit; i++ {
			j := i | bit
			r0, i0 := real(s.amps[i]), imag(s.amps[i])
			r1, i1 := real(s.amps[j]), imag(s.amps[j])

			switch axis {
			case AxisX:
				// [[c, i*s], [i*s, c]]
				s.amps[i] = complex(float64(c*r0)-float64(sn*i1), float64(c*i0)+float64(sn*r1))
				s.amps[j] = complex(float64(c*r1)-float64(sn*i0), float64(c*i1)+float64(sn*r0))
			case AxisY:
				// [[c, s], [-s, c]]
				s.amps[i] = complex(float64(c*r0)+float64(sn*r1), float64(c*i0)+float64(sn*i1))
				s.amps[j] = complex(float64(c*r1)-float64(sn*r0), float64(c*i1)-float64(sn*i0))
			case AxisZ:
				// diag(e^{i*theta}, e^{-i*theta})
				s.amps[i] = complex(float64(c*r0)-float64(sn*i0), float64(c*i0)+float64(sn*r0))
				s.amps[j] = complex(float64(c*r1)+float64(sn*i1), float64(c*i1)-float64(sn*r1))
			}
		}
	}
}

func (s *stateVectorSession) cnot(control, target int) {
	cbit, tbit := 1<<control, 1<<target
	for i := range s.amps {
		if i&cbit != 0 && i&tbit == 0 {
			j := i | tbit
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	}
}

// expectations computes <Z_q> for every qubit, summing in ascending index order.
func (s *stateVectorSession) expectations() {
	clear(s.exps)
	for k, a := range s.amps {
		re, im := real(a), imag(a)
		p := float64(re*re) + float64(im*im)
		if p == 0 {
			continue
		}
		for q := range s.exps {
			if k&(1<<q) == 0 {
				s.exps[q] += p
			} else {
				s.exps[q] -= p
			}
		}
	}
}
