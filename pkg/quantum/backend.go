package quantum

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrResource is returned when a backend cannot allocate its working state
	ErrResource = errors.New("quantum backend resource allocation failed")

	// ErrBackend is returned when a backend fails while running a program
	ErrBackend = errors.New("quantum backend failure")

	// ErrInvalidCircuit is returned for malformed circuit programs
	ErrInvalidCircuit = errors.New("invalid quantum circuit")

	// ErrSessionClosed is returned when a closed session is used
	ErrSessionClosed = errors.New("quantum session closed")

	// ErrUnknownBackend is returned by NewBackend for unregistered names
	ErrUnknownBackend = errors.New("unknown quantum backend")
)

// DefaultBackend is the backend used when none is configured.
const DefaultBackend = "statevec"

// Backend represents a quantum simulation backend
type Backend interface {
	// Name returns the backend name
	Name() string

	// NewSession allocates an independent simulation session over the given
	// number of qubits. Sessions are never shared between hash instances.
	NewSession(qubits int) (Session, error)
}

// Session is one simulation context with its own working memory.
//
// Run executes the program from the all-zero computational basis state and
// returns the Pauli-Z expectation of every qubit, index-aligned with the
// qubit number. A Session is not safe for concurrent use.
type Session interface {
	Run(program *Program) ([]float64, error)

	// Reset returns the session to the all-zero state.
	Reset() error

	// Close releases the session's working memory.
	Close() error
}

// Factory constructs a backend.
type Factory func() (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		DefaultBackend: func() (Backend, error) { return NewStateVectorBackend(), nil },
	}
)

// Register makes a backend available to NewBackend under the given name.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	registry[strings.ToLower(name)] = factory
}

// NewBackend creates a new quantum backend by name
func NewBackend(name string) (Backend, error) {
	if name == "" {
		name = DefaultBackend
	}
	registryMu.RLock()
	factory, ok := registry[strings.ToLower(name)]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return factory()
}

// Backends lists the registered backend names.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
