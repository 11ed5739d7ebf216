package indicator

import (
	"sync"

	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

// Registry manages all available indicator computers.
type Registry struct {
	computers map[Kind]Computer
	mu        sync.RWMutex
}

// NewRegistry creates a registry with all built-in indicators registered.
func NewRegistry() *Registry {
	r := &Registry{
		computers: make(map[Kind]Computer),
		mu:        sync.RWMutex{},
	}

	// Built-ins never collide, ignore the duplicate check.
	_ = r.Register(NewSMA())
	_ = r.Register(NewRSI())
	_ = r.Register(NewATR())
	_ = r.Register(NewBollingerUpper())
	_ = r.Register(NewBollingerLower())
	_ = r.Register(NewRollingHigh())
	_ = r.Register(NewRollingLow())
	_ = r.Register(NewVolumeMean())
	_ = r.Register(NewPrevRange())

	return r
}

// Register adds a computer to the registry.
func (r *Registry) Register(computer Computer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	kind := computer.Kind()
	if _, exists := r.computers[kind]; exists {
		return errors.Newf(errors.ErrCodeIndicatorAlreadyExists,
			"indicator kind %s already registered", kind)
	}

	r.computers[kind] = computer

	return nil
}

// Get retrieves a computer by kind.
func (r *Registry) Get(kind Kind) (Computer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	computer, exists := r.computers[kind]
	if !exists {
		return nil, errors.Newf(errors.ErrCodeIndicatorNotFound,
			"indicator kind %s not found", kind)
	}

	return computer, nil
}

// ComputeAll computes every spec against the series and returns the resulting
// set keyed by canonical name. Duplicate specs are computed once.
func (r *Registry) ComputeAll(bars []types.PriceBar, specs []Spec) (Set, error) {
	set := make(Set, len(specs))

	for _, spec := range specs {
		name := spec.Name()
		if _, done := set[name]; done {
			continue
		}

		computer, err := r.Get(spec.Kind)
		if err != nil {
			return nil, err
		}

		series, err := computer.Compute(bars, spec)
		if err != nil {
			return nil, err
		}

		set[name] = series
	}

	return set, nil
}
