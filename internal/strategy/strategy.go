// Package strategy contains the pluggable signal generators and their
// registry. A strategy is a pure function of the price series, the
// pre-computed indicators and its parameters; no strategy retains state
// across calls. New strategies are added by implementing Strategy and
// registering it, never by modifying dispatch code.
package strategy

import (
	"sync"

	"github.com/moznion/go-optional"

	"github.com/quantlab-dev/ensembletrader/internal/indicator"
	"github.com/quantlab-dev/ensembletrader/internal/types"
	"github.com/quantlab-dev/ensembletrader/pkg/errors"
)

// Params is the free-form parameter mapping of one strategy configuration.
// YAML unmarshals numbers as int or float64; the accessors coerce both.
type Params map[string]any

// Float returns the parameter as float64, or def when absent.
func (p Params) Float(key string, def float64) float64 {
	value, ok := p.lookupFloat(key)
	if !ok {
		return def
	}

	return value
}

// Int returns the parameter as int, or def when absent.
func (p Params) Int(key string, def int) int {
	value, ok := p.lookupFloat(key)
	if !ok {
		return def
	}

	return int(value)
}

// FloatOption returns the parameter when present, None otherwise. Used for
// parameters whose absence disables a rule.
func (p Params) FloatOption(key string) optional.Option[float64] {
	value, ok := p.lookupFloat(key)
	if !ok {
		return optional.None[float64]()
	}

	return optional.Some(value)
}

// Merge returns a copy of p overlaid with other.
func (p Params) Merge(other Params) Params {
	merged := make(Params, len(p)+len(other))

	for key, value := range p {
		merged[key] = value
	}

	for key, value := range other {
		merged[key] = value
	}

	return merged
}

func (p Params) lookupFloat(key string) (float64, bool) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return 0, false
	}

	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Strategy is the common contract of every signal generator.
type Strategy interface {
	// Name returns the registry key of the strategy.
	Name() string
	// RequiredIndicators lists the indicator series the strategy reads for the
	// given parameters. The driver computes them before Generate runs.
	RequiredIndicators(params Params) []indicator.Spec
	// Generate returns one signal per bar, aligned to the series. Signals
	// inside an indicator warm-up window carry a not-available strength.
	Generate(bars []types.PriceBar, indicators indicator.Set, params Params) ([]types.Signal, error)
}

// Registry manages all available strategies by name.
type Registry struct {
	strategies map[string]Strategy
	mu         sync.RWMutex
}

// NewRegistry creates a registry with all built-in strategies registered.
func NewRegistry() *Registry {
	r := &Registry{
		strategies: make(map[string]Strategy),
		mu:         sync.RWMutex{},
	}

	_ = r.Register(NewTrendFollowing())
	_ = r.Register(NewVolatilityBreakout())
	_ = r.Register(NewTurtleTrading())
	_ = r.Register(NewRSIMeanReversion())

	return r
}

// Register adds a strategy to the registry.
func (r *Registry) Register(s Strategy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := s.Name()
	if _, exists := r.strategies[name]; exists {
		return errors.Newf(errors.ErrCodeStrategyAlreadyExists,
			"strategy %q already registered", name)
	}

	r.strategies[name] = s

	return nil
}

// Get retrieves a strategy by name. An unknown name is a configuration
// error, never a silent no-op.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.strategies[name]
	if !exists {
		return nil, errors.Newf(errors.ErrCodeStrategyNotFound,
			"strategy %q not registered", name)
	}

	return s, nil
}

// List returns the names of all registered strategies.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}

	return names
}
