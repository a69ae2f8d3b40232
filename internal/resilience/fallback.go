package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the per-entry circuit breaker created for each
// provider in a [FallbackGroup].
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig
}

// fallbackEntry pairs a provider value with its dedicated circuit breaker.
type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup wraps a primary and zero or more fallback instances of the same
// provider type. When the primary fails (or its circuit breaker is open), the
// next healthy fallback is tried in registration order.
//
// Two routing modes are offered. [FallbackGroup.Execute] and
// [ExecuteWithResult] try every entry per call, which suits stateless
// operations. [ExecuteActiveWithResult] routes to a sticky active entry and
// only advances on failure, which suits stateful providers where consecutive
// calls must land on the same instance; [FallbackGroup.ResetActive] moves the
// cursor back to the primary at a safe boundary.
//
// Register all entries before first use; after that FallbackGroup is safe for
// concurrent use.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig

	mu     sync.Mutex
	active int
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
// Additional fallbacks are registered via [FallbackGroup.AddFallback].
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	cbCfg := cfg.CircuitBreaker
	cbCfg.Name = primaryName
	return &FallbackGroup[T]{
		entries: []fallbackEntry[T]{
			{
				name:    primaryName,
				value:   primary,
				breaker: NewCircuitBreaker(cbCfg),
			},
		},
		cfg: cfg,
	}
}

// AddFallback appends a fallback provider. Fallbacks are tried in the order they
// are added, after the primary.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Execute tries fn against each entry in order until one succeeds.
// Circuit-breaker-open entries are skipped. Returns [ErrAllFailed] wrapped with
// the last error if every entry fails.
func (fg *FallbackGroup[T]) Execute(fn func(T) error) error {
	var lastErr error
	for i := range fg.entries {
		entry := &fg.entries[i]
		err := entry.breaker.Execute(func() error {
			return fn(entry.value)
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// ActiveName returns the name of the entry sticky calls are currently routed
// to.
func (fg *FallbackGroup[T]) ActiveName() string {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	return fg.entries[fg.active].name
}

// ResetActive moves the sticky cursor back to the primary, so the next sticky
// call retries it (its breaker still fast-fails while open).
func (fg *FallbackGroup[T]) ResetActive() {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.active = 0
}

// Each visits every registered entry in order, primary first.
func (fg *FallbackGroup[T]) Each(fn func(name string, value T)) {
	for i := range fg.entries {
		fn(fg.entries[i].name, fg.entries[i].value)
	}
}

// ExecuteActiveWithResult routes fn to the sticky active entry. When that
// entry fails or its breaker is open, the group advances to the next entry,
// calls onSwitch with it (onSwitch may be nil), and retries there. The cursor
// does not move back on its own; use [FallbackGroup.ResetActive]. Returns
// [ErrAllFailed] wrapped with the last error when every remaining entry fails,
// leaving the cursor where it started. This is a package-level function
// because Go does not support method-level type parameters.
func ExecuteActiveWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error), onSwitch func(name string, value T)) (R, error) {
	fg.mu.Lock()
	start := fg.active
	fg.mu.Unlock()

	var (
		lastErr error
		zero    R
	)
	for i := start; i < len(fg.entries); i++ {
		entry := &fg.entries[i]
		if i != start && onSwitch != nil {
			onSwitch(entry.name, entry.value)
		}
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			if i != start {
				slog.Warn("failed over to fallback provider",
					"from", fg.entries[start].name, "to", entry.name)
				fg.mu.Lock()
				fg.active = i
				fg.mu.Unlock()
			}
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// ExecuteWithResult tries fn against each entry in the group until one succeeds,
// returning both the result value and error. This is a package-level function
// because Go does not support method-level type parameters.
func ExecuteWithResult[T any, R any](fg *FallbackGroup[T], fn func(T) (R, error)) (R, error) {
	var (
		lastErr error
		zero    R
	)
	for i := range fg.entries {
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next",
				"provider", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
