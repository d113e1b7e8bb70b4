package clients

import (
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/protocolwhisper/paymeskill/pkg/logging"
)

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Name identifies this circuit breaker in logs
	Name string

	// MaxRequests is the number of successful requests needed in half-open
	// state before transitioning to closed. Default: 1
	MaxRequests uint32

	// Timeout is the duration the circuit stays open before transitioning
	// to half-open. Default: 15 seconds.
	Timeout time.Duration

	// FailureRatio is the threshold at which the circuit trips. When the ratio
	// of failures to total requests exceeds this value, the circuit opens.
	// Default: 0.5 (50%)
	FailureRatio float64

	// MinRequests is the minimum number of requests needed before the failure
	// ratio is evaluated. This prevents tripping on small sample sizes.
	// Default: 10
	MinRequests uint32

	// Logger for state change notifications
	Logger logging.Logger

	// OnStateChange is an optional callback invoked when the circuit breaker
	// changes state.
	OnStateChange func(name string, from, to CircuitBreakerState)
}

// DefaultCircuitBreakerConfig returns sensible defaults for the circuit breaker.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         "default",
		MaxRequests:  1,
		Timeout:      15 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  10,
	}
}

// CircuitBreaker wraps failsafe-go's circuit breaker with our config interface.
type CircuitBreaker struct {
	cb     circuitbreaker.CircuitBreaker[any]
	name   string
	logger logging.Logger
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	// Apply defaults
	if cfg.Name == "" {
		cfg.Name = "circuit-breaker"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.FailureRatio == 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 10
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}

	// Calculate failure threshold from ratio
	// e.g., 50% of 10 requests = 5 failures
	failureThreshold := uint(float64(cfg.MinRequests) * cfg.FailureRatio)
	if failureThreshold < 1 {
		failureThreshold = 1
	}

	builder := circuitbreaker.NewBuilder[any]().
		WithFailureThresholdRatio(failureThreshold, uint(cfg.MinRequests)).
		WithDelay(cfg.Timeout).
		WithSuccessThreshold(uint(cfg.MaxRequests))

	// Add state change callback
	if cfg.OnStateChange != nil || cfg.Logger != nil {
		builder = builder.OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			fromState := convertState(event.OldState)
			toState := convertState(event.NewState)

			if cfg.Logger != nil {
				cfg.Logger.WithFields(logging.Fields{
					"circuit_breaker": cfg.Name,
					"from_state":      fromState.String(),
					"to_state":        toState.String(),
				}).Warn("circuit breaker state change")
			}

			if cfg.OnStateChange != nil {
				cfg.OnStateChange(cfg.Name, fromState, toState)
			}
		})
	}

	return &CircuitBreaker{
		cb:     builder.Build(),
		name:   cfg.Name,
		logger: cfg.Logger,
	}
}

// convertState converts failsafe-go state to our state type
func convertState(state circuitbreaker.State) CircuitBreakerState {
	switch state {
	case circuitbreaker.ClosedState:
		return StateClosed
	case circuitbreaker.HalfOpenState:
		return StateHalfOpen
	case circuitbreaker.OpenState:
		return StateOpen
	default:
		return StateClosed
	}
}

// Call executes the given function through the circuit breaker.
func (cb *CircuitBreaker) Call(fn func() error) error {
	_, err := failsafe.With(cb.cb).Get(func() (any, error) {
		return nil, fn()
	})
	return err
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	return convertState(cb.cb.State())
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// IsOpen returns true if the circuit breaker is open
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.cb.IsOpen()
}

// IsClosed returns true if the circuit breaker is closed
func (cb *CircuitBreaker) IsClosed() bool {
	return cb.cb.IsClosed()
}
