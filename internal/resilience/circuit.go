// Package resilience provides a circuit breaker for the external code
// hosts and APIs the fetch chain calls. A host that starts refusing
// requests is backed off instead of being retried on every lookup miss.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// State represents the state of a circuit breaker.
type State int

const (
	// Closed is the normal operating state; requests flow through.
	Closed State = iota
	// Open means too many failures; requests are rejected immediately.
	Open
	// HalfOpen allows a single probe request to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when a call is rejected because the circuit is open.
var ErrOpen = eris.New("circuit breaker is open")

// Config controls breaker behavior. Zero values use the defaults:
// 5 consecutive failures to open, 30s before a recovery probe.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// Breaker implements the circuit breaker pattern for a single service.
type Breaker struct {
	name string
	cfg  Config
	log  *zap.Logger

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewBreaker creates a breaker for the named service.
func NewBreaker(name string, cfg Config, log *zap.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if log == nil {
		log = zap.L()
	}
	return &Breaker{
		name:    name,
		cfg:     cfg,
		log:     log,
		state:   Closed,
		nowFunc: time.Now,
	}
}

// Execute runs fn through the breaker. Returns ErrOpen without calling fn
// when the circuit is open.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

// ExecuteVal is like Execute but preserves a return value.
func ExecuteVal[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.allow(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	return val, err
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.nowFunc().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
		return HalfOpen
	}
	return b.state
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
		if b.nowFunc().Sub(b.lastFailure) >= b.cfg.ResetTimeout {
			b.transition(HalfOpen)
			return nil
		}
		return ErrOpen
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		if b.state == HalfOpen {
			b.transition(Closed)
		}
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailure = b.nowFunc()

	switch b.state {
	case Closed:
		if b.failures >= b.cfg.FailureThreshold {
			b.transition(Open)
		}
	case HalfOpen:
		// A failed probe reopens the circuit.
		b.transition(Open)
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.log.Info("circuit state change",
		zap.String("service", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()))
}

// ServiceBreakers manages breakers for multiple services.
type ServiceBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	cfg      Config
	log      *zap.Logger
}

// NewServiceBreakers creates a registry of per-service breakers sharing cfg.
func NewServiceBreakers(cfg Config, log *zap.Logger) *ServiceBreakers {
	return &ServiceBreakers{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
		log:      log,
	}
}

// Get returns the breaker for the named service, creating one if needed.
func (sb *ServiceBreakers) Get(service string) *Breaker {
	sb.mu.RLock()
	b, ok := sb.breakers[service]
	sb.mu.RUnlock()
	if ok {
		return b
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()
	if b, ok = sb.breakers[service]; ok {
		return b
	}
	b = NewBreaker(service, sb.cfg, sb.log)
	sb.breakers[service] = b
	return b
}

// States returns a snapshot of all breaker states.
func (sb *ServiceBreakers) States() map[string]State {
	sb.mu.RLock()
	defer sb.mu.RUnlock()
	states := make(map[string]State, len(sb.breakers))
	for name, b := range sb.breakers {
		states[name] = b.State()
	}
	return states
}
