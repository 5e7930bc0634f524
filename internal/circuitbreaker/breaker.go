package circuitbreaker

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	ErrOpenState       = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds circuit breaker configuration
type Config struct {
	// MaxRequests is the number of trial calls let through while half-open
	MaxRequests uint32

	// Interval is how often closed-state counts are cleared
	Interval time.Duration

	// Timeout is how long the breaker stays open before going half-open
	Timeout time.Duration

	// Threshold is the minimum number of calls before the failure ratio is evaluated.
	// Half-open needs this many consecutive successes to close again.
	Threshold uint32

	// FailureRatio at or above which the breaker opens
	FailureRatio float64

	// OnStateChange is called with the endpoint name whenever a breaker changes state
	OnStateChange func(name string, from, to State)
}

// DefaultConfig suits a handful of sequential lookups against one service
func DefaultConfig() *Config {
	return &Config{
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		Threshold:    5,
		FailureRatio: 0.6,
	}
}

func (c *Config) normalize() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Interval == 0 {
		c.Interval = 60 * time.Second
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Threshold == 0 {
		c.Threshold = 1
	}
}

// CircuitBreaker guards calls to a single remote endpoint
type CircuitBreaker struct {
	name   string
	config Config
	now    func() time.Time

	mu       sync.Mutex
	state    State
	expiry   time.Time
	inflight uint32
	total    uint32
	failures uint32
}

// New creates a breaker for the named endpoint
func New(name string, config *Config) *CircuitBreaker {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	cfg.normalize()
	cb := &CircuitBreaker{name: name, config: cfg, now: time.Now, state: StateClosed}
	cb.expiry = cb.now().Add(cfg.Interval)
	return cb
}

// Name returns the endpoint name
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.current(cb.now())
}

// Execute runs fn if the breaker lets the call through and records its outcome
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn()
	cb.after(err == nil)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.current(cb.now()) {
	case StateOpen:
		return ErrOpenState
	case StateHalfOpen:
		if cb.inflight >= cb.config.MaxRequests {
			return ErrTooManyRequests
		}
	}
	cb.inflight++
	return nil
}

func (cb *CircuitBreaker) after(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	if cb.inflight > 0 {
		cb.inflight--
	}

	switch cb.current(now) {
	case StateClosed:
		cb.total++
		if !success {
			cb.failures++
		}
		if cb.total >= cb.config.Threshold &&
			float64(cb.failures)/float64(cb.total) >= cb.config.FailureRatio {
			cb.transition(StateOpen, now)
		}
	case StateHalfOpen:
		if !success {
			cb.transition(StateOpen, now)
			return
		}
		cb.total++
		if cb.total >= cb.config.Threshold {
			cb.transition(StateClosed, now)
		}
	}
}

// current advances time-driven transitions and returns the state at now
func (cb *CircuitBreaker) current(now time.Time) State {
	switch cb.state {
	case StateClosed:
		if cb.expiry.Before(now) {
			cb.reset(now)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.transition(StateHalfOpen, now)
		}
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to State, now time.Time) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.reset(now)
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, from, to)
	}
}

func (cb *CircuitBreaker) reset(now time.Time) {
	cb.total, cb.failures = 0, 0
	switch cb.state {
	case StateClosed:
		cb.expiry = now.Add(cb.config.Interval)
	case StateOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	default:
		cb.expiry = time.Time{}
	}
}

// Snapshot describes one breaker for health reporting
type Snapshot struct {
	Endpoint string `json:"endpoint"`
	State    string `json:"state"`
	Total    uint32 `json:"total"`
	Failures uint32 `json:"failures"`
}

func (cb *CircuitBreaker) snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	st := cb.current(cb.now())
	return Snapshot{Endpoint: cb.name, State: st.String(), Total: cb.total, Failures: cb.failures}
}

// Set keeps one breaker per remote endpoint
type Set struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	config   *Config
}

// NewSet creates an empty breaker set sharing config
func NewSet(config *Config) *Set {
	if config == nil {
		config = DefaultConfig()
	}
	return &Set{breakers: make(map[string]*CircuitBreaker), config: config}
}

// Get returns the breaker for endpoint, creating it on first use
func (s *Set) Get(endpoint string) *CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[endpoint]
	if !ok {
		cb = New(endpoint, s.config)
		s.breakers[endpoint] = cb
	}
	return cb
}

// Execute runs fn through the endpoint's breaker
func (s *Set) Execute(endpoint string, fn func() error) error {
	return s.Get(endpoint).Execute(fn)
}

// Snapshots returns the state of every known endpoint, sorted by name
func (s *Set) Snapshots() []Snapshot {
	s.mu.Lock()
	list := make([]*CircuitBreaker, 0, len(s.breakers))
	for _, cb := range s.breakers {
		list = append(list, cb)
	}
	s.mu.Unlock()

	out := make([]Snapshot, 0, len(list))
	for _, cb := range list {
		out = append(out, cb.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Endpoint < out[j].Endpoint })
	return out
}
