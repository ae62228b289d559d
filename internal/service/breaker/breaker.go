package breaker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned without invoking the call while the breaker rejects traffic.
var ErrCircuitOpen = errors.New("circuit breaker open")

// State mirrors the gobreaker states under the names used in health reports.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the state name used in health reports.
func (s State) String() string {
	switch s {
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "CLOSED"
	}
}

// Settings configures one breaker.
type Settings struct {
	// FailureThreshold consecutive failures trip CLOSED -> OPEN.
	FailureThreshold int
	// SuccessThreshold consecutive trial successes close a HALF_OPEN breaker.
	SuccessThreshold int
	// Timeout is how long OPEN lasts before trial calls are let through.
	Timeout time.Duration
}

// StateChangeFunc observes transitions, e.g. to export a gauge.
type StateChangeFunc func(name string, from, to State)

// Breaker guards one upstream. Outside CLOSED only one trial call runs at a time;
// concurrent callers are rejected with ErrCircuitOpen while it is in flight.
type Breaker struct {
	name  string
	cb    *gobreaker.TwoStepCircuitBreaker
	trial sync.Mutex
}

// New builds a breaker. SuccessThreshold doubles as gobreaker's MaxRequests,
// the number of sequential trial calls HALF_OPEN admits before closing.
func New(name string, s Settings, onChange StateChangeFunc) *Breaker {
	failures := uint32(max(s.FailureThreshold, 1))
	successes := uint32(max(s.SuccessThreshold, 1))

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: successes,
		Timeout:     s.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
	}
	if onChange != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			onChange(name, fromGobreaker(from), fromGobreaker(to))
		}
	}

	return &Breaker{name: name, cb: gobreaker.NewTwoStepCircuitBreaker(st)}
}

// Name returns the source the breaker guards.
func (b *Breaker) Name() string { return b.name }

// State reads the current state without making a call. An OPEN breaker whose
// timeout has elapsed reports HALF_OPEN.
func (b *Breaker) State() State {
	return fromGobreaker(b.cb.State())
}

// Call runs fn through the breaker.
func (b *Breaker) Call(fn func() error) error {
	_, err := Do(b, func() (struct{}, error) { return struct{}{}, fn() })
	return err
}

// Do runs fn through the breaker and returns its typed result.
//
// A call that ends in context.Canceled was abandoned by us, not failed by the
// upstream. While CLOSED it is left out of the counts. A trial call has to report
// either way or its HALF_OPEN slot is never released, so a cancelled trial
// counts as a failure and the breaker reopens.
func Do[T any](b *Breaker, fn func() (T, error)) (res T, err error) {
	guarded := b.cb.State() != gobreaker.StateClosed
	if guarded {
		if !b.trial.TryLock() {
			return res, fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
		}
		defer b.trial.Unlock()
	}

	done, err := b.cb.Allow()
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return res, fmt.Errorf("%s: %w", b.name, ErrCircuitOpen)
		}
		return res, err
	}

	reported := false
	defer func() {
		if r := recover(); r != nil {
			if !reported {
				done(false)
			}
			panic(r)
		}
	}()

	res, err = fn()
	switch {
	case err == nil:
		done(true)
	case errors.Is(err, context.Canceled):
		if guarded {
			done(false)
		}
	default:
		done(false)
	}
	reported = true
	return res, err
}

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Registry owns one independent breaker per source.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	settings map[string]Settings
	fallback Settings
	onChange StateChangeFunc
}

// NewRegistry builds breakers lazily, using perSource settings when present.
func NewRegistry(fallback Settings, perSource map[string]Settings, onChange StateChangeFunc) *Registry {
	settings := make(map[string]Settings, len(perSource))
	for k, v := range perSource {
		settings[k] = v
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		settings: settings,
		fallback: fallback,
		onChange: onChange,
	}
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	s, ok := r.settings[name]
	if !ok {
		s = r.fallback
	}
	b = New(name, s, r.onChange)
	r.breakers[name] = b
	return b
}

// States snapshots every known breaker.
func (r *Registry) States() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]State, len(r.breakers))
	for name, b := range r.breakers {
		out[name] = b.State()
	}
	return out
}

// Names returns known breaker names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
