// Package connectivity turns remote reachability into an online/offline
// signal and fires a callback when the remote comes back.
package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"ledgersync/internal/logger"
)

const (
	// DefaultInterval is the probe period when none is configured.
	DefaultInterval = 15 * time.Second
	// DefaultDebounce delays the trigger so a flapping link fires once.
	DefaultDebounce = 500 * time.Millisecond
)

// Prober reports whether the remote is reachable.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor probes the remote periodically and accepts explicit signals. On an
// offline to online transition it calls the trigger once, after a debounce.
// The first observation only sets the state.
type Monitor struct {
	probe    Prober
	trigger  func(context.Context)
	interval time.Duration
	debounce time.Duration
	timeout  time.Duration
	log      *zap.SugaredLogger

	mu     sync.Mutex
	known  bool
	online bool
	armed  bool
	cancel context.CancelFunc
	done   chan struct{}

	kick chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) { m.debounce = d }
}

// NewMonitor returns a stopped Monitor. A non-positive interval means
// DefaultInterval.
func NewMonitor(probe Prober, interval time.Duration, trigger func(context.Context), opts ...Option) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	m := &Monitor{
		probe:    probe,
		trigger:  trigger,
		interval: interval,
		debounce: DefaultDebounce,
		timeout:  min(interval, 5*time.Second),
		log:      logger.Named("connectivity"),
		kick:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins probing. Calling Start on a running Monitor does nothing.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.run(ctx, m.done)
}

// Stop ends probing and waits for a running trigger to return. Safe to call
// more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// SetOnline records an explicit connectivity signal from the platform.
func (m *Monitor) SetOnline(online bool) {
	m.observe(online)
}

// Online reports the last observed state. Before any observation it reports
// false.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *Monitor) observe(online bool) {
	m.mu.Lock()
	switch {
	case !m.known:
		m.known = true
	case !m.online && online:
		m.armed = true
		m.log.Infow("remote reachable again")
	case m.online && !online:
		m.armed = false
		m.log.Infow("remote unreachable")
	}
	m.online = online
	m.mu.Unlock()

	select {
	case m.kick <- struct{}{}:
	default:
	}
}

func (m *Monitor) check(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	err := m.probe.Ping(ctx)
	if err != nil && ctx.Err() == nil {
		m.log.Debugw("probe failed", "error", err)
	}
	m.observe(err == nil)
}

func (m *Monitor) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	m.check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		case <-m.kick:
			m.mu.Lock()
			armed := m.armed
			m.mu.Unlock()
			switch {
			case armed && fire == nil:
				timer = time.NewTimer(m.debounce)
				fire = timer.C
			case !armed && timer != nil:
				timer.Stop()
				timer, fire = nil, nil
			}
		case <-fire:
			timer, fire = nil, nil
			m.mu.Lock()
			armed := m.armed
			m.armed = false
			m.mu.Unlock()
			if armed && ctx.Err() == nil {
				m.trigger(ctx)
			}
		}
	}
}
