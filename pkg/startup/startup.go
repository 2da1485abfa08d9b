package startup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
)

// Dependency is an external resource the pipeline needs before it can
// load or publish, such as the sink database or the event broker.
type Dependency interface {
	Name() string
	DependsOn() []string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type status int

const (
	statusPending status = iota
	statusStarted
	statusStopped
	statusFailed
)

// Manager starts dependencies in registration order, respecting
// DependsOn, and retries the whole set with fibonacci backoff.
type Manager struct {
	logger      ectologger.Logger
	order       []string
	deps        map[string]Dependency
	statuses    map[string]status
	started     []string
	maxAttempts int
	baseDelay   time.Duration
}

func NewManager(logger ectologger.Logger, maxAttempts int) *Manager {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Manager{
		logger:      logger,
		deps:        make(map[string]Dependency),
		statuses:    make(map[string]status),
		maxAttempts: maxAttempts,
		baseDelay:   time.Second,
	}
}

// WithBaseDelay sets the first retry wait; later waits follow the
// fibonacci sequence in multiples of it.
func (m *Manager) WithBaseDelay(d time.Duration) *Manager {
	m.baseDelay = d
	return m
}

func (m *Manager) Add(dep Dependency) {
	name := dep.Name()
	if _, ok := m.deps[name]; !ok {
		m.order = append(m.order, name)
	}
	m.deps[name] = dep
}

func (m *Manager) Start(ctx context.Context) error {
	var lastErr error
	a, b := 1, 1
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		m.logger.WithContext(ctx).WithField("attempt", attempt).Infof("Beginning startup attempt %d", attempt)

		lastErr = nil
		for _, name := range m.order {
			if err := m.start(ctx, name, nil); err != nil {
				m.logger.WithContext(ctx).WithError(err).Errorf("Startup dependency '%s' attempt %d failed", name, attempt)
				lastErr = err
				break
			}
		}
		if lastErr == nil {
			return nil
		}
		if attempt == m.maxAttempts {
			break
		}

		wait := time.Duration(a) * m.baseDelay
		m.logger.WithContext(ctx).Infof("Retrying in %v (attempt %d/%d)", wait, attempt, m.maxAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		a, b = b, a+b
	}
	return fmt.Errorf("startup failed after %d attempts: %w", m.maxAttempts, lastErr)
}

func (m *Manager) start(ctx context.Context, name string, visiting []string) error {
	if m.statuses[name] == statusStarted {
		return nil
	}
	for _, v := range visiting {
		if v == name {
			return fmt.Errorf("dependency cycle at '%s'", name)
		}
	}
	dep, ok := m.deps[name]
	if !ok {
		return fmt.Errorf("unknown dependency '%s'", name)
	}

	for _, parent := range dep.DependsOn() {
		if err := m.start(ctx, parent, append(visiting, name)); err != nil {
			return err
		}
	}

	log := m.logger.WithContext(ctx).WithField("dependency", name)
	log.Infof("Starting dependency '%s'", name)
	m.statuses[name] = statusPending
	if err := dep.Start(ctx); err != nil {
		m.statuses[name] = statusFailed
		return err
	}
	m.statuses[name] = statusStarted
	m.started = append(m.started, name)
	return nil
}

// Stop stops every started dependency in reverse start order and returns
// all stop errors joined.
func (m *Manager) Stop(ctx context.Context) error {
	var errs []error
	for i := len(m.started) - 1; i >= 0; i-- {
		name := m.started[i]
		log := m.logger.WithContext(ctx).WithField("dependency", name)
		if err := m.deps[name].Stop(ctx); err != nil {
			log.WithError(err).Errorf("Failed to stop dependency '%s'", name)
			errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
			continue
		}
		m.statuses[name] = statusStopped
		log.Infof("Dependency '%s' stopped", name)
	}
	m.started = nil
	return errors.Join(errs...)
}

// Func adapts plain functions to Dependency.
type Func struct {
	DependencyName string
	Parents        []string
	StartFunc      func(ctx context.Context) error
	StopFunc       func(ctx context.Context) error
}

func (f Func) Name() string        { return f.DependencyName }
func (f Func) DependsOn() []string { return f.Parents }

func (f Func) Start(ctx context.Context) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx)
}

func (f Func) Stop(ctx context.Context) error {
	if f.StopFunc == nil {
		return nil
	}
	return f.StopFunc(ctx)
}
