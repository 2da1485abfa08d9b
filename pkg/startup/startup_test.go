package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func recorder(events *[]string, name string, parents ...string) Func {
	return Func{
		DependencyName: name,
		Parents:        parents,
		StartFunc: func(context.Context) error {
			*events = append(*events, "start:"+name)
			return nil
		},
		StopFunc: func(context.Context) error {
			*events = append(*events, "stop:"+name)
			return nil
		},
	}
}

func TestManager_StartsParentsFirstAndStopsInReverse(t *testing.T) {
	var events []string
	m := NewManager(testLogger(), 1)
	m.Add(recorder(&events, "publisher", "database"))
	m.Add(recorder(&events, "database"))
	m.Add(recorder(&events, "metrics"))

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop(context.Background()))

	assert.Equal(t, []string{
		"start:database", "start:publisher", "start:metrics",
		"stop:metrics", "stop:publisher", "stop:database",
	}, events)
}

func TestManager_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	m := NewManager(testLogger(), 3).WithBaseDelay(time.Millisecond)
	m.Add(Func{
		DependencyName: "database",
		StartFunc: func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		},
	})

	require.NoError(t, m.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestManager_GivesUpAfterMaxAttempts(t *testing.T) {
	m := NewManager(testLogger(), 2).WithBaseDelay(time.Millisecond)
	m.Add(Func{
		DependencyName: "broker",
		StartFunc:      func(context.Context) error { return errors.New("no brokers") },
	})

	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "no brokers")
}

func TestManager_UnknownAndCyclicDependencies(t *testing.T) {
	m := NewManager(testLogger(), 1)
	m.Add(Func{DependencyName: "a", Parents: []string{"missing"}})
	err := m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dependency 'missing'")

	m = NewManager(testLogger(), 1)
	m.Add(Func{DependencyName: "a", Parents: []string{"b"}})
	m.Add(Func{DependencyName: "b", Parents: []string{"a"}})
	err = m.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dependency cycle")
}

func TestManager_StopJoinsErrors(t *testing.T) {
	m := NewManager(testLogger(), 1)
	m.Add(Func{DependencyName: "a", StopFunc: func(context.Context) error { return errors.New("a busy") }})
	m.Add(Func{DependencyName: "b", StopFunc: func(context.Context) error { return errors.New("b busy") }})
	require.NoError(t, m.Start(context.Background()))

	err := m.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop a: a busy")
	assert.Contains(t, err.Error(), "stop b: b busy")
}

func TestManager_StartHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(testLogger(), 5).WithBaseDelay(time.Hour)
	m.Add(Func{
		DependencyName: "database",
		StartFunc: func(context.Context) error {
			cancel()
			return errors.New("down")
		},
	})

	assert.ErrorIs(t, m.Start(ctx), context.Canceled)
}
