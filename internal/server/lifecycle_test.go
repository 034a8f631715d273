package server

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockService struct {
	started atomic.Bool
	stopped atomic.Bool
	startFn func() error
	stopErr error
	onStop  func()
	done    chan struct{}
	once    sync.Once
}

func newMockService() *mockService {
	return &mockService{done: make(chan struct{})}
}

func (m *mockService) Start() error {
	m.started.Store(true)
	if m.startFn != nil {
		return m.startFn()
	}
	<-m.done
	return nil
}

func (m *mockService) Stop(ctx context.Context) error {
	m.stopped.Store(true)
	if m.onStop != nil {
		m.onStop()
	}
	m.once.Do(func() { close(m.done) })
	return m.stopErr
}

func waitStarted(t *testing.T, svcs ...*mockService) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		all := true
		for _, s := range svcs {
			all = all && s.started.Load()
		}
		if all {
			return
		}
		select {
		case <-deadline:
			t.Fatal("services did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestLifecycleStartsAndStopsServices(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t), time.Second)

	var mu sync.Mutex
	var order []string
	svc1 := newMockService()
	svc1.onStop = func() { mu.Lock(); order = append(order, "svc1"); mu.Unlock() }
	svc2 := newMockService()
	svc2.onStop = func() { mu.Lock(); order = append(order, "svc2"); mu.Unlock() }

	lc.Add("svc1", svc1)
	lc.Add("svc2", svc2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	waitStarted(t, svc1, svc2)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}

	assert.True(t, svc1.stopped.Load())
	assert.True(t, svc2.stopped.Load())
	assert.Equal(t, []string{"svc2", "svc1"}, order, "stopped in reverse order")
}

func TestLifecycleServiceFailureStopsOthers(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t), time.Second)

	boom := errors.New("listen: address in use")
	healthy := newMockService()
	failing := newMockService()
	failing.startFn = func() error { return boom }

	lc.Add("healthy", healthy)
	lc.Add("failing", failing)

	done := make(chan error, 1)
	go func() { done <- lc.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
	case <-time.After(5 * time.Second):
		t.Fatal("lifecycle did not shut down in time")
	}
	assert.True(t, healthy.stopped.Load())
}

func TestLifecycleReportsStopErrors(t *testing.T) {
	lc := NewLifecycle(zaptest.NewLogger(t), 0)

	stuck := errors.New("drain timed out")
	svc := newMockService()
	svc.stopErr = stuck
	lc.Add("web", svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lc.Run(ctx) }()

	waitStarted(t, svc)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, stuck)
}

func TestFuncService(t *testing.T) {
	started := false
	stopped := false

	svc := &FuncService{
		StartFn: func() error {
			started = true
			return nil
		},
		StopFn: func(context.Context) error {
			stopped = true
			return nil
		},
	}

	assert.NoError(t, svc.Start())
	assert.True(t, started)

	assert.NoError(t, svc.Stop(context.Background()))
	assert.True(t, stopped)

	noop := &FuncService{StartFn: func() error { return nil }}
	assert.NoError(t, noop.Stop(context.Background()))
}
