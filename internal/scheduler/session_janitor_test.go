package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEvictor struct {
	mu    sync.Mutex
	calls []time.Duration
}

func (e *countingEvictor) EvictIdle(maxIdle time.Duration) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, maxIdle)
	return 2
}

func (e *countingEvictor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

type fakePurger struct {
	calls int
	err   error
}

func (p *fakePurger) PurgeExpired(ctx context.Context) (int64, error) {
	p.calls++
	return 3, p.err
}

func TestSessionJanitor_RunOnce(t *testing.T) {
	evictor := &countingEvictor{}
	purger := &fakePurger{}
	j := NewSessionJanitor("@every 1h", 30*time.Minute, evictor, purger)

	j.RunOnce()

	require.Equal(t, 1, evictor.count())
	assert.Equal(t, 30*time.Minute, evictor.calls[0])
	assert.Equal(t, 1, purger.calls)
}

func TestSessionJanitor_PurgeErrorDoesNotStopSweep(t *testing.T) {
	evictor := &countingEvictor{}
	purger := &fakePurger{err: errors.New("db down")}
	j := NewSessionJanitor("@every 1h", time.Minute, evictor, purger)

	assert.NotPanics(t, j.RunOnce)
	assert.Equal(t, 1, evictor.count())
}

func TestSessionJanitor_WithoutPurger(t *testing.T) {
	evictor := &countingEvictor{}
	j := NewSessionJanitor("@every 1h", time.Minute, evictor, nil)

	j.RunOnce()
	assert.Equal(t, 1, evictor.count())
}

func TestSessionJanitor_Schedule(t *testing.T) {
	evictor := &countingEvictor{}
	j := NewSessionJanitor("@every 1s", time.Minute, evictor, nil)
	require.NoError(t, j.Start())
	defer j.Stop()

	assert.Eventually(t, func() bool { return evictor.count() > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestSessionJanitor_InvalidSpec(t *testing.T) {
	j := NewSessionJanitor("not a spec", time.Minute, &countingEvictor{}, nil)
	assert.Error(t, j.Start())
}
