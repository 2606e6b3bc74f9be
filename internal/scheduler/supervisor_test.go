package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTask struct {
	name  string
	every time.Duration
	ticks atomic.Int32
	err   error
	panic bool
}

func (c *countingTask) Name() string            { return c.name }
func (c *countingTask) Interval() time.Duration { return c.every }
func (c *countingTask) Tick(ctx context.Context) error {
	c.ticks.Add(1)
	if c.panic {
		panic("boom")
	}
	return c.err
}

func TestSupervisorRunsTasksUntilStop(t *testing.T) {
	s := NewSupervisor(nil)
	fast := &countingTask{name: "fast", every: 5 * time.Millisecond}
	failing := &countingTask{name: "failing", every: 5 * time.Millisecond, err: errors.New("repo down")}
	panicky := &countingTask{name: "panicky", every: 5 * time.Millisecond, panic: true}
	require.NoError(t, s.Register(fast))
	require.NoError(t, s.Register(failing))
	require.NoError(t, s.Register(panicky))

	var errCount atomic.Int32
	s.SetErrorHook(func(string, error) { errCount.Add(1) })

	assert.Error(t, s.Health())
	require.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Health())

	assert.Eventually(t, func() bool {
		return fast.ticks.Load() >= 3 && failing.ticks.Load() >= 2 && panicky.ticks.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	stopped := fast.ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, fast.ticks.Load(), "no ticks after Stop")
	assert.GreaterOrEqual(t, errCount.Load(), int32(4))
	assert.NoError(t, s.Stop(), "stop is idempotent")
}

func TestSupervisorRegisterValidation(t *testing.T) {
	s := NewSupervisor(nil)
	assert.Error(t, s.Register(nil))
	assert.Error(t, s.Register(&countingTask{name: "zero"}))
	require.NoError(t, s.Register(&countingTask{name: "a", every: time.Second}))
	assert.Error(t, s.Register(&countingTask{name: "a", every: time.Second}))
	assert.Equal(t, []string{"a"}, s.Tasks())
}

func TestSupervisorLateRegistration(t *testing.T) {
	s := NewSupervisor(nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	late := &countingTask{name: "late", every: 5 * time.Millisecond}
	require.NoError(t, s.Register(late))
	assert.Eventually(t, func() bool { return late.ticks.Load() > 0 }, time.Second, 5*time.Millisecond)
}
