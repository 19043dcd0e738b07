package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestScheduleFiresOnce(t *testing.T) {
	svc := NewService(zaptest.NewLogger(t))
	svc.Start()
	defer svc.Stop()

	var fires int32
	_, err := svc.Schedule("once", 30*time.Millisecond, func() {
		atomic.AddInt32(&fires, 1)
	})
	require.NoError(t, err)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fires))
}

func TestSetIntervalFiresRepeatedly(t *testing.T) {
	svc := NewService(zaptest.NewLogger(t))
	svc.Start()
	defer svc.Stop()

	var fires int32
	_, err := svc.SetInterval("tick", 20*time.Millisecond, func() {
		atomic.AddInt32(&fires, 1)
	})
	require.NoError(t, err)

	time.Sleep(110 * time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&fires), int32(3))
}

func TestCancelNamePreventsFiring(t *testing.T) {
	svc := NewService(zaptest.NewLogger(t))
	svc.Start()
	defer svc.Stop()

	var fired int32
	_, err := svc.Schedule("deadline", 30*time.Millisecond, func() {
		atomic.StoreInt32(&fired, 1)
	})
	require.NoError(t, err)

	svc.CancelName("deadline")
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestScheduleUnderSameNameCancelsPrevious(t *testing.T) {
	svc := NewService(zaptest.NewLogger(t))
	svc.Start()
	defer svc.Stop()

	var firstFired, secondFired int32
	_, err := svc.Schedule("replace-me", 200*time.Millisecond, func() {
		atomic.StoreInt32(&firstFired, 1)
	})
	require.NoError(t, err)

	_, err = svc.Schedule("replace-me", 20*time.Millisecond, func() {
		atomic.StoreInt32(&secondFired, 1)
	})
	require.NoError(t, err)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&firstFired))
	assert.Equal(t, int32(1), atomic.LoadInt32(&secondFired))
}

func TestCancelIsIdempotent(t *testing.T) {
	svc := NewService(zaptest.NewLogger(t))
	svc.Start()
	defer svc.Stop()

	h, err := svc.Schedule("once", 10*time.Millisecond, func() {})
	require.NoError(t, err)

	svc.Cancel(h)
	assert.NotPanics(t, func() { svc.Cancel(h) })
}

func TestScheduleBeforeStartFails(t *testing.T) {
	svc := NewService(zaptest.NewLogger(t))

	_, err := svc.Schedule("too-early", 10*time.Millisecond, func() {})
	assert.Error(t, err)
}

func TestScheduleNonPositivePeriodFails(t *testing.T) {
	svc := NewService(zaptest.NewLogger(t))
	svc.Start()
	defer svc.Stop()

	_, err := svc.Schedule("bad", 0, func() {})
	assert.Error(t, err)
}
