package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fetchai/ledger-sub006/clock"
)

type countingRunnable struct {
	calls     int
	progressUntil int
}

func (r *countingRunnable) PollOnce() bool {
	r.calls++
	return r.calls <= r.progressUntil
}

func TestReactor_StopsCleanly(t *testing.T) {
	r1 := &countingRunnable{progressUntil: 3}
	re := New(time.Millisecond, r1)

	done := make(chan struct{})
	go func() {
		re.Run()
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	re.Stop()
	<-done

	assert.GreaterOrEqual(t, r1.calls, 3)
}

func TestPeriodicAction_FiresImmediatelyThenWaitsAFullPeriod(t *testing.T) {
	mock := clock.NewMock(time.Unix(0, 0))
	fired := 0
	p := NewPeriodicAction(mock, 10*time.Millisecond, func() { fired++ })

	assert.True(t, p.Poll(), "armed to fire on first poll")
	assert.Equal(t, 1, fired)

	assert.False(t, p.Poll(), "rearmed, not due again yet")
	mock.Advance(10 * time.Millisecond)
	assert.True(t, p.Poll())
	assert.Equal(t, 2, fired)
}
