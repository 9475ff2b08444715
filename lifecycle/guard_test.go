package lifecycle

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestGuard_UnwindsInReverseOrder(t *testing.T) {
	g := NewGuard()
	var order []int
	g.Push(func() error { order = append(order, 1); return nil })
	g.Push(func() error { order = append(order, 2); return nil })
	g.Push(func() error { order = append(order, 3); return nil })

	a := assert.New(t)
	a.NoError(g.Unwind())
	a.Equal([]int{3, 2, 1}, order)
}

func TestGuard_ContinuesPastFailuresAndJoinsErrors(t *testing.T) {
	g := NewGuard()
	var ran []int
	g.Push(func() error { ran = append(ran, 1); return nil })
	g.Push(func() error { ran = append(ran, 2); return errors.New("boom") })
	g.Push(func() error { ran = append(ran, 3); return errors.New("bang") })

	err := g.Unwind()
	assert.Error(t, err)
	assert.Equal(t, []int{3, 2, 1}, ran, "every teardown must still run despite earlier failures")
}

func TestGuard_UnwindTwiceIsANoop(t *testing.T) {
	g := NewGuard()
	calls := 0
	g.Push(func() error { calls++; return nil })

	assert.NoError(t, g.Unwind())
	assert.NoError(t, g.Unwind())
	assert.Equal(t, 1, calls)
}
