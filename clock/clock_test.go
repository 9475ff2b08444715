package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMock_Advance_MovesNowForward(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewMock(start)
	assert.Equal(t, start, m.Now())

	m.Advance(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), m.Now())
}
