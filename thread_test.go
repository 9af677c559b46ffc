package fairsched

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThreadLessOrdersByVRuntimeThenSeq(t *testing.T) {
	a := &Thread{vRuntime: 1, seq: 5}
	b := &Thread{vRuntime: 2, seq: 1}
	assert.True(t, a.less(b))
	assert.False(t, b.less(a))

	c := &Thread{vRuntime: 3, seq: 10}
	d := &Thread{vRuntime: 3, seq: 20}
	assert.True(t, c.less(d))
	assert.False(t, d.less(c))
}

func TestThreadStateTransitions(t *testing.T) {
	th := &Thread{}
	assert.Equal(t, Ready, th.State())

	th.setState(Running)
	assert.Equal(t, Running, th.State())

	th.Cancel()
	assert.Equal(t, Cancelled, th.State())
}

func TestNewThreadPriorityOutOfRangePanics(t *testing.T) {
	s := New(0, NewFakeTimeSource(), NopLogger())
	assert.Panics(t, func() {
		NewThread(s, maxPriority, "bad", func() {})
	})
	assert.Panics(t, func() {
		NewThread(s, -1, "bad", func() {})
	})
}
