package ioruntime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joeycumines/gocoro/ioruntime"
)

func TestFdContext_SetWaiter_BothPopulatedPanics(t *testing.T) {
	ctx := ioruntime.NewFdContext(3)
	assert.Panics(t, func() {
		ctx.SetWaiter(ioruntime.EventRead, ioruntime.Waiter{
			Resume:  func() {},
			Closure: func() {},
		})
	})
}

func TestFdContext_AddEvent_AccumulatesMask(t *testing.T) {
	ctx := ioruntime.NewFdContext(3)
	ctx.SetWaiter(ioruntime.EventRead, ioruntime.Waiter{Closure: func() {}})
	mask := ctx.AddEvent(ioruntime.EventRead)
	assert.Equal(t, ioruntime.EventRead, mask)

	ctx.SetWaiter(ioruntime.EventWrite, ioruntime.Waiter{Closure: func() {}})
	mask = ctx.AddEvent(ioruntime.EventWrite)
	assert.Equal(t, ioruntime.EventRead|ioruntime.EventWrite, mask)
}

func TestFdContext_DelEvent_ClearsBitAndWaiter(t *testing.T) {
	ctx := ioruntime.NewFdContext(3)
	var fired bool
	ctx.SetWaiter(ioruntime.EventRead, ioruntime.Waiter{Closure: func() { fired = true }})
	ctx.AddEvent(ioruntime.EventRead)

	mask := ctx.DelEvent(ioruntime.EventRead)
	assert.Equal(t, ioruntime.EventMask(0), mask)

	// A deleted wait-slot must not fire even if TriggerEvent is called
	// for the bit it used to occupy (the bit is no longer in the mask).
	ctx.TriggerEvent(ioruntime.EventRead)
	assert.False(t, fired)
}

func TestFdContext_TriggerEvent_FiresEachWaiterAtMostOnce(t *testing.T) {
	ctx := ioruntime.NewFdContext(3)
	var readFires, writeFires int
	ctx.SetWaiter(ioruntime.EventRead, ioruntime.Waiter{Closure: func() { readFires++ }})
	ctx.AddEvent(ioruntime.EventRead)
	ctx.SetWaiter(ioruntime.EventWrite, ioruntime.Waiter{Closure: func() { writeFires++ }})
	ctx.AddEvent(ioruntime.EventWrite)

	ctx.TriggerEvent(ioruntime.EventRead | ioruntime.EventWrite)
	assert.Equal(t, 1, readFires)
	assert.Equal(t, 1, writeFires)

	// Slots are cleared after firing; a second trigger with no
	// re-registration must not fire again.
	ctx.TriggerEvent(ioruntime.EventRead | ioruntime.EventWrite)
	assert.Equal(t, 1, readFires)
	assert.Equal(t, 1, writeFires)
}

func TestFdContext_CancelEvent_FiresThenClears(t *testing.T) {
	ctx := ioruntime.NewFdContext(3)
	var fired bool
	ctx.SetWaiter(ioruntime.EventRead, ioruntime.Waiter{Closure: func() { fired = true }})
	ctx.AddEvent(ioruntime.EventRead)

	ctx.CancelEvent(ioruntime.EventRead)
	assert.True(t, fired)
	assert.Equal(t, ioruntime.EventMask(0), ctx.Mask())
}

func TestFdContext_NonblockingFlagsAndTimeouts(t *testing.T) {
	ctx := ioruntime.NewFdContext(3)
	assert.False(t, ctx.SystemNonblocking())
	ctx.SetSystemNonblocking(true)
	assert.True(t, ctx.SystemNonblocking())

	assert.False(t, ctx.UserNonblocking())
	ctx.SetUserNonblocking(true)
	assert.True(t, ctx.UserNonblocking())

	ctx.SetTimeoutMs(ioruntime.EventRead, 100)
	ctx.SetTimeoutMs(ioruntime.EventWrite, 200)
	assert.Equal(t, int64(100), ctx.TimeoutMs(ioruntime.EventRead))
	assert.Equal(t, int64(200), ctx.TimeoutMs(ioruntime.EventWrite))
}
