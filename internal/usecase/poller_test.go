package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"calibmon/internal/timeutil"
)

func TestProgressPollerSingleFlight(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewManualClock(time.Unix(0, 0))
	p := progressPoller{clock: clock, interval: time.Second}

	_, ok := p.begin()
	assert.False(t, ok, "stopped poller must not start requests")
	assert.Nil(t, p.ticks())

	p.sync(true)
	assert.Equal(t, 1, clock.ActiveTickers())
	p.sync(true)
	assert.Equal(t, 1, clock.ActiveTickers())

	gen, ok := p.begin()
	assert.True(t, ok)
	_, ok = p.begin()
	assert.False(t, ok)

	assert.True(t, p.finish(gen))
	_, ok = p.begin()
	assert.True(t, ok)
}

func TestProgressPollerDropsStaleResults(t *testing.T) {
	t.Parallel()

	clock := timeutil.NewManualClock(time.Unix(0, 0))
	p := progressPoller{clock: clock, interval: time.Second}
	p.sync(true)

	gen, ok := p.begin()
	assert.True(t, ok)

	p.sync(false)
	assert.Zero(t, clock.ActiveTickers())
	assert.Nil(t, p.ticks())

	p.sync(true)
	assert.False(t, p.finish(gen))

	next, ok := p.begin()
	assert.True(t, ok)
	assert.NotEqual(t, gen, next)
}
