package usecase

import (
	"math"
	"time"

	"calibmon/internal/domain"
	"calibmon/internal/timeutil"
)

const (
	defaultPollInterval   = 800 * time.Millisecond
	defaultGoodTimeTarget = 10.0
)

// progressPoller owns the poll ticker. Each stop bumps the generation so
// results from an earlier polling window are recognised and dropped.
type progressPoller struct {
	clock      timeutil.Clock
	interval   time.Duration
	ticker     timeutil.Ticker
	generation uint64
	inFlight   bool
}

// sync starts or stops the ticker to match want.
func (p *progressPoller) sync(want bool) {
	switch {
	case want && p.ticker == nil:
		p.ticker = p.clock.NewTicker(p.interval)
	case !want && p.ticker != nil:
		p.stop()
	}
}

func (p *progressPoller) stop() {
	if p.ticker != nil {
		p.ticker.Stop()
		p.ticker = nil
	}
	p.generation++
	p.inFlight = false
}

// ticks returns nil while stopped so a select on it never fires.
func (p *progressPoller) ticks() <-chan time.Time {
	if p.ticker == nil {
		return nil
	}
	return p.ticker.C()
}

// begin claims the next request slot. It refuses while a request is outstanding.
func (p *progressPoller) begin() (uint64, bool) {
	if p.ticker == nil || p.inFlight {
		return 0, false
	}
	p.inFlight = true
	return p.generation, true
}

// finish releases the slot and reports whether the result is still current.
func (p *progressPoller) finish(generation uint64) bool {
	if generation != p.generation {
		return false
	}
	p.inFlight = false
	return true
}

type progressDecision struct {
	progress float64
	inFrame  bool
	complete bool
}

// evaluateProgress maps a backend report to a percentage in [0,100].
// Leaving the frame always resets progress to zero.
func evaluateProgress(report domain.ProgressReport, target float64) progressDecision {
	if !report.Correcta {
		return progressDecision{}
	}
	if target <= 0 {
		target = defaultGoodTimeTarget
	}

	pct := report.GoodTime / target * 100
	if math.IsNaN(pct) || pct < 0 {
		pct = 0
	}
	if pct >= 100 {
		return progressDecision{progress: 100, inFrame: true, complete: true}
	}
	return progressDecision{progress: pct, inFrame: pct > 0}
}
