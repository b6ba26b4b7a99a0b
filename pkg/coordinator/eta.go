package coordinator

import "time"

// ewmaWindow is the nominal sample window the smoothing factor derives
// from: alpha = 2/(N+1) over the last N served parties.
const ewmaWindow = 20

// waitEstimator learns the per-position wait from observed serve
// durations. The estimate is advisory; it never affects ordering.
type waitEstimator struct {
	mean    time.Duration
	samples int

	prior   time.Duration
	floor   time.Duration
	ceiling time.Duration
}

func newWaitEstimator(prior, floor, ceiling time.Duration) *waitEstimator {
	return &waitEstimator{prior: prior, floor: floor, ceiling: ceiling}
}

// observe folds one served party's joinedAt→completedAt duration into the
// moving average.
func (e *waitEstimator) observe(d time.Duration) {
	if d < 0 {
		return
	}
	if e.samples == 0 {
		e.mean = d
	} else {
		const alpha = 2.0 / (ewmaWindow + 1)
		e.mean = time.Duration(alpha*float64(d) + (1-alpha)*float64(e.mean))
	}
	e.samples++
}

// perPosition returns the bounded per-position wait estimate, falling back
// to the configured prior while there is no history.
func (e *waitEstimator) perPosition() time.Duration {
	mu := e.mean
	if e.samples == 0 {
		mu = e.prior
	}
	if mu < e.floor {
		mu = e.floor
	}
	if mu > e.ceiling {
		mu = e.ceiling
	}
	return mu
}

// estimate returns the wait for a party at the given 1-based position.
func (e *waitEstimator) estimate(position int) time.Duration {
	if position < 1 {
		position = 1
	}
	return time.Duration(position) * e.perPosition()
}
