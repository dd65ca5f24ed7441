package flux

// PLL tuning constants, grounded on the teacher's pll/pll.go
// (CLOCK_MAX_ADJ / PERIOD_ADJ_PCT / PHASE_ADJ_PCT), generalised into
// the Decoder's configurable Adjust/Phase percentages per spec.md
// §4.2. The spec folds the teacher's separate "clamp range" and "per
// step adjustment" constants into a single Adjust percentage that
// drives both; see DESIGN.md open-question decision.
const (
	DefaultAdjustPercent = 10 // 1-50, clock shift step and clamp range
	DefaultPhasePercent  = 60 // 1-90, timing-window phase retention
	syncLostAfterGood    = 256
)

// Decoder is a PLL turning a per-revolution sequence of flux-interval
// times into a stream of bits, with index-pulse and sync-loss events.
// Grounded on pll.Decoder (pll/pll.go) from the teacher, extended to
// span multiple revolutions and to expose flux-scale / adjust / phase
// as percentages per spec.md §4.2 instead of compile-time constants.
type Decoder struct {
	data *Data

	revIndex int
	fluxIdx  int
	lastTime uint64

	clockCentre float64 // nominal bit-cell width, ns
	clock       float64 // current PLL clock
	clockMin    float64
	clockMax    float64

	fluxScalePercent float64
	adjustPercent    float64
	phasePercent     float64

	fluxAcc      float64
	clockedZeros int

	outOfLock          bool
	goodSinceOutOfLock int

	pendingIndex    bool
	pendingSyncLost bool
	done            bool
}

// NewDecoder creates a PLL decoder over data at the given nominal
// bit-cell width (ns). fluxScalePercent, adjustPercent and
// phasePercent are 0 to take their defaults (100, DefaultAdjustPercent,
// DefaultPhasePercent respectively).
func NewDecoder(data *Data, bitcellNs float64, fluxScalePercent, adjustPercent, phasePercent float64) *Decoder {
	if fluxScalePercent <= 0 {
		fluxScalePercent = 100
	}
	if adjustPercent <= 0 {
		adjustPercent = DefaultAdjustPercent
	}
	if phasePercent <= 0 {
		phasePercent = DefaultPhasePercent
	}
	d := &Decoder{
		data:             data,
		clockCentre:      bitcellNs,
		clock:            bitcellNs,
		fluxScalePercent: fluxScalePercent,
		adjustPercent:    adjustPercent,
		phasePercent:     phasePercent,
	}
	d.clockMin = bitcellNs * (100 - adjustPercent) / 100
	d.clockMax = bitcellNs * (100 + adjustPercent) / 100
	if data == nil || len(data.Revolutions) == 0 {
		d.done = true
	}
	return d
}

// nextFluxInterval returns the next scaled flux interval in
// nanoseconds, or (0, false) once all revolutions are exhausted. It
// sets pendingIndex when crossing into a new revolution.
func (d *Decoder) nextFluxInterval() (uint64, bool) {
	for {
		if d.revIndex >= len(d.data.Revolutions) {
			return 0, false
		}
		rev := d.data.Revolutions[d.revIndex]
		if d.fluxIdx >= len(rev) {
			d.revIndex++
			d.fluxIdx = 0
			d.lastTime = 0
			if d.revIndex >= len(d.data.Revolutions) {
				return 0, false
			}
			d.pendingIndex = true
			continue
		}
		interval := rev[d.fluxIdx]
		d.fluxIdx++
		scaled := uint64(float64(interval) * d.fluxScalePercent / 100)
		return scaled, true
	}
}

// NextBit decodes and returns the next bit: 0, 1, or -1 at end of
// input. Call Index()/SyncLost() after each NextBit to consume the
// events it may have raised.
func (d *Decoder) NextBit() int {
	if d.done {
		return -1
	}

	// Accumulate flux until it exceeds half a clock.
	for d.fluxAcc < d.clock/2 {
		interval, ok := d.nextFluxInterval()
		if !ok {
			d.done = true
			return -1
		}
		d.fluxAcc += float64(interval)
	}

	d.fluxAcc -= d.clock

	if d.fluxAcc >= d.clock/2 {
		// Clocked zero: no transition in this cell.
		d.clockedZeros++
		d.noteLockState()
		return 0
	}

	// Transition detected at this cell -- this is a "1" bit. Update
	// the PLL state before reporting lock health.
	if d.clockedZeros <= 3 {
		// In lock: nudge the clock toward the residual phase.
		d.clock += d.fluxAcc * d.adjustPercent / 100
	} else {
		// Out of lock: pull the clock back toward centre.
		d.clock += (d.clockCentre - d.clock) * d.adjustPercent / 100
	}
	if d.clock < d.clockMin {
		d.clock = d.clockMin
	}
	if d.clock > d.clockMax {
		d.clock = d.clockMax
	}

	// Retain part of the residual phase rather than snapping the
	// timing window to the observed transition.
	d.fluxAcc = d.fluxAcc * (100 - d.phasePercent) / 100

	d.clockedZeros = 0
	d.noteLockState()
	return 1
}

// noteLockState tracks whether the decoder has had to pull back into
// lock and, after syncLostAfterGood consecutive good bits while out
// of lock, raises a one-shot sync-lost event.
func (d *Decoder) noteLockState() {
	if d.clockedZeros > 3 {
		d.outOfLock = true
		d.goodSinceOutOfLock = 0
		return
	}
	if !d.outOfLock {
		return
	}
	d.goodSinceOutOfLock++
	if d.goodSinceOutOfLock >= syncLostAfterGood {
		d.pendingSyncLost = true
		d.outOfLock = false
		d.goodSinceOutOfLock = 0
	}
}

// Index reports, and clears, whether a revolution boundary was
// crossed by the most recent NextBit call.
func (d *Decoder) Index() bool {
	v := d.pendingIndex
	d.pendingIndex = false
	return v
}

// SyncLost reports, and clears, whether resynchronisation was
// required as of the most recent NextBit call.
func (d *Decoder) SyncLost() bool {
	v := d.pendingSyncLost
	d.pendingSyncLost = false
	return v
}

// Done reports whether the decoder has exhausted all revolutions.
func (d *Decoder) Done() bool { return d.done }
