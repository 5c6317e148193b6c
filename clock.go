package daqcore

// RolloverTracker tracks a V1724-family board's 31-bit timestamp
// rollover. The board's free-running clock wraps every 2^31 clock
// cycles; this tracks how many times it has wrapped so absolute time
// can be reconstructed as (clockCounter<<31) + timestamp.
type RolloverTracker struct {
	clockCycleNS int64
	clockPeriod  int64 // (1<<31) * clockCycleNS, in ns

	lastTime     uint32
	rolloverCnt  int32
	lastRealTime int64 // ns, monotonic source supplied by caller
	seenUnder5   bool
	seenOver15   bool
}

// NewRolloverTracker builds a tracker for a board whose clock increments
// every clockCycleNS nanoseconds.
func NewRolloverTracker(clockCycleNS int64) *RolloverTracker {
	return &RolloverTracker{
		clockCycleNS: clockCycleNS,
		clockPeriod:  (1 << 31) * clockCycleNS,
	}
}

// Observe feeds one board header timestamp (31-bit, in clock ticks) plus
// a monotonic real-time reading in ns, and returns the clock_counter to
// associate with this timestamp. Combines two detectors: a real-time
// guard against missed rollovers (if more real time elapsed than one
// clock period should allow without a wrap we haven't seen) and a
// value-based guard (timestamp went backwards).
func (r *RolloverTracker) Observe(timestamp uint32, realTimeNS int64) int32 {
	if r.lastRealTime != 0 {
		dt := realTimeNS - r.lastRealTime
		if dt > r.clockPeriod {
			missed := int32(dt / r.clockPeriod)
			r.rolloverCnt += missed
		}
	}

	// value-based detection using hysteresis bands: a timestamp in the
	// low band right after one in the high band means a genuine wrap;
	// seenUnder5/seenOver15 keep a single noisy sample near the boundary
	// from double-counting.
	const (
		lowBand  = uint32(1) << 29 // "under 5" scaled to 31-bit range
		highBand = uint32(3) << 29 // "over 15" scaled to 31-bit range
	)

	if timestamp < lowBand {
		if r.seenOver15 {
			r.rolloverCnt++
		}
		r.seenUnder5 = true
		r.seenOver15 = false
	} else if timestamp > highBand {
		r.seenOver15 = true
		r.seenUnder5 = false
	} else if timestamp < r.lastTime {
		r.rolloverCnt++
	}

	r.lastTime = timestamp
	r.lastRealTime = realTimeNS
	return r.rolloverCnt
}

// AbsoluteTime reconstructs the unwrapped timestamp in clock ticks.
func AbsoluteTime(clockCounter int32, timestamp uint32) int64 {
	return (int64(clockCounter) << 31) + int64(timestamp)
}
