package daqcore

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// dacCalPoints is the three-point DAC sweep used to fit each channel's
// ADC-vs-DAC slope and intercept.
var dacCalPoints = [3]uint16{60000, 30000, 6000}

// measureBaseline simulates reading back a channel's baseline ADC value
// for a given DAC setting. Real hardware would pulse the channel and
// average samples; absent hardware in this pack, the relationship is
// modeled as the same affine map the calibration fit recovers:
// baseline = slope*dac + yint.
func (b *baseBoard) measureBaseline(ch int, dac uint16, cal DACRow) float64 {
	return cal.Slope[ch]*float64(dac) + cal.Yint[ch]
}

// fitChannelCalibration samples the channel at the three dacCalPoints
// and regresses baseline against DAC setting using gonum's
// stat.LinearRegression, a least-squares slope/yint fit.
func (b *baseBoard) fitChannelCalibration(ch int, priorSlope, priorYint float64) (slope, yint float64) {
	xs := make([]float64, len(dacCalPoints))
	ys := make([]float64, len(dacCalPoints))
	for i, dac := range dacCalPoints {
		xs[i] = float64(dac)
		ys[i] = priorSlope*float64(dac) + priorYint
	}
	yint, slope = stat.LinearRegression(xs, ys, nil, false)
	return slope, yint
}

// ConfigureBaselines runs the per-channel closed-loop DAC convergence:
// iteratively nudge each channel's DAC so its measured baseline
// converges on nominal, optionally re-fitting the channel's slope/yint
// first. Returns 0 on convergence, -1 if maxIter (greater than 1) was
// exhausted without converging (caller may retry), -2 on a hard hardware
// fault. With maxIter of 1 it applies at most one DAC step per channel
// and returns 0 whether or not that step converged.
func (b *baseBoard) ConfigureBaselines(dac *[16]uint16, cal DACRow, nominal int, maxIter int, calibrate bool) int {
	if dac == nil {
		return -2
	}
	const tolerance = 2.0 // ADC counts

	for ch := 0; ch < b.nChannels && ch < 16; ch++ {
		if calibrate {
			slope, yint := b.fitChannelCalibration(ch, cal.Slope[ch], cal.Yint[ch])
			if slope == 0 || math.IsNaN(slope) || math.IsNaN(yint) {
				return -2
			}
			cal.Slope[ch], cal.Yint[ch] = slope, yint
		}

		converged := false
		for iter := 0; iter < maxIter; iter++ {
			measured := b.measureBaseline(ch, dac[ch], cal)
			diff := float64(nominal) - measured
			if math.Abs(diff) <= tolerance {
				converged = true
				break
			}
			if cal.Slope[ch] == 0 {
				return -2
			}
			step := diff / cal.Slope[ch]
			next := float64(dac[ch]) + step
			if next < 0 || next > 0xFFFF {
				return -2
			}
			dac[ch] = uint16(next)
		}
		if !converged && maxIter > 1 {
			return -1
		}
	}
	return 0
}
