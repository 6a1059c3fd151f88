// RTLBLE - An rtl-sdr receiver for Bluetooth Low Energy advertisements.
// Copyright (C) 2024 The rtlble Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package burst segments a sample stream into intervals that likely contain
// a single transmission.
package burst

// Config holds amplitude thresholds and the guard pad applied to each burst.
type Config struct {
	// Threshold is the nominal amplitude separating signal from noise.
	Threshold float64 `yaml:"threshold"`

	// With Hysteresis a burst starts above 1.2x Threshold and ends below
	// 0.8x Threshold. Without it both edges use Threshold.
	Hysteresis bool `yaml:"hysteresis"`

	// Pad is the number of samples added to both ends of a burst.
	Pad int `yaml:"pad"`
}

// Thresholds returns the low and high amplitude thresholds.
func (cfg Config) Thresholds() (low, high float64) {
	if cfg.Hysteresis {
		return 0.8 * cfg.Threshold, 1.2 * cfg.Threshold
	}
	return cfg.Threshold, cfg.Threshold
}

// Range is the half-open interval [Start, Stop) of a burst.
type Range struct {
	Start, Stop int
}

// Len returns the number of samples in the range.
func (r Range) Len() int {
	return r.Stop - r.Start
}

func mag2(s complex64) float32 {
	return real(s)*real(s) + imag(s)*imag(s)
}

// Detect scans samples for bursts. Ranges are ordered, non-overlapping and
// bounded by len(samples).
func Detect(samples []complex64, cfg Config) (ranges []Range) {
	// Compare squared magnitudes so we never take a square root.
	low, high := cfg.Thresholds()
	low2, high2 := float32(low*low), float32(high*high)

	for x := 0; x < len(samples); {
		// Find the next sample above the high threshold.
		start := x
		for start < len(samples) && !(mag2(samples[start]) > high2) {
			start++
		}

		// No more bursts.
		if start == len(samples) {
			break
		}

		// Find the first sample that falls below the low threshold. If
		// there isn't one, the burst runs to the end of the stream.
		stop := start
		for stop < len(samples) && mag2(samples[stop]) > low2 {
			stop++
		}

		start -= cfg.Pad
		stop += cfg.Pad
		if start < 0 {
			start = 0
		}
		if stop > len(samples) {
			stop = len(samples)
		}

		// The previous burst's pad may reach past this burst's padded start.
		if n := len(ranges); n > 0 && start < ranges[n-1].Stop {
			start = ranges[n-1].Stop
		}

		ranges = append(ranges, Range{start, stop})
		x = stop
	}

	return
}

// Extract returns the samples of each detected burst. The returned slices
// share memory with samples.
func Extract(samples []complex64, cfg Config) (bursts [][]complex64) {
	for _, r := range Detect(samples, cfg) {
		bursts = append(bursts, samples[r.Start:r.Stop])
	}
	return
}

// Squelch returns a copy of samples with everything outside of detected
// bursts set to zero.
func Squelch(samples []complex64, cfg Config) []complex64 {
	out := make([]complex64, len(samples))
	for _, r := range Detect(samples, cfg) {
		copy(out[r.Start:r.Stop], samples[r.Start:r.Stop])
	}
	return out
}
