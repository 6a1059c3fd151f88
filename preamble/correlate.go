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

package preamble

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// Correlator cross-correlates bit sequences against a pattern. Bits and
// pattern are mapped to ±1 so the score at each position is the number of
// agreeing bits minus the number of disagreeing bits.
//
// A Correlator caches transforms by length and is not safe for concurrent
// use.
type Correlator struct {
	Pattern Pattern

	plans map[int]*plan
}

type plan struct {
	fft      *fourier.FFT
	real     []float64
	template []complex128
}

func NewCorrelator(p Pattern) *Correlator {
	return &Correlator{
		Pattern: p,
		plans:   make(map[int]*plan),
	}
}

func (c *Correlator) plan(n int) *plan {
	if pl, ok := c.plans[n]; ok {
		return pl
	}

	pl := &plan{
		fft:  fourier.NewFFT(n),
		real: make([]float64, n),
	}

	// Transform the pattern's basis function.
	for idx, bit := range c.Pattern.Bits {
		pl.real[idx] = bipolar(bit)
	}
	pl.template = pl.fft.Coefficients(nil, pl.real)

	// Store the conjugate so the product with a signal's transform is a
	// correlation rather than a convolution.
	for idx := range pl.template {
		pl.template[idx] = cmplx.Conj(pl.template[idx])
	}

	c.plans[n] = pl
	return pl
}

func bipolar(bit byte) float64 {
	if bit != 0 {
		return 1
	}
	return -1
}

// Correlate returns the score at every position the pattern fits within
// bits. Scores range from -32 to 32.
func (c *Correlator) Correlate(bits []byte) []float64 {
	if len(bits) < PatternBits {
		return nil
	}

	n := NextPowerOf2(len(bits))
	pl := c.plan(n)

	// Zero padding keeps every usable lag free of circular wrap around.
	for idx := range pl.real {
		pl.real[idx] = 0
	}
	for idx, bit := range bits {
		pl.real[idx] = bipolar(bit)
	}

	coeff := pl.fft.Coefficients(nil, pl.real)
	for idx := range coeff {
		coeff[idx] *= pl.template[idx]
	}
	seq := pl.fft.Sequence(nil, coeff)

	// The inverse transform is unnormalized.
	scores := make([]float64, len(bits)-PatternBits+1)
	for idx := range scores {
		scores[idx] = math.Round(seq[idx] / float64(n))
	}

	return scores
}

// Find returns the first position of maximum correlation and the number of
// bit errors there. ok is false when bits is too short or the best position
// has more than maxErrors errors. The match's Offset and Symbol are both the
// bit index.
func (c *Correlator) Find(bits []byte, maxErrors int) (m Match, errs int, ok bool) {
	scores := c.Correlate(bits)
	if len(scores) == 0 {
		return Match{}, 0, false
	}

	idx := floats.MaxIdx(scores)
	errs = (PatternBits - int(scores[idx])) / 2

	return Match{Offset: idx, Symbol: idx}, errs, errs <= maxErrors
}
