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

// Package demod converts complex baseband samples of an FSK transmission
// into bits.
package demod

import (
	"fmt"
	"math"
	"math/cmplx"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Method selects how instantaneous frequency is computed.
type Method int

const (
	// Difference takes the phase difference between consecutive samples
	// and wraps it.
	Difference Method = iota
	// Gradient unwraps the phase and takes its central difference.
	Gradient
)

func (m Method) String() string {
	switch m {
	case Difference:
		return "difference"
	case Gradient:
		return "gradient"
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod returns the Method with the given name.
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(name) {
	case "", "difference":
		return Difference, nil
	case "gradient":
		return Gradient, nil
	}
	return 0, fmt.Errorf("invalid demodulation method: %q", name)
}

func (m Method) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Method) UnmarshalText(text []byte) (err error) {
	*m, err = ParseMethod(string(text))
	return
}

// Config specifies symbol timing and frequency reference options.
type Config struct {
	SamplesPerSymbol float64 `yaml:"-"`
	SampleRate       float64 `yaml:"-"`

	Method Method `yaml:"method"`

	// ClockRecovery picks the sampling phase from the preamble. The search
	// window starts SkipSymbols into the segment and is WindowSymbols long.
	ClockRecovery bool    `yaml:"clock_recovery"`
	SkipSymbols   float64 `yaml:"skip_symbols"`
	WindowSymbols float64 `yaml:"window_symbols"`

	// CFO is the known carrier frequency offset in Hz.
	CFO float64 `yaml:"cfo"`

	// MeanBias uses the mean instantaneous frequency of each segment as the
	// decision reference, overriding CFO.
	MeanBias bool `yaml:"mean_bias"`
}

// Wrap maps x onto (-π, π].
func Wrap(x float64) float64 {
	x = math.Remainder(x, 2*math.Pi)
	if x <= -math.Pi {
		x += 2 * math.Pi
	}
	return x
}

// Discriminate computes the instantaneous frequency of in, in radians per
// sample, as the wrapped phase difference between consecutive samples. The
// first output repeats the second.
func Discriminate(in []complex64, out []float64) {
	if len(out) != len(in) {
		panic(fmt.Errorf("incompatible slice lengths: %d, %d", len(in), len(out)))
	}
	if len(in) < 2 {
		for idx := range out {
			out[idx] = 0
		}
		return
	}

	prev := cmplx.Phase(complex128(in[0]))
	for idx := 1; idx < len(in); idx++ {
		phase := cmplx.Phase(complex128(in[idx]))
		out[idx] = Wrap(phase - prev)
		prev = phase
	}
	out[0] = out[1]
}

// Unwrap removes 2π discontinuities from phase in place.
func Unwrap(phase []float64) {
	if len(phase) == 0 {
		return
	}

	var correction float64
	prev := phase[0]
	for idx := 1; idx < len(phase); idx++ {
		orig := phase[idx]
		d := orig - prev
		correction += Wrap(d) - d
		prev = orig
		phase[idx] = orig + correction
	}
}

// GradientOf computes the instantaneous frequency of in by unwrapping its
// phase and taking the central difference. Both ends use one-sided
// differences.
func GradientOf(in []complex64, out []float64) {
	if len(out) != len(in) {
		panic(fmt.Errorf("incompatible slice lengths: %d, %d", len(in), len(out)))
	}
	if len(in) < 2 {
		for idx := range out {
			out[idx] = 0
		}
		return
	}

	phase := make([]float64, len(in))
	for idx, s := range in {
		phase[idx] = cmplx.Phase(complex128(s))
	}
	Unwrap(phase)

	last := len(phase) - 1
	out[0] = phase[1] - phase[0]
	for idx := 1; idx < last; idx++ {
		out[idx] = (phase[idx+1] - phase[idx-1]) / 2
	}
	out[last] = phase[last] - phase[last-1]
}

// Quantize makes a bit decision for every sample of freq: 1 above ref, 0
// otherwise.
func Quantize(freq []float64, ref float64, out []byte) {
	for idx, f := range freq {
		if f > ref {
			out[idx] = 1
		} else {
			out[idx] = 0
		}
	}
}

// Demodulator turns sample segments into bit sequences.
type Demodulator struct {
	Cfg Config
}

func NewDemodulator(cfg Config) Demodulator {
	return Demodulator{cfg}
}

// Frequency computes the instantaneous frequency of segment with the
// configured method.
func (d Demodulator) Frequency(segment []complex64) []float64 {
	freq := make([]float64, len(segment))
	switch d.Cfg.Method {
	case Gradient:
		GradientOf(segment, freq)
	default:
		Discriminate(segment, freq)
	}
	return freq
}

// Reference returns the decision threshold for freq.
func (d Demodulator) Reference(freq []float64) float64 {
	if d.Cfg.MeanBias && len(freq) > 0 {
		return stat.Mean(freq, nil)
	}
	if d.Cfg.SampleRate == 0 {
		return 0
	}
	return d.Cfg.CFO * 2 * math.Pi / d.Cfg.SampleRate
}

// Recover estimates the sample offset of the first symbol centre from the
// preamble. Segments too short for the search window yield 0.
func (d Demodulator) Recover(freq []float64) int {
	sps := d.Cfg.SamplesPerSymbol
	skip := int(sps * d.Cfg.SkipSymbols)
	end := skip + int(sps*d.Cfg.WindowSymbols)

	if end <= skip || end > len(freq) {
		return 0
	}

	return skip + floats.MaxIdx(freq[skip:end])
}

// Quantized returns the bit decision for every sample of segment.
func (d Demodulator) Quantized(segment []complex64) []byte {
	freq := d.Frequency(segment)
	out := make([]byte, len(freq))
	Quantize(freq, d.Reference(freq), out)
	return out
}

// Decode demodulates segment and samples one bit per symbol starting at the
// recovered clock offset, which is also returned.
func (d Demodulator) Decode(segment []complex64) (bits []byte, offset int) {
	freq := d.Frequency(segment)

	quantized := make([]byte, len(freq))
	Quantize(freq, d.Reference(freq), quantized)

	if d.Cfg.ClockRecovery {
		offset = d.Recover(freq)
	}

	return Decimate(quantized, offset, d.Cfg.SamplesPerSymbol), offset
}

// Decimate samples signal at offset + k*sps for every k in range.
func Decimate(signal []byte, offset int, sps float64) []byte {
	if sps <= 0 || offset >= len(signal) {
		return nil
	}

	n := int(math.Ceil(float64(len(signal)-offset) / sps))
	out := make([]byte, 0, n)
	for k := 0; ; k++ {
		idx := int(float64(offset) + float64(k)*sps)
		if idx >= len(signal) {
			break
		}
		out = append(out, signal[idx])
	}

	return out
}
