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
	"bytes"
	"math"
	"sort"
)

// Phases returns the number of distinct sampling phases at sps samples per
// symbol.
func Phases(sps float64) int {
	return int(math.Ceil(sps))
}

// Transpose a per-sample signal into slices such that the first rank
// represents sampling phase and the second represents the value of each
// symbol sampled at that phase.
//
// Transforms:
// <--Sym1--><--Sym2--><--Sym3--><--Sym4-->
// <11111111><22222222><33333333><44444444>
// to:
// <1234><1234><1234><1234><1234><1234><1234><1234>
func Transpose(signal []byte, sps float64) [][]byte {
	slices := make([][]byte, Phases(sps))

	for phase := range slices {
		for symbol := 0; ; symbol++ {
			idx := ToSamples(symbol, phase, sps)
			if idx >= len(signal) {
				break
			}
			slices[phase] = append(slices[phase], signal[idx])
		}
	}

	return slices
}

// PackLSB appends bits packed eight to a byte to dst, the first bit in the
// least significant position. Trailing bits that don't fill a byte are
// dropped.
func PackLSB(dst, bits []byte) []byte {
	for bIdx := 0; bIdx+8 <= len(bits); bIdx += 8 {
		var b byte
		for bit, v := range bits[bIdx : bIdx+8] {
			b |= (v & 1) << uint(bit)
		}
		dst = append(dst, b)
	}
	return dst
}

// Candidates returns every position the pattern occurs at in signal, for
// each sampling phase and each bit alignment within a byte, sorted by
// offset then phase.
func Candidates(signal []byte, sps float64, p Pattern) []Match {
	return candidates(Transpose(signal, sps), sps, p)
}

func candidates(phases [][]byte, sps float64, p Pattern) (matches []Match) {
	var packed []byte

	for phase, slice := range phases {
		// Packing fixes the bit alignment, so search once per alignment.
		for align := 0; align < 8 && align < len(slice); align++ {
			packed = PackLSB(packed[:0], slice[align:])

			lastIdx := 0
			for {
				idx := bytes.Index(packed[lastIdx:], p.Bytes)
				if idx == -1 {
					break
				}

				symbol := align + (lastIdx+idx)<<3
				matches = append(matches, Match{
					Offset: ToSamples(symbol, phase, sps),
					Phase:  phase,
					Symbol: symbol,
				})
				lastIdx += idx + 1
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Offset != matches[j].Offset {
			return matches[i].Offset < matches[j].Offset
		}
		return matches[i].Phase < matches[j].Phase
	})

	return
}

// PhaseSearch finds the pattern in a per-sample binary signal without prior
// clock recovery. Matches less than one symbol apart are collapsed to the
// earliest.
func PhaseSearch(signal []byte, sps float64, p Pattern) []Match {
	return SearchPhases(Transpose(signal, sps), sps, p)
}

// SearchPhases is PhaseSearch over a signal already transposed. A match's
// bits are phases[m.Phase][m.Symbol:].
func SearchPhases(phases [][]byte, sps float64, p Pattern) []Match {
	return Dedup(candidates(phases, sps, p), sps)
}
