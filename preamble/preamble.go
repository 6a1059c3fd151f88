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

// Package preamble locates the access address that marks the start of a BLE
// packet, either in a bit sequence sampled at a known clock phase or in a
// per-sample binary signal by sweeping every clock phase.
package preamble

import (
	"fmt"
	"math"
)

// AdvertisingAccessAddress is the access address of every advertising
// channel packet.
const AdvertisingAccessAddress = 0x8E89BED6

// PatternBits is the length of an access address in bits.
const PatternBits = 32

// Pattern is a 32-bit sync word in the forms needed for searching.
type Pattern struct {
	Word uint32

	// Bits in transmission order, least significant bit first.
	Bits []byte

	// Bytes in transmission order, little-endian.
	Bytes []byte
}

func NewPattern(word uint32) (p Pattern) {
	p.Word = word

	p.Bits = make([]byte, PatternBits)
	for idx := range p.Bits {
		p.Bits[idx] = byte(word>>uint(idx)) & 1
	}

	p.Bytes = []byte{byte(word), byte(word >> 8), byte(word >> 16), byte(word >> 24)}

	return
}

func (p Pattern) String() string {
	return fmt.Sprintf("0x%08X", p.Word)
}

// Match is a position at which the pattern was found.
type Match struct {
	// Offset is the sample index of the first pattern bit.
	Offset int

	// Phase is the sampling phase the match was found at, always 0 for
	// single phase searches.
	Phase int

	// Symbol is the index of the first pattern bit in the decimated
	// sequence for Phase.
	Symbol int
}

// Scan returns the index of the first exact occurrence of p in bits or -1.
func Scan(bits []byte, p Pattern) int {
	for idx := 0; idx+PatternBits <= len(bits); idx++ {
		if equal(bits[idx:idx+PatternBits], p.Bits) {
			return idx
		}
	}
	return -1
}

func equal(a, b []byte) bool {
	for idx := range b {
		if a[idx] != b[idx] {
			return false
		}
	}
	return true
}

// ToSamples converts a symbol index in a sequence decimated from offset at
// sps samples per symbol to a sample index.
func ToSamples(symbol, offset int, sps float64) int {
	return int(float64(offset) + float64(symbol)*sps)
}

// Dedup collapses matches closer than spacing samples. Matches must be
// sorted by offset. Each kept match is at least spacing after the previous
// kept match and the earliest match of every cluster is kept.
func Dedup(matches []Match, spacing float64) (kept []Match) {
	for _, m := range matches {
		if n := len(kept); n > 0 && float64(m.Offset-kept[n-1].Offset) < spacing {
			continue
		}
		kept = append(kept, m)
	}
	return
}

func NextPowerOf2(v int) int {
	return 1 << uint(math.Ceil(math.Log2(float64(v))))
}
