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

// Package whiten reverses the data whitening applied to BLE link-layer PDUs.
//
// Whitening XORs every transmitted bit with the output of the 7-bit LFSR
// x^7 + x^4 + 1, seeded from the channel index. Rather than clock the LFSR
// for every bit, the output sequence is stored once in Table and each channel
// maps to the position in that sequence its seed starts at.
package whiten

import (
	"github.com/pkg/errors"
)

// Channels is the number of BLE logical channels.
const Channels = 40

// ErrInvalidChannel is returned for channel indexes outside 0-39.
var ErrInvalidChannel = errors.New("invalid channel")

// Table is one period of the whitening LFSR output.
var Table = [127]byte{
	1, 1, 1, 1, 0, 1, 0, 1, 0, 1, 0, 0, 0, 0, 1, 0, // 0
	1, 1, 0, 1, 1, 1, 1, 0, 0, 1, 1, 1, 0, 0, 1, 0, // 16
	1, 0, 1, 1, 0, 0, 1, 1, 0, 0, 0, 0, 0, 1, 1, 0, // 32
	1, 1, 0, 1, 0, 1, 1, 1, 0, 1, 0, 0, 0, 1, 1, 0, // 48
	0, 1, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 1, 0, 0, 1, // 64
	0, 0, 1, 1, 0, 1, 0, 0, 1, 1, 1, 1, 0, 1, 1, 1, // 80
	0, 0, 0, 0, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 1, 1, // 96
	1, 0, 1, 1, 0, 0, 0, 1, 0, 1, 0, 0, 1, 0, 1, // 112
}

// ChannelIndex maps each channel to its starting position in Table.
var ChannelIndex = [Channels]byte{
	70, 62, 120, 111, 77, 46, 15, 101, 66, 39, 31, 26, 80,
	83, 125, 89, 10, 35, 8, 54, 122, 17, 33, 0, 58, 115, 6,
	94, 86, 49, 52, 20, 40, 27, 84, 90, 63, 112, 47, 102,
}

// ValidChannel reports whether channel is a BLE logical channel index.
func ValidChannel(channel int) bool {
	return channel >= 0 && channel < Channels
}

// Dewhiten returns a copy of data with the whitening sequence for the given
// channel removed. Bits are processed least significant first and the
// sequence restarts at the channel's index on every call.
func Dewhiten(data []byte, channel int) ([]byte, error) {
	if !ValidChannel(channel) {
		return nil, errors.Wrapf(ErrInvalidChannel, "channel %d", channel)
	}

	out := make([]byte, len(data))
	idx := int(ChannelIndex[channel])

	for bIdx, b := range data {
		var o byte
		for bit := uint(0); bit < 8; bit++ {
			o |= ((b >> bit & 1) ^ Table[idx]) << bit
			idx++
			if idx == len(Table) {
				idx = 0
			}
		}
		out[bIdx] = o
	}

	return out, nil
}

// Whiten applies the whitening sequence for the given channel. Whitening
// and dewhitening are the same XOR, so this is Dewhiten under the name a
// transmitter would use.
func Whiten(data []byte, channel int) ([]byte, error) {
	return Dewhiten(data, channel)
}
