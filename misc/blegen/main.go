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

// Blegen writes a synthetic capture of BLE advertisements for exercising
// rtlble without a receiver.
package main

import (
	"bufio"
	"flag"
	"math/rand"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/bemasher/rtlble/gen"
	"github.com/bemasher/rtlble/source"
)

var (
	output     = flag.String("o", "adv37.cf32", "output filename, the extension selects cf32 or cu8")
	channel    = flag.Int("channel", source.Adv37, "channel to whiten packets for")
	sampleRate = flag.Float64("samplerate", 4e6, "sample rate")
	count      = flag.Int("n", 16, "number of packets")
	gap        = flag.Int("gap", 2000, "noise samples between packets")
	noise      = flag.Float64("noise", 0.01, "peak noise amplitude per component")
	cfo        = flag.Float64("cfo", 0, "carrier frequency offset in Hz")
	seed       = flag.Int64("seed", 1, "random seed")
)

func write(w *bufio.Writer, format source.Format, samples []complex64) error {
	switch format {
	case source.CF32:
		return source.WriteCF32(w, samples)
	case source.CU8:
		u8 := make([]byte, len(samples)<<1)
		gen.CF32toU8(samples, u8)
		_, err := w.Write(u8)
		return errors.Wrap(err, "writing samples")
	}
	return errors.Errorf("unsupported format: %q", format)
}

func main() {
	flag.Parse()

	format, err := source.FormatFromFilename(*output)
	if err != nil {
		log.Fatal(err)
	}

	rng := rand.New(rand.NewSource(*seed))

	m := gen.NewModulator(*sampleRate)
	m.CFO = *cfo
	// Keep cu8 samples from clipping.
	m.Amplitude = 0.9

	var txs []gen.Transmission
	for idx := 0; idx < *count; idx++ {
		txs = append(txs, gen.Transmission{
			PDU:     gen.NewRandAdvPDU(rng, rng.Intn(31)),
			Channel: *channel,
			Gap:     *gap,
		})
	}

	samples, offsets, err := gen.Capture(rng, m, *noise, *gap, txs...)
	if err != nil {
		log.Fatal(err)
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if err := write(w, format, samples); err != nil {
		log.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		log.Fatal(err)
	}

	for idx, offset := range offsets {
		log.WithFields(log.Fields{
			"packet": idx,
			"offset": offset,
			"pdu":    txs[idx].PDU,
		}).Debug("packet placed")
	}

	log.WithFields(log.Fields{
		"file":    *output,
		"format":  format,
		"samples": len(samples),
		"packets": len(txs),
	}).Info("wrote capture")
}
