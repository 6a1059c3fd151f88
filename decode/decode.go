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

// Package decode runs the receive pipeline: burst detection, demodulation,
// sync search, dewhitening and framing.
package decode

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlble/burst"
	"github.com/bemasher/rtlble/demod"
	"github.com/bemasher/rtlble/parse"
	"github.com/bemasher/rtlble/preamble"
	"github.com/bemasher/rtlble/whiten"
)

// Decoder holds the derived configuration and sync search state. A Decoder
// is not safe for concurrent use, use one per goroutine.
type Decoder struct {
	Cfg Config

	// Logger receives per-segment diagnostics at debug level.
	Logger logrus.FieldLogger

	demod      demod.Demodulator
	pattern    preamble.Pattern
	correlator *preamble.Correlator
}

// NewDecoder normalizes and validates cfg and builds a decoder for it.
func NewDecoder(cfg Config) (*Decoder, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "decoder config")
	}

	d := &Decoder{
		Cfg:     cfg,
		Logger:  logrus.StandardLogger(),
		demod:   demod.NewDemodulator(cfg.Demod),
		pattern: preamble.NewPattern(cfg.Sync.AccessAddress),
	}

	if cfg.Sync.Strategy == CorrelateStrategy {
		d.correlator = preamble.NewCorrelator(d.pattern)
	}

	return d, nil
}

func (d Decoder) Log(log logrus.FieldLogger) {
	log.Info("Mode: ", d.Cfg.Mode)
	log.Info("SampleRate: ", d.Cfg.SampleRate)
	log.Info("SymbolRate: ", d.Cfg.SymbolRate)
	log.Info("SamplesPerSymbol: ", d.Cfg.SamplesPerSymbol())
	if d.Cfg.Mode == BurstMode {
		low, high := d.Cfg.Burst.Thresholds()
		log.Infof("BurstThresholds: %g, %g", low, high)
		log.Info("BurstPad: ", d.Cfg.Burst.Pad)
		log.Info("ClockRecovery: ", d.Cfg.Demod.ClockRecovery)
		if d.Cfg.Demod.ClockRecovery {
			log.Infof("ClockWindow: %g+%g symbols", d.Cfg.Demod.SkipSymbols, d.Cfg.Demod.WindowSymbols)
		}
	}
	log.Info("Discriminator: ", d.Cfg.Demod.Method)
	if d.Cfg.Demod.MeanBias {
		log.Info("Reference: mean")
	} else {
		log.Infof("Reference: %g Hz", d.Cfg.Demod.CFO)
	}
	log.Info("Sync: ", d.Cfg.Sync.Strategy, " ", d.pattern)
	if d.Cfg.Sync.Strategy == CorrelateStrategy {
		log.Info("SyncMaxErrors: ", d.Cfg.Sync.MaxErrors)
	}
	log.Info("ChunkSize: ", d.Cfg.Chunk.Size)
	log.Info("ChunkOverlap: ", d.Cfg.Chunk.Overlap)
}

// Decode extracts the packets of one channel from samples. Offsets in the
// report are relative to the start of samples. An invalid channel fails the
// call before any processing.
func (d *Decoder) Decode(samples []complex64, channel int) (Report, error) {
	r, _, err := d.decode(samples, channel)
	return r, err
}

// decode is Decode that also returns the bursts detected in burst mode.
func (d *Decoder) decode(samples []complex64, channel int) (r Report, bursts []burst.Range, err error) {
	if !whiten.ValidChannel(channel) {
		return Report{}, nil, errors.Wrapf(whiten.ErrInvalidChannel, "channel %d", channel)
	}

	r.Samples = int64(len(samples))

	switch d.Cfg.Mode {
	case StreamMode:
		d.decodeStream(&r, samples, channel)
	default:
		bursts = d.decodeBursts(&r, samples, channel)
	}

	return r, bursts, nil
}

func (d *Decoder) decodeBursts(r *Report, samples []complex64, channel int) []burst.Range {
	sps := d.Cfg.SamplesPerSymbol()

	bursts := burst.Detect(samples, d.Cfg.Burst)
	for _, rng := range bursts {
		bits, offset := d.demod.Decode(samples[rng.Start:rng.Stop])

		symbol, ok := d.sync(bits)
		if !ok {
			d.Logger.WithFields(logrus.Fields{
				"channel": channel,
				"offset":  rng.Start,
				"length":  rng.Len(),
			}).Debug(ErrSyncNotFound)
			r.fail(int64(rng.Start), rng.Len(), ErrSyncNotFound)
			continue
		}

		r.add(parse.Packet{
			Channel: channel,
			Offset:  int64(rng.Start + preamble.ToSamples(symbol, offset, sps)),
			Data:    d.frame(bits[symbol+preamble.PatternBits:], channel),
		})
	}

	return bursts
}

// sync returns the index of the first sync bit in bits.
func (d *Decoder) sync(bits []byte) (int, bool) {
	if d.Cfg.Sync.Strategy == CorrelateStrategy {
		m, errs, ok := d.correlator.Find(bits, d.Cfg.Sync.MaxErrors)
		if ok && errs > 0 {
			d.Logger.WithField("errors", errs).Debug("sync word with bit errors")
		}
		return m.Symbol, ok
	}

	idx := preamble.Scan(bits, d.pattern)
	return idx, idx != -1
}

func (d *Decoder) decodeStream(r *Report, samples []complex64, channel int) {
	sps := d.Cfg.SamplesPerSymbol()
	quantized := d.demod.Quantized(samples)

	// A match's bits are read from the phase slice it was found in.
	phases := preamble.Transpose(quantized, sps)
	matches := preamble.SearchPhases(phases, sps, d.pattern)
	if len(matches) == 0 {
		d.Logger.WithFields(logrus.Fields{
			"channel": channel,
			"length":  len(samples),
		}).Debug(ErrSyncNotFound)
		r.fail(0, len(samples), ErrSyncNotFound)
		return
	}

	for _, m := range matches {
		bits := phases[m.Phase][m.Symbol:]
		if len(bits) < preamble.PatternBits {
			continue
		}

		r.add(parse.Packet{
			Channel: channel,
			Offset:  int64(m.Offset),
			Data:    d.frame(bits[preamble.PatternBits:], channel),
		})
	}
}

// frame packs the bits following a sync word, dewhitens and trims them.
func (d *Decoder) frame(bits []byte, channel int) []byte {
	if n := parse.MaxPacketLen << 3; len(bits) > n {
		bits = bits[:n]
	}

	data, err := whiten.Dewhiten(preamble.PackLSB(nil, bits), channel)
	if err != nil {
		// Channels are checked before decoding.
		panic(err)
	}

	return parse.Trim(data)
}
