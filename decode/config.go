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

package decode

import (
	"github.com/pkg/errors"

	"github.com/bemasher/rtlble/burst"
	"github.com/bemasher/rtlble/demod"
	"github.com/bemasher/rtlble/preamble"
)

// Mode selects how a chunk is segmented before sync search.
type Mode string

const (
	// BurstMode segments the chunk into bursts, recovers the symbol clock of
	// each and searches the decimated bits.
	BurstMode Mode = "burst"

	// StreamMode quantizes the whole chunk and searches every sampling
	// phase.
	StreamMode Mode = "stream"
)

// Strategy selects the sync search used in burst mode.
type Strategy string

const (
	ScanStrategy      Strategy = "scan"
	CorrelateStrategy Strategy = "correlate"
	PhaseStrategy     Strategy = "phase"
)

const (
	// SymbolRate of BLE's LE 1M PHY.
	SymbolRate = 1e6

	DefaultMaxErrors = 2
)

// SyncConfig specifies the sync word and search.
type SyncConfig struct {
	Strategy      Strategy `yaml:"strategy"`
	AccessAddress uint32   `yaml:"access_address"`

	// MaxErrors is the number of sync bit errors tolerated by the
	// correlate strategy.
	MaxErrors int `yaml:"max_errors"`
}

// ChunkConfig specifies how a sample stream is divided. Overlap samples from
// the end of each buffer are carried into the next one. With zero overlap
// transmissions spanning a chunk boundary are lost or truncated.
type ChunkConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// Config specifies the whole decode pipeline.
type Config struct {
	Mode       Mode    `yaml:"mode"`
	SampleRate float64 `yaml:"sample_rate"`
	SymbolRate float64 `yaml:"symbol_rate"`

	Burst burst.Config `yaml:"burst"`
	Demod demod.Config `yaml:"demod"`
	Sync  SyncConfig   `yaml:"sync"`
	Chunk ChunkConfig  `yaml:"chunk"`
}

// SamplesPerSymbol returns the ratio of sample rate to symbol rate.
func (cfg Config) SamplesPerSymbol() float64 {
	return cfg.SampleRate / cfg.SymbolRate
}

// Normalize fills in defaults for unset fields.
func (cfg *Config) Normalize() {
	if cfg.Mode == "" {
		cfg.Mode = BurstMode
	}
	if cfg.SymbolRate == 0 {
		cfg.SymbolRate = SymbolRate
	}
	if cfg.Sync.AccessAddress == 0 {
		cfg.Sync.AccessAddress = preamble.AdvertisingAccessAddress
	}
	if cfg.Sync.Strategy == "" {
		switch cfg.Mode {
		case StreamMode:
			cfg.Sync.Strategy = PhaseStrategy
		default:
			cfg.Sync.Strategy = ScanStrategy
		}
	}

	cfg.Demod.SampleRate = cfg.SampleRate
	if cfg.SymbolRate > 0 {
		cfg.Demod.SamplesPerSymbol = cfg.SamplesPerSymbol()
	}
}

// Validate reports the first invalid field of a normalized config.
func (cfg Config) Validate() error {
	if cfg.SampleRate <= 0 {
		return errors.Errorf("invalid sample rate: %g", cfg.SampleRate)
	}
	if cfg.SymbolRate <= 0 {
		return errors.Errorf("invalid symbol rate: %g", cfg.SymbolRate)
	}
	if sps := cfg.SamplesPerSymbol(); sps < 1 {
		return errors.Errorf("sample rate %g is below the symbol rate %g", cfg.SampleRate, cfg.SymbolRate)
	}

	switch cfg.Mode {
	case BurstMode:
		if cfg.Burst.Threshold <= 0 {
			return errors.Errorf("invalid burst threshold: %g", cfg.Burst.Threshold)
		}
		if cfg.Burst.Pad < 0 {
			return errors.Errorf("invalid burst pad: %d", cfg.Burst.Pad)
		}
		if cfg.Sync.Strategy != ScanStrategy && cfg.Sync.Strategy != CorrelateStrategy {
			return errors.Errorf("invalid sync strategy for burst mode: %q", cfg.Sync.Strategy)
		}
	case StreamMode:
		if cfg.Sync.Strategy != PhaseStrategy {
			return errors.Errorf("invalid sync strategy for stream mode: %q", cfg.Sync.Strategy)
		}
	default:
		return errors.Errorf("invalid mode: %q", cfg.Mode)
	}

	if cfg.Demod.Method != demod.Difference && cfg.Demod.Method != demod.Gradient {
		return errors.Errorf("invalid demodulation method: %s", cfg.Demod.Method)
	}
	if cfg.Demod.ClockRecovery && (cfg.Demod.SkipSymbols < 0 || cfg.Demod.WindowSymbols <= 0) {
		return errors.Errorf("invalid clock recovery window: skip %g, window %g",
			cfg.Demod.SkipSymbols, cfg.Demod.WindowSymbols)
	}

	if cfg.Sync.MaxErrors < 0 || cfg.Sync.MaxErrors >= preamble.PatternBits/2 {
		return errors.Errorf("invalid sync error tolerance: %d", cfg.Sync.MaxErrors)
	}

	if cfg.Chunk.Size < 0 {
		return errors.Errorf("invalid chunk size: %d", cfg.Chunk.Size)
	}
	if cfg.Chunk.Overlap < 0 || (cfg.Chunk.Size > 0 && cfg.Chunk.Overlap >= cfg.Chunk.Size) {
		return errors.Errorf("invalid chunk overlap: %d", cfg.Chunk.Overlap)
	}

	return nil
}
