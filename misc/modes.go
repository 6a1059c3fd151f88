// Calculates:
// Sample rates rtl-sdr dongles accept, in 250kHz steps, and their samples per symbol.
// Number of sampling phases searched in stream mode.
// Number of 2MHz BLE channels covered.
// Excess bandwidth outside of the captured channels.

package main

import (
	"fmt"

	"github.com/bemasher/rtlble/decode"
	"github.com/bemasher/rtlble/preamble"
)

const (
	ChannelWidth = 2e6

	// Valid sample rates fall in one of two bands:
	// http://cgit.osmocom.org/rtl-sdr/tree/src/librtlsdr.c#n1069
	LowerMin = 225e3
	LowerMax = 300e3
	UpperMin = 900e3
	UpperMax = 3.2e6

	// Step between candidate rates when searching for fractional symbol
	// lengths.
	RateStep = 250e3
)

func valid(sampleRate float64) bool {
	return (LowerMin < sampleRate && sampleRate <= LowerMax) || (UpperMin < sampleRate && sampleRate <= UpperMax)
}

func main() {
	for sampleRate := UpperMin + RateStep; sampleRate <= UpperMax; sampleRate += RateStep {
		if !valid(sampleRate) {
			continue
		}

		cfg := decode.Config{SampleRate: sampleRate}
		cfg.Normalize()
		sps := cfg.SamplesPerSymbol()
		if sps < 1 {
			continue
		}

		channels := int(sampleRate / ChannelWidth)
		excess := sampleRate - float64(channels)*ChannelWidth

		fmt.Printf("SampleRate:%.0f SamplesPerSymbol:%.2f Phases:%d Channels:%d ExcessBandwidth:%.0f\n",
			sampleRate, sps, preamble.Phases(sps), channels, excess,
		)
	}
}
