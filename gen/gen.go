// Package gen synthesizes BLE advertising transmissions for tests and
// sample capture generation.
package gen

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/bemasher/rtlble/crc"
	"github.com/bemasher/rtlble/whiten"
)

const (
	AdvertisingAccessAddress = 0x8E89BED6

	// ModulationIndex of BLE's LE 1M PHY.
	ModulationIndex = 0.5
)

// NewAdvPDU builds an advertising PDU: a two byte header followed by the
// advertiser address and advertising data.
func NewAdvPDU(pduType byte, advA [6]byte, data []byte) []byte {
	body := append(advA[:], data...)
	if len(body) > 255 {
		panic(fmt.Errorf("pdu body too long: %d", len(body)))
	}

	pdu := make([]byte, 2, 2+len(body)+3)
	pdu[0] = pduType & 0x0F
	pdu[1] = byte(len(body))
	return append(pdu, body...)
}

// NewRandAdvPDU returns an ADV_NONCONN_IND PDU with a random address and
// random advertising data of the given length.
func NewRandAdvPDU(rng *rand.Rand, dataLen int) []byte {
	var advA [6]byte
	rng.Read(advA[:])

	data := make([]byte, dataLen)
	rng.Read(data)

	return NewAdvPDU(0x02, advA, data)
}

// AppendCRC appends the advertising channel CRC to pdu.
func AppendCRC(pdu []byte) []byte {
	return crc.NewCRC("BLE", crc.AdvertisingInit).Append(pdu)
}

// AirBytes returns the bytes of a packet as transmitted: preamble, access
// address, then the whitened PDU and CRC.
func AirBytes(pdu []byte, channel int, accessAddress uint32) ([]byte, error) {
	whitened, err := whiten.Whiten(AppendCRC(append([]byte(nil), pdu...)), channel)
	if err != nil {
		return nil, err
	}

	// The preamble alternates and its last bit differs from the first bit
	// of the access address.
	preamble := byte(0xAA)
	if accessAddress&1 == 1 {
		preamble = 0x55
	}

	air := []byte{
		preamble,
		byte(accessAddress),
		byte(accessAddress >> 8),
		byte(accessAddress >> 16),
		byte(accessAddress >> 24),
	}
	return append(air, whitened...), nil
}

// UnpackBits expands data to one bit per byte, least significant bit first.
func UnpackBits(data []byte) []byte {
	bits := make([]byte, len(data)<<3)

	for idx, b := range data {
		offset := idx << 3
		for bit := uint(0); bit < 8; bit++ {
			bits[offset+int(bit)] = (b >> bit) & 0x01
		}
	}

	return bits
}

// Modulator produces continuous phase FSK.
type Modulator struct {
	SampleRate float64
	SymbolRate float64
	Index      float64
	Amplitude  float64

	// CFO shifts the carrier by the given number of Hz.
	CFO float64
}

func NewModulator(sampleRate float64) Modulator {
	return Modulator{
		SampleRate: sampleRate,
		SymbolRate: 1e6,
		Index:      ModulationIndex,
		Amplitude:  1,
	}
}

// SamplesPerSymbol returns the ratio of sample rate to symbol rate.
func (m Modulator) SamplesPerSymbol() float64 {
	return m.SampleRate / m.SymbolRate
}

// Modulate returns the samples for bits. A 1 deviates the carrier up by
// Index * SymbolRate / 2 Hz, a 0 deviates it down by the same amount.
func (m Modulator) Modulate(bits []byte) []complex64 {
	sps := m.SamplesPerSymbol()
	n := int(math.Round(float64(len(bits)) * sps))

	deviation := math.Pi * m.Index / sps
	offset := 2 * math.Pi * m.CFO / m.SampleRate

	signal := make([]complex64, n)
	var phase float64
	for idx := range signal {
		sym := int(float64(idx) / sps)
		if sym >= len(bits) {
			sym = len(bits) - 1
		}

		if bits[sym] == 1 {
			phase += deviation
		} else {
			phase -= deviation
		}
		phase = math.Remainder(phase+offset, 2*math.Pi)

		s, c := math.Sincos(phase)
		signal[idx] = complex(float32(c*m.Amplitude), float32(s*m.Amplitude))
	}

	return signal
}

// Noise returns n samples of uniform complex noise with the given peak
// amplitude per component.
func Noise(rng *rand.Rand, n int, amp float64) []complex64 {
	noise := make([]complex64, n)
	AddNoise(rng, noise, amp)
	return noise
}

// AddNoise adds uniform complex noise to signal in place.
func AddNoise(rng *rand.Rand, signal []complex64, amp float64) {
	for idx := range signal {
		i := (rng.Float64() - 0.5) * 2.0 * amp
		q := (rng.Float64() - 0.5) * 2.0 * amp
		signal[idx] += complex(float32(i), float32(q))
	}
}

// Transmission is a packet placed in a capture.
type Transmission struct {
	PDU     []byte
	Channel int

	// Gap is the number of noise samples preceding the packet.
	Gap int
}

// Capture renders transmissions separated by noise, followed by trail noise
// samples. Returned offsets are the sample index at which each packet's
// preamble starts.
func Capture(rng *rand.Rand, m Modulator, noiseAmp float64, trail int, txs ...Transmission) (samples []complex64, offsets []int, err error) {
	for _, tx := range txs {
		samples = append(samples, Noise(rng, tx.Gap, noiseAmp)...)

		air, err := AirBytes(tx.PDU, tx.Channel, AdvertisingAccessAddress)
		if err != nil {
			return nil, nil, err
		}

		signal := m.Modulate(UnpackBits(air))
		AddNoise(rng, signal, noiseAmp)

		offsets = append(offsets, len(samples))
		samples = append(samples, signal...)
	}

	samples = append(samples, Noise(rng, trail, noiseAmp)...)

	return samples, offsets, nil
}

// CF32toU8 converts samples to interleaved unsigned 8-bit I/Q as produced
// by rtl-sdr dongles. Samples are expected in [-1, 1].
func CF32toU8(samples []complex64, u8 []byte) {
	if len(samples)<<1 != len(u8) {
		panic(fmt.Errorf("arrays must have compatible dimensions: %d != %d", len(samples)<<1, len(u8)))
	}

	for idx, s := range samples {
		u8[idx<<1] = toU8(real(s))
		u8[idx<<1+1] = toU8(imag(s))
	}
}

func toU8(v float32) byte {
	f := float64(v)*127.5 + 127.5
	if f < 0 {
		return 0
	}
	if f > 255 {
		return 255
	}
	return uint8(f)
}
