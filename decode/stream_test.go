package decode

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bemasher/rtlble/gen"
)

const chunkSize = 4096

// splitCapture places a packet whose preamble starts 300 samples before the
// first chunk boundary.
func splitCapture(t *testing.T) (samples []complex64, pkt []byte, aa int) {
	rng := rand.New(rand.NewSource(10))

	pdu := gen.NewRandAdvPDU(rng, 4)
	air, err := gen.AirBytes(pdu, 37, gen.AdvertisingAccessAddress)
	require.NoError(t, err)

	gap := chunkSize - 300
	signalLen := len(air) * 8 * sps
	samples, aa = embed(rng, air, gap, 2*chunkSize-gap-signalLen)
	require.Len(t, samples, 2*chunkSize)

	return samples, withCRC(pdu), aa
}

func run(t *testing.T, s *Stream, samples []complex64) (total Report) {
	for idx := 0; idx < len(samples); idx += chunkSize {
		r, err := s.Process(samples[idx : idx+chunkSize])
		require.NoError(t, err)
		total.Merge(r)
	}

	r, err := s.Flush()
	require.NoError(t, err)
	total.Merge(r)

	return
}

func TestStreamBoundaryLoss(t *testing.T) {
	samples, pkt, _ := splitCapture(t)

	cfg := NewTestConfig(BurstMode)
	cfg.Chunk.Size = chunkSize
	d := NewTestDecoder(t, cfg)

	s, err := d.NewStream(37)
	require.NoError(t, err)

	total := run(t, s, samples)
	assert.Equal(t, int64(len(samples)), total.Samples)
	assert.Equal(t, int64(len(samples)), s.Offset())

	// The first chunk holds a truncated packet and the second a burst
	// without a sync word.
	for _, p := range total.Packets {
		assert.False(t, p.Complete())
		assert.Equal(t, pkt[:len(p.Data)], p.Data)
	}
	assert.Equal(t, total.Found, total.Truncated)
	assert.GreaterOrEqual(t, total.Failed, 1)
}

func TestStreamOverlap(t *testing.T) {
	samples, pkt, aa := splitCapture(t)

	cfg := NewTestConfig(BurstMode)
	cfg.Chunk = ChunkConfig{Size: chunkSize, Overlap: 1024}
	d := NewTestDecoder(t, cfg)

	s, err := d.NewStream(37)
	require.NoError(t, err)
	assert.Equal(t, 1024, s.Overlap)

	total := run(t, s, samples)
	assert.Equal(t, int64(len(samples)), total.Samples)

	require.Len(t, total.Packets, 1)
	assert.Equal(t, 0, total.Truncated)
	assert.Equal(t, 0, total.Failed)

	p := total.Packets[0]
	assert.Equal(t, pkt, p.Data)
	assert.GreaterOrEqual(t, p.Offset, int64(aa))
	assert.Less(t, p.Offset, int64(aa+sps))
}

// A burst belongs to the buffer it starts in, even when its access address
// lies past the limit, and its remainder isn't decoded again by the next
// buffer.
func TestStreamOverlapNearLimit(t *testing.T) {
	const overlap = 1024
	limit := chunkSize - overlap

	for _, delta := range []int{-8, 0, 4, 12, 24, 60} {
		rng := rand.New(rand.NewSource(int64(20 + delta)))

		pdu := gen.NewRandAdvPDU(rng, 4)
		air, err := gen.AirBytes(pdu, 37, gen.AdvertisingAccessAddress)
		require.NoError(t, err)

		gap := limit + delta - preambleSamples
		signalLen := len(air) * 8 * sps
		samples, aa := embed(rng, air, gap, 2*chunkSize-gap-signalLen)
		require.Equal(t, limit+delta, aa)

		cfg := NewTestConfig(BurstMode)
		cfg.Chunk = ChunkConfig{Size: chunkSize, Overlap: overlap}
		s, err := NewTestDecoder(t, cfg).NewStream(37)
		require.NoError(t, err)

		total := run(t, s, samples)
		assert.Equal(t, int64(len(samples)), total.Samples, "delta %d", delta)
		assert.Equal(t, int64(len(samples)), s.Offset(), "delta %d", delta)

		require.Len(t, total.Packets, 1, "delta %d", delta)
		assert.Equal(t, 0, total.Failed, "delta %d", delta)
		assert.Equal(t, 0, total.Truncated, "delta %d", delta)

		p := total.Packets[0]
		assert.Equal(t, withCRC(pdu), p.Data, "delta %d", delta)
		assert.GreaterOrEqual(t, p.Offset, int64(aa), "delta %d", delta)
		assert.Less(t, p.Offset, int64(aa+sps), "delta %d", delta)
	}
}

func TestStreamOffsets(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	var txs []gen.Transmission
	for idx := 0; idx < 4; idx++ {
		txs = append(txs, gen.Transmission{PDU: gen.NewRandAdvPDU(rng, 3), Channel: 0, Gap: 1500})
	}
	samples, offsets, err := gen.Capture(rng, gen.NewModulator(sampleRate), noiseAmp, 0, txs...)
	require.NoError(t, err)
	samples = append(samples, gen.Noise(rng, 4*chunkSize-len(samples), noiseAmp)...)

	for _, mode := range []Mode{BurstMode, StreamMode} {
		cfg := NewTestConfig(mode)
		cfg.Chunk = ChunkConfig{Size: chunkSize, Overlap: 1024}
		s, err := NewTestDecoder(t, cfg).NewStream(0)
		require.NoError(t, err)

		total := run(t, s, samples)
		require.Len(t, total.Packets, len(offsets), "mode %s", mode)
		for idx, p := range total.Packets {
			assert.True(t, p.Complete(), "mode %s packet %d", mode, idx)
			assert.InDelta(t, offsets[idx]+preambleSamples, p.Offset, sps, "mode %s packet %d", mode, idx)
		}
	}
}

func TestStreamShortChunks(t *testing.T) {
	cfg := NewTestConfig(StreamMode)
	cfg.Chunk.Overlap = 100
	s, err := NewTestDecoder(t, cfg).NewStream(1)
	require.NoError(t, err)

	r, err := s.Process(make([]complex64, 60))
	require.NoError(t, err)
	assert.Equal(t, Report{}, r)
	assert.Equal(t, int64(0), s.Offset())

	r, err = s.Process(make([]complex64, 60))
	require.NoError(t, err)
	assert.Equal(t, int64(20), r.Samples)
	assert.Equal(t, int64(20), s.Offset())

	r, err = s.Flush()
	require.NoError(t, err)
	assert.Equal(t, int64(100), r.Samples)
	assert.Equal(t, int64(120), s.Offset())
}
