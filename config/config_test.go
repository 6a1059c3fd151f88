package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bemasher/rtlble/decode"
	"github.com/bemasher/rtlble/demod"
	"github.com/bemasher/rtlble/preamble"
)

func TestBuiltinProfiles(t *testing.T) {
	names := Names()
	for _, name := range []string{"channelizer", "default", "rfnm", "stream"} {
		assert.Contains(t, names, name)
	}

	for _, name := range names {
		p, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name)
		assert.NotEmpty(t, p.Description, name)
		assert.Equal(t, uint32(preamble.AdvertisingAccessAddress), p.Sync.AccessAddress, name)

		d, err := p.Decoder()
		require.NoError(t, err, name)
		assert.GreaterOrEqual(t, d.Cfg.SamplesPerSymbol(), 2.0, name)
	}
}

func TestDefaultProfile(t *testing.T) {
	p, err := Lookup(DefaultProfile)
	require.NoError(t, err)

	assert.Equal(t, decode.BurstMode, p.Mode)
	assert.Equal(t, 4e6, p.SampleRate)
	assert.True(t, p.Burst.Hysteresis)
	assert.Equal(t, 10, p.Burst.Pad)
	assert.Equal(t, demod.Gradient, p.Demod.Method)
	assert.True(t, p.Demod.ClockRecovery)
	assert.Equal(t, 3.0, p.Demod.SkipSymbols)
	assert.Equal(t, decode.ScanStrategy, p.Sync.Strategy)
	assert.Equal(t, 1<<22, p.Chunk.Size)
	assert.Equal(t, 0, p.Chunk.Overlap)
}

func TestRFNMProfile(t *testing.T) {
	p, err := Lookup("rfnm")
	require.NoError(t, err)

	assert.False(t, p.Burst.Hysteresis)
	assert.True(t, p.Demod.MeanBias)
	assert.Equal(t, decode.CorrelateStrategy, p.Sync.Strategy)
	assert.Equal(t, 2, p.Sync.MaxErrors)
}

func TestLookupMissing(t *testing.T) {
	_, err := Lookup("nonexistent")
	assert.Error(t, err)
}

func TestRegisterDuplicate(t *testing.T) {
	assert.Panics(t, func() {
		Register(Profile{Name: DefaultProfile})
	})
	assert.Panics(t, func() {
		Register(Profile{})
	})
}

const custom = `
wideband:
  description: Test profile.
  sample_rate: 8e6
  burst:
    threshold: 0.05
  sync:
    strategy: correlate
    max_errors: 1
`

func TestLoad(t *testing.T) {
	loaded, err := Load(strings.NewReader(custom))
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	p := loaded[0]
	assert.Equal(t, "wideband", p.Name)
	assert.Equal(t, 8e6, p.SampleRate)
	assert.Equal(t, 0.05, p.Burst.Threshold)
	assert.Equal(t, decode.CorrelateStrategy, p.Sync.Strategy)

	d, err := p.Decoder()
	require.NoError(t, err)
	assert.Equal(t, 8.0, d.Cfg.SamplesPerSymbol())
	assert.Equal(t, decode.BurstMode, d.Cfg.Mode)
}

func TestLoadInvalid(t *testing.T) {
	testCases := []struct {
		name string
		doc  string
	}{
		{"unknown field", "x:\n  sample_rate: 4e6\n  bogus: 1\n"},
		{"bad method", "x:\n  sample_rate: 4e6\n  demod:\n    method: pll\n"},
		{"no sample rate", "x:\n  burst:\n    threshold: 0.1\n"},
		{"bad strategy", "x:\n  mode: stream\n  sample_rate: 4e6\n  sync:\n    strategy: scan\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.doc))
			assert.Error(t, err)
		})
	}

	loaded, err := Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestLoadFile(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(filename, []byte(custom), 0644))

	require.NoError(t, LoadFile(filename))

	p, err := Lookup("wideband")
	require.NoError(t, err)
	assert.Equal(t, 8e6, p.SampleRate)

	// Registering the same profiles twice fails.
	assert.Error(t, LoadFile(filename))

	assert.Error(t, LoadFile(filepath.Join(t.TempDir(), "missing.yaml")))
}
