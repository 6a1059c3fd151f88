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

// Package source reads complex baseband samples from files and rtl_tcp
// servers.
package source

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Format is a sample encoding.
type Format string

const (
	// CF32 is interleaved little-endian float32 I/Q.
	CF32 Format = "cf32"
	// CU8 is interleaved unsigned 8-bit I/Q as produced by rtl-sdr dongles.
	CU8 Format = "cu8"
)

// Size returns the number of bytes per complex sample.
func (f Format) Size() int {
	switch f {
	case CF32:
		return 8
	case CU8:
		return 2
	}
	return 0
}

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case CF32, CU8:
		return f, nil
	case "fc32", "complex64":
		return CF32, nil
	case "u8", "bin":
		return CU8, nil
	}
	return "", errors.Errorf("invalid sample format: %q", s)
}

// FormatFromFilename picks the format from a file's extension.
func FormatFromFilename(filename string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(filename), "."))
}

// ByteToCmplxLUT maps unsigned 8-bit samples onto [-1, 1].
type ByteToCmplxLUT [256]float32

func NewByteToCmplxLUT() (lut ByteToCmplxLUT) {
	for idx := range lut {
		lut[idx] = (float32(idx) - 127.5) / 127.5
	}
	return lut
}

func (lut *ByteToCmplxLUT) Execute(in []byte, out []complex64) {
	if len(in) != len(out)<<1 {
		panic(errors.Errorf("incompatible slice lengths: %d, %d", len(in), len(out)))
	}

	for idx := range out {
		inIdx := idx << 1
		out[idx] = complex(lut[in[inIdx]], lut[in[inIdx+1]])
	}
}

// A Reader decodes complex samples from an underlying byte stream.
type Reader struct {
	Format Format

	r   io.Reader
	buf []byte
	lut ByteToCmplxLUT
}

func NewReader(r io.Reader, format Format) (*Reader, error) {
	if format.Size() == 0 {
		return nil, errors.Errorf("invalid sample format: %q", format)
	}

	rd := &Reader{Format: format, r: r}
	if format == CU8 {
		rd.lut = NewByteToCmplxLUT()
	}
	return rd, nil
}

// Read fills samples and returns the number of samples read. A short final
// block is returned without error; the next call returns io.EOF.
func (rd *Reader) Read(samples []complex64) (n int, err error) {
	size := rd.Format.Size()
	if need := len(samples) * size; cap(rd.buf) < need {
		rd.buf = make([]byte, need)
	}
	buf := rd.buf[:len(samples)*size]

	read, err := io.ReadFull(rd.r, buf)
	if err == io.ErrUnexpectedEOF {
		err = nil
	}
	n = read / size
	buf = buf[:n*size]

	switch rd.Format {
	case CF32:
		for idx := 0; idx < n; idx++ {
			i := math.Float32frombits(binary.LittleEndian.Uint32(buf[idx<<3:]))
			q := math.Float32frombits(binary.LittleEndian.Uint32(buf[idx<<3+4:]))
			samples[idx] = complex(i, q)
		}
	case CU8:
		rd.lut.Execute(buf, samples[:n])
	}

	if n == 0 && err == nil {
		err = io.EOF
	}

	return n, err
}

// File is a sample file opened for reading.
type File struct {
	*Reader
	*os.File
}

// Read resolves the ambiguity between the embedded readers.
func (f File) Read(samples []complex64) (int, error) {
	return f.Reader.Read(samples)
}

// Open opens a sample file, picking the format from its extension unless
// format is given.
func Open(filename string, format Format) (*File, error) {
	if format == "" {
		var err error
		if format, err = FormatFromFilename(filename); err != nil {
			return nil, errors.Wrap(err, filename)
		}
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "opening sample file")
	}

	rd, err := NewReader(f, format)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &File{rd, f}, nil
}

// WriteCF32 writes samples as interleaved little-endian float32.
func WriteCF32(w io.Writer, samples []complex64) error {
	buf := make([]byte, len(samples)<<3)
	for idx, s := range samples {
		binary.LittleEndian.PutUint32(buf[idx<<3:], math.Float32bits(real(s)))
		binary.LittleEndian.PutUint32(buf[idx<<3+4:], math.Float32bits(imag(s)))
	}
	_, err := w.Write(buf)
	return errors.Wrap(err, "writing samples")
}
