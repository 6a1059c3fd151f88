package decode

import (
	"github.com/pkg/errors"

	"github.com/bemasher/rtlble/whiten"
)

// A Stream decodes one channel's samples fed in consecutive chunks. The
// last Overlap samples of every buffer are carried into the next one and
// results located in them are deferred, so each position is reported once.
// A transmission split by a chunk boundary is recovered when Overlap covers
// it. In burst mode a burst belongs to the buffer it starts in, and the
// carried samples begin after the last burst kept.
type Stream struct {
	Channel int
	Overlap int

	d    *Decoder
	tail []complex64
	base int64
}

// NewStream returns a stream for channel using the decoder's chunk overlap.
func (d *Decoder) NewStream(channel int) (*Stream, error) {
	if !whiten.ValidChannel(channel) {
		return nil, errors.Wrapf(whiten.ErrInvalidChannel, "channel %d", channel)
	}

	return &Stream{
		Channel: channel,
		Overlap: d.Cfg.Chunk.Overlap,
		d:       d,
	}, nil
}

// Offset returns the stream position of the next buffer's first sample.
func (s *Stream) Offset() int64 {
	return s.base
}

// Process decodes chunk together with the carried samples. Offsets in the
// report are relative to the start of the stream.
func (s *Stream) Process(chunk []complex64) (Report, error) {
	if s.Overlap <= 0 {
		r, err := s.d.Decode(chunk, s.Channel)
		if err != nil {
			return r, err
		}
		r.shift(s.base)
		s.base += int64(len(chunk))
		return r, nil
	}

	buf := make([]complex64, 0, len(s.tail)+len(chunk))
	buf = append(buf, s.tail...)
	buf = append(buf, chunk...)

	limit := len(buf) - s.Overlap
	if limit <= 0 {
		s.tail = buf
		return Report{}, nil
	}

	r, bursts, err := s.d.decode(buf, s.Channel)
	if err != nil {
		return r, err
	}

	// A burst starting before the limit is decoded here in full, so the next
	// buffer must not see its remainder.
	cut := limit
	for _, rng := range bursts {
		if rng.Start < limit && rng.Stop > cut {
			cut = rng.Stop
		}
	}

	kept := r.before(int64(cut))
	kept.Samples = int64(cut)
	kept.shift(s.base)

	s.tail = append(s.tail[:0], buf[cut:]...)
	s.base += int64(cut)

	return kept, nil
}

// Flush decodes the carried samples.
func (s *Stream) Flush() (Report, error) {
	if len(s.tail) == 0 {
		return Report{}, nil
	}

	r, err := s.d.Decode(s.tail, s.Channel)
	if err != nil {
		return r, err
	}
	r.shift(s.base)

	s.base += int64(len(s.tail))
	s.tail = s.tail[:0]

	return r, nil
}
