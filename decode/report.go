package decode

import (
	"github.com/pkg/errors"

	"github.com/bemasher/rtlble/parse"
)

// ErrSyncNotFound is recorded when a burst or chunk holds no sync word.
var ErrSyncNotFound = errors.New("sync not found")

// A Failure records a segment that produced no packet.
type Failure struct {
	Offset int64
	Length int
	Err    error
}

// A Report holds the packets and diagnostics of a processing call. Reports
// are merged by the caller instead of accumulating in shared counters.
type Report struct {
	Packets  []parse.Packet
	Failures []Failure

	Found     int
	Failed    int
	Truncated int

	Samples int64
}

func (r *Report) add(p parse.Packet) {
	r.Packets = append(r.Packets, p)
	r.Found++
	if !p.Complete() {
		r.Truncated++
	}
}

func (r *Report) fail(offset int64, length int, err error) {
	r.Failures = append(r.Failures, Failure{offset, length, err})
	r.Failed++
}

// Merge appends other's packets and failures and sums the counters.
func (r *Report) Merge(other Report) {
	r.Packets = append(r.Packets, other.Packets...)
	r.Failures = append(r.Failures, other.Failures...)
	r.Tally(other)
}

// Tally sums other's counters without keeping its packets or failures, for
// running totals over an unbounded stream.
func (r *Report) Tally(other Report) {
	r.Found += other.Found
	r.Failed += other.Failed
	r.Truncated += other.Truncated
	r.Samples += other.Samples
}

// shift moves every offset by base samples.
func (r *Report) shift(base int64) {
	for idx := range r.Packets {
		r.Packets[idx].Offset += base
	}
	for idx := range r.Failures {
		r.Failures[idx].Offset += base
	}
}

// before returns a report holding only entries offset before limit.
func (r Report) before(limit int64) (kept Report) {
	for _, p := range r.Packets {
		if p.Offset < limit {
			kept.add(p)
		}
	}
	for _, f := range r.Failures {
		if f.Offset < limit {
			kept.fail(f.Offset, f.Length, f.Err)
		}
	}
	return
}
