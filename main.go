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

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/bemasher/rtlble/config"
	"github.com/bemasher/rtlble/decode"
	"github.com/bemasher/rtlble/parse"
	"github.com/bemasher/rtlble/source"
)

var rcvr Receiver

type Receiver struct {
	source.RTLTCP

	profile config.Profile
	inputs  []*input
	fc      parse.FilterChain
	metrics *Metrics
	encoder Encoder

	stop chan struct{}
}

// SampleReader is satisfied by every sample source.
type SampleReader interface {
	Read([]complex64) (int, error)
}

// input is a single channel's sample source and decoder state.
type input struct {
	channel int
	src     SampleReader
	closer  io.Closer
	stream  *decode.Stream
	buf     []complex64
	done    bool
}

// next reads and decodes a chunk, flushing the stream once the source is
// exhausted.
func (in *input) next() (decode.Report, error) {
	n, err := in.src.Read(in.buf)
	if err == io.EOF || (err == nil && n == 0) {
		in.done = true
		return in.stream.Flush()
	}
	if err != nil {
		in.done = true
		return decode.Report{}, errors.Wrapf(err, "reading channel %d", in.channel)
	}

	return in.stream.Process(in.buf[:n])
}

// resolveProfile resolves the selected profile and applies command-line overrides.
func resolveProfile() (config.Profile, error) {
	p, err := config.Lookup(*profileName)
	if err != nil {
		return p, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "samplerate":
			p.SampleRate = float64(rcvr.Flags.SampleRate)
		case "chunksize":
			p.Chunk.Size = *chunkSize
		case "overlap":
			p.Chunk.Overlap = *overlap
		}
	})

	// A profile without a chunk size falls back to the flag's default.
	if p.Chunk.Size == 0 {
		p.Chunk.Size = *chunkSize
	}

	return p, p.Validate()
}

func (rcvr *Receiver) NewReceiver() {
	var err error
	if rcvr.profile, err = resolveProfile(); err != nil {
		log.Fatal(err)
	}

	rcvr.stop = make(chan struct{})
	rcvr.encoder = encoder

	if *unique {
		rcvr.fc.Add(parse.NewUniqueFilter())
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "filtertype":
			rcvr.fc.Add(pduTypes)
		case "filteraddr":
			rcvr.fc.Add(advAddrs)
		}
	})

	reg := prometheus.NewRegistry()
	rcvr.metrics = NewMetrics(reg)
	if *metricsAddr != "" {
		ServeMetrics(*metricsAddr, reg)
	}

	if len(streams) > 0 {
		for _, ch := range streams.Channels() {
			if err := rcvr.openFile(ch, streams[ch]); err != nil {
				log.Fatal(err)
			}
		}
	} else if err := rcvr.dial(); err != nil {
		log.Fatal(err)
	}

	d, err := rcvr.profile.Decoder()
	if err != nil {
		log.Fatal(err)
	}
	d.Log(log.WithField("profile", rcvr.profile.Name))
}

func (rcvr *Receiver) openFile(ch int, filename string) error {
	var f source.Format
	if *sampleFormat != "" {
		var err error
		if f, err = source.ParseFormat(*sampleFormat); err != nil {
			return err
		}
	}

	file, err := source.Open(filename, f)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"channel": ch,
		"file":    filename,
		"format":  file.Format,
	}).Info("opened sample file")

	return rcvr.addInput(ch, file, file)
}

func (rcvr *Receiver) dial() error {
	rcvr.Channel = *channel
	rcvr.SampleRate = uint32(rcvr.profile.SampleRate)
	if rcvr.SampleRate > 3200000 {
		log.WithField("samplerate", rcvr.SampleRate).Warn("sample rate exceeds what rtl-sdr dongles support")
	}

	rd, err := rcvr.Dial("")
	if err != nil {
		return err
	}

	gainFlagSet := false
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "gainbyindex", "tunergainmode", "tunergain", "agcmode":
			gainFlagSet = true
		}
	})

	if err := rcvr.HandleFlags(); err != nil {
		return errors.Wrap(err, "handling rtltcp flags")
	}
	if !gainFlagSet {
		if err := rcvr.SetGainMode(true); err != nil {
			return errors.Wrap(err, "setting gain mode")
		}
	}

	return rcvr.addInput(*channel, rd, rcvr.SDR)
}

func (rcvr *Receiver) addInput(ch int, src SampleReader, closer io.Closer) error {
	d, err := rcvr.profile.Decoder()
	if err != nil {
		return err
	}
	d.Logger = log.WithField("channel", ch)

	stream, err := d.NewStream(ch)
	if err != nil {
		return err
	}

	rcvr.inputs = append(rcvr.inputs, &input{
		channel: ch,
		src:     src,
		closer:  closer,
		stream:  stream,
		buf:     make([]complex64, rcvr.profile.Chunk.Size),
	})

	return nil
}

func (rcvr *Receiver) Close() {
	close(rcvr.stop)
	for _, in := range rcvr.inputs {
		if in.closer != nil {
			in.closer.Close()
		}
	}
}

// round holds one chunk's reports from every input, in channel order.
type round struct {
	reports []decode.Report
	done    bool
	err     error
}

// Round decodes the next chunk of every unfinished input concurrently.
func (rcvr *Receiver) Round() (rd round) {
	rd.reports = make([]decode.Report, len(rcvr.inputs))
	errs := make([]error, len(rcvr.inputs))

	var wg sync.WaitGroup
	for idx, in := range rcvr.inputs {
		if in.done {
			continue
		}

		wg.Add(1)
		go func(idx int, in *input) {
			defer wg.Done()
			rd.reports[idx], errs[idx] = in.next()
		}(idx, in)
	}
	wg.Wait()

	rd.done = true
	for idx, in := range rcvr.inputs {
		if !in.done {
			rd.done = false
		}
		if errs[idx] != nil && rd.err == nil {
			rd.err = errs[idx]
		}
	}

	return
}

// Emit writes every packet of a round passing the filter chain. It returns
// true once single shot execution is satisfied.
func (rcvr *Receiver) Emit(rd round) (finished bool, err error) {
	now := time.Now()

	for idx, r := range rd.reports {
		ch := rcvr.inputs[idx].channel
		rcvr.metrics.Observe(ch, r)

		for _, f := range r.Failures {
			log.WithFields(log.Fields{
				"channel": ch,
				"offset":  f.Offset,
				"length":  f.Length,
			}).Debug(f.Err)
		}

		for _, p := range r.Packets {
			if !rcvr.fc.Match(p) {
				continue
			}

			if err := rcvr.encoder.Encode(parse.NewLogMessage(now, p)); err != nil {
				return false, errors.Wrap(err, "encoding packet")
			}
			rcvr.metrics.Emitted(ch)

			if *single {
				if len(advAddrs) == 0 {
					return true, nil
				}
				if addr, ok := p.AdvA(); ok {
					delete(advAddrs, addr)
				}
				if len(advAddrs) == 0 {
					return true, nil
				}
			}
		}
	}

	return false, nil
}

func (rcvr *Receiver) Run() {
	// Setup signal channel for interruption.
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt)

	// Setup time limit channel
	tLimit := make(<-chan time.Time, 1)
	if *timeLimit != 0 {
		tLimit = time.After(*timeLimit)
	}

	start := time.Now()

	var total decode.Report
	defer func() {
		log.WithFields(log.Fields{
			"elapsed":   time.Since(start),
			"samples":   total.Samples,
			"found":     total.Found,
			"truncated": total.Truncated,
			"failed":    total.Failed,
		}).Info("finished")
	}()

	// Decode rounds in the background so interruption isn't held up by a
	// blocking read.
	roundCh := make(chan round)
	go func() {
		defer close(roundCh)

		for {
			rd := rcvr.Round()

			select {
			case <-rcvr.stop:
				return
			case roundCh <- rd:
			}

			if rd.done || rd.err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-sigint:
			return
		case <-tLimit:
			log.Info("time limit reached: ", time.Since(start))
			return
		case rd, ok := <-roundCh:
			if !ok {
				return
			}

			for _, r := range rd.reports {
				total.Tally(r)
			}

			finished, err := rcvr.Emit(rd)
			if err != nil {
				log.Fatal(err)
			}
			if rd.err != nil {
				log.Error(rd.err)
				return
			}
			if finished || rd.done {
				return
			}
		}
	}
}

func init() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000000",
	})
	log.SetOutput(os.Stderr)
}

var (
	buildTag   = "dev"     // v#.#.#
	buildDate  = "unknown" // date -u '+%Y-%m-%d'
	commitHash = "unknown" // git rev-parse HEAD
)

func main() {
	rcvr.RegisterFlags()
	RegisterFlags()
	EnvOverride()
	flag.Parse()

	if *version {
		fmt.Println("Build Tag: ", buildTag)
		fmt.Println("Build Date:", buildDate)
		fmt.Println("Commit:    ", commitHash)
		os.Exit(0)
	}

	HandleFlags()

	rcvr.NewReceiver()
	defer rcvr.Close()

	rcvr.Run()
}
