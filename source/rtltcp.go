package source

import (
	"net"

	"github.com/bemasher/rtltcp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RTLTCP reads cu8 samples from an rtl_tcp compatible server tuned to a BLE
// channel.
type RTLTCP struct {
	rtltcp.SDR

	Channel    int
	SampleRate uint32
}

// Dial connects to the server at addr, tunes it and returns a reader of its
// samples. An empty addr uses the SDR's server flag.
func (r *RTLTCP) Dial(addr string) (*Reader, error) {
	var tcpAddr *net.TCPAddr
	if addr != "" {
		var err error
		if tcpAddr, err = net.ResolveTCPAddr("tcp", addr); err != nil {
			return nil, errors.Wrap(err, "resolving rtl_tcp address")
		}
	}

	if err := r.Connect(tcpAddr); err != nil {
		return nil, errors.Wrap(err, "connecting to rtl_tcp")
	}

	if err := r.Tune(); err != nil {
		r.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"tuner":     r.Info.Tuner,
		"gainCount": r.Info.GainCount,
		"channel":   r.Channel,
	}).Info("connected to rtl_tcp")

	return NewReader(r.SDR, CU8)
}

// Tune sets the centre frequency of the configured channel and the sample
// rate.
func (r *RTLTCP) Tune() error {
	freq, err := ChannelFrequency(r.Channel)
	if err != nil {
		return err
	}

	if err := r.SetCenterFreq(freq); err != nil {
		return errors.Wrap(err, "setting center frequency")
	}
	if err := r.SetSampleRate(r.SampleRate); err != nil {
		return errors.Wrap(err, "setting sample rate")
	}

	return nil
}
