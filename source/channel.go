package source

import (
	"github.com/pkg/errors"

	"github.com/bemasher/rtlble/whiten"
)

// Advertising channels.
const (
	Adv37 = 37
	Adv38 = 38
	Adv39 = 39
)

// AdvertisingChannels lists the primary advertising channels.
var AdvertisingChannels = []int{Adv37, Adv38, Adv39}

// ChannelFrequency returns the centre frequency in Hz of a channel index.
// Advertising channels sit at 2402, 2426 and 2480 MHz; data channels fill
// the 2 MHz slots between them.
func ChannelFrequency(channel int) (uint32, error) {
	if !whiten.ValidChannel(channel) {
		return 0, errors.Wrapf(whiten.ErrInvalidChannel, "channel %d", channel)
	}

	var mhz int
	switch {
	case channel == Adv37:
		mhz = 2402
	case channel == Adv38:
		mhz = 2426
	case channel == Adv39:
		mhz = 2480
	case channel <= 10:
		mhz = 2404 + 2*channel
	default:
		mhz = 2428 + 2*(channel-11)
	}

	return uint32(mhz) * 1000000, nil
}
