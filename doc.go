/*
RTLBLE is an rtl-sdr receiver for Bluetooth Low Energy advertisements on the
2.4GHz ISM band.

Samples are read either from an rtl_tcp server tuned to a single channel or
from one or more sample files, each holding a capture of one channel. Every
channel is decoded by its own pipeline and packets are written in channel
order.

Command-line Flags:

	-stream=37=adv37.cf32,38=adv38.cf32

Decodes sample files instead of receiving from rtl_tcp. Each pair maps a
channel, which selects the dewhitening sequence, to a file. The flag may be
given more than once.

	-sampleformat=""

Sets the sample file format, cf32 for interleaved little-endian float32 or
cu8 for interleaved unsigned bytes as produced by rtl_sdr. Defaults to the
format implied by each file's extension.

	-channel=37

Sets the channel to tune when receiving from rtl_tcp. Advertising channels
are 37, 38 and 39.

	-profile="default"

Selects the decoder profile. Profiles set the sample rate, burst detection,
discriminator, clock recovery and access address search.

	-profiles=""

Loads additional profiles from a yaml file. Each top level key names a
profile:

	wideband:
	  description: 8Msps capture
	  mode: burst
	  sample_rate: 8e6
	  burst:
	    threshold: 0.01
	    pad: 16
	  demod:
	    method: gradient

	-listprofiles=false

Lists every profile and exits.

	-chunksize=4194304
	-overlap=0

Override the profile's chunk size and overlap. Samples are decoded in chunks
and a transmission spanning two chunks is lost unless the overlap covers it.

	-duration=0

Sets time to receive for, 0 for infinite.

	-filtertype=ADV_IND,SCAN_RSP
	-filteraddr=C0:FF:EE:00:11:22

Display only packets of the given PDU types or from the given advertisers.

	-unique=false

Suppresses packets identical to the previous packet from the same
advertiser on the same channel.

	-single=false

Exits after the first packet, or once a packet from every address given to
-filteraddr has been received.

	-format="plain"

Sets the output format: plain, csv, json or xml. Plain text omits the sample
offset when receiving from rtl_tcp.

	-metrics=""

Serves prometheus counters of found, truncated and failed packets per
channel on the given address.

	-loglevel="info"

Sets the logging level. Per segment decoder activity is logged at debug.

Every flag may also be set by an environment variable named RTLBLE_ followed
by the upper case flag name.
*/
package main
