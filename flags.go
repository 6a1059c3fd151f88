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
	"encoding/json"
	"encoding/xml"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/bemasher/rtlble/config"
	"github.com/bemasher/rtlble/csv"
	"github.com/bemasher/rtlble/parse"
	"github.com/bemasher/rtlble/source"
)

var streams = StreamMap{}

var sampleFormat = flag.String("sampleformat", "", "sample file format: cf32 or cu8, defaults to the file extension")

var channel = flag.Int("channel", source.Adv37, "channel to tune when receiving from rtl_tcp")

var profileName = flag.String("profile", config.DefaultProfile, "decoder profile")
var profileFile = flag.String("profiles", "", "yaml file of additional decoder profiles")
var listProfiles = flag.Bool("listprofiles", false, "list decoder profiles and exit")

var chunkSize = flag.Int("chunksize", 1<<22, "samples decoded per chunk, overrides the profile")
var overlap = flag.Int("overlap", 0, "samples carried between chunks, overrides the profile. 0 drops transmissions spanning a chunk boundary")

var timeLimit = flag.Duration("duration", 0, "time to run for, 0 for infinite, ex. 1h5m10s")

var pduTypes = parse.PDUTypeFilter{}
var advAddrs = parse.AddressFilter{}

var unique = flag.Bool("unique", false, "suppress consecutive duplicate packets from each advertiser")

var encoder Encoder
var format = flag.String("format", "plain", "decoded packet output format: plain, csv, json, or xml")
var csvHeader = flag.Bool("header", false, "write a header line before csv output")

var single = flag.Bool("single", false, "one shot execution, if used with -filteraddr, will wait for exactly one packet from each address")

var metricsAddr = flag.String("metrics", "", "serve prometheus metrics on this address, ex. :9100")

var logLevel = flag.String("loglevel", "info", "log level: debug, info, warn or error")

var version = flag.Bool("version", false, "display build date and commit hash")

func RegisterFlags() {
	flag.Var(streams, "stream", "channel and sample file pairs, ex. 37=adv37.cf32,38=adv38.cf32")
	flag.Var(pduTypes, "filtertype", "display only packets matching a pdu type in a comma-separated list of types.")
	flag.Var(advAddrs, "filteraddr", "display only packets matching an advertiser address in a comma-separated list.")

	rtlbleFlags := map[string]bool{
		"stream":       true,
		"sampleformat": true,
		"channel":      true,
		"profile":      true,
		"profiles":     true,
		"listprofiles": true,
		"chunksize":    true,
		"overlap":      true,
		"duration":     true,
		"filtertype":   true,
		"filteraddr":   true,
		"format":       true,
		"header":       true,
		"unique":       true,
		"single":       true,
		"metrics":      true,
		"loglevel":     true,
		"version":      true,
	}

	printDefaults := func(validFlags map[string]bool, inclusion bool) {
		flag.CommandLine.VisitAll(func(f *flag.Flag) {
			if validFlags[f.Name] != inclusion {
				return
			}

			format := "  -%s=%s: %s\n"
			fmt.Fprintf(os.Stderr, format, f.Name, f.Value, f.Usage)
		})
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		printDefaults(rtlbleFlags, true)

		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "rtltcp specific:")
		printDefaults(rtlbleFlags, false)
	}
}

func EnvOverride() {
	flag.VisitAll(func(f *flag.Flag) {
		envName := "RTLBLE_" + strings.ToUpper(f.Name)
		flagValue := os.Getenv(envName)
		if flagValue != "" {
			if err := flag.Set(f.Name, flagValue); err != nil {
				log.Warnf(
					"Environment variable %q failed to override flag %q with value %q: %q",
					envName, f.Name, flagValue, err,
				)
			} else {
				log.Infof("Environment variable %q overrides flag %q with %q", envName, f.Name, flagValue)
			}
		}
	})
}

func HandleFlags() {
	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(level)

	if *profileFile != "" {
		if err := config.LoadFile(*profileFile); err != nil {
			log.Fatal(err)
		}
	}

	if *listProfiles {
		for _, name := range config.Names() {
			p, _ := config.Lookup(name)
			fmt.Printf("%-12s %s\n", name, p.Description)
		}
		os.Exit(0)
	}

	*format = strings.ToLower(*format)
	switch *format {
	case "plain":
		encoder = PlainEncoder{len(streams) > 0}
	case "csv":
		enc := csv.NewEncoder(os.Stdout)
		enc.WriteHeader = *csvHeader
		encoder = enc
	case "json":
		encoder = json.NewEncoder(os.Stdout)
	case "xml":
		encoder = xml.NewEncoder(os.Stdout)
	default:
		log.Fatalf("invalid output format: %q", *format)
	}
}

// JSON, XML and CSV all implement this interface so we can simplify log
// output formatting.
type Encoder interface {
	Encode(interface{}) error
}

// StreamMap associates channels with sample files.
type StreamMap map[int]string

func (m StreamMap) String() string {
	var pairs []string
	for _, ch := range m.Channels() {
		pairs = append(pairs, strconv.Itoa(ch)+"="+m[ch])
	}
	return strings.Join(pairs, ",")
}

func (m StreamMap) Set(value string) error {
	for _, pair := range strings.Split(value, ",") {
		fields := strings.SplitN(pair, "=", 2)
		if len(fields) != 2 || fields[1] == "" {
			return fmt.Errorf("invalid stream: %q, expected channel=filename", pair)
		}

		ch, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return fmt.Errorf("invalid stream channel: %q", fields[0])
		}
		if _, dup := m[ch]; dup {
			return fmt.Errorf("duplicate stream channel: %d", ch)
		}

		m[ch] = strings.TrimSpace(fields[1])
	}

	return nil
}

// Channels returns the mapped channels in ascending order.
func (m StreamMap) Channels() (channels []int) {
	for ch := range m {
		channels = append(channels, ch)
	}
	sort.Ints(channels)
	return
}

type PlainEncoder struct {
	offsets bool
}

func (pe PlainEncoder) Encode(msg interface{}) (err error) {
	if m, ok := msg.(parse.LogMessage); ok && !pe.offsets {
		_, err = fmt.Println(m.StringNoOffset())
	} else {
		_, err = fmt.Println(msg)
	}
	return
}
