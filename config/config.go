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

// Package config holds named decoder profiles. Built-in profiles are
// registered at init, more can be loaded from YAML.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/bemasher/rtlble/decode"
)

const DefaultProfile = "default"

//go:embed profiles.yaml
var builtin []byte

var (
	profileMutex sync.Mutex
	profiles     = make(map[string]Profile)
)

// A Profile is a named decoder configuration.
type Profile struct {
	Name        string `yaml:"-"`
	Description string `yaml:"description"`

	decode.Config `yaml:",inline"`
}

// Validate normalizes a copy of the profile's config and checks it.
func (p Profile) Validate() error {
	cfg := p.Config
	cfg.Normalize()
	return errors.Wrapf(cfg.Validate(), "profile %q", p.Name)
}

// Decoder builds a decoder for the profile.
func (p Profile) Decoder() (*decode.Decoder, error) {
	d, err := decode.NewDecoder(p.Config)
	return d, errors.Wrapf(err, "profile %q", p.Name)
}

func add(p Profile) error {
	profileMutex.Lock()
	defer profileMutex.Unlock()

	if p.Name == "" {
		return errors.New("profile has no name")
	}
	if _, dup := profiles[p.Name]; dup {
		return errors.Errorf("profile already registered (%s)", p.Name)
	}
	profiles[p.Name] = p
	return nil
}

// Register makes a profile available by name. It panics if the name is
// empty or already registered.
func Register(p Profile) {
	if err := add(p); err != nil {
		panic(fmt.Sprintf("config: %s", err))
	}
}

// Lookup returns the profile registered under name.
func Lookup(name string) (Profile, error) {
	profileMutex.Lock()
	defer profileMutex.Unlock()

	if p, exists := profiles[name]; exists {
		return p, nil
	}
	return Profile{}, errors.Errorf("invalid profile: %q", name)
}

// Names returns the registered profile names in order.
func Names() (names []string) {
	profileMutex.Lock()
	defer profileMutex.Unlock()

	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// Load parses a YAML mapping of profile names to profiles and validates
// each. Profiles are returned sorted by name.
func Load(r io.Reader) ([]Profile, error) {
	var named map[string]Profile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&named); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decoding profiles")
	}

	var loaded []Profile
	for name, p := range named {
		p.Name = name
		if err := p.Validate(); err != nil {
			return nil, err
		}
		loaded = append(loaded, p)
	}

	sort.Slice(loaded, func(i, j int) bool {
		return loaded[i].Name < loaded[j].Name
	})

	return loaded, nil
}

// LoadFile loads profiles from the named file and registers them.
func LoadFile(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.Wrap(err, "opening profiles")
	}
	defer f.Close()

	loaded, err := Load(f)
	if err != nil {
		return errors.Wrapf(err, "loading %s", filename)
	}

	for _, p := range loaded {
		if err := add(p); err != nil {
			return errors.Wrapf(err, "loading %s", filename)
		}
	}

	return nil
}

func init() {
	loaded, err := Load(bytes.NewReader(builtin))
	if err != nil {
		panic(fmt.Sprintf("config: built-in profiles: %s", err))
	}

	for _, p := range loaded {
		Register(p)
	}
}
