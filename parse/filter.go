package parse

import (
	"sort"
	"strings"
)

// A FilterChain takes a list of filters and applies them iteratively to
// packets sent through the chain.
type FilterChain []MessageFilter

func (fc *FilterChain) Add(filter MessageFilter) {
	*fc = append(*fc, filter)
}

func (fc FilterChain) Match(p Packet) bool {
	if len(fc) == 0 {
		return true
	}

	for _, filter := range fc {
		if !filter.Filter(p) {
			return false
		}
	}

	return true
}

type MessageFilter interface {
	Filter(Packet) bool
}

// PDUTypeFilter passes packets of the listed types. It is a flag.Value
// taking a comma-separated list.
type PDUTypeFilter map[PDUType]bool

func (f PDUTypeFilter) String() string {
	var names []string
	for t := range f {
		names = append(names, t.String())
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

func (f PDUTypeFilter) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		t, err := ParsePDUType(v)
		if err != nil {
			return err
		}
		f[t] = true
	}
	return nil
}

func (f PDUTypeFilter) Filter(p Packet) bool {
	return f[p.Type()]
}

// AddressFilter passes packets whose advertiser address is listed.
type AddressFilter map[Address]bool

func (f AddressFilter) String() string {
	var addrs []string
	for a := range f {
		addrs = append(addrs, a.String())
	}
	sort.Strings(addrs)
	return strings.Join(addrs, ",")
}

func (f AddressFilter) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		a, err := ParseAddress(v)
		if err != nil {
			return err
		}
		f[a] = true
	}
	return nil
}

func (f AddressFilter) Filter(p Packet) bool {
	addr, ok := p.AdvA()
	return ok && f[addr]
}

// UniqueFilter suppresses a packet when the same advertiser's previous
// packet on the same channel was identical. Packets without an advertiser
// address always pass.
type UniqueFilter map[uniqueKey]Digest

type uniqueKey struct {
	Channel int
	Addr    Address
}

func NewUniqueFilter() UniqueFilter {
	return make(UniqueFilter)
}

func (uf UniqueFilter) Filter(p Packet) bool {
	addr, ok := p.AdvA()
	if !ok {
		return true
	}

	key := uniqueKey{p.Channel, addr}
	digest := NewDigest(p)

	if prev, seen := uf[key]; seen && prev == digest {
		return false
	}

	uf[key] = digest
	return true
}
