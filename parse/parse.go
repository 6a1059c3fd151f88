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

// Package parse frames dewhitened link-layer data into packets and
// interprets advertising channel PDU headers.
package parse

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	TimeFormat = "2006-01-02T15:04:05.000"

	HeaderLen = 2
	CRCLen    = 3

	// MaxPacketLen is the longest framed packet: header, a 255 byte body and
	// the CRC.
	MaxPacketLen = HeaderLen + 255 + CRCLen

	AddrLen = 6
)

// Trim cuts data to the packet length given by the header's length byte:
// two header bytes, the body and three CRC bytes. When fewer bytes are
// available they are returned as is.
func Trim(data []byte) []byte {
	if len(data) < HeaderLen {
		return data
	}

	n := HeaderLen + int(data[1]) + CRCLen
	if n > len(data) {
		return data
	}

	return data[:n]
}

// PDUType is the advertising channel PDU type held in the low nibble of the
// first header byte.
type PDUType byte

const (
	AdvInd PDUType = iota
	AdvDirectInd
	AdvNonconnInd
	ScanReq
	ScanRsp
	ConnectInd
	AdvScanInd
	AdvExtInd
)

var pduTypeNames = map[PDUType]string{
	AdvInd:        "ADV_IND",
	AdvDirectInd:  "ADV_DIRECT_IND",
	AdvNonconnInd: "ADV_NONCONN_IND",
	ScanReq:       "SCAN_REQ",
	ScanRsp:       "SCAN_RSP",
	ConnectInd:    "CONNECT_IND",
	AdvScanInd:    "ADV_SCAN_IND",
	AdvExtInd:     "ADV_EXT_IND",
}

func (t PDUType) String() string {
	if name, ok := pduTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PDU_0x%X", byte(t))
}

// ParsePDUType accepts a type name such as ADV_IND, case insensitive, or its
// numeric value.
func ParsePDUType(s string) (PDUType, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for t, n := range pduTypeNames {
		if n == name {
			return t, nil
		}
	}

	v, err := strconv.ParseUint(name, 0, 4)
	if err != nil {
		return 0, fmt.Errorf("invalid pdu type: %q", s)
	}
	return PDUType(v), nil
}

// A Packet is a framed, dewhitened link-layer packet: header, body and CRC.
// Offset is the sample position of the access address in the channel's
// sample stream.
type Packet struct {
	Channel int
	Offset  int64
	Data    []byte
}

// Header returns the two header bytes, first byte in the low bits.
func (p Packet) Header() uint16 {
	if len(p.Data) < HeaderLen {
		return 0
	}
	return uint16(p.Data[0]) | uint16(p.Data[1])<<8
}

func (p Packet) Type() PDUType {
	if len(p.Data) == 0 {
		return 0
	}
	return PDUType(p.Data[0] & 0x0F)
}

// TxAdd reports whether the transmitter address is random.
func (p Packet) TxAdd() bool {
	return len(p.Data) > 0 && p.Data[0]&0x40 != 0
}

// RxAdd reports whether the receiver address is random.
func (p Packet) RxAdd() bool {
	return len(p.Data) > 0 && p.Data[0]&0x80 != 0
}

// Length is the body length declared by the header.
func (p Packet) Length() int {
	if len(p.Data) < HeaderLen {
		return 0
	}
	return int(p.Data[1])
}

// Complete reports whether Data holds the whole packet the header declares.
func (p Packet) Complete() bool {
	return len(p.Data) >= HeaderLen && len(p.Data) == HeaderLen+p.Length()+CRCLen
}

// Body returns the available body bytes.
func (p Packet) Body() []byte {
	if len(p.Data) <= HeaderLen {
		return nil
	}

	end := HeaderLen + p.Length()
	if end > len(p.Data) {
		end = len(p.Data)
	}
	return p.Data[HeaderLen:end]
}

// CRC returns the received CRC, or 0 and false for truncated packets.
func (p Packet) CRC() (uint32, bool) {
	if !p.Complete() {
		return 0, false
	}

	c := p.Data[len(p.Data)-CRCLen:]
	return uint32(c[0]) | uint32(c[1])<<8 | uint32(c[2])<<16, true
}

// AdvA returns the advertiser address of PDUs that carry one. Scan and
// connect requests lead with the scanner's or initiator's address, so theirs
// follows it.
func (p Packet) AdvA() (Address, bool) {
	var offset int
	switch p.Type() {
	case AdvInd, AdvDirectInd, AdvNonconnInd, ScanRsp, AdvScanInd:
	case ScanReq, ConnectInd:
		offset = AddrLen
	default:
		return Address{}, false
	}

	body := p.Body()
	if len(body) < offset+AddrLen {
		return Address{}, false
	}

	var addr Address
	copy(addr[:], body[offset:offset+AddrLen])
	return addr, true
}

func (p Packet) String() string {
	s := fmt.Sprintf("{Ch:%2d Type:%s Len:%3d", p.Channel, p.Type(), p.Length())
	if addr, ok := p.AdvA(); ok {
		s += " AdvA:" + addr.String()
	}
	if c, ok := p.CRC(); ok {
		s += fmt.Sprintf(" CRC:0x%06X", c)
	} else {
		s += " Truncated"
	}
	return s + " Data:" + hex.EncodeToString(p.Data) + "}"
}

// An Address is a device address as transmitted, least significant byte
// first.
type Address [AddrLen]byte

// String formats the address most significant byte first.
func (a Address) String() string {
	var b strings.Builder
	for idx := len(a) - 1; idx >= 0; idx-- {
		fmt.Fprintf(&b, "%02X", a[idx])
		if idx > 0 {
			b.WriteByte(':')
		}
	}
	return b.String()
}

// ParseAddress parses an address written most significant byte first with
// optional colon separators.
func ParseAddress(s string) (a Address, err error) {
	raw, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(s), ":", ""))
	if err != nil || len(raw) != AddrLen {
		return a, fmt.Errorf("invalid device address: %q", s)
	}

	for idx, b := range raw {
		a[AddrLen-1-idx] = b
	}
	return a, nil
}

// Uniquely identifies a packet across sample blocks.
type Digest struct {
	Channel int
	Data    string
}

func NewDigest(p Packet) Digest {
	return Digest{p.Channel, string(p.Data)}
}

// HexBytes marshals as a hex string.
type HexBytes []byte

func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h)), nil
}

// A LogMessage associates a packet with a point in time.
type LogMessage struct {
	Time     time.Time `xml:",attr"`
	Offset   int64     `xml:",attr"`
	Channel  int       `xml:",attr"`
	Type     string    `xml:",attr"`
	AdvA     string    `xml:",attr,omitempty" json:",omitempty"`
	Complete bool      `xml:",attr"`
	Data     HexBytes  `xml:",attr"`

	Packet Packet `xml:"-" json:"-"`
}

func NewLogMessage(t time.Time, p Packet) (msg LogMessage) {
	msg.Time = t
	msg.Offset = p.Offset
	msg.Channel = p.Channel
	msg.Type = p.Type().String()
	if addr, ok := p.AdvA(); ok {
		msg.AdvA = addr.String()
	}
	msg.Complete = p.Complete()
	msg.Data = HexBytes(p.Data)
	msg.Packet = p

	return
}

func (msg LogMessage) String() string {
	return fmt.Sprintf("{Time:%s Offset:%d %s}", msg.Time.Format(TimeFormat), msg.Offset, msg.Packet)
}

func (msg LogMessage) StringNoOffset() string {
	return fmt.Sprintf("{Time:%s %s}", msg.Time.Format(TimeFormat), msg.Packet)
}

// Header lists the field names of Record.
func (msg LogMessage) Header() []string {
	return []string{"time", "offset", "channel", "type", "adva", "complete", "data"}
}

func (msg LogMessage) Record() (r []string) {
	r = append(r, msg.Time.Format(time.RFC3339Nano))
	r = append(r, strconv.FormatInt(msg.Offset, 10))
	r = append(r, strconv.Itoa(msg.Channel))
	r = append(r, msg.Type)
	r = append(r, msg.AdvA)
	r = append(r, strconv.FormatBool(msg.Complete))
	r = append(r, hex.EncodeToString(msg.Data))
	return r
}
