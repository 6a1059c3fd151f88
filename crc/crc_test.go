package crc

import (
	"testing"
	"time"

	crand "crypto/rand"
	mrand "math/rand"
)

const (
	Trials = 512
)

func TestTableMatchesBitwise(t *testing.T) {
	crc := NewCRC("BLE", AdvertisingInit)
	t.Logf("%+v\n", crc)

	for trial := 0; trial < Trials; trial++ {
		buf := make([]byte, mrand.Intn(40)+2)
		crand.Read(buf)

		init := Reverse(crc.Init)
		table := Checksum(init, buf, crc.tbl)
		bitwise := Bitwise(init, buf)
		if table != bitwise {
			t.Fatalf("%02X: table 0x%06X bitwise 0x%06X\n", buf, table, bitwise)
		}
		if table>>24 != 0 {
			t.Fatalf("%02X: checksum overflows 24 bits: 0x%08X\n", buf, table)
		}
	}
}

func TestReverse(t *testing.T) {
	if r := Reverse(AdvertisingInit); r != 0xAAAAAA {
		t.Fatalf("expected 0xAAAAAA got 0x%06X\n", r)
	}
	if r := Reverse(Reverse(0x123456)); r != 0x123456 {
		t.Fatalf("expected 0x123456 got 0x%06X\n", r)
	}
}

func TestAppend(t *testing.T) {
	crc := NewCRC("BLE", AdvertisingInit)

	pdu := []byte{0x02, 0x03, 0x01, 0x02, 0x03}
	pkt := crc.Append(append([]byte(nil), pdu...))
	if len(pkt) != len(pdu)+3 {
		t.Fatalf("expected %d bytes got %d\n", len(pdu)+3, len(pkt))
	}

	c := crc.Checksum(pdu)
	if got := uint32(pkt[5]) | uint32(pkt[6])<<8 | uint32(pkt[7])<<16; got != c {
		t.Fatalf("expected 0x%06X got 0x%06X\n", c, got)
	}
}

func init() {
	mrand.Seed(time.Now().UnixNano())
}
