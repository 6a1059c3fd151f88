// Package crc computes the 24-bit CRC appended to every BLE link-layer PDU.
//
// The register is shifted least significant bit first, matching the air bit
// order, so the polynomial x^24 + x^10 + x^9 + x^6 + x^4 + x^3 + x + 1 is
// stored reflected.
package crc

import "fmt"

const (
	// Poly is the reflected CRC-24 polynomial.
	Poly = 0xDA6000

	// AdvertisingInit is the CRC initial value used on the advertising
	// channels, 0x555555 as transmitted.
	AdvertisingInit = 0x555555
)

type CRC struct {
	Name string
	Init uint32

	tbl Table
}

func NewCRC(name string, init uint32) (crc CRC) {
	crc.Name = name
	crc.Init = init
	crc.tbl = NewTable(Poly)

	return
}

func (crc CRC) String() string {
	return fmt.Sprintf("{Name:%s Init:0x%06X Poly:0x%06X}", crc.Name, crc.Init, Poly)
}

// Checksum returns the CRC of data as a 24-bit value whose least significant
// byte is transmitted first.
func (crc CRC) Checksum(data []byte) uint32 {
	return Checksum(Reverse(crc.Init), data, crc.tbl)
}

// Append appends the three CRC bytes for data in transmission order.
func (crc CRC) Append(data []byte) []byte {
	c := crc.Checksum(data)
	return append(data, byte(c), byte(c>>8), byte(c>>16))
}

type Table [256]uint32

func NewTable(poly uint32) (table Table) {
	for tIdx := range table {
		crc := uint32(tIdx)
		for bIdx := 0; bIdx < 8; bIdx++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ poly
			} else {
				crc = crc >> 1
			}
		}
		table[tIdx] = crc
	}
	return table
}

func Checksum(init uint32, data []byte, table Table) (crc uint32) {
	crc = init
	for _, v := range data {
		crc = crc>>8 ^ table[byte(crc)^v]
	}
	return
}

// Bitwise clocks the CRC register one bit at a time, the way the radio does.
func Bitwise(init uint32, data []byte) (crc uint32) {
	crc = init
	for _, v := range data {
		for bIdx := uint(0); bIdx < 8; bIdx++ {
			next := (crc ^ uint32(v>>bIdx)) & 1
			crc >>= 1
			if next != 0 {
				crc |= 1 << 23
				crc ^= 0x5A6000
			}
		}
	}
	return
}

// Reverse reverses the order of the low 24 bits of v.
func Reverse(v uint32) (r uint32) {
	for idx := 0; idx < 24; idx++ {
		r = r<<1 | v&1
		v >>= 1
	}
	return
}
