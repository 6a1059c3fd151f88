package parse

import (
	"encoding/json"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var advA = Address{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

func advPacket(pduType PDUType, data ...byte) []byte {
	pkt := []byte{byte(pduType) | 0x40, byte(AddrLen + len(data))}
	pkt = append(pkt, advA[:]...)
	pkt = append(pkt, data...)
	return append(pkt, 0xAA, 0xBB, 0xCC)
}

func TestTrim(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected int
	}{
		{"exact", []byte{0x02, 0x05, 1, 2, 3, 4, 5, 6, 7, 8}, 10},
		{"garbage", []byte{0x02, 0x05, 1, 2, 3, 4, 5, 6, 7, 8, 9, 9, 9, 9}, 10},
		{"short", []byte{0x02, 0x05, 1, 2, 3}, 5},
		{"header only", []byte{0x02, 0x00, 1, 2, 3, 4}, 5},
		{"one byte", []byte{0x02}, 1},
		{"empty", nil, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			trimmed := Trim(tc.data)
			require.Len(t, trimmed, tc.expected)
			assert.Equal(t, tc.data[:tc.expected], trimmed)
		})
	}
}

func TestPacketFields(t *testing.T) {
	p := Packet{Channel: 37, Data: advPacket(AdvNonconnInd, 0x02, 0x01, 0x06)}

	assert.Equal(t, AdvNonconnInd, p.Type())
	assert.Equal(t, "ADV_NONCONN_IND", p.Type().String())
	assert.True(t, p.TxAdd())
	assert.False(t, p.RxAdd())
	assert.Equal(t, 9, p.Length())
	assert.Equal(t, uint16(0x0942), p.Header())
	assert.True(t, p.Complete())
	assert.Equal(t, append(advA[:], 0x02, 0x01, 0x06), p.Body())

	c, ok := p.CRC()
	require.True(t, ok)
	assert.Equal(t, uint32(0xCCBBAA), c)

	addr, ok := p.AdvA()
	require.True(t, ok)
	assert.Equal(t, advA, addr)
	assert.Equal(t, "06:05:04:03:02:01", addr.String())
}

func TestTruncatedPacket(t *testing.T) {
	full := advPacket(AdvInd, 1, 2, 3, 4)
	p := Packet{Data: full[:8]}

	assert.False(t, p.Complete())
	assert.Equal(t, full[2:8], p.Body())

	_, ok := p.CRC()
	assert.False(t, ok)

	addr, ok := p.AdvA()
	require.True(t, ok)
	assert.Equal(t, advA, addr)

	_, ok = Packet{Data: full[:5]}.AdvA()
	assert.False(t, ok)

	assert.Contains(t, p.String(), "Truncated")
}

func TestScanReqAdvA(t *testing.T) {
	scanA := []byte{9, 9, 9, 9, 9, 9}
	data := append([]byte{byte(ScanReq), 12}, scanA...)
	data = append(data, advA[:]...)
	data = append(data, 0, 0, 0)

	addr, ok := Packet{Data: data}.AdvA()
	require.True(t, ok)
	assert.Equal(t, advA, addr)

	_, ok = Packet{Data: []byte{byte(AdvExtInd), 0, 0, 0, 0}}.AdvA()
	assert.False(t, ok)
}

func TestParsePDUType(t *testing.T) {
	for _, s := range []string{"ADV_SCAN_IND", "adv_scan_ind", "6", "0x6"} {
		pt, err := ParsePDUType(s)
		require.NoError(t, err, s)
		assert.Equal(t, AdvScanInd, pt, s)
	}

	_, err := ParsePDUType("ADV_BOGUS")
	assert.Error(t, err)

	_, err = ParsePDUType("16")
	assert.Error(t, err)

	assert.Equal(t, "PDU_0xF", PDUType(0x0F).String())
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("06:05:04:03:02:01")
	require.NoError(t, err)
	assert.Equal(t, advA, addr)

	addr, err = ParseAddress("060504030201")
	require.NoError(t, err)
	assert.Equal(t, advA, addr)

	_, err = ParseAddress("06:05:04")
	assert.Error(t, err)
}

func TestLogMessage(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p := Packet{Channel: 38, Offset: 1234, Data: advPacket(AdvInd, 0xFF)}
	msg := NewLogMessage(ts, p)

	assert.Equal(t, "ADV_IND", msg.Type)
	assert.Equal(t, "06:05:04:03:02:01", msg.AdvA)

	r := msg.Record()
	require.Len(t, r, len(msg.Header()))
	assert.Equal(t, []string{"1234", "38", "ADV_IND", "06:05:04:03:02:01", "true"}, r[1:6])
	assert.Equal(t, "4007010203040506ffaabbcc", r[6])

	assert.True(t, strings.HasPrefix(msg.String(), "{Time:2024-05-01T12:00:00.000 Offset:1234 {Ch:38"))
	assert.NotContains(t, msg.StringNoOffset(), "Offset")

	js, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(js), `"Data":"4007010203040506ffaabbcc"`)
	assert.NotContains(t, string(js), "Packet")

	x, err := xml.Marshal(msg)
	require.NoError(t, err)
	assert.Contains(t, string(x), `Data="4007010203040506ffaabbcc"`)
	assert.Contains(t, string(x), `Channel="38"`)
}

func TestFilterChain(t *testing.T) {
	adv := Packet{Channel: 37, Data: advPacket(AdvInd, 1)}
	scan := Packet{Channel: 37, Data: advPacket(ScanRsp, 1)}

	var fc FilterChain
	assert.True(t, fc.Match(adv))

	types := PDUTypeFilter{}
	require.NoError(t, types.Set("ADV_IND,ADV_NONCONN_IND"))
	assert.Equal(t, "ADV_IND,ADV_NONCONN_IND", types.String())
	fc.Add(types)

	assert.True(t, fc.Match(adv))
	assert.False(t, fc.Match(scan))

	addrs := AddressFilter{}
	require.NoError(t, addrs.Set("11:22:33:44:55:66"))
	fc.Add(addrs)
	assert.False(t, fc.Match(adv))

	require.NoError(t, addrs.Set("06:05:04:03:02:01"))
	assert.True(t, fc.Match(adv))

	assert.Error(t, PDUTypeFilter{}.Set("nope"))
	assert.Error(t, AddressFilter{}.Set("nope"))
}

func TestUniqueFilter(t *testing.T) {
	uf := NewUniqueFilter()

	a := Packet{Channel: 37, Data: advPacket(AdvInd, 1)}
	b := Packet{Channel: 37, Data: advPacket(AdvInd, 2)}

	assert.True(t, uf.Filter(a))
	assert.False(t, uf.Filter(a))
	assert.True(t, uf.Filter(b))
	assert.True(t, uf.Filter(a))

	// Same packet on another channel is tracked separately.
	a.Channel = 38
	assert.True(t, uf.Filter(a))

	ext := Packet{Data: []byte{byte(AdvExtInd), 0, 0, 0, 0}}
	assert.True(t, uf.Filter(ext))
	assert.True(t, uf.Filter(ext))
}
