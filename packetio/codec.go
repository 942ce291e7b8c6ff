package packetio

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/eigrpd/eigrpd/metric"
)

// TLV types carried in the metric portion of UPDATE/QUERY/REPLY
// packets. Only the classic IPv4-internal route TLV is implemented;
// external routes and IPv6 are not handled.
const (
	TLVTypeIPv4Internal uint16 = 0x0102
)

// metricWireLen is the encoded size of a Composite: two uint32s
// (bandwidth, delay), three bytes (reliability, load, one reserved
// byte matching the original wire layout), a uint24 MTU, and a byte
// hop-count.
const metricWireLen = 4 + 4 + 1 + 1 + 1 + 3 + 1

// EncodeMetric serializes m in the classic EIGRP wire format.
func EncodeMetric(m metric.Composite) []byte {
	buf := make([]byte, metricWireLen)
	binary.BigEndian.PutUint32(buf[0:4], m.Bandwidth)
	binary.BigEndian.PutUint32(buf[4:8], m.Delay)
	buf[8] = m.Reliability
	buf[9] = m.Load
	buf[10] = 0 // reserved
	buf[11] = byte(m.MTU >> 16)
	buf[12] = byte(m.MTU >> 8)
	buf[13] = byte(m.MTU)
	buf[14] = m.HopCount
	return buf
}

// DecodeMetric parses the wire format EncodeMetric produces.
func DecodeMetric(b []byte) (metric.Composite, error) {
	if len(b) < metricWireLen {
		return metric.Composite{}, fmt.Errorf("packetio: short metric TLV: got %d bytes, want %d", len(b), metricWireLen)
	}
	return metric.Composite{
		Bandwidth:   binary.BigEndian.Uint32(b[0:4]),
		Delay:       binary.BigEndian.Uint32(b[4:8]),
		Reliability: b[8],
		Load:        b[9],
		MTU:         uint32(b[11])<<16 | uint32(b[12])<<8 | uint32(b[13]),
		HopCount:    b[14],
	}, nil
}

// TLV is one type-length-value record from the metric portion of a
// packet.
type TLV struct {
	Type  uint16
	Value []byte
}

// EncodeTLVs concatenates tlvs in order, each prefixed by a 2-byte
// type and 2-byte length covering the whole record (header included).
func EncodeTLVs(tlvs []TLV) []byte {
	var buf bytes.Buffer
	for _, t := range tlvs {
		var hdr [4]byte
		binary.BigEndian.PutUint16(hdr[0:2], t.Type)
		binary.BigEndian.PutUint16(hdr[2:4], uint16(len(t.Value))+4)
		buf.Write(hdr[:])
		buf.Write(t.Value)
	}
	return buf.Bytes()
}

// DecodeTLVs splits b into its constituent TLVs.
func DecodeTLVs(b []byte) ([]TLV, error) {
	var out []TLV
	for len(b) > 0 {
		if len(b) < 4 {
			return nil, fmt.Errorf("packetio: truncated TLV header: %d bytes left", len(b))
		}
		typ := binary.BigEndian.Uint16(b[0:2])
		length := binary.BigEndian.Uint16(b[2:4])
		if int(length) < 4 || int(length) > len(b) {
			return nil, fmt.Errorf("packetio: invalid TLV length %d with %d bytes left", length, len(b))
		}
		out = append(out, TLV{Type: typ, Value: b[4:length]})
		b = b[length:]
	}
	return out, nil
}
