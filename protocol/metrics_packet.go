/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package protocol

import (
	"encoding/binary"
	"fmt"
)

// MetricsPacketSize is the byte-exact size of an encoded MetricsPacket: nine
// 32-bit unsigned integers. It is deliberately distinct from PacketSize so a
// receiver can dispatch on datagram length alone.
const MetricsPacketSize = 9 * 4

// MetricsPacket is the periodic statistics message sent from one endpoint to
// its peer. Round-trip time is computed locally by the packet-receiving
// endpoint and is not carried on the wire.
type MetricsPacket struct {
	AudioProcMinNS          uint32
	AudioProcMaxNS          uint32
	AudioProcAvgNS          uint32
	JitterMinNS             uint32
	JitterMaxNS             uint32
	JitterAvgNS             uint32
	UnderrunCount           uint32
	ObservedRemoteBlockSize uint32
	Reserved                uint32
}

// Encode serializes m into buf, which must be exactly MetricsPacketSize bytes.
func (m *MetricsPacket) Encode(buf []byte) error {
	if len(buf) != MetricsPacketSize {
		return fmt.Errorf("protocol: metrics encode buffer must be %d bytes, got %d", MetricsPacketSize, len(buf))
	}
	fields := [9]uint32{
		m.AudioProcMinNS, m.AudioProcMaxNS, m.AudioProcAvgNS,
		m.JitterMinNS, m.JitterMaxNS, m.JitterAvgNS,
		m.UnderrunCount, m.ObservedRemoteBlockSize, m.Reserved,
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint32(buf[i*4:], v)
	}
	return nil
}

// Decode deserializes buf, which must be exactly MetricsPacketSize bytes, into m.
func (m *MetricsPacket) Decode(buf []byte) error {
	if len(buf) != MetricsPacketSize {
		return fmt.Errorf("protocol: metrics decode buffer must be %d bytes, got %d", MetricsPacketSize, len(buf))
	}
	vals := [9]*uint32{
		&m.AudioProcMinNS, &m.AudioProcMaxNS, &m.AudioProcAvgNS,
		&m.JitterMinNS, &m.JitterMaxNS, &m.JitterAvgNS,
		&m.UnderrunCount, &m.ObservedRemoteBlockSize, &m.Reserved,
	}
	for i, ptr := range vals {
		*ptr = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return nil
}
