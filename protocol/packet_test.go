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
	"testing"

	"github.com/stretchr/testify/require"
)

func samplePacket() Packet {
	p := Packet{
		ChunkLength:        64,
		Seq:                12345,
		Count:              3,
		Index:              1,
		SeqOriginTimestamp: 1000,
		TxTimestamp:        2000,
	}
	for ch := 0; ch < Channels; ch++ {
		for s := 0; s < int(p.ChunkLength); s++ {
			p.Samples[ch][s] = float32(ch)*100 + float32(s)*0.5
		}
	}
	return p
}

func TestPacketEncodeDecodeRoundTrip(t *testing.T) {
	p := samplePacket()
	buf := make([]byte, PacketSize)
	require.NoError(t, p.Encode(buf))

	var decoded Packet
	require.NoError(t, decoded.Decode(buf))
	require.Equal(t, p, decoded)
}

func TestPacketEncodeRejectsWrongSize(t *testing.T) {
	p := samplePacket()
	require.Error(t, p.Encode(make([]byte, PacketSize-1)))
	require.Error(t, p.Encode(make([]byte, PacketSize+1)))
}

func TestPacketDecodeRejectsWrongSize(t *testing.T) {
	var p Packet
	require.Error(t, p.Decode(make([]byte, PacketSize-1)))
}

func TestPacketValidate(t *testing.T) {
	valid := samplePacket()
	require.NoError(t, valid.Validate())

	zeroCount := valid
	zeroCount.Count = 0
	require.Error(t, zeroCount.Validate())

	indexOutOfRange := valid
	indexOutOfRange.Index = indexOutOfRange.Count
	require.Error(t, indexOutOfRange.Validate())

	tooLong := valid
	tooLong.ChunkLength = MaxChunkSamples + 1
	require.Error(t, tooLong.Validate())
}

func TestDispatch(t *testing.T) {
	require.Equal(t, DispatchAudio, Dispatch(PacketSize))
	require.Equal(t, DispatchMetrics, Dispatch(MetricsPacketSize))
	require.Equal(t, DispatchUnknown, Dispatch(17))
}

func TestMetricsPacketEncodeDecodeRoundTrip(t *testing.T) {
	mp := MetricsPacket{
		AudioProcMinNS:          1,
		AudioProcMaxNS:          2,
		AudioProcAvgNS:          3,
		JitterMinNS:             4,
		JitterMaxNS:             5,
		JitterAvgNS:             6,
		UnderrunCount:           7,
		ObservedRemoteBlockSize: 512,
	}
	buf := make([]byte, MetricsPacketSize)
	require.NoError(t, mp.Encode(buf))

	var decoded MetricsPacket
	require.NoError(t, decoded.Decode(buf))
	require.Equal(t, mp, decoded)
}
