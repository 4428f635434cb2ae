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

func makeBlock(n int) (block [Channels][]float32) {
	for ch := 0; ch < Channels; ch++ {
		block[ch] = make([]float32, n)
		for s := 0; s < n; s++ {
			block[ch][s] = float32(ch)*1000 + float32(s)
		}
	}
	return block
}

func TestSegmentCoversWholeBlock(t *testing.T) {
	r := NewRouter(Channels)
	block := makeBlock(300)
	packets, err := r.Segment(block, 300, 128, 7, 1000, 2000)
	require.NoError(t, err)
	require.Len(t, packets, 3) // ceil(300/128)

	require.EqualValues(t, 128, packets[0].ChunkLength)
	require.EqualValues(t, 128, packets[1].ChunkLength)
	require.EqualValues(t, 44, packets[2].ChunkLength)

	for i, p := range packets {
		require.EqualValues(t, 7, p.Seq)
		require.EqualValues(t, 3, p.Count)
		require.EqualValues(t, i, p.Index)
		require.EqualValues(t, 1000, p.SeqOriginTimestamp)
		require.EqualValues(t, 2000, p.TxTimestamp)
	}
}

func TestSegmentRejectsInvalidInput(t *testing.T) {
	r := NewRouter(Channels)
	block := makeBlock(10)
	_, err := r.Segment(block, 10, 0, 1, 0, 0)
	require.Error(t, err)
	_, err = r.Segment(block, 0, 10, 1, 0, 0)
	require.Error(t, err)
}

func TestAssembleReordersAndCompletes(t *testing.T) {
	r := NewRouter(Channels)
	block := makeBlock(300)
	packets, err := r.Segment(block, 300, 128, 7, 1000, 2000)
	require.NoError(t, err)

	// Feed out of order: 2, 0, then 1 completes the block.
	order := []int{2, 0, 1}
	var got *Block
	for i, idx := range order {
		b, err := r.Assemble(&packets[idx], 128)
		require.NoError(t, err)
		if i < len(order)-1 {
			require.Nil(t, b)
		} else {
			got = b
		}
	}
	require.NotNil(t, got)
	require.Equal(t, 300, got.Length)
	require.EqualValues(t, 7, got.Seq)
	require.EqualValues(t, 1000, got.SeqOriginTimestamp)
	require.Equal(t, block[0], got.Samples[0][:300])
	require.Equal(t, block[1], got.Samples[1][:300])
}

func TestAssembleDuplicatePacketIgnored(t *testing.T) {
	r := NewRouter(Channels)
	block := makeBlock(64)
	packets, err := r.Segment(block, 64, 128, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	b, err := r.Assemble(&packets[0], 128)
	require.NoError(t, err)
	require.NotNil(t, b)

	// Feeding the already-complete single packet again must not error and
	// must not return a second block (present[] already recorded it, and a
	// reset only happens on a sequence change).
	b2, err := r.Assemble(&packets[0], 128)
	require.NoError(t, err)
	require.Nil(t, b2)
}

func TestAssembleSequenceChangeAbandonsInProgress(t *testing.T) {
	r := NewRouter(Channels)
	first, err := r.Segment(makeBlock(300), 300, 128, 1, 0, 0)
	require.NoError(t, err)
	_, err = r.Assemble(&first[0], 128)
	require.NoError(t, err)

	second, err := r.Segment(makeBlock(64), 64, 128, 2, 500, 0)
	require.NoError(t, err)
	b, err := r.Assemble(&second[0], 128)
	require.NoError(t, err)
	require.NotNil(t, b)
	require.EqualValues(t, 2, b.Seq)
	require.Equal(t, 64, b.Length)
}

func TestAssembleStreamingInfersIndexFromSequenceDelta(t *testing.T) {
	r := NewRouter(Channels)
	block := makeBlock(384)
	packets, err := r.Segment(block, 384, 128, 100, 42, 0)
	require.NoError(t, err)
	require.Len(t, packets, 3)

	// Streaming variant: each packet carries seq = base + index, instead of
	// a shared Seq with an explicit Index field.
	for i := range packets {
		packets[i].Seq = 100 + uint64(i)
	}

	var got *Block
	for i, p := range packets {
		b, err := r.AssembleStreaming(&p, 128)
		require.NoError(t, err)
		if i < len(packets)-1 {
			require.Nil(t, b)
		} else {
			got = b
		}
	}
	require.NotNil(t, got)
	require.Equal(t, 384, got.Length)
	require.EqualValues(t, 100, got.Seq)
	require.Equal(t, block[0], got.Samples[0][:384])
}

func TestAssembleStreamingOutOfWindowStartsFreshBlock(t *testing.T) {
	r := NewRouter(Channels)
	block := makeBlock(128)
	packets, err := r.Segment(block, 128, 128, 0, 10, 0)
	require.NoError(t, err)
	require.Len(t, packets, 1)

	b, err := r.AssembleStreaming(&packets[0], 128)
	require.NoError(t, err)
	require.NotNil(t, b)

	// A far-future Seq (outside [currentSeq, currentSeq+Count)) starts a new
	// block rather than being folded into the old, completed one.
	next := packets[0]
	next.Seq = 999
	next.SeqOriginTimestamp = 20
	b2, err := r.AssembleStreaming(&next, 128)
	require.NoError(t, err)
	require.NotNil(t, b2)
	require.EqualValues(t, 999, b2.Seq)
}
