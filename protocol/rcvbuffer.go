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

// JitterBuffer is a two-slot store of reassembled blocks, read chunk-by-chunk
// by the audio callback. Add and GetChunk each own an independent cycling
// pointer over the two slots: Add always advances to the other slot after
// writing, so two Adds with no intervening GetChunk land in different slots
// rather than clobbering one another, and GetChunk advances past a slot once
// it has been fully consumed, or at once when the slot it targets holds no
// ready block (an underrun). A caller-held mutex (see session.Session)
// keeps writer and reader from touching the same slot concurrently; the two
// pointers by themselves only guarantee ordering, not mutual exclusion.
type JitterBuffer struct {
	channels int
	capacity int // max samples per channel, per slot

	writePtr int
	readPtr  int
	readPos  int

	ready   [2]bool
	length  [2]int
	buffers [2][Channels][]float32
}

// NewJitterBuffer returns a JitterBuffer with per-slot capacity samples per
// channel; callers should pass MaxBlockSamples unless they know the
// negotiated block size is smaller.
func NewJitterBuffer(channels, capacity int) *JitterBuffer {
	j := &JitterBuffer{channels: channels, capacity: capacity}
	for slot := 0; slot < 2; slot++ {
		for ch := 0; ch < channels; ch++ {
			j.buffers[slot][ch] = make([]float32, capacity)
		}
	}
	return j
}

// Add writes block into the slot the write pointer currently targets, marks
// it ready, and advances the write pointer to the other slot. If that other
// slot still holds unread data — the writer has lapped the reader — it will
// be overwritten on the next Add, and the reader loses the oldest block.
func (j *JitterBuffer) Add(block [Channels][]float32, length int) {
	if length > j.capacity {
		length = j.capacity
	}
	idx := j.writePtr
	for ch := 0; ch < j.channels; ch++ {
		copy(j.buffers[idx][ch][:length], block[ch][:length])
	}
	j.length[idx] = length
	j.ready[idx] = true
	j.writePtr = 1 - j.writePtr
}

// GetChunk reads chunkSize samples per channel from the slot the read
// pointer currently targets, into out. It returns true (an underrun) only
// when that slot holds no ready block; out is then zero-filled and the read
// pointer moves to the other slot. A short final chunk of a ready block is
// zero-padded and is not an underrun.
func (j *JitterBuffer) GetChunk(chunkSize int, out [Channels][]float32) bool {
	idx := j.readPtr
	if !j.ready[idx] {
		zeroChunk(out, j.channels, chunkSize)
		j.readPtr = 1 - j.readPtr
		return true
	}

	start := j.readPos
	remain := j.length[idx] - start
	toCopy := chunkSize
	if remain < toCopy {
		toCopy = remain
	}
	if toCopy < 0 {
		toCopy = 0
	}
	for ch := 0; ch < j.channels; ch++ {
		copy(out[ch][:toCopy], j.buffers[idx][ch][start:start+toCopy])
		for s := toCopy; s < chunkSize; s++ {
			out[ch][s] = 0
		}
	}
	j.readPos += chunkSize

	if j.readPos >= j.length[idx] {
		j.ready[idx] = false
		j.readPos = 0
		j.readPtr = 1 - j.readPtr
	}
	return false
}

func zeroChunk(out [Channels][]float32, channels, chunkSize int) {
	for ch := 0; ch < channels; ch++ {
		for s := 0; s < chunkSize; s++ {
			out[ch][s] = 0
		}
	}
}
