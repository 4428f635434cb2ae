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

import "fmt"

// MaxBlockSamples bounds the reassembly buffer and the jitter buffer slot
// size: enough headroom for a block several times larger than any
// practical callback chunk size without growing the buffers per-packet.
const MaxBlockSamples = 4096

// maxPacketsPerBlock is the worst case packet count for one block: a
// 1-sample chunk length. Preallocated at session setup, never resized per
// packet, so the receiver goroutine never allocates on the hot path.
const maxPacketsPerBlock = MaxBlockSamples

// Block is a fully reassembled logical block: one contiguous per-channel
// sample run, together with the origin timestamp it carried for RTT math.
type Block struct {
	Samples            [Channels][]float32
	Length             int
	Seq                uint64
	SeqOriginTimestamp int64
}

// Router segments outgoing blocks into Packets and reassembles incoming
// Packets into Blocks. One Router instance is owned by one endpoint session
// (see session.Session) — it is never a process singleton, so two endpoints
// can coexist in one process for integration testing.
type Router struct {
	channels int

	haveSeq       bool
	currentSeq    uint64
	originTS      int64
	stride        uint32 // nominal chunk length of every packet but (maybe) the last
	count         uint32
	lastChunkLen  uint32
	receivedCount uint32
	present       [maxPacketsPerBlock]bool

	buffers [Channels][MaxBlockSamples]float32
}

// NewRouter returns a Router for the given channel count (≤ protocol.Channels).
func NewRouter(channels int) *Router {
	return &Router{channels: channels}
}

// Segment divides n samples per channel into ceil(n/chunkSize) packets, all
// sharing seq and originTS. The caller mints seq; the router never does.
func (r *Router) Segment(samples [Channels][]float32, n int, chunkSize int, seq uint64, originTS int64, txTimestamp int64) ([]Packet, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("protocol: chunkSize must be > 0")
	}
	if n <= 0 {
		return nil, fmt.Errorf("protocol: n must be > 0")
	}
	count := (n + chunkSize - 1) / chunkSize
	packets := make([]Packet, count)
	for i := 0; i < count; i++ {
		start := i * chunkSize
		ns := chunkSize
		if n-start < chunkSize {
			ns = n - start
		}
		p := &packets[i]
		p.Seq = seq
		p.Count = uint32(count)
		p.Index = uint32(i)
		p.ChunkLength = uint16(ns)
		p.SeqOriginTimestamp = originTS
		p.TxTimestamp = txTimestamp
		for ch := 0; ch < r.channels; ch++ {
			copy(p.Samples[ch][:ns], samples[ch][start:start+ns])
		}
	}
	return packets, nil
}

// reset clears reassembly state for a new sequence number. chunkSize is the
// nominal per-packet chunk length the caller expects for this block (every
// packet but, maybe, the last carries exactly this many samples); it seeds
// r.stride directly rather than leaving it to be inferred from whichever
// packet happens to arrive first, which would misplace a reordered last
// packet that arrives before any full-length one.
func (r *Router) reset(seq uint64, originTS int64, count uint32, chunkSize uint32) {
	r.haveSeq = true
	r.currentSeq = seq
	r.originTS = originTS
	r.count = count
	r.stride = chunkSize
	r.lastChunkLen = 0
	r.receivedCount = 0
	for i := uint32(0); i < r.count && i < maxPacketsPerBlock; i++ {
		r.present[i] = false
	}
}

// Assemble feeds one packet into the current reassembly and returns the
// completed block once every index in [0,Count) has been seen. Reordering
// and duplicates within one sequence are tolerated; a packet bearing a
// different sequence number abandons whatever was in progress. chunkSize is
// the nominal per-packet chunk length the sender used to segment this
// block (see Router.reset); the caller must supply it since it cannot be
// recovered reliably if the last, short packet is the first to arrive.
func (r *Router) Assemble(p *Packet, chunkSize int) (*Block, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if int(p.Count) > maxPacketsPerBlock {
		return nil, fmt.Errorf("protocol: packet count %d exceeds max %d", p.Count, maxPacketsPerBlock)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("protocol: chunkSize must be > 0")
	}

	if !r.haveSeq || p.Seq != r.currentSeq {
		r.reset(p.Seq, p.SeqOriginTimestamp, p.Count, uint32(chunkSize))
	}

	return r.assembleAtCurrentSeq(p)
}

// AssembleStreaming is the server-side variant used when the incoming flow
// is back-pressure-unaware: the packet's Seq increments per chunk rather
// than grouping several chunks under one shared sequence number. The local
// packet index is inferred as (Seq - baseSeq) when that difference falls in
// [0, Count); values outside that range start a fresh block, exactly as a
// sequence change does in Assemble. chunkSize is as described in Assemble.
func (r *Router) AssembleStreaming(p *Packet, chunkSize int) (*Block, error) {
	if p.Count == 0 {
		return nil, fmt.Errorf("protocol: packet count must be >= 1")
	}
	if p.ChunkLength > MaxChunkSamples {
		return nil, fmt.Errorf("protocol: chunk length %d exceeds max %d", p.ChunkLength, MaxChunkSamples)
	}
	if chunkSize <= 0 {
		return nil, fmt.Errorf("protocol: chunkSize must be > 0")
	}

	var diff uint64
	if r.haveSeq {
		diff = p.Seq - r.currentSeq
	}
	if !r.haveSeq || diff >= uint64(p.Count) {
		r.reset(p.Seq, p.SeqOriginTimestamp, p.Count, uint32(chunkSize))
		diff = 0
	}

	synthetic := *p
	synthetic.Index = uint32(diff)
	synthetic.Seq = r.currentSeq
	return r.assembleAtCurrentSeq(&synthetic)
}

// assembleAtCurrentSeq is Assemble's body without the seq-change detection,
// reused by AssembleStreaming once it has resolved the local index.
func (r *Router) assembleAtCurrentSeq(p *Packet) (*Block, error) {
	if p.Index >= p.Count {
		return nil, fmt.Errorf("protocol: packet index %d out of range [0,%d)", p.Index, p.Count)
	}
	if r.present[p.Index] {
		return nil, nil
	}

	if p.Index == p.Count-1 {
		r.lastChunkLen = uint32(p.ChunkLength)
	}

	offset := int(p.Index) * int(r.stride)
	for ch := 0; ch < r.channels; ch++ {
		copy(r.buffers[ch][offset:offset+int(p.ChunkLength)], p.Samples[ch][:p.ChunkLength])
	}
	r.present[p.Index] = true
	r.receivedCount++

	if r.receivedCount != r.count {
		return nil, nil
	}

	total := int(r.count-1)*int(r.stride) + int(r.lastChunkLen)
	if r.count == 1 {
		total = int(r.lastChunkLen)
	}
	block := &Block{Length: total, Seq: r.currentSeq, SeqOriginTimestamp: r.originTS}
	for ch := 0; ch < r.channels; ch++ {
		block.Samples[ch] = append([]float32(nil), r.buffers[ch][:total]...)
	}
	return block, nil
}
