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

package session

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pwarproject/pwar/protocol"
)

// oneshotDeadline bounds the audio callback's one allowed wait for a reply,
// on the order of a few milliseconds. It is the only blocking point in the
// real-time path.
const oneshotDeadline = 2 * time.Millisecond

// oneshotState is the single-producer/single-consumer rendezvous for the
// oneshot path's reply packet: the receive loop is the producer, the audio
// callback is the consumer. A size-1 channel models a "latest packet slot",
// latest-wins on delivery: a new packet replaces any the callback has not
// collected. Replies are not matched to requests by Seq, so a packet that
// arrives after its callback's deadline is returned by the next wait.
type oneshotState struct {
	ch chan protocol.Packet
}

func newOneshotState() *oneshotState {
	return &oneshotState{ch: make(chan protocol.Packet, 1)}
}

// deliver hands p to whichever callback invocation is currently waiting (or
// will next wait); any undelivered previous packet is dropped.
func (o *oneshotState) deliver(p *protocol.Packet) {
	select {
	case <-o.ch:
	default:
	}
	select {
	case o.ch <- *p:
	default:
	}
}

// wait blocks for at most timeout for a delivered packet.
func (o *oneshotState) wait(timeout time.Duration) (protocol.Packet, bool) {
	select {
	case p := <-o.ch:
		return p, true
	case <-time.After(timeout):
		return protocol.Packet{}, false
	}
}

// processOneshot sends one request packet and waits up to oneshotDeadline
// for its reply. The packet is built directly rather than through
// Router.Segment: the oneshot path never goes through general
// segmentation, count is always 1.
func (s *Session) processOneshot(in []float32, n int, leftOut, rightOut []float32) {
	seq := s.nextSeq()
	now := s.clock.NowNanos()

	var p protocol.Packet
	p.Seq = seq
	p.Count = 1
	p.Index = 0
	p.ChunkLength = uint16(n)
	p.SeqOriginTimestamp = now
	p.TxTimestamp = now
	copy(p.Samples[0][:n], in[:n])

	var buf [protocol.PacketSize]byte
	if err := p.Encode(buf[:]); err != nil {
		log.Errorf("session: oneshot encode: %v", err)
		s.recordUnderrun()
		zeroOut(leftOut, rightOut, n)
		return
	}
	if _, err := s.conn.WriteToUDP(buf[:], s.peerAddr); err != nil {
		log.Warnf("session: oneshot send: %v", err)
	}

	reply, ok := s.oneshot.wait(oneshotDeadline)
	if !ok {
		log.Debugf("session: oneshot deadline miss waiting for seq %d", seq)
		s.recordUnderrun()
		zeroOut(leftOut, rightOut, n)
		return
	}

	n = minInt(n, int(reply.ChunkLength))
	copyOut(leftOut, reply.Samples[0][:], n)
	copyOut(rightOut, reply.Samples[1][:], n)
}

func zeroOut(leftOut, rightOut []float32, n int) {
	for i := 0; i < n; i++ {
		if leftOut != nil {
			leftOut[i] = 0
		}
		if rightOut != nil {
			rightOut[i] = 0
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (s *Session) recordUnderrun() {
	s.latency.ReportUnderrun()
	s.status.recordUnderrun()
}
