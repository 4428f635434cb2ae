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
	log "github.com/sirupsen/logrus"

	"github.com/pwarproject/pwar/protocol"
)

// processPingPong pushes the new block into the send accumulator, drains
// and sends whatever is ready, then reads the next chunk out of the jitter
// buffer. The drain+send and jitter-buffer read are deliberately not
// synchronized against one another at the block boundary — they only
// couple through the wire and the peer's own symmetric loop.
func (s *Session) processPingPong(in []float32, n int, leftOut, rightOut []float32) {
	copy(s.scratch[0][:n], in[:n])
	for i := 0; i < n; i++ {
		s.scratch[1][i] = 0
	}

	s.accum.Push(s.scratch, n)
	if s.accum.Ready() {
		samples, length := s.accum.Drain()
		seq := s.nextSeq()
		now := s.clock.NowNanos()
		packets, err := s.router.Segment(samples, length, n, seq, now, now)
		if err != nil {
			log.Errorf("session: ping-pong segment: %v", err)
		} else {
			s.sendPackets(packets)
		}
	}

	out := [protocol.Channels][]float32{}
	if leftOut != nil {
		out[0] = leftOut[:n]
	} else {
		out[0] = s.scratch[0][:n]
	}
	if rightOut != nil {
		out[1] = rightOut[:n]
	} else {
		out[1] = s.scratch[1][:n]
	}
	if s.jitter.GetChunk(n, out) {
		s.recordUnderrun()
	}
}

func (s *Session) sendPackets(packets []protocol.Packet) {
	var buf [protocol.PacketSize]byte
	for i := range packets {
		if err := packets[i].Encode(buf[:]); err != nil {
			log.Errorf("session: ping-pong encode: %v", err)
			continue
		}
		if _, err := s.conn.WriteToUDP(buf[:], s.peerAddr); err != nil {
			log.Warnf("session: ping-pong send: %v", err)
		}
	}
}
