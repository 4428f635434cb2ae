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
	"net"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/pwarproject/pwar/protocol"
)

// HandleAudio implements transport.Handler: it is called by the receive
// loop for every datagram of audio-packet size, since dispatch is purely
// by datagram size. Reassembly (ping-pong) or direct delivery (oneshot)
// happens here, off the audio thread.
func (s *Session) HandleAudio(buf []byte, _ *net.UDPAddr) {
	var p protocol.Packet
	if err := p.Decode(buf); err != nil {
		log.Warnf("session: decode audio packet: %v", err)
		return
	}

	atomic.StoreUint32(&s.observedRemoteBlockSize, uint32(p.Count)*uint32(p.ChunkLength))
	s.latency.ObserveArrival(&p)
	s.latency.ObserveReassemblyComplete(&p)

	s.mu.Lock()
	oneshot := s.cfg.OneshotMode
	chunkSize := s.cfg.LocalBlockSize
	s.mu.Unlock()

	if oneshot {
		s.oneshot.deliver(&p)
		return
	}

	block, err := s.router.Assemble(&p, chunkSize)
	if err != nil {
		log.Debugf("session: reassembly: %v", err)
		return
	}
	if block != nil {
		s.jitter.Add(block.Samples, block.Length)
	}
}

// HandleMetrics implements transport.Handler: called for every datagram of
// metrics-packet size, folding the peer's self-reported stats into this
// side's latency manager.
func (s *Session) HandleMetrics(buf []byte, _ *net.UDPAddr) {
	var mp protocol.MetricsPacket
	if err := mp.Decode(buf); err != nil {
		log.Warnf("session: decode metrics packet: %v", err)
		return
	}
	s.latency.ApplyReport(mp)
}

// MaybeSendMetricsReport sends a MetricsPacket to the peer if the latency
// manager's 2-second report interval has elapsed. Callers — typically a
// low-priority ticker goroutine, not the audio callback — should call this
// periodically from both endpoints; it is a no-op otherwise.
func (s *Session) MaybeSendMetricsReport() {
	mp, ok := s.latency.ReportDue(atomic.LoadUint32(&s.observedRemoteBlockSize))
	if !ok {
		return
	}
	var buf [protocol.MetricsPacketSize]byte
	if err := mp.Encode(buf[:]); err != nil {
		log.Errorf("session: encode metrics report: %v", err)
		return
	}
	if _, err := s.conn.WriteToUDP(buf[:], s.peerAddr); err != nil {
		log.Warnf("session: send metrics report: %v", err)
	}
}
