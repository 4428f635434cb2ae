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
	"sync"

	"github.com/eclesh/welford"
)

// reportInterval is how often a LatencyManager considers its audio
// processing and jitter accumulators due for reporting to the peer, and how
// often its underrun counter rolls over to a new window.
const reportInterval = int64(2 * 1e9) // 2s, in nanoseconds

// stat tracks a running min/max/mean over a stream of non-negative
// nanosecond durations. welford.Stats gives streaming mean without storing
// the whole history; min/max are tracked alongside it since welford does not
// expose them.
type stat struct {
	w   *welford.Stats
	min int64
	max int64
}

func newStat() *stat {
	return &stat{w: welford.New()}
}

func (s *stat) observe(v int64) {
	if s.w.Count() == 0 || v < s.min {
		s.min = v
	}
	if s.w.Count() == 0 || v > s.max {
		s.max = v
	}
	s.w.Add(float64(v))
}

func (s *stat) avg() int64 {
	if s.w.Count() == 0 {
		return 0
	}
	return int64(s.w.Mean())
}

func (s *stat) reset() {
	s.w = welford.New()
	s.min, s.max = 0, 0
}

// Metrics is a point-in-time snapshot of everything a LatencyManager tracks,
// in nanoseconds, plus the underrun count observed in the most recently
// closed reporting window. It is what session.Session's control surface
// hands back for a getLatencyMetrics call.
type Metrics struct {
	AudioProcMinNS uint32
	AudioProcMaxNS uint32
	AudioProcAvgNS uint32

	JitterMinNS uint32
	JitterMaxNS uint32
	JitterAvgNS uint32

	RTTMinNS uint32
	RTTMaxNS uint32
	RTTAvgNS uint32

	Underruns uint32
}

// LatencyManager accumulates the four timing series the engine cares about —
// audio callback duration, inter-arrival jitter, round-trip time, and
// underrun count — and turns them into the periodic MetricsPacket one
// endpoint sends its peer, and the combined Metrics snapshot the control
// surface exposes locally. One instance is owned by one Session.
type LatencyManager struct {
	clock Clock

	mu sync.Mutex

	audioProc *stat
	jitter    *stat
	rtt       *stat

	cbkBeginNS int64

	lastLocalArrivalNS  int64
	haveLocalArrival    bool
	lastRemoteTxNS      int64
	haveRemoteTx        bool

	lastReportNS int64

	underruns           uint32
	underrunsLastWindow uint32

	// peerAudioProc holds the most recent MetricsPacket the peer reported,
	// including its own audio_proc and jitter series, for Snapshot to combine
	// with this side's locally measured round-trip time.
	peerAudioProc MetricsPacket
	havePeer      bool
}

// NewLatencyManager returns a LatencyManager that timestamps against clock.
func NewLatencyManager(clock Clock) *LatencyManager {
	return &LatencyManager{
		clock:     clock,
		audioProc: newStat(),
		jitter:    newStat(),
		rtt:       newStat(),
	}
}

// MarkCallbackBegin records the start of an audio processing callback.
func (m *LatencyManager) MarkCallbackBegin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cbkBeginNS = m.clock.NowNanos()
}

// MarkCallbackEnd closes out the callback duration opened by
// MarkCallbackBegin and folds it into the audio processing stat.
func (m *LatencyManager) MarkCallbackEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	end := m.clock.NowNanos()
	m.audioProc.observe(end - m.cbkBeginNS)
}

// ObserveArrival folds one inbound packet into the jitter stat: jitter is
// the absolute difference between how long it actually took this packet to
// arrive locally since the previous one, and how far apart the sender's own
// TxTimestamps say the two packets were sent.
func (m *LatencyManager) ObserveArrival(p *Packet) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.NowNanos()
	hadBaseline := m.haveLocalArrival && m.haveRemoteTx

	localInterval := now - m.lastLocalArrivalNS
	m.lastLocalArrivalNS = now
	m.haveLocalArrival = true

	remoteInterval := p.TxTimestamp - m.lastRemoteTxNS
	m.lastRemoteTxNS = p.TxTimestamp
	m.haveRemoteTx = true

	if !hadBaseline {
		// No prior packet to measure an interval against yet.
		return
	}

	jitter := localInterval - remoteInterval
	if jitter < 0 {
		jitter = -jitter
	}
	m.jitter.observe(jitter)
}

// ObserveReassemblyComplete folds the round-trip time for one block into the
// rtt stat, using the origin timestamp the block's final packet carries.
// Packets other than the last of a block are ignored: round-trip time is
// only meaningful once the whole block the peer sent has come back.
func (m *LatencyManager) ObserveReassemblyComplete(p *Packet) {
	if p.Index != p.Count-1 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock.NowNanos()
	m.rtt.observe(now - p.SeqOriginTimestamp)
}

// ReportUnderrun records one jitter-buffer underrun in the current window.
func (m *LatencyManager) ReportUnderrun() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.underruns++
}

// ReportDue reports whether reportInterval has elapsed since the last
// report, and if so returns the MetricsPacket to send the peer — the audio
// processing and jitter stats, plus this window's observed remote block
// size — resetting both stats and rolling the underrun window. Callers that
// get ok=false should not send anything.
func (m *LatencyManager) ReportDue(observedRemoteBlockSize uint32) (mp MetricsPacket, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.NowNanos()
	if now-m.lastReportNS < reportInterval {
		return MetricsPacket{}, false
	}
	m.lastReportNS = now

	aMin, aMax, aAvg := m.audioProc.min, m.audioProc.max, m.audioProc.avg()
	jMin, jMax, jAvg := m.jitter.min, m.jitter.max, m.jitter.avg()
	m.audioProc.reset()
	m.jitter.reset()

	m.underrunsLastWindow = m.underruns
	m.underruns = 0

	return MetricsPacket{
		AudioProcMinNS:          uint32(aMin),
		AudioProcMaxNS:          uint32(aMax),
		AudioProcAvgNS:          uint32(aAvg),
		JitterMinNS:             uint32(jMin),
		JitterMaxNS:             uint32(jMax),
		JitterAvgNS:             uint32(jAvg),
		UnderrunCount:           m.underrunsLastWindow,
		ObservedRemoteBlockSize: observedRemoteBlockSize,
	}, true
}

// ApplyReport stores a MetricsPacket received from the peer so Snapshot can
// fold the peer's self-reported audio processing and jitter numbers in
// alongside the round-trip time this side measured independently.
func (m *LatencyManager) ApplyReport(mp MetricsPacket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peerAudioProc = mp
	m.havePeer = true
}

// Snapshot returns the combined metrics view: this side's own audio
// processing stat if ApplyReport has never been called, otherwise the
// most recent peer-reported audio processing and jitter figures, combined
// with this side's locally measured round-trip time and underrun window.
func (m *LatencyManager) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := Metrics{
		RTTMinNS:  uint32(m.rtt.min),
		RTTMaxNS:  uint32(m.rtt.max),
		RTTAvgNS:  uint32(m.rtt.avg()),
		Underruns: m.underrunsLastWindow,
	}
	if m.havePeer {
		out.AudioProcMinNS = m.peerAudioProc.AudioProcMinNS
		out.AudioProcMaxNS = m.peerAudioProc.AudioProcMaxNS
		out.AudioProcAvgNS = m.peerAudioProc.AudioProcAvgNS
		out.JitterMinNS = m.peerAudioProc.JitterMinNS
		out.JitterMaxNS = m.peerAudioProc.JitterMaxNS
		out.JitterAvgNS = m.peerAudioProc.JitterAvgNS
	} else {
		out.AudioProcMinNS = uint32(m.audioProc.min)
		out.AudioProcMaxNS = uint32(m.audioProc.max)
		out.AudioProcAvgNS = uint32(m.audioProc.avg())
		out.JitterMinNS = uint32(m.jitter.min)
		out.JitterMaxNS = uint32(m.jitter.max)
		out.JitterAvgNS = uint32(m.jitter.avg())
	}
	return out
}
