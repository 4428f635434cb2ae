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
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/pwarproject/pwar/protocol"
	"github.com/pwarproject/pwar/transport"
)

// rcvBufBytes and sndBufBytes are the socket buffer sizes: a generous
// receive buffer to tolerate bursts, a small send buffer to minimize
// outbound queueing latency.
const (
	rcvBufBytes = 1024 * 1024
	sndBufBytes = 1024
)

// UpdateResult is the discriminated result of UpdateConfig: a change either
// applies live or requires a restart.
type UpdateResult int

const (
	// UpdateOK means the change was applied live.
	UpdateOK UpdateResult = iota
	// UpdateNeedsRestart means the change touches a restart-required field;
	// the config was NOT applied, Stop+Start is required.
	UpdateNeedsRestart
)

// UpdateResult implements fmt.Stringer for log lines and status surfaces.
func (r UpdateResult) String() string {
	if r == UpdateNeedsRestart {
		return "needs-restart"
	}
	return "ok"
}

// Session owns one endpoint's entire engine: the wire components from the
// protocol package, the transport loop, and the oneshot/ping-pong
// processing state. The oneshot reply slot and the ping-pong accumulator and
// jitter buffer are all fields of this one struct, allocated together; the
// live OneshotMode flag picks which of them each Process call and each
// received packet uses. One process may hold two Sessions
// (client-role and server-role) for integration testing, since nothing here
// is a package-level singleton.
type Session struct {
	platform transport.Platform

	mu          sync.Mutex
	cfg         Config
	initialized bool
	running     bool

	clock    protocol.Clock
	router   *protocol.Router
	accum    *protocol.Accumulator
	jitter   *protocol.JitterBuffer
	latency  *protocol.LatencyManager
	status   *statusTracker

	conn     transport.UDPConn
	peerAddr *net.UDPAddr
	loopDone context.CancelFunc
	loopErr  chan error

	seq uint32 // next sequence number to mint; atomic

	observedRemoteBlockSize uint32 // atomic

	oneshot *oneshotState

	// scratch is a preallocated, Channels-wide sample buffer reused by the
	// ping-pong path so the callback needs no per-call sample buffers.
	scratch [protocol.Channels][]float32
}

// New returns an uninitialized Session bound to platform (transport.NewLinuxPlatform()
// in production, transport.NewFakePlatform() in tests).
func New(platform transport.Platform) *Session {
	return &Session{
		platform: platform,
		oneshot:  newOneshotState(),
	}
}

// Init validates cfg and prepares the Session's internal state. It does not
// open a socket or start the receive loop — call Start for that.
func (s *Session) Init(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.clock = protocol.NewMonotonicClock()
	s.router = protocol.NewRouter(protocol.Channels)
	s.accum = protocol.NewAccumulator(protocol.Channels, cfg.LocalBlockSize)
	s.jitter = protocol.NewJitterBuffer(protocol.Channels, protocol.MaxBlockSamples)
	s.latency = protocol.NewLatencyManager(s.clock)
	s.status = newStatusTracker(s.clock)
	for ch := 0; ch < protocol.Channels; ch++ {
		s.scratch[ch] = make([]float32, cfg.LocalBlockSize)
	}
	s.initialized = true
	return nil
}

// Start opens the UDP socket, launches the receive loop, and begins
// accepting Process calls. Init must have been called first.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return fmt.Errorf("session: Start called before Init")
	}
	if s.running {
		return nil
	}

	local := &net.UDPAddr{IP: net.IPv4zero, Port: int(s.cfg.LocalPort)}
	conn, err := s.platform.ListenUDP(local, rcvBufBytes, sndBufBytes)
	if err != nil {
		return fmt.Errorf("session: start: %w", err)
	}
	s.conn = conn
	s.peerAddr = &net.UDPAddr{IP: net.ParseIP(s.cfg.PeerIP), Port: int(s.cfg.PeerPort)}

	ctx, cancel := context.WithCancel(context.Background())
	s.loopDone = cancel
	s.loopErr = make(chan error, 1)
	loop := transport.NewLoop(conn, s)
	go func() {
		if err := s.platform.PromoteRealtime(); err != nil {
			log.Warnf("session: could not promote receive loop to real-time scheduling: %v", err)
		}
		s.loopErr <- loop.Run(ctx)
	}()

	s.running = true
	return nil
}

// Stop tears down the receive loop and socket, leaving the Session
// Init-able again without losing its configuration.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.loopDone()
	err := <-s.loopErr
	s.running = false
	if err != nil {
		log.Warnf("session: receive loop exited with error: %v", err)
	}
	return nil
}

// UpdateConfig applies next's live-tunable fields immediately. If next
// differs from the current config in a restart-required field, no state is
// changed and UpdateNeedsRestart is returned — the caller must Stop, Init
// again, and Start.
func (s *Session) UpdateConfig(next Config) (UpdateResult, error) {
	if err := next.Validate(); err != nil {
		return UpdateNeedsRestart, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if needsRestart(&s.cfg, &next) {
		return UpdateNeedsRestart, nil
	}
	s.cfg.OneshotMode = next.OneshotMode
	s.cfg.PassthroughTest = next.PassthroughTest
	return UpdateOK, nil
}

// Cleanup releases everything Init allocated. The Session is not usable
// again without a fresh Init.
func (s *Session) Cleanup() {
	_ = s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	s.router = nil
	s.accum = nil
	s.jitter = nil
	s.latency = nil
}

// IsRunning reports whether the receive loop is active.
func (s *Session) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// GetLatencyMetrics returns the current latency snapshot, the observed
// remote block size, and the coarse connection status.
func (s *Session) GetLatencyMetrics() (protocol.Metrics, uint32, StatusKind) {
	s.mu.Lock()
	latency := s.latency
	status := s.status
	s.mu.Unlock()
	return latency.Snapshot(), atomic.LoadUint32(&s.observedRemoteBlockSize), status.status()
}

// Status returns just the coarse connection status (see GetLatencyMetrics),
// for callers that only need the CLI status line and not a full snapshot.
func (s *Session) Status() StatusKind {
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()
	return status.status()
}

// nextSeq mints the next sequence number for a block this endpoint sends
// (ping-pong send path, oneshot send). Each endpoint mints from its own
// counter; the Seq of a received packet is not copied onto outbound ones.
func (s *Session) nextSeq() uint64 {
	return uint64(atomic.AddUint32(&s.seq, 1) - 1)
}

// Process is the audio callback entry point: in carries n mono input
// samples, leftOut/rightOut (each length >= n, or nil if that port is
// unwired) receive this callback's output. It takes at most one bounded wait
// (the oneshot path's timed receive). It is not allocation-free: the
// ping-pong send branch allocates the packet slice Router.Segment returns,
// and the oneshot wait allocates a timer via time.After.
func (s *Session) Process(in []float32, n int, leftOut, rightOut []float32) {
	s.latency.MarkCallbackBegin()
	defer s.latency.MarkCallbackEnd()

	s.mu.Lock()
	passthrough := s.cfg.PassthroughTest
	oneshot := s.cfg.OneshotMode
	s.mu.Unlock()

	if passthrough {
		copyOut(leftOut, in, n)
		copyOut(rightOut, in, n)
		return
	}
	if oneshot {
		s.processOneshot(in, n, leftOut, rightOut)
		return
	}
	s.processPingPong(in, n, leftOut, rightOut)
}

func copyOut(dst, src []float32, n int) {
	if dst == nil {
		return
	}
	copy(dst[:n], src[:n])
}
