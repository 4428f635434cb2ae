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

package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pwarproject/pwar/protocol"
)

type recordingHandler struct {
	mu      sync.Mutex
	audio   [][]byte
	metrics [][]byte
}

func (h *recordingHandler) HandleAudio(buf []byte, _ *net.UDPAddr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	h.audio = append(h.audio, cp)
}

func (h *recordingHandler) HandleMetrics(buf []byte, _ *net.UDPAddr) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	h.metrics = append(h.metrics, cp)
}

func (h *recordingHandler) counts() (audio, metrics int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.audio), len(h.metrics)
}

func TestLoopDispatchesBySize(t *testing.T) {
	platform := NewFakePlatform()
	local := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 20001}
	peer := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 20002}
	serverConn, peerConn := platform.Connect(local, peer)

	h := &recordingHandler{}
	loop := NewLoop(serverConn, h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	audioBuf := make([]byte, protocol.PacketSize)
	metricsBuf := make([]byte, protocol.MetricsPacketSize)
	_, err := peerConn.WriteToUDP(audioBuf, local)
	require.NoError(t, err)
	_, err = peerConn.WriteToUDP(metricsBuf, local)
	require.NoError(t, err)
	_, err = peerConn.WriteToUDP([]byte("not a recognized size"), local)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		audio, metrics := h.counts()
		return audio == 1 && metrics == 1
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
