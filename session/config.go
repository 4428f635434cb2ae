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

// Package session wires the protocol package's components — router,
// accumulator, jitter buffer, latency manager — and the transport package's
// loops into one endpoint lifecycle: init, start, stop, live reconfigure,
// and the audio callback entry point itself.
package session

import "fmt"

// DefaultPort is the UDP port both endpoints bind to by default.
const DefaultPort = 8321

// Config is the runtime-tunable surface of one endpoint.
type Config struct {
	// PeerIP is the destination for outbound packets.
	PeerIP string
	// PeerPort is the destination port.
	PeerPort uint16
	// LocalPort is this endpoint's bind port; defaults to DefaultPort.
	LocalPort uint16
	// LocalBlockSize is this host's callback chunk size in samples; it
	// drives segmentation (the remote block size this endpoint presents to
	// its peer).
	LocalBlockSize int
	// OneshotMode selects the oneshot path over ping-pong; live-tunable.
	OneshotMode bool
	// PassthroughTest bypasses the wire entirely, copying input to both
	// outputs; live-tunable, mainly for host-graph wiring smoke tests.
	PassthroughTest bool
}

// Validate reports whether c is well-formed enough to Init a Session.
func (c *Config) Validate() error {
	if c.PeerIP == "" {
		return fmt.Errorf("session: peerIp is required")
	}
	if c.PeerPort == 0 {
		return fmt.Errorf("session: peerPort is required")
	}
	if c.LocalBlockSize <= 0 {
		return fmt.Errorf("session: localBlockSize must be > 0")
	}
	if c.LocalPort == 0 {
		c.LocalPort = DefaultPort
	}
	return nil
}

// needsRestart reports whether changing from c to next requires a full
// session restart: peerIp, peerPort, localPort and localBlockSize do;
// oneshotMode and passthroughTest are live-tunable.
func needsRestart(c, next *Config) bool {
	return c.PeerIP != next.PeerIP ||
		c.PeerPort != next.PeerPort ||
		c.LocalPort != next.LocalPort ||
		c.LocalBlockSize != next.LocalBlockSize
}
