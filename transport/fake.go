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
	"errors"
	"net"
)

// FakePlatform is an in-memory Platform for tests: ListenUDP/DialUDP return
// FakeUDPConns wired to each other's inbox rather than real sockets, and
// PromoteRealtime is a no-op that always succeeds.
type FakePlatform struct {
	// conns maps a "listen" address string to the conn that should receive
	// whatever is written to it, letting tests wire up a client/server pair
	// without a real network. Set this up with Connect before the session
	// under test starts reading/writing.
	conns map[string]*FakeUDPConn
}

// NewFakePlatform returns an empty FakePlatform; use Connect to wire two
// endpoints to each other.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{conns: map[string]*FakeUDPConn{}}
}

// Connect creates a pair of FakeUDPConns, each addressed as given, whose
// writes land in the other's inbox.
func (p *FakePlatform) Connect(localAddr, peerAddr *net.UDPAddr) (a, b *FakeUDPConn) {
	a = &FakeUDPConn{local: localAddr, inbox: make(chan fakeDatagram, 256)}
	b = &FakeUDPConn{local: peerAddr, inbox: make(chan fakeDatagram, 256)}
	a.peer, b.peer = b, a
	p.conns[localAddr.String()] = a
	p.conns[peerAddr.String()] = b
	return a, b
}

// ListenUDP returns the previously Connect-ed conn for addr, if any, else a
// fresh unconnected FakeUDPConn (writes to it are dropped). An addr with an
// unspecified IP (as Session binds) matches a Connect-ed conn by port.
func (p *FakePlatform) ListenUDP(addr *net.UDPAddr, _, _ int) (UDPConn, error) {
	if c, ok := p.conns[addr.String()]; ok {
		return c, nil
	}
	if addr.IP == nil || addr.IP.IsUnspecified() {
		for _, c := range p.conns {
			if c.local.Port == addr.Port {
				return c, nil
			}
		}
	}
	return &FakeUDPConn{local: addr, inbox: make(chan fakeDatagram, 256)}, nil
}

// DialUDP behaves like ListenUDP for the fake: the "dial" target is just
// another local address in the same conns map.
func (p *FakePlatform) DialUDP(addr *net.UDPAddr, rcvBufBytes, sndBufBytes int) (UDPConn, error) {
	return p.ListenUDP(addr, rcvBufBytes, sndBufBytes)
}

// PromoteRealtime implements Platform; always succeeds.
func (p *FakePlatform) PromoteRealtime() error { return nil }

type fakeDatagram struct {
	data []byte
	from *net.UDPAddr
}

// FakeUDPConn is an in-memory UDPConn: WriteToUDP posts to the peer's inbox
// channel, ReadFromUDP blocks on its own.
type FakeUDPConn struct {
	local  *net.UDPAddr
	peer   *FakeUDPConn
	inbox  chan fakeDatagram
	closed bool
}

// ReadFromUDP implements UDPConn.
func (c *FakeUDPConn) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	dg, ok := <-c.inbox
	if !ok {
		return 0, nil, errors.New("transport: fake conn closed")
	}
	n := copy(b, dg.data)
	return n, dg.from, nil
}

// WriteToUDP implements UDPConn.
func (c *FakeUDPConn) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	if c.closed {
		return 0, errors.New("transport: fake conn closed")
	}
	if c.peer == nil {
		return len(b), nil // no peer wired: writes are silently dropped
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	c.peer.inbox <- fakeDatagram{data: cp, from: c.local}
	return len(b), nil
}

// Close implements UDPConn.
func (c *FakeUDPConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.inbox)
	return nil
}

// LocalAddr implements UDPConn.
func (c *FakeUDPConn) LocalAddr() net.Addr { return c.local }
