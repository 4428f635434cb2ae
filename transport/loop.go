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

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pwarproject/pwar/protocol"
)

// Handler is called with every received datagram, already classified by
// size. buf is only valid for the duration of the call.
type Handler interface {
	HandleAudio(buf []byte, from *net.UDPAddr)
	HandleMetrics(buf []byte, from *net.UDPAddr)
}

// Loop runs one UDP receive loop against conn, dispatching each datagram to
// h by its byte-exact size, until ctx is cancelled or the socket errors.
// One Loop is shared by both the client and the server: the distinction is
// entirely in which Handler they install.
type Loop struct {
	conn UDPConn
	h    Handler
}

// NewLoop returns a Loop reading from conn and dispatching to h.
func NewLoop(conn UDPConn, h Handler) *Loop {
	return &Loop{conn: conn, h: h}
}

// Run blocks, reading datagrams until ctx is cancelled or the socket
// returns an error, whichever happens first. It is meant to be run inside
// an errgroup.Group alongside the send loop and any control-surface
// listener.
func (l *Loop) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		<-ctx.Done()
		return l.conn.Close()
	})
	eg.Go(func() error {
		buf := make([]byte, protocol.PacketSize)
		for {
			n, from, err := l.conn.ReadFromUDP(buf)
			if err != nil {
				select {
				case <-ctx.Done():
					return nil
				default:
					return err
				}
			}
			switch protocol.Dispatch(n) {
			case protocol.DispatchAudio:
				l.h.HandleAudio(buf[:n], from)
			case protocol.DispatchMetrics:
				l.h.HandleMetrics(buf[:n], from)
			default:
				log.Debugf("transport: dropping %d-byte datagram from %s: not a recognized message size", n, from)
			}
		}
	})
	return eg.Wait()
}
