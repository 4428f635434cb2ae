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
	"fmt"
	"net"
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// rtPriority is the SCHED_FIFO priority used for the audio callback and
// network loop threads. Low in the 1-99 SCHED_FIFO range so it never
// contends with kernel housekeeping threads that also run SCHED_FIFO.
const rtPriority = 10

// LinuxPlatform is the production Platform: real UDP sockets with
// SO_RCVBUF/SO_SNDBUF sized by the caller, and SCHED_FIFO real-time
// scheduling for the calling thread.
type LinuxPlatform struct{}

// NewLinuxPlatform returns the production Platform implementation.
func NewLinuxPlatform() *LinuxPlatform {
	return &LinuxPlatform{}
}

// ListenUDP implements Platform.
func (LinuxPlatform) ListenUDP(addr *net.UDPAddr, rcvBufBytes, sndBufBytes int) (UDPConn, error) {
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen udp %s: %w", addr, err)
	}
	if err := setBufferSizes(conn, rcvBufBytes, sndBufBytes); err != nil {
		log.Warnf("transport: failed to size socket buffers on %s: %v", addr, err)
	}
	if err := setDSCP(conn, addr.IP); err != nil {
		log.Debugf("transport: failed to set DSCP on %s: %v", addr, err)
	}
	return conn, nil
}

// DialUDP implements Platform.
func (LinuxPlatform) DialUDP(addr *net.UDPAddr, rcvBufBytes, sndBufBytes int) (UDPConn, error) {
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial udp %s: %w", addr, err)
	}
	if err := setBufferSizes(conn, rcvBufBytes, sndBufBytes); err != nil {
		log.Warnf("transport: failed to size socket buffers on %s: %v", addr, err)
	}
	if err := setDSCP(conn, addr.IP); err != nil {
		log.Debugf("transport: failed to set DSCP on %s: %v", addr, err)
	}
	return conn, nil
}

// setDSCP marks conn's outgoing packets with audioDSCP, best-effort: callers
// should proceed unmarked on error rather than treat this as fatal, since
// some sandboxes restrict IP_TOS/IPV6_TCLASS.
func setDSCP(conn *net.UDPConn, remoteIP net.IP) error {
	sc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = sc.Control(func(fd uintptr) {
		sockErr = enableDSCP(int(fd), remoteIP, audioDSCP)
	})
	if err != nil {
		return err
	}
	return sockErr
}

func setBufferSizes(conn *net.UDPConn, rcvBufBytes, sndBufBytes int) error {
	sc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = sc.Control(func(fd uintptr) {
		if rcvBufBytes > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBufBytes); e != nil {
				sockErr = e
				return
			}
		}
		if sndBufBytes > 0 {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, sndBufBytes)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}

// PromoteRealtime implements Platform. It locks the calling goroutine to its
// OS thread — required before a scheduling policy change, and for the
// duration the policy should apply — and switches that thread to
// SCHED_FIFO. Callers that get a non-nil error should proceed at the
// default scheduling policy rather than treat this as fatal.
func (LinuxPlatform) PromoteRealtime() error {
	runtime.LockOSThread()
	if err := unix.SchedSetscheduler(0, unix.SCHED_FIFO, &unix.SchedParam{Priority: rtPriority}); err != nil {
		return fmt.Errorf("transport: sched_setscheduler SCHED_FIFO: %w", err)
	}
	return nil
}
