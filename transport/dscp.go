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
	"net"

	"golang.org/x/sys/unix"
)

// audioDSCP is the Expedited Forwarding (EF) per-hop behavior, the
// conventional DSCP class for loss- and jitter-sensitive real-time media.
const audioDSCP = 46

// enableDSCP marks outgoing packets on fd with dscp so routers along the
// path can prioritize them ahead of best-effort traffic.
func enableDSCP(fd int, localAddr net.IP, dscp int) error {
	if localAddr.To4() == nil {
		return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, dscp<<2)
	}
	return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, dscp<<2)
}
