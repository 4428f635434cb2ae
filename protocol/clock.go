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

import "time"

// Clock provides a monotonic nanosecond reading. Implementations MUST be
// non-decreasing within a process and fine enough to measure sub-millisecond
// durations. All timestamps and durations in this engine flow through one.
type Clock interface {
	NowNanos() int64
}

// MonotonicClock is the default Clock, backed by time.Since against a
// reference captured at construction. time.Time retains a monotonic reading
// internally, so subtraction via time.Since does not observe wall-clock
// steps (NTP corrections, leap seconds) the way time.Now().UnixNano() deltas
// would.
type MonotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns a Clock ready for immediate use.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

// NowNanos returns nanoseconds elapsed since the clock was constructed.
func (c *MonotonicClock) NowNanos() int64 {
	return int64(time.Since(c.start))
}
