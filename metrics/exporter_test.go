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

package metrics

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pwarproject/pwar/protocol"
	"github.com/pwarproject/pwar/session"
)

type stubSource struct {
	m               protocol.Metrics
	remoteBlockSize uint32
	status          session.StatusKind
}

func (s stubSource) GetLatencyMetrics() (protocol.Metrics, uint32, session.StatusKind) {
	return s.m, s.remoteBlockSize, s.status
}

func TestExporterScrapeSetsGaugesFromSource(t *testing.T) {
	src := stubSource{
		m: protocol.Metrics{
			AudioProcMinNS: 100, AudioProcMaxNS: 500, AudioProcAvgNS: 250,
			JitterMinNS: 10, JitterMaxNS: 80, JitterAvgNS: 40,
			RTTMinNS: 1000, RTTMaxNS: 5000, RTTAvgNS: 2500,
			Underruns: 3,
		},
		remoteBlockSize: 1024,
		status:          session.StatusNoResponse,
	}
	e := NewExporter(src, time.Hour)
	e.scrape()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	e.Handler().ServeHTTP(rec, req)
	body := rec.Body.String()

	require.Contains(t, body, "pwar_audio_proc_avg_ns 250")
	require.Contains(t, body, "pwar_jitter_max_ns 80")
	require.Contains(t, body, "pwar_rtt_min_ns 1000")
	require.Contains(t, body, "pwar_underruns_total 3")
	require.Contains(t, body, "pwar_remote_block_size_samples 1024")
	require.Contains(t, body, "pwar_status 1")
}

func TestExporterRunStopsOnContextCancel(t *testing.T) {
	src := stubSource{status: session.StatusOK}
	e := NewExporter(src, time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
