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

// pwar-client is a demo CLI that drives a Session in the "client" role: it
// generates a synthetic sine-wave audio signal, pushes it through the
// engine block by block, and discards the output, the same way
// ptp/simpleclient drives the PTP client state machine without a real
// hardware clock attached.
package main

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pwarproject/pwar/metrics"
	"github.com/pwarproject/pwar/session"
	"github.com/pwarproject/pwar/transport"
)

const (
	sampleRate = 48000.0
	toneHz     = 440.0
)

var rootCmd = &cobra.Command{
	Use:   "pwar-client",
	Short: "drives a PWAR session in the client role with a synthetic audio source",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func init() {
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(metricsOnceCmd())
}

func runCmd() *cobra.Command {
	cfg := newCLIConfig()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the client session until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.loadAndValidate(cmd); err != nil {
				return err
			}
			return runClient(cfg)
		},
	}
	cfg.registerFlags(cmd)
	return cmd
}

func runClient(cfg *cliConfig) error {
	s := session.New(transport.NewLinuxPlatform())
	if err := s.Init(cfg.Config); err != nil {
		return fmt.Errorf("pwar-client: init: %w", err)
	}
	if err := s.Start(); err != nil {
		return fmt.Errorf("pwar-client: start: %w", err)
	}
	defer s.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsAddr != "" {
		exp := metrics.NewExporter(s, time.Duration(cfg.MetricsSecs)*time.Second)
		go exp.Run(ctx)
		go func() {
			if err := serveMetrics(cfg.MetricsAddr, exp.Handler()); err != nil {
				log.Errorf("pwar-client: metrics server: %v", err)
			}
		}()
	}

	gen := newToneGenerator()
	stop := driveAudioLoop(ctx, s, gen, cfg.LocalBlockSize)
	defer stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	for {
		switch <-sig {
		case syscall.SIGUSR1:
			printStatusLine(s)
			printMetricsTable(s)
		default:
			log.Info("pwar-client: shutting down")
			return s.Stop()
		}
	}
}

func metricsOnceCmd() *cobra.Command {
	cfg := newCLIConfig()
	cmd := &cobra.Command{
		Use:   "metrics-once",
		Short: "start a session briefly, print one metrics snapshot, and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.loadAndValidate(cmd); err != nil {
				return err
			}
			s := session.New(transport.NewLinuxPlatform())
			if err := s.Init(cfg.Config); err != nil {
				return fmt.Errorf("pwar-client: init: %w", err)
			}
			if err := s.Start(); err != nil {
				return fmt.Errorf("pwar-client: start: %w", err)
			}
			defer s.Cleanup()

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			gen := newToneGenerator()
			stop := driveAudioLoop(ctx, s, gen, cfg.LocalBlockSize)
			defer stop()

			time.Sleep(time.Duration(math.Max(float64(cfg.MetricsSecs), 2)) * time.Second)
			printStatusLine(s)
			printMetricsTable(s)
			return s.Stop()
		},
	}
	cfg.registerFlags(cmd)
	return cmd
}

// toneGenerator produces a continuous 440Hz sine wave, one block at a time,
// standing in for a real audio input device.
type toneGenerator struct {
	phase float64
}

func newToneGenerator() *toneGenerator {
	return &toneGenerator{}
}

func (g *toneGenerator) next(block []float32) {
	for i := range block {
		block[i] = float32(math.Sin(g.phase))
		g.phase += 2 * math.Pi * toneHz / sampleRate
		if g.phase > 2*math.Pi {
			g.phase -= 2 * math.Pi
		}
	}
}

// driveAudioLoop simulates a periodic audio callback at the block's natural
// cadence (blockSize samples at sampleRate Hz) until ctx is cancelled.
func driveAudioLoop(ctx context.Context, s *session.Session, gen *toneGenerator, blockSize int) (stop func()) {
	period := time.Duration(float64(blockSize) / sampleRate * float64(time.Second))
	in := make([]float32, blockSize)
	left := make([]float32, blockSize)
	right := make([]float32, blockSize)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				gen.next(in)
				s.Process(in, blockSize, left, right)
			}
		}
	}()
	return func() { <-done }
}

func serveMetrics(addr string, handler http.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	return http.ListenAndServe(addr, mux)
}

func printStatusLine(s *session.Session) {
	status := s.Status()
	if status == session.StatusOK {
		fmt.Println(color.GreenString("[ OK ] %s", status))
	} else {
		fmt.Println(color.RedString("[FAIL] %s", status))
	}
}

func printMetricsTable(s *session.Session) {
	m, remoteBlockSize, _ := s.GetLatencyMetrics()
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"metric", "min", "avg", "max"})
	table.Append([]string{"audio proc (ns)", fmt.Sprint(m.AudioProcMinNS), fmt.Sprint(m.AudioProcAvgNS), fmt.Sprint(m.AudioProcMaxNS)})
	table.Append([]string{"jitter (ns)", fmt.Sprint(m.JitterMinNS), fmt.Sprint(m.JitterAvgNS), fmt.Sprint(m.JitterMaxNS)})
	table.Append([]string{"rtt (ns)", fmt.Sprint(m.RTTMinNS), fmt.Sprint(m.RTTAvgNS), fmt.Sprint(m.RTTMaxNS)})
	table.Append([]string{"underruns", fmt.Sprint(m.Underruns), "", ""})
	table.Append([]string{"remote block size", fmt.Sprint(remoteBlockSize), "", ""})
	table.Render()
}
