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

// pwar-server is a demo CLI that runs a Session in the "server" role: it
// drives no audio callback of its own, so it sends no audio back; it
// receives and reassembles whatever the peer sends and reports status and
// metrics. It exists to exercise the engine for manual and integration
// testing, the same role responder/main.go plays for the NTP responder.
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

	"github.com/coreos/go-systemd/daemon"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pwarproject/pwar/metrics"
	"github.com/pwarproject/pwar/session"
	"github.com/pwarproject/pwar/transport"
)

var rootCmd = &cobra.Command{
	Use:   "pwar-server",
	Short: "drives a PWAR session in the server role",
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

// runCmd starts a long-running server session: opens the socket, serves
// Prometheus metrics if requested, notifies systemd once ready, and prints
// a colorized status line plus a metrics table on SIGUSR1 until the
// process is asked to stop.
func runCmd() *cobra.Command {
	cfg := newCLIConfig()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run the server session until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.loadAndValidate(cmd); err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
	cfg.registerFlags(cmd)
	return cmd
}

func runServer(cfg *cliConfig) error {
	s := session.New(transport.NewLinuxPlatform())
	if err := s.Init(cfg.Config); err != nil {
		return fmt.Errorf("pwar-server: init: %w", err)
	}
	if err := s.Start(); err != nil {
		return fmt.Errorf("pwar-server: start: %w", err)
	}
	defer s.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.MetricsAddr != "" {
		exp := metrics.NewExporter(s, time.Duration(cfg.MetricsSecs)*time.Second)
		go exp.Run(ctx)
		mux := exp.Handler()
		go func() {
			if err := serveMetrics(cfg.MetricsAddr, mux); err != nil {
				log.Errorf("pwar-server: metrics server: %v", err)
			}
		}()
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debugf("pwar-server: sd_notify: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)
	for {
		switch <-sig {
		case syscall.SIGUSR1:
			printStatusLine(s)
			printMetricsTable(s)
		default:
			log.Info("pwar-server: shutting down")
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
				return fmt.Errorf("pwar-server: init: %w", err)
			}
			if err := s.Start(); err != nil {
				return fmt.Errorf("pwar-server: start: %w", err)
			}
			defer s.Cleanup()

			time.Sleep(time.Duration(math.Max(float64(cfg.MetricsSecs), 2)) * time.Second)
			printStatusLine(s)
			printMetricsTable(s)
			return s.Stop()
		},
	}
	cfg.registerFlags(cmd)
	return cmd
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
