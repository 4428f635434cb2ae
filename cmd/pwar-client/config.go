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

package main

import (
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pwarproject/pwar/session"
)

// cliConfig mirrors session.Config for YAML decoding; cobra binds flags
// directly onto the embedded session.Config so flags always take
// precedence over whatever --config loaded.
type cliConfig struct {
	session.Config `yaml:",inline"`

	ConfigFile  string
	MetricsAddr string
	MetricsSecs int
}

func newCLIConfig() *cliConfig {
	return &cliConfig{}
}

func (c *cliConfig) registerFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&c.ConfigFile, "config", "", "path to a YAML config file; flags override values loaded from it")
	f.StringVar(&c.PeerIP, "peer-ip", "", "peer IP address")
	f.Uint16Var(&c.PeerPort, "peer-port", session.DefaultPort, "peer UDP port")
	f.Uint16Var(&c.LocalPort, "local-port", session.DefaultPort, "local UDP port to bind")
	f.IntVar(&c.LocalBlockSize, "block-size", 128, "local audio block size, in samples")
	f.BoolVar(&c.OneshotMode, "oneshot", false, "use the request/reply oneshot path instead of ping-pong")
	f.BoolVar(&c.PassthroughTest, "passthrough", false, "bypass the wire entirely and echo input straight to output")
	f.StringVar(&c.MetricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this host:port")
	f.IntVar(&c.MetricsSecs, "metrics-interval", 2, "seconds between metrics scrapes")
}

// loadAndValidate applies any --config file's values as a base, then
// re-applies whatever the caller's flags explicitly set (cobra flag
// defaults were already written into c by registerFlags, so anything not
// explicitly passed on the command line keeps the file's value here).
func (c *cliConfig) loadAndValidate(cmd *cobra.Command) error {
	if c.ConfigFile != "" {
		data, err := os.ReadFile(c.ConfigFile)
		if err != nil {
			return err
		}
		fileCfg := cliConfig{}
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return err
		}
		overwriteUnset(cmd, "peer-ip", &c.PeerIP, fileCfg.PeerIP)
		overwriteUnset(cmd, "peer-port", &c.PeerPort, fileCfg.PeerPort)
		overwriteUnset(cmd, "local-port", &c.LocalPort, fileCfg.LocalPort)
		overwriteUnset(cmd, "block-size", &c.LocalBlockSize, fileCfg.LocalBlockSize)
		overwriteUnset(cmd, "oneshot", &c.OneshotMode, fileCfg.OneshotMode)
		overwriteUnset(cmd, "passthrough", &c.PassthroughTest, fileCfg.PassthroughTest)
	}
	return c.Config.Validate()
}

// overwriteUnset replaces *dst with fileVal only if flagName was not
// explicitly set on the command line, giving flags precedence over the
// config file.
func overwriteUnset[T any](cmd *cobra.Command, flagName string, dst *T, fileVal T) {
	if cmd.Flags().Changed(flagName) {
		return
	}
	var zero T
	if any(fileVal) != any(zero) {
		*dst = fileVal
	}
}
