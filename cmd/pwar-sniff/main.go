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

// pwar-sniff is a poor man's tshark for PWAR traffic: it dumps audio and
// metrics packets parsed from an offline capture file to stdout.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"

	"github.com/pwarproject/pwar/protocol"
	"github.com/pwarproject/pwar/session"
)

// LayerPWAR wraps a decoded PWAR audio or metrics packet for gopacket.
type LayerPWAR struct {
	layers.BaseLayer

	Audio   *protocol.Packet
	Metrics *protocol.MetricsPacket
}

// LayerTypePWAR is registered with gopacket so a UDP port can be associated
// with this decoder the way pshark associates PTP's event/general ports
// with its own layer.
var LayerTypePWAR = gopacket.RegisterLayerType(
	8321,
	gopacket.LayerTypeMetadata{Name: "PWAR", Decoder: gopacket.DecodeFunc(decodePWAR)},
)

// LayerType implements gopacket.Layer.
func (l *LayerPWAR) LayerType() gopacket.LayerType { return LayerTypePWAR }

// Payload implements gopacket.ApplicationLayer; PWAR packets are the final layer.
func (l *LayerPWAR) Payload() []byte { return nil }

func decodePWAR(data []byte, p gopacket.PacketBuilder) error {
	d := &LayerPWAR{BaseLayer: layers.BaseLayer{Contents: data}}
	switch protocol.Dispatch(len(data)) {
	case protocol.DispatchAudio:
		var pkt protocol.Packet
		if err := pkt.Decode(data); err != nil {
			return fmt.Errorf("decoding PWAR audio packet: %w", err)
		}
		d.Audio = &pkt
	case protocol.DispatchMetrics:
		var mp protocol.MetricsPacket
		if err := mp.Decode(data); err != nil {
			return fmt.Errorf("decoding PWAR metrics packet: %w", err)
		}
		d.Metrics = &mp
	default:
		return fmt.Errorf("datagram of length %d is not a recognized PWAR message", len(data))
	}
	p.AddLayer(d)
	p.SetApplicationLayer(d)
	return nil
}

type packetHandle interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

func run(input string, port uint16, dumpSamples bool) error {
	layers.RegisterUDPPortLayerType(layers.UDPPort(port), LayerTypePWAR)

	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	var handle packetHandle
	handle, err = pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		if _, serr := f.Seek(0, 0); serr != nil {
			return fmt.Errorf("seeking in %s: %w", input, serr)
		}
		handle, err = pcapgo.NewReader(f)
		if err != nil {
			return fmt.Errorf("decoding %s: %w", input, err)
		}
	}

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range packetSource.Packets() {
		pwarLayer := packet.Layer(LayerTypePWAR)
		if pwarLayer == nil {
			continue
		}
		pwar, _ := pwarLayer.(*LayerPWAR)

		var srcIP, dstIP net.IP
		var srcPort, dstPort layers.UDPPort
		if ip4 := packet.Layer(layers.LayerTypeIPv4); ip4 != nil {
			l, _ := ip4.(*layers.IPv4)
			srcIP, dstIP = l.SrcIP, l.DstIP
		} else if ip6 := packet.Layer(layers.LayerTypeIPv6); ip6 != nil {
			l, _ := ip6.(*layers.IPv6)
			srcIP, dstIP = l.SrcIP, l.DstIP
		}
		if udp := packet.Layer(layers.LayerTypeUDP); udp != nil {
			l, _ := udp.(*layers.UDP)
			srcPort, dstPort = l.SrcPort, l.DstPort
		}

		spew.Printf("%s -> %s\n",
			net.JoinHostPort(srcIP.String(), strconv.Itoa(int(srcPort))),
			net.JoinHostPort(dstIP.String(), strconv.Itoa(int(dstPort))),
		)
		switch {
		case pwar.Audio != nil:
			p := pwar.Audio
			fmt.Printf("  audio seq=%d index=%d/%d chunk_len=%d origin_ts=%d tx_ts=%d\n",
				p.Seq, p.Index, p.Count, p.ChunkLength, p.SeqOriginTimestamp, p.TxTimestamp)
			if dumpSamples {
				spew.Dump(p.Samples)
			}
		case pwar.Metrics != nil:
			spew.Dump(pwar.Metrics)
		}
		if err := packet.ErrorLayer(); err != nil {
			return fmt.Errorf("failed to decode: %w", err.Error())
		}
	}
	return nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "pwar-sniff: dumps PWAR audio/metrics packets parsed from a capture file to stdout.\nUsage:\n")
		fmt.Fprintf(flag.CommandLine.Output(), "%s [file]\n", os.Args[0])
		fmt.Fprint(flag.CommandLine.Output(), "where [file] is any .pcap or .pcapng packet capture\n")
		flag.PrintDefaults()
	}
	port := flag.Uint("port", uint(session.DefaultPort), "UDP port PWAR traffic was captured on")
	dumpSamples := flag.Bool("samples", false, "Also dump raw sample arrays for audio packets")
	flag.Parse()
	if len(flag.Args()) != 1 {
		flag.Usage()
		os.Exit(1)
	}
	if err := run(flag.Arg(0), uint16(*port), *dumpSamples); err != nil {
		log.Fatal(err)
	}
}
