// Package capture reads packets from a pcap file or a live AF_PACKET
// socket and feeds them through the parser and compressor.
package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/schc/internal/config"
)

// Source is a packet source. ReadPacket returns io.EOF when a finite
// source (a pcap file) is exhausted.
type Source interface {
	Start(ctx context.Context) error
	ReadPacket() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
	Stop() error
}

// NewSource builds the packet source selected by the capture config.
func NewSource(cfg *config.CaptureConfig) (Source, error) {
	switch cfg.Source {
	case "file":
		return NewFileSource(cfg.File), nil
	case "afpacket":
		return NewAFPacketSource(cfg.Interface, cfg.SnapLen, PortFilter(cfg.Ports))
	}
	return nil, fmt.Errorf("unknown capture source %q", cfg.Source)
}

// PortFilter builds the BPF expression admitting UDP traffic on the given
// ports. An empty port list admits all UDP.
func PortFilter(ports []int) string {
	if len(ports) == 0 {
		return "udp"
	}
	terms := make([]string, len(ports))
	for i, p := range ports {
		terms[i] = fmt.Sprintf("udp port %d", p)
	}
	return strings.Join(terms, " or ")
}
