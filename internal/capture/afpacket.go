package capture

import (
	"context"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// ringBufferMB is the AF_PACKET ring buffer memory budget.
const ringBufferMB = 16

// AFPacketSource captures live traffic from a network interface through an
// AF_PACKET TPacket v3 ring, with a kernel-side BPF filter restricting the
// ring to the UDP ports of interest.
type AFPacketSource struct {
	handle *afpacket.TPacket

	device    string
	filter    string
	frameSize int
	blockSize int
	numBlocks int
}

// NewAFPacketSource prepares a live source on device. The ring is sized
// from snapLen and the system page size; the socket is opened on Start.
func NewAFPacketSource(device string, snapLen int, filter string) (*AFPacketSource, error) {
	frameSize, blockSize, numBlocks, err := ringLayout(ringBufferMB, snapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}
	return &AFPacketSource{
		device:    device,
		filter:    filter,
		frameSize: frameSize,
		blockSize: blockSize,
		numBlocks: numBlocks,
	}, nil
}

func (s *AFPacketSource) Start(ctx context.Context) error {
	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(s.device),
		afpacket.OptFrameSize(s.frameSize),
		afpacket.OptBlockSize(s.blockSize),
		afpacket.OptNumBlocks(s.numBlocks),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return fmt.Errorf("failed to open AF_PACKET socket on %s: %w", s.device, err)
	}

	if s.filter != "" {
		raw, err := compileFilter(s.filter, s.frameSize)
		if err != nil {
			tp.Close()
			return err
		}
		if err := tp.SetBPF(raw); err != nil {
			tp.Close()
			return fmt.Errorf("failed to attach BPF filter: %w", err)
		}
	}

	s.handle = tp
	return nil
}

func (s *AFPacketSource) ReadPacket() ([]byte, gopacket.CaptureInfo, error) {
	if s.handle == nil {
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("afpacket source not started")
	}
	return s.handle.ReadPacketData()
}

func (s *AFPacketSource) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

func (s *AFPacketSource) Stop() error {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	return nil
}

// compileFilter compiles a libpcap filter expression into the raw BPF
// instruction form SetBPF expects.
func compileFilter(filter string, snapLen int) ([]bpf.RawInstruction, error) {
	pcapBPF, err := pcap.CompileBPFFilter(layers.LinkTypeEthernet, snapLen, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter %q: %w", filter, err)
	}
	raw := make([]bpf.RawInstruction, len(pcapBPF))
	for i, ins := range pcapBPF {
		raw[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return raw, nil
}

// ringLayout sizes the TPacket ring for the PACKET_MMAP alignment rules:
// frames are multiples of TPACKET_ALIGNMENT, blocks are multiples of both
// the page size and the frame size, and blockSize*numBlocks approximates
// the memory budget.
func ringLayout(bufferMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketAlignment = 16
	const tpacketHdrLen = 52

	if bufferMB <= 0 {
		return 0, 0, 0, fmt.Errorf("ring buffer size must be positive, got %d MB", bufferMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snaplen must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	targetBytes := bufferMB * 1024 * 1024

	raw := tpacketHdrLen + snapLen
	frameSize = ((raw + tpacketAlignment - 1) / tpacketAlignment) * tpacketAlignment

	// Blocks must hold whole frames and whole pages.
	blockSize = lcm(pageSize, frameSize)
	maxBlockSize := 4 * 1024 * 1024
	if blockSize > maxBlockSize {
		framesPerBlock := maxBlockSize / frameSize
		if framesPerBlock < 1 {
			framesPerBlock = 1
		}
		blockSize = framesPerBlock * frameSize
		blockSize = ((blockSize + pageSize - 1) / pageSize) * pageSize
	}

	numBlocks = targetBytes / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return (a * b) / gcd(a, b)
}
