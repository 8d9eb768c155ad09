package capture

import (
	"context"
	"errors"
	"io"

	"github.com/google/gopacket"

	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/engine"
	"firestige.xyz/schc/internal/log"
	"firestige.xyz/schc/internal/metrics"
	"firestige.xyz/schc/internal/parser"
	"firestige.xyz/schc/internal/rules"
)

// EmitFunc receives each compressed packet together with the rule that
// produced it and the original packet size in bits.
type EmitFunc func(rule *rules.RuleDescriptor, schc bits.Buffer, originalBits int) error

// Pipeline drains a packet source through the parser and compressor,
// handing the resulting SCHC packets to an emit callback.
type Pipeline struct {
	src        Source
	sourceName string
	parser     *parser.PacketParser
	candidates []*rules.RuleDescriptor
	direction  rules.Direction
	emit       EmitFunc
}

// NewPipeline wires a source to a parser chain and a candidate rule set.
func NewPipeline(src Source, sourceName string, p *parser.PacketParser, candidates []*rules.RuleDescriptor, dir rules.Direction, emit EmitFunc) *Pipeline {
	return &Pipeline{
		src:        src,
		sourceName: sourceName,
		parser:     p,
		candidates: candidates,
		direction:  dir,
		emit:       emit,
	}
}

// Run starts the source and processes packets until the source is
// exhausted or the context is cancelled. A finite source draining to EOF
// returns nil.
func (pl *Pipeline) Run(ctx context.Context) error {
	if err := pl.src.Start(ctx); err != nil {
		return err
	}
	defer pl.src.Stop()

	logger := log.GetLogger().WithField("source", pl.sourceName)
	logger.Info("capture pipeline started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("capture pipeline stopped")
			return ctx.Err()
		default:
		}

		data, _, err := pl.src.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("capture source exhausted")
				return nil
			}
			metrics.CaptureDropsTotal.WithLabelValues(pl.sourceName, "read").Inc()
			logger.WithError(err).Warn("failed to read packet")
			continue
		}
		pl.process(data)
	}
}

func (pl *Pipeline) process(data []byte) {
	metrics.CapturePacketsTotal.WithLabelValues(pl.sourceName).Inc()

	ip := networkBytes(data, pl.src.LinkType())
	if ip == nil {
		metrics.CaptureDropsTotal.WithLabelValues(pl.sourceName, "link").Inc()
		return
	}

	packet, err := pl.parser.Parse(bits.FromBytes(ip), pl.direction)
	if err != nil {
		metrics.CaptureDropsTotal.WithLabelValues(pl.sourceName, "parse").Inc()
		log.GetLogger().WithError(err).Debug("packet outside the configured stack")
		return
	}

	rule, schc, err := engine.Compress(packet, pl.candidates)
	if err != nil {
		metrics.CompressErrorsTotal.WithLabelValues("compress").Inc()
		log.GetLogger().WithError(err).Error("compression failed")
		return
	}

	outcome := "matched"
	if rule.Nature == rules.NatureNoCompression {
		outcome = "fallback"
	}
	metrics.CompressPacketsTotal.WithLabelValues(rule.ID.String(), outcome).Inc()

	original := len(ip) * 8
	if saved := original - schc.Len(); saved > 0 {
		metrics.SavedBitsTotal.Add(float64(saved))
	}
	if original > 0 {
		metrics.CompressionRatio.Observe(float64(schc.Len()) / float64(original))
	}

	if pl.emit != nil {
		if err := pl.emit(rule, schc, original); err != nil {
			metrics.CompressErrorsTotal.WithLabelValues("emit").Inc()
			log.GetLogger().WithError(err).Error("failed to emit compressed packet")
		}
	}
}

// networkBytes strips the link layer and returns the full IP packet, or
// nil when the frame carries no decodable network layer.
func networkBytes(data []byte, linkType gopacket.Decoder) []byte {
	pkt := gopacket.NewPacket(data, linkType, gopacket.Lazy)
	nl := pkt.NetworkLayer()
	if nl == nil {
		return nil
	}
	hdr := nl.LayerContents()
	ip := make([]byte, 0, len(hdr)+len(nl.LayerPayload()))
	ip = append(ip, hdr...)
	ip = append(ip, nl.LayerPayload()...)
	return ip
}

// ParserFor returns the parser chain for a configured stack name.
func ParserFor(stack string) *parser.PacketParser {
	if stack == "ipv4-udp" {
		return parser.NewIPv4UDPParser()
	}
	return parser.NewIPv6UDPCoAPParser()
}

// DirectionFor maps the configured direction string onto the rule model.
func DirectionFor(s string) rules.Direction {
	if s == "down" {
		return rules.Down
	}
	return rules.Up
}
