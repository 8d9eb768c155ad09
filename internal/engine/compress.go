// Package engine implements the rule-driven SCHC compressor and
// decompressor. Both replay a shared rule field-by-field: the compressor
// against a parsed packet to emit the residue, the decompressor against the
// residue to reconstruct the packet bit-exactly.
package engine

import (
	"fmt"

	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/core"
	"firestige.xyz/schc/internal/rules"
)

// Compress matches the packet against the candidate rules in priority order
// and emits the SCHC packet for the first matching rule: rule id bits, then
// per-field residue in rule order, then the payload verbatim.
//
// When no compression rule matches, compression degrades to the candidate
// set's no-compression rule (rule id followed by the original packet). A
// candidate set without such a fallback yields ErrNoMatchingRule.
func Compress(packet *rules.PacketDescriptor, candidates []*rules.RuleDescriptor) (*rules.RuleDescriptor, bits.Buffer, error) {
	for _, rule := range candidates {
		if rule.Nature != rules.NatureCompression {
			continue
		}
		inScope := rule.FieldsFor(packet.Direction)
		if !ruleMatches(inScope, packet.Fields) {
			continue
		}
		residue, err := emitResidue(rule, inScope, packet)
		if err != nil {
			return nil, bits.Buffer{}, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		return rule, residue, nil
	}
	for _, rule := range candidates {
		if rule.Nature == rules.NatureNoCompression {
			return rule, uncompressed(rule, packet), nil
		}
	}
	return nil, bits.Buffer{}, fmt.Errorf("%w: %d candidates, no fallback", core.ErrNoMatchingRule, len(candidates))
}

// ruleMatches walks the in-scope rule fields in lock-step with the packet
// fields. Every pair must agree on id and position and satisfy the rule
// field's matching operator.
func ruleMatches(inScope []rules.RuleFieldDescriptor, fields []rules.FieldDescriptor) bool {
	if len(inScope) != len(fields) {
		return false
	}
	for i, rfd := range inScope {
		fd := fields[i]
		if rfd.ID != fd.ID || rfd.Position != fd.Position {
			return false
		}
		if !operatorMatches(rfd, fd.Value) {
			return false
		}
	}
	return true
}

func operatorMatches(rfd rules.RuleFieldDescriptor, value bits.Buffer) bool {
	switch rfd.MO {
	case rules.MOEqual:
		return value.Equal(rfd.Target)
	case rules.MOIgnore:
		return true
	case rules.MOMSB:
		prefix, err := value.Slice(0, rfd.Target.Len())
		if err != nil {
			return false
		}
		return prefix.Equal(rfd.Target)
	case rules.MOMatchMapping:
		if rfd.Mapping == nil {
			return false
		}
		_, ok := rfd.Mapping.Index(value)
		return ok
	}
	return false
}

// emitResidue concatenates each field's residue per its CDA, prefixed by the
// rule id and followed by the uncompressed payload.
func emitResidue(rule *rules.RuleDescriptor, inScope []rules.RuleFieldDescriptor, packet *rules.PacketDescriptor) (bits.Buffer, error) {
	out := rule.ID
	for i, rfd := range inScope {
		value := packet.Fields[i].Value
		switch rfd.CDA {
		case rules.NotSent, rules.Compute:
			// fully implied or rederived on the far side
		case rules.ValueSent:
			if rfd.Length == 0 {
				prefix, err := encodeVarLength(value.Len())
				if err != nil {
					return bits.Buffer{}, fmt.Errorf("field %s: %w", rfd.ID, err)
				}
				out = out.Concat(prefix)
			}
			out = out.Concat(value)
		case rules.LSB:
			tail, err := value.Slice(rfd.Target.Len(), value.Len())
			if err != nil {
				return bits.Buffer{}, fmt.Errorf("field %s: %w", rfd.ID, err)
			}
			out = out.Concat(tail)
		case rules.MappingSent:
			index, ok := rfd.Mapping.Index(value)
			if !ok {
				// ruleMatches vouched for the key; a miss here is a rule bug
				return bits.Buffer{}, fmt.Errorf("field %s: %w", rfd.ID, core.ErrMappingIndexUnknown)
			}
			out = out.Concat(index)
		}
	}
	return out.Concat(packet.Payload), nil
}

// uncompressed emits the no-compression fallback: rule id then the original
// packet bits verbatim.
func uncompressed(rule *rules.RuleDescriptor, packet *rules.PacketDescriptor) bits.Buffer {
	out := rule.ID
	for _, fd := range packet.Fields {
		out = out.Concat(fd.Value)
	}
	return out.Concat(packet.Payload)
}
