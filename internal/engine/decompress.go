package engine

import (
	"fmt"

	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/compute"
	"firestige.xyz/schc/internal/core"
	"firestige.xyz/schc/internal/rules"
)

// computePatch records a COMPUTE field whose zero placeholder gets patched
// once the whole packet is assembled.
type computePatch struct {
	field  rules.RuleFieldDescriptor
	offset int // bit offset of the placeholder in the output
	ctxIdx int // index of the field in the decompression context
}

// Decompress replays rule against the SCHC packet and reconstructs the
// original packet bit-exactly. Any error aborts the call with no partial
// output.
//
// The cursor first consumes and verifies the rule id bits, then walks the
// in-scope rule fields. COMPUTE fields are assembled as zero placeholders
// and rederived in rule order after the trailing payload is appended, so
// length and checksum functions see the complete packet while earlier
// computed fields are already patched.
func Decompress(schc bits.Buffer, direction rules.Direction, rule *rules.RuleDescriptor, registry compute.Registry) (bits.Buffer, error) {
	id, cursor, err := consume(schc, 0, rule.ID.Len())
	if err != nil {
		return bits.Buffer{}, err
	}
	if !id.Equal(rule.ID) {
		return bits.Buffer{}, fmt.Errorf("%w: packet carries %s, rule is %s", core.ErrRuleIDMismatch, id, rule.ID)
	}
	if rule.Nature == rules.NatureNoCompression {
		return schc.Slice(cursor, schc.Len())
	}

	ctx := compute.NewContext()
	out := bits.Buffer{}
	var patches []computePatch

	for _, rfd := range rule.FieldsFor(direction) {
		var value bits.Buffer
		switch rfd.CDA {
		case rules.NotSent:
			value = rfd.Target
		case rules.ValueSent:
			n := rfd.Length
			if n == 0 {
				n, cursor, err = decodeVarLength(schc, cursor)
				if err != nil {
					return bits.Buffer{}, fmt.Errorf("field %s: %w", rfd.ID, err)
				}
			}
			value, cursor, err = consume(schc, cursor, n)
			if err != nil {
				return bits.Buffer{}, fmt.Errorf("field %s: %w", rfd.ID, err)
			}
		case rules.LSB:
			var tail bits.Buffer
			tail, cursor, err = consume(schc, cursor, rfd.Length-rfd.Target.Len())
			if err != nil {
				return bits.Buffer{}, fmt.Errorf("field %s: %w", rfd.ID, err)
			}
			value = rfd.Target.Concat(tail)
		case rules.MappingSent:
			var index bits.Buffer
			index, cursor, err = consume(schc, cursor, rfd.Mapping.IndexLen())
			if err != nil {
				return bits.Buffer{}, fmt.Errorf("field %s: %w", rfd.ID, err)
			}
			var ok bool
			value, ok = rfd.Mapping.Value(index)
			if !ok {
				return bits.Buffer{}, fmt.Errorf("field %s: index %s: %w", rfd.ID, index, core.ErrMappingIndexUnknown)
			}
		case rules.Compute:
			value = bits.Zero(rfd.Length)
			patches = append(patches, computePatch{field: rfd, offset: out.Len(), ctxIdx: ctx.Len()})
		}
		ctx.Append(rfd.ID, rfd.Position, value)
		out = out.Concat(value)
	}

	// residual bits are the uncompressed trailing payload
	payload, err := schc.Slice(cursor, schc.Len())
	if err != nil {
		return bits.Buffer{}, err
	}
	out = out.Concat(payload)

	for _, patch := range patches {
		fn, ok := registry[patch.field.ID]
		if !ok {
			return bits.Buffer{}, fmt.Errorf("field %s: %w", patch.field.ID, core.ErrNoComputeFn)
		}
		value, err := fn(out, patch.offset, ctx, patch.ctxIdx)
		if err != nil {
			return bits.Buffer{}, fmt.Errorf("field %s: %w", patch.field.ID, err)
		}
		out, err = splice(out, patch.offset, value)
		if err != nil {
			return bits.Buffer{}, fmt.Errorf("field %s: %w", patch.field.ID, err)
		}
		ctx.Set(patch.ctxIdx, value)
	}
	return out, nil
}

// splice replaces the value.Len() bits of buf starting at offset.
func splice(buf bits.Buffer, offset int, value bits.Buffer) (bits.Buffer, error) {
	head, err := buf.Slice(0, offset)
	if err != nil {
		return bits.Buffer{}, err
	}
	tail, err := buf.Slice(offset+value.Len(), buf.Len())
	if err != nil {
		return bits.Buffer{}, err
	}
	return head.Concat(value).Concat(tail), nil
}
