// Package compute implements the derived-field functions invoked for COMPUTE
// rule fields during decompression: lengths and checksums whose values are
// rederived from the reconstructed packet instead of being transmitted.
package compute

import (
	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/rules"
)

// Context is the ordered list of fields decompressed so far, in rule order.
// Compute functions may only depend on fields appearing earlier in rule
// order; COMPUTE placeholders later in the list still hold zeros when an
// earlier function runs.
type Context struct {
	fields []rules.FieldDescriptor
}

// NewContext returns an empty decompression context.
func NewContext() *Context {
	return &Context{}
}

// Append records one decompressed field.
func (c *Context) Append(id rules.FieldID, position int, value bits.Buffer) {
	c.fields = append(c.fields, rules.FieldDescriptor{ID: id, Position: position, Value: value})
}

// Set replaces the value of field i after a compute function patched it.
func (c *Context) Set(i int, value bits.Buffer) {
	c.fields[i].Value = value
}

// Len returns the number of recorded fields.
func (c *Context) Len() int { return len(c.fields) }

// Field returns the i-th recorded field.
func (c *Context) Field(i int) rules.FieldDescriptor { return c.fields[i] }

// LastNetworkField scans backward from field index before (exclusive) for
// the most recent field owned by a network-layer protocol. This identifies
// the layer enclosing a transport header without index arithmetic.
func (c *Context) LastNetworkField(before int) (rules.FieldDescriptor, int, bool) {
	if before > len(c.fields) {
		before = len(c.fields)
	}
	for i := before - 1; i >= 0; i-- {
		if c.fields[i].ID.Protocol.IsNetworkLayer() {
			return c.fields[i], i, true
		}
	}
	return rules.FieldDescriptor{}, -1, false
}

// LookupBefore scans backward from field index before (exclusive) for the
// most recent field with the given id.
func (c *Context) LookupBefore(before int, id rules.FieldID) (bits.Buffer, bool) {
	if before > len(c.fields) {
		before = len(c.fields)
	}
	for i := before - 1; i >= 0; i-- {
		if c.fields[i].ID == id {
			return c.fields[i].Value, true
		}
	}
	return bits.Buffer{}, false
}

// Func rederives one field value. packet is the reconstructed packet with
// zero placeholders for compute fields not yet patched, offset the bit
// offset of this field within it, index this field's position in ctx.
type Func func(packet bits.Buffer, offset int, ctx *Context, index int) (bits.Buffer, error)

// Registry maps field ids to their compute functions. Built once, immutable
// afterwards, safe for concurrent decompress calls.
type Registry map[rules.FieldID]Func
