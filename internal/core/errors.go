// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors for the SCHC engine. Call sites wrap these with %w and
// attach the offending buffer, cursor or field id.
var (
	// Header parsing errors
	ErrPacketTooShort  = errors.New("schc: packet too short")
	ErrVersionMismatch = errors.New("schc: IP version mismatch")
	ErrMalformedHeader = errors.New("schc: malformed header")

	// Bit buffer errors
	ErrBufferRange     = errors.New("schc: bit range out of bounds")
	ErrBufferAlignment = errors.New("schc: buffer not byte aligned")
	ErrBufferOverflow  = errors.New("schc: value exceeds 64 bits")

	// Decompression errors
	ErrInsufficientResidue = errors.New("schc: insufficient residue bits")
	ErrMappingIndexUnknown = errors.New("schc: mapping index not in reverse table")
	ErrRuleIDMismatch      = errors.New("schc: rule id mismatch")

	// Compression errors
	ErrNoMatchingRule = errors.New("schc: no candidate rule matches")

	// Rule / implementation mismatch errors
	ErrNoComputeFn    = errors.New("schc: no compute function registered")
	ErrNoEnclosingIP  = errors.New("schc: no enclosing IP layer for checksum")
	ErrRuleInvalid    = errors.New("schc: invalid rule definition")
	ErrLengthOverflow = errors.New("schc: variable length exceeds encodable range")

	// Configuration errors
	ErrConfigInvalid = errors.New("schc: invalid configuration")
)
