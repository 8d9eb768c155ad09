package rules

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"firestige.xyz/schc/internal/bits"
	"firestige.xyz/schc/internal/core"
)

// ruleFile is the YAML shape of a rule set file.
type ruleFile struct {
	Rules []ruleYAML `yaml:"rules"`
}

type ruleYAML struct {
	ID       string      `yaml:"id"`        // hex, e.g. "0x03"
	IDLength int         `yaml:"id-length"` // bits
	Nature   string      `yaml:"nature"`    // compression | no-compression
	Fields   []fieldYAML `yaml:"fields"`
}

type fieldYAML struct {
	ID           string        `yaml:"id"` // "IPv6:Version"
	Length       int           `yaml:"length"`
	Position     int           `yaml:"position"`
	Direction    string        `yaml:"direction"` // up | down | bidirectional
	Target       string        `yaml:"target"`
	TargetLength int           `yaml:"target-length"` // bits; defaults to length
	MO           string        `yaml:"mo"`
	CDA          string        `yaml:"cda"`
	Mapping      []mappingYAML `yaml:"mapping"`
}

type mappingYAML struct {
	Value       string `yaml:"value"`
	ValueLength int    `yaml:"value-length"`
	Index       string `yaml:"index"`
	IndexLength int    `yaml:"index-length"`
}

// Load reads a YAML rule set file and builds the shared rule descriptors.
// Rule order in the file is priority order.
func Load(path string) ([]*RuleDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file %s: %w", path, err)
	}
	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
	}
	if len(file.Rules) == 0 {
		return nil, fmt.Errorf("%w: rule file %s declares no rules", core.ErrRuleInvalid, path)
	}
	out := make([]*RuleDescriptor, 0, len(file.Rules))
	seen := make(map[string]struct{}, len(file.Rules))
	for i, ry := range file.Rules {
		rd, err := buildRule(ry)
		if err != nil {
			return nil, fmt.Errorf("rule #%d: %w", i, err)
		}
		if _, dup := seen[rd.ID.Key()]; dup {
			return nil, fmt.Errorf("%w: duplicate rule id %s", core.ErrRuleInvalid, rd.ID)
		}
		seen[rd.ID.Key()] = struct{}{}
		out = append(out, rd)
	}
	return out, nil
}

func buildRule(ry ruleYAML) (*RuleDescriptor, error) {
	if ry.IDLength <= 0 {
		return nil, fmt.Errorf("%w: rule id length must be positive", core.ErrRuleInvalid)
	}
	id, err := parseHexBuffer(ry.ID, ry.IDLength)
	if err != nil {
		return nil, err
	}
	rd := &RuleDescriptor{ID: id}
	switch strings.ToLower(ry.Nature) {
	case "", "compression":
		rd.Nature = NatureCompression
	case "no-compression":
		rd.Nature = NatureNoCompression
		return rd, nil
	default:
		return nil, fmt.Errorf("%w: unknown rule nature %q", core.ErrRuleInvalid, ry.Nature)
	}
	rd.Fields = make([]RuleFieldDescriptor, 0, len(ry.Fields))
	for i, fy := range ry.Fields {
		rfd, err := buildField(fy)
		if err != nil {
			return nil, fmt.Errorf("field #%d (%s): %w", i, fy.ID, err)
		}
		rd.Fields = append(rd.Fields, rfd)
	}
	return rd, nil
}

func buildField(fy fieldYAML) (RuleFieldDescriptor, error) {
	id, err := ParseFieldID(fy.ID)
	if err != nil {
		return RuleFieldDescriptor{}, err
	}
	dir, err := parseDirection(fy.Direction)
	if err != nil {
		return RuleFieldDescriptor{}, err
	}
	mo, err := parseMO(fy.MO)
	if err != nil {
		return RuleFieldDescriptor{}, err
	}
	cda, err := parseCDA(fy.CDA)
	if err != nil {
		return RuleFieldDescriptor{}, err
	}
	rfd := RuleFieldDescriptor{
		ID:        id,
		Length:    fy.Length,
		Position:  fy.Position,
		Direction: dir,
		MO:        mo,
		CDA:       cda,
	}
	if mo == MOMatchMapping {
		entries := make([]MappingEntry, 0, len(fy.Mapping))
		for _, my := range fy.Mapping {
			vlen := my.ValueLength
			if vlen == 0 {
				vlen = fy.Length
			}
			value, err := parseHexBuffer(my.Value, vlen)
			if err != nil {
				return RuleFieldDescriptor{}, err
			}
			index, err := parseHexBuffer(my.Index, my.IndexLength)
			if err != nil {
				return RuleFieldDescriptor{}, err
			}
			entries = append(entries, MappingEntry{Value: value, Index: index})
		}
		mapping, err := NewMatchMapping(entries)
		if err != nil {
			return RuleFieldDescriptor{}, err
		}
		rfd.Mapping = mapping
		return rfd, nil
	}
	tlen := fy.TargetLength
	if tlen == 0 && fy.Target != "" {
		tlen = fy.Length
	}
	rfd.Target, err = parseHexBuffer(fy.Target, tlen)
	if err != nil {
		return RuleFieldDescriptor{}, err
	}
	return rfd, nil
}

// ParseFieldID parses a "Protocol:Field Name" string into a FieldID.
func ParseFieldID(s string) (FieldID, error) {
	if s == "Payload" {
		return Payload, nil
	}
	proto, name, ok := strings.Cut(s, ":")
	if !ok {
		return FieldID{}, fmt.Errorf("%w: field id %q lacks protocol prefix", core.ErrRuleInvalid, s)
	}
	for p, pname := range protocolNames {
		if pname == proto {
			return FieldID{Protocol: p, Name: name}, nil
		}
	}
	return FieldID{}, fmt.Errorf("%w: unknown protocol %q", core.ErrRuleInvalid, proto)
}

func parseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "", "bidirectional", "bi":
		return Bidirectional, nil
	case "up":
		return Up, nil
	case "down", "dw":
		return Down, nil
	}
	return Bidirectional, fmt.Errorf("%w: unknown direction %q", core.ErrRuleInvalid, s)
}

func parseMO(s string) (MatchingOperator, error) {
	switch strings.ToLower(s) {
	case "equal":
		return MOEqual, nil
	case "ignore":
		return MOIgnore, nil
	case "msb":
		return MOMSB, nil
	case "match-mapping":
		return MOMatchMapping, nil
	}
	return MOEqual, fmt.Errorf("%w: unknown matching operator %q", core.ErrRuleInvalid, s)
}

func parseCDA(s string) (Action, error) {
	switch strings.ToLower(s) {
	case "not-sent":
		return NotSent, nil
	case "value-sent":
		return ValueSent, nil
	case "lsb", "least-significant-bits":
		return LSB, nil
	case "mapping-sent":
		return MappingSent, nil
	case "compute":
		return Compute, nil
	}
	return NotSent, fmt.Errorf("%w: unknown action %q", core.ErrRuleInvalid, s)
}

func parseHexBuffer(s string, length int) (bits.Buffer, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return bits.New(nil, length, bits.PadLeft), nil
	}
	if len(s)%2 != 0 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return bits.Buffer{}, fmt.Errorf("%w: bad hex %q: %v", core.ErrRuleInvalid, s, err)
	}
	if length == 0 {
		length = len(raw) * 8
	}
	return bits.New(raw, length, bits.PadLeft), nil
}
