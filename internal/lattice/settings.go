package lattice

import (
	"fmt"
	"io"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"
)

// Value is the record stored per channel in a settings map.
type Value struct {
	VAL float64 `yaml:"VAL" json:"VAL"`
}

// Settings maps a channel identifier to its current value.
type Settings map[string]Value

// Lookup returns the value of channel and whether it is present.
func (s Settings) Lookup(channel string) (float64, bool) {
	v, ok := s[channel]
	return v.VAL, ok
}

// Set stores value under channel.
func (s Settings) Set(channel string, value float64) {
	s[channel] = Value{VAL: value}
}

// Clone returns an independent copy of s.
func (s Settings) Clone() Settings {
	if s == nil {
		return Settings{}
	}
	return maps.Clone(s)
}

// Channels returns the channel identifiers in s, sorted.
func (s Settings) Channels() []string {
	return slices.Sorted(maps.Keys(s))
}

// ReadSettings decodes a YAML settings document of the form
//
//	Q1:GRAD_CSET:
//	  VAL: 5.0
func ReadSettings(r io.Reader) (Settings, error) {
	s := Settings{}
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		if err == io.EOF {
			return s, nil
		}
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	return s, nil
}

// WriteSettings encodes s as YAML with channels in sorted order.
func WriteSettings(w io.Writer, s Settings) error {
	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, ch := range s.Channels() {
		var val yaml.Node
		if err := val.Encode(s[ch]); err != nil {
			return fmt.Errorf("encode %s: %w", ch, err)
		}
		doc.Content = append(doc.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: ch},
			&val,
		)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return enc.Close()
}
