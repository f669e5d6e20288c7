package config

import (
	"bytes"

	"github.com/BurntSushi/toml"
)

// tomlParser implements koanf.Parser on top of BurntSushi/toml.
type tomlParser struct{}

// TOMLParser returns a koanf parser for TOML config files.
func TOMLParser() *tomlParser {
	return &tomlParser{}
}

// Unmarshal parses TOML bytes into a nested map.
func (p *tomlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if _, err := toml.Decode(string(b), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Marshal renders a nested map as TOML.
func (p *tomlParser) Marshal(o map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
