package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// parserFor picks the koanf parser matching the file extension.
//
// Plain .json files go through the JSONC parser as well, since every JSON
// document is valid JSONC.
func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlParser{}, nil
	case ".jsonc", ".json":
		return jsoncParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported config file type %q (use .yaml, .yml, .jsonc or .json)", filepath.Ext(path))
	}
}

// yamlParser implements koanf.Parser with gopkg.in/yaml.v3.
type yamlParser struct{}

// Unmarshal decodes a YAML document into the nested map koanf flattens.
func (yamlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	if out == nil {
		// An empty document.
		out = map[string]interface{}{}
	}
	return out, nil
}

// Marshal implements koanf.Parser.
func (yamlParser) Marshal(o map[string]interface{}) ([]byte, error) {
	return yaml.Marshal(o)
}

// jsoncParser implements koanf.Parser for JSON with comments and trailing
// commas. jsonc.ToJSON rewrites the input into standard JSON first.
type jsoncParser struct{}

// Unmarshal strips comments and trailing commas, then decodes the result
// with encoding/json.
func (jsoncParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal(jsonc.ToJSON(b), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]interface{}{}
	}
	return out, nil
}

// Marshal implements koanf.Parser. Comments cannot round-trip, so the
// output is plain indented JSON.
func (jsoncParser) Marshal(o map[string]interface{}) ([]byte, error) {
	return json.MarshalIndent(o, "", "  ")
}

// Marshal renders the configuration as YAML, using the same keys the
// configuration file accepts. The config command prints this.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
