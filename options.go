package minja

import (
	"io"

	yaml "github.com/goccy/go-yaml"
)

// yamlOptions mirrors the subset of Environment configuration that can be
// expressed as a small YAML document, for hosts that prefer a config file
// over the functional-options setters.
type yamlOptions struct {
	TrimBlocks          bool   `yaml:"trim_blocks"`
	LstripBlocks        bool   `yaml:"lstrip_blocks"`
	KeepTrailingNewline bool   `yaml:"keep_trailing_newline"`
	Fuel                uint64 `yaml:"fuel"`
	RecursionLimit      int    `yaml:"recursion_limit"`
}

// LoadOptionsYAML reads a YAML document from r and applies its settings to
// the environment's whitespace, fuel, and recursion configuration. It is
// optional sugar over SetWhitespace/SetFuel/SetRecursionLimit, not a
// replacement for them.
func (e *Environment) LoadOptionsYAML(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	var opts yamlOptions
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return err
	}

	ws := e.wsConfig
	ws.TrimBlocks = opts.TrimBlocks
	ws.LstripBlocks = opts.LstripBlocks
	ws.KeepTrailingNewline = opts.KeepTrailingNewline
	e.SetWhitespace(ws)

	if opts.Fuel > 0 {
		e.SetFuel(opts.Fuel)
	}
	if opts.RecursionLimit > 0 {
		e.SetRecursionLimit(opts.RecursionLimit)
	}

	return nil
}
