// Package harness runs scripted simulation sessions for conformance and
// determinism testing.
//
// A script names a scenario file, lists the commands to submit tick by
// tick, and asserts on the resulting state, event trace, and digest. The
// recorded trace is deterministic line-for-line, so scripts double as
// golden-file fixtures: the same script against the same scenario yields
// the same bytes on every machine.
package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Script defines one scripted session.
type Script struct {
	// Name uniquely identifies this script and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this script exercises.
	Description string `yaml:"description"`

	// Scenario is the path to the scenario YAML, relative to the script
	// file location.
	Scenario string `yaml:"scenario"`

	// Ticks lists the session tick by tick. An empty commands list is a
	// tick where nothing is submitted.
	Ticks []TickStep `yaml:"ticks"`

	// Assertions validate the final state and the recorded trace.
	Assertions []Assertion `yaml:"assertions"`
}

// TickStep is the commands submitted during one tick, in order.
type TickStep struct {
	Commands []CommandStep `yaml:"commands,omitempty"`
}

// CommandStep describes one command by kind name plus its arguments.
// Only the fields the named kind uses are read; decimal values are
// strings, never floats.
type CommandStep struct {
	Kind string `yaml:"kind"`

	// Rejected marks a command the script expects the pipeline to
	// reject at submission. The runner fails if it is accepted.
	Rejected bool `yaml:"rejected,omitempty"`

	Province  uint16   `yaml:"province,omitempty"`
	Provinces []uint16 `yaml:"provinces,omitempty"`
	Owner     uint16   `yaml:"owner,omitempty"`
	From      uint16   `yaml:"from,omitempty"`
	To        uint16   `yaml:"to,omitempty"`
	Country   uint16   `yaml:"country,omitempty"`
	Slot      uint8    `yaml:"slot,omitempty"`
	Building  uint8    `yaml:"building,omitempty"`
	Value     string   `yaml:"value,omitempty"`

	A         uint16 `yaml:"a,omitempty"`
	B         uint16 `yaml:"b,omitempty"`
	Type      uint16 `yaml:"type,omitempty"`
	DecayRate uint32 `yaml:"decay_rate,omitempty"`
}

// Assertion validates the final state or the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "owner": province is owned by country
	// - "treasury": country treasury equals value
	// - "at_war": countries a and b are at war
	// - "allied": countries a and b are allied
	// - "opinion": opinion between a and b equals value at the final tick
	// - "trace_count": the named event kind appears exactly count times
	// - "digest": the final digest equals the given hex string
	Type string `yaml:"type"`

	Province uint16 `yaml:"province,omitempty"`
	Country  uint16 `yaml:"country,omitempty"`
	A        uint16 `yaml:"a,omitempty"`
	B        uint16 `yaml:"b,omitempty"`
	Value    string `yaml:"value,omitempty"`
	Event    string `yaml:"event,omitempty"`
	Count    int    `yaml:"count,omitempty"`
	Digest   string `yaml:"digest,omitempty"`
}

// Assertion type constants.
const (
	AssertOwner      = "owner"
	AssertTreasury   = "treasury"
	AssertAtWar      = "at_war"
	AssertAllied     = "allied"
	AssertOpinion    = "opinion"
	AssertTraceCount = "trace_count"
	AssertDigest     = "digest"
)

// LoadScript reads and parses a script YAML file, resolving the scenario
// path relative to the script's directory. Returns an error if the file
// is malformed, contains unknown fields (typos), or is missing required
// fields.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos)
	var script Script
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&script); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if script.Scenario != "" && !filepath.IsAbs(script.Scenario) {
		script.Scenario = filepath.Join(filepath.Dir(path), script.Scenario)
	}

	if err := validateScript(&script); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}

	return &script, nil
}

// validateScript checks that required fields are present and valid.
func validateScript(s *Script) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Scenario == "" {
		return fmt.Errorf("scenario is required")
	}
	if _, err := os.Stat(s.Scenario); os.IsNotExist(err) {
		return fmt.Errorf("scenario file not found: %s", s.Scenario)
	}
	if len(s.Ticks) == 0 {
		return fmt.Errorf("ticks list is required and must be non-empty")
	}

	for i, tick := range s.Ticks {
		for j, step := range tick.Commands {
			if step.Kind == "" {
				return fmt.Errorf("ticks[%d].commands[%d]: kind is required", i, j)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case AssertOwner:
		if a.Province == 0 {
			return fmt.Errorf("assertions[%d]: province is required for owner", index)
		}
	case AssertTreasury:
		if a.Country == 0 || a.Value == "" {
			return fmt.Errorf("assertions[%d]: country and value are required for treasury", index)
		}
	case AssertAtWar, AssertAllied:
		if a.A == 0 || a.B == 0 {
			return fmt.Errorf("assertions[%d]: a and b are required for %s", index, a.Type)
		}
	case AssertOpinion:
		if a.A == 0 || a.B == 0 || a.Value == "" {
			return fmt.Errorf("assertions[%d]: a, b, and value are required for opinion", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertDigest:
		if a.Digest == "" {
			return fmt.Errorf("assertions[%d]: digest is required for digest", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
