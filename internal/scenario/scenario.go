// Package scenario loads start-state definitions from YAML files and
// applies them to a simulation context.
//
// Loading is two-phase. The raw YAML is first unified against an embedded
// CUE schema, which catches structural problems (bad tags, out-of-range
// values, floats where decimal strings belong) with a field path. Only
// then is it decoded into typed records and bulk-loaded into the stores.
package scenario

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/tmacphail/suzerain/internal/fixed"
)

//go:embed schema.cue
var schemaCUE string

// Scenario is a parsed, validated start-state definition.
type Scenario struct {
	// Name identifies the scenario; saves record it so a session can
	// only be loaded against the scenario it was created from.
	Name string `yaml:"name"`

	// Description explains the scenario for listings.
	Description string `yaml:"description"`

	// Countries defines every playable and non-playable country.
	Countries []CountryDef `yaml:"countries"`

	// Provinces defines the map. Owner references countries by tag.
	Provinces []ProvinceDef `yaml:"provinces"`
}

// CountryDef is one country's starting state.
type CountryDef struct {
	ID        uint16   `yaml:"id"`
	Tag       string   `yaml:"tag"`
	Name      string   `yaml:"name"`
	Color     [3]uint8 `yaml:"color"`
	Stability int8     `yaml:"stability,omitempty"`

	// Treasury is a decimal string ("100" or "100.500"), never a float.
	Treasury string `yaml:"treasury,omitempty"`
	Culture  uint8  `yaml:"culture,omitempty"`
}

// ProvinceDef is one province's starting state.
type ProvinceDef struct {
	ID      uint16 `yaml:"id"`
	Name    string `yaml:"name"`
	Terrain string `yaml:"terrain"`

	// Owner is a country tag; empty means unowned.
	Owner string `yaml:"owner,omitempty"`

	// Development is a decimal string, never a float.
	Development string `yaml:"development,omitempty"`
	Culture     uint8  `yaml:"culture,omitempty"`
	Coastal     bool   `yaml:"coastal,omitempty"`
}

// Load reads, schema-validates, and parses a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return Parse(data)
}

// Parse validates raw scenario YAML against the embedded schema and
// decodes it. Display names are normalized to NFC so the same scenario
// file produces identical bytes in digests and listings regardless of how
// an editor encoded its accents.
func Parse(data []byte) (*Scenario, error) {
	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	// Parse YAML with strict field validation (catches typos)
	var s Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	s.Name = norm.NFC.String(s.Name)
	s.Description = norm.NFC.String(s.Description)
	for i := range s.Countries {
		s.Countries[i].Name = norm.NFC.String(s.Countries[i].Name)
	}
	for i := range s.Provinces {
		s.Provinces[i].Name = norm.NFC.String(s.Provinces[i].Name)
	}

	if err := validateReferences(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &s, nil
}

// validateSchema unifies the raw YAML with #Scenario from schema.cue.
func validateSchema(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	cuectx := cuecontext.New()
	schema := cuectx.CompileString(schemaCUE).LookupPath(cue.ParsePath("#Scenario"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	value := cuectx.Encode(raw)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encode scenario: %w", err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}

	return nil
}

// validateReferences checks the constraints the schema cannot express:
// unique ids and tags, and owner tags that resolve to a defined country.
func validateReferences(s *Scenario) error {
	countryIDs := make(map[uint16]bool, len(s.Countries))
	tags := make(map[string]bool, len(s.Countries))
	for i, c := range s.Countries {
		if countryIDs[c.ID] {
			return fmt.Errorf("countries[%d]: duplicate id %d", i, c.ID)
		}
		countryIDs[c.ID] = true
		if tags[c.Tag] {
			return fmt.Errorf("countries[%d]: duplicate tag %s", i, c.Tag)
		}
		tags[c.Tag] = true
	}

	provinceIDs := make(map[uint16]bool, len(s.Provinces))
	for i, p := range s.Provinces {
		if provinceIDs[p.ID] {
			return fmt.Errorf("provinces[%d]: duplicate id %d", i, p.ID)
		}
		provinceIDs[p.ID] = true
		if p.Owner != "" && !tags[p.Owner] {
			return fmt.Errorf("provinces[%d]: owner %s is not a defined country", i, p.Owner)
		}
	}

	return nil
}

// parseDecimal parses an optional decimal-string field, defaulting empty
// to zero.
func parseDecimal(field, s string) (fixed.Fixed, error) {
	if s == "" {
		return fixed.Zero, nil
	}
	v, err := fixed.Parse(s)
	if err != nil {
		return fixed.Zero, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}
