package layout

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadSeedFile reads a hand-written YAML layout.
//
// Parameters:
//   - path: Path to the seed file
//
// Returns:
//   - *Layout: Parsed and validated layout
//   - error: If the file cannot be read, parsed or fails validation
func LoadSeedFile(path string) (*Layout, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path comes from trusted config
	if err != nil {
		return nil, fmt.Errorf("reading layout seed %s: %w", path, err)
	}
	l, err := ParseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("layout seed %s: %w", path, err)
	}
	return l, nil
}

// ParseSeed decodes and validates a YAML layout. Unknown keys are rejected
// so typos in a seed file do not silently drop settings.
func ParseSeed(data []byte) (*Layout, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var l Layout
	if err := dec.Decode(&l); err != nil {
		return nil, fmt.Errorf("parsing layout: %w", err)
	}
	if err := Validate(&l); err != nil {
		return nil, err
	}
	return &l, nil
}
