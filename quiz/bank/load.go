package bank

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk YAML layout of a bank.
type File struct {
	Questions  []Question `yaml:"questions"`
	Categories []Category `yaml:"categories"`
}

// Load reads and validates a bank from a YAML file.
func Load(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bank file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML bank document. Unknown keys are rejected so typos in
// a hand-edited file fail at startup.
func Parse(data []byte) (*Bank, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: parse YAML: %w", ErrInvalidBank, err)
	}
	return New(f.Questions, f.Categories)
}
