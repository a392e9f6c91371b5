package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Parser decodes scenario files. A file may hold several scenarios as
// separate YAML documents.
type Parser struct {
	strict bool
}

// NewParser returns a parser that ignores unknown keys
func NewParser() *Parser {
	return &Parser{}
}

// NewStrictParser returns a parser that rejects unknown keys, so a typo in a
// step name fails loudly instead of silently dropping the step
func NewStrictParser() *Parser {
	return &Parser{strict: true}
}

// Parse decodes data holding exactly one scenario
func (p *Parser) Parse(data []byte) (*Scenario, error) {
	scenarios, err := p.ParseAll(data)
	if err != nil {
		return nil, err
	}
	if len(scenarios) != 1 {
		return nil, fmt.Errorf("expected one scenario, found %d", len(scenarios))
	}
	return scenarios[0], nil
}

// ParseAll decodes every YAML document in data
func (p *Parser) ParseAll(data []byte) ([]*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(p.strict)

	var out []*Scenario
	for doc := 1; ; doc++ {
		var s Scenario
		err := dec.Decode(&s)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("document %d: failed to parse YAML: %w", doc, err)
		}
		normalize(&s)
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("document %d: validation failed: %w", doc, err)
		}
		out = append(out, &s)
	}
	if len(out) == 0 {
		return nil, errors.New("no scenario found")
	}
	return out, nil
}

// normalize fills the optional fields
func normalize(s *Scenario) {
	if s.Version == "" {
		s.Version = "1.0"
	}
	for i := range s.Testcases {
		if s.Testcases[i].Name == "" {
			s.Testcases[i].Name = fmt.Sprintf("%s#%d", s.Name, i+1)
		}
	}
}

// ParseFile decodes every scenario in the file at path
func (p *Parser) ParseFile(path string) ([]*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	scenarios, err := p.ParseAll(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for _, s := range scenarios {
		s.Source = path
	}
	return scenarios, nil
}

func isScenarioFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// ParseDir decodes every .yaml/.yml file below dir, in lexical path order
func (p *Parser) ParseDir(dir string) ([]*Scenario, error) {
	var out []*Scenario
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isScenarioFile(d.Name()) {
			return nil
		}
		scenarios, err := p.ParseFile(path)
		if err != nil {
			return err
		}
		out = append(out, scenarios...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ParsePaths decodes files and directories in argument order
func (p *Parser) ParsePaths(paths []string) ([]*Scenario, error) {
	var out []*Scenario
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		var scenarios []*Scenario
		if info.IsDir() {
			scenarios, err = p.ParseDir(path)
		} else {
			scenarios, err = p.ParseFile(path)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, scenarios...)
	}
	return out, nil
}

// ValidateOnly reports whether data holds valid scenarios
func (p *Parser) ValidateOnly(data []byte) error {
	_, err := p.ParseAll(data)
	return err
}
