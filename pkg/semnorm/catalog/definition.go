package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/semnorm/pkg/semnorm/internalerr"
)

// ExpectedType is the value type a concept's column should hold.
type ExpectedType string

const (
	TypeString      ExpectedType = "string"
	TypeNumber      ExpectedType = "number"
	TypeDate        ExpectedType = "date"
	TypeCategorical ExpectedType = "categorical"
)

// Valid reports whether t is one of the known expected types.
func (t ExpectedType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeDate, TypeCategorical:
		return true
	}
	return false
}

// Definition is the parsed, validated catalog source before embedding.
//
// Expected format:
//
//	version: "2025.1"
//	table_types:
//	  - name: ASSESSMENT
//	    anchors: [test scores and grades, exam results per student]
//	concepts:
//	  - key: student_id
//	    description: Unique identifier of a student
//	    expected_type: string
//	    synonyms: [student number, pupil id]
type Definition struct {
	Version    string          `yaml:"version"`
	TableTypes []TableTypeSpec `yaml:"table_types"`
	Concepts   []ConceptSpec   `yaml:"concepts"`
}

// TableTypeSpec describes one table type and its anchor phrases.
type TableTypeSpec struct {
	Name    string   `yaml:"name"`
	Anchors []string `yaml:"anchors"`
}

// ConceptSpec describes one canonical concept.
type ConceptSpec struct {
	Key          string       `yaml:"key"`
	Description  string       `yaml:"description"`
	ExpectedType ExpectedType `yaml:"expected_type"`
	Synonyms     []string     `yaml:"synonyms"`
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return Definition{}, fmt.Errorf("%w: %v", internalerr.ErrInvalidCatalog, err)
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

// ParseFile reads and parses a YAML catalog from disk.
func ParseFile(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Validate reports every structural problem in the definition at once.
func (d Definition) Validate() error {
	var problems []error

	if len(d.TableTypes) == 0 {
		problems = append(problems, errors.New("no table types defined"))
	}
	if len(d.Concepts) == 0 {
		problems = append(problems, errors.New("no concepts defined"))
	}

	names := make(map[string]struct{}, len(d.TableTypes))
	for i, tt := range d.TableTypes {
		name := strings.TrimSpace(tt.Name)
		if name == "" {
			problems = append(problems, fmt.Errorf("table_types[%d]: missing name", i))
			continue
		}
		if _, dup := names[name]; dup {
			problems = append(problems, fmt.Errorf("table_types[%d]: duplicate name %q", i, name))
		}
		names[name] = struct{}{}
		if len(tt.Anchors) == 0 {
			problems = append(problems, fmt.Errorf("table type %q: no anchor phrases", name))
		}
		for j, a := range tt.Anchors {
			if strings.TrimSpace(a) == "" {
				problems = append(problems, fmt.Errorf("table type %q: anchors[%d] is empty", name, j))
			}
		}
	}

	keys := make(map[string]struct{}, len(d.Concepts))
	for i, c := range d.Concepts {
		key := strings.TrimSpace(c.Key)
		if key == "" {
			problems = append(problems, fmt.Errorf("concepts[%d]: missing key", i))
			continue
		}
		if _, dup := keys[key]; dup {
			problems = append(problems, fmt.Errorf("concepts[%d]: duplicate key %q", i, key))
		}
		keys[key] = struct{}{}
		if strings.TrimSpace(c.Description) == "" {
			problems = append(problems, fmt.Errorf("concept %q: missing description", key))
		}
		if !c.ExpectedType.Valid() {
			problems = append(problems, fmt.Errorf("concept %q: invalid expected_type %q", key, c.ExpectedType))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", internalerr.ErrInvalidCatalog, errors.Join(problems...))
}

// embeddingText is the text a concept's vector is computed from.
func (c ConceptSpec) embeddingText() string {
	if len(c.Synonyms) == 0 {
		return c.Description
	}
	return c.Description + ". Synonyms: " + strings.Join(c.Synonyms, ", ")
}
