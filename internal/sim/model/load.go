package model

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"voxelflow/internal/sim/materials"
)

//go:embed model.schema.json
var schemaJSON string

const schemaURL = "mem://voxelflow/model.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

// Schema returns the compiled model schema.
func Schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

type fileV1 struct {
	Name      string `yaml:"name"`
	Container struct {
		Scale Vec3 `yaml:"scale"`
	} `yaml:"container"`
	Blocks []blockV1 `yaml:"blocks"`
}

type blockV1 struct {
	Name     string `yaml:"name"`
	Active   *bool  `yaml:"active"`
	Material string `yaml:"material"`
	Position Vec3   `yaml:"position"`
	Scale    Vec3   `yaml:"scale"`
	Source   string `yaml:"source"`
	Fan      string `yaml:"fan"`

	MaterialPercentage *float64 `yaml:"material_percentage"`
	Passability        *float64 `yaml:"passability"`
	Movability         *Vec3    `yaml:"movability"`

	FanDirection Vec3     `yaml:"fan_direction"`
	Airflow      *float64 `yaml:"airflow"`
	MinRPM       *float64 `yaml:"min_rpm"`
	MaxRPM       *float64 `yaml:"max_rpm"`
}

// Load reads a model YAML file and resolves material names against cat.
func Load(path string, cat *materials.Catalog) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m, err := Parse(raw, cat)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Validate checks a YAML document against the model schema.
func Validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}
	// Round-trip through JSON so the validator sees json.Number values.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("model is not JSON-compatible: %w", err)
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return err
	}
	s, err := Schema()
	if err != nil {
		return fmt.Errorf("compile model schema: %w", err)
	}
	return s.Validate(v)
}

func Parse(raw []byte, cat *materials.Catalog) (*Model, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var f fileV1
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}

	var err error
	m := &Model{Name: f.Name, Scale: f.Container.Scale}
	seen := map[string]bool{}
	for i, bf := range f.Blocks {
		if seen[bf.Name] {
			return nil, fmt.Errorf("blocks[%d]: duplicate name %q", i, bf.Name)
		}
		seen[bf.Name] = true

		mat, ok := cat.Get(bf.Material)
		if !ok {
			return nil, fmt.Errorf("block %q: unknown material %q", bf.Name, bf.Material)
		}
		b := NewBlock(bf.Name, mat)
		b.Position = bf.Position
		b.Scale = bf.Scale
		if b.Source, err = ParseSourceKind(bf.Source); err != nil {
			return nil, fmt.Errorf("block %q: %w", bf.Name, err)
		}
		if b.Fan, err = ParseFanKind(bf.Fan); err != nil {
			return nil, fmt.Errorf("block %q: %w", bf.Name, err)
		}
		if bf.Active != nil {
			b.Active = *bf.Active
		}
		if bf.MaterialPercentage != nil {
			b.MaterialPercentage = *bf.MaterialPercentage
		}
		if bf.Passability != nil {
			b.Passability = *bf.Passability
		}
		if bf.Movability != nil {
			b.Movability = *bf.Movability
		}
		b.FanDirection = bf.FanDirection
		if bf.Airflow != nil {
			b.Airflow = *bf.Airflow
		}
		if bf.MinRPM != nil {
			b.MinRPM = *bf.MinRPM
		}
		if bf.MaxRPM != nil {
			b.MaxRPM = *bf.MaxRPM
		}
		m.Add(b)
	}
	return m, nil
}
