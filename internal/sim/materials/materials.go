package materials

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
)

// DefaultThermalTransferRate applies when a preset omits thermal_transfer_rate.
const DefaultThermalTransferRate = 0.05

// Properties is the physical-constant record of one material. Values are fixed at
// construction; blocks share a *Properties and never modify it.
type Properties struct {
	name                 string
	density              float64 // g/cm3
	standardAtomicWeight float64 // Ar
	molarHeatCapacity    float64 // J/(mol*K)
	thermalTransferRate  float64 // fraction of heat transferred per second
}

// New builds a Properties value. It does not validate; see Validate.
func New(name string, density, standardAtomicWeight, molarHeatCapacity, thermalTransferRate float64) *Properties {
	return &Properties{
		name:                 name,
		density:              density,
		standardAtomicWeight: standardAtomicWeight,
		molarHeatCapacity:    molarHeatCapacity,
		thermalTransferRate:  thermalTransferRate,
	}
}

func (p *Properties) Name() string                  { return p.name }
func (p *Properties) Density() float64              { return p.density }
func (p *Properties) StandardAtomicWeight() float64 { return p.standardAtomicWeight }
func (p *Properties) MolarHeatCapacity() float64    { return p.molarHeatCapacity }
func (p *Properties) ThermalTransferRate() float64  { return p.thermalTransferRate }

// HeatCapacity is the volumetric heat capacity: molarHeatCapacity / Ar * density.
func (p *Properties) HeatCapacity() float64 {
	return p.molarHeatCapacity / p.standardAtomicWeight * p.density
}

// MolarDensity is density / Ar.
func (p *Properties) MolarDensity() float64 {
	return p.density / p.standardAtomicWeight
}

// Validate rejects inputs whose derived constants would not be finite.
func (p *Properties) Validate() error {
	if p.standardAtomicWeight <= 0 {
		return fmt.Errorf("material %q: standard_atomic_weight must be > 0, got %g", p.name, p.standardAtomicWeight)
	}
	if p.density < 0 {
		return fmt.Errorf("material %q: density must be >= 0, got %g", p.name, p.density)
	}
	if p.molarHeatCapacity < 0 {
		return fmt.Errorf("material %q: molar_heat_capacity must be >= 0, got %g", p.name, p.molarHeatCapacity)
	}
	if p.thermalTransferRate < 0 || p.thermalTransferRate > 1 {
		return fmt.Errorf("material %q: thermal_transfer_rate must be in [0,1], got %g", p.name, p.thermalTransferRate)
	}
	if hc := p.HeatCapacity(); math.IsNaN(hc) || math.IsInf(hc, 0) {
		return fmt.Errorf("material %q: heat capacity is not finite", p.name)
	}
	return nil
}

// Def is the on-disk form of a material preset.
type Def struct {
	Name                 string   `json:"name"`
	Density              float64  `json:"density"`
	StandardAtomicWeight float64  `json:"standard_atomic_weight"`
	MolarHeatCapacity    float64  `json:"molar_heat_capacity"`
	ThermalTransferRate  *float64 `json:"thermal_transfer_rate,omitempty"`
}

type Catalog struct {
	Names  []string
	ByName map[string]*Properties
	Digest string
}

func (c *Catalog) Get(name string) (*Properties, bool) {
	p, ok := c.ByName[name]
	return p, ok
}

// Load reads materials.json, a JSON array of Def.
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("materials.json: %w", err)
	}
	return c, nil
}

func Parse(raw []byte) (*Catalog, error) {
	var defs []Def
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, err
	}
	c := &Catalog{ByName: make(map[string]*Properties, len(defs))}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("material with empty name")
		}
		if _, dup := c.ByName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate material %q", d.Name)
		}
		rate := DefaultThermalTransferRate
		if d.ThermalTransferRate != nil {
			rate = *d.ThermalTransferRate
		}
		p := New(d.Name, d.Density, d.StandardAtomicWeight, d.MolarHeatCapacity, rate)
		if err := p.Validate(); err != nil {
			return nil, err
		}
		c.ByName[d.Name] = p
		c.Names = append(c.Names, d.Name)
	}
	sort.Strings(c.Names)

	// Digest over the canonical (sorted) form so reordering the file is a no-op.
	canon := make([]Def, 0, len(c.Names))
	for _, n := range c.Names {
		p := c.ByName[n]
		rate := p.thermalTransferRate
		canon = append(canon, Def{
			Name:                 p.name,
			Density:              p.density,
			StandardAtomicWeight: p.standardAtomicWeight,
			MolarHeatCapacity:    p.molarHeatCapacity,
			ThermalTransferRate:  &rate,
		})
	}
	b, _ := json.Marshal(canon)
	c.Digest = sha256Hex(b)
	return c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
