package model

import (
	"path/filepath"
	"strings"
	"testing"

	"voxelflow/internal/sim/grid"
	"voxelflow/internal/sim/materials"
)

func TestVoxelBounds_HandComputed(t *testing.T) {
	cases := []struct {
		name string
		p    Placement
		want grid.Box
	}{
		{
			// size = 2*4, 1*4, 1*4; origin = 4*0 - size/2 + 2
			name: "scale 2,1,1 at centre",
			p:    Placement{Position: Vec3{0, 0, 0}, Scale: Vec3{2, 1, 1}, ParentScale: Vec3{4, 4, 4}},
			want: grid.Box{Origin: grid.Vec3i{X: -2, Y: 0, Z: 0}, Size: grid.Vec3i{X: 8, Y: 4, Z: 4}},
		},
		{
			name: "centred quarter block",
			p:    Placement{Position: Vec3{0, 0, 0}, Scale: Vec3{0.5, 0.5, 0.5}, ParentScale: Vec3{4, 4, 4}},
			want: grid.Box{Origin: grid.Vec3i{X: 1, Y: 1, Z: 1}, Size: grid.Vec3i{X: 2, Y: 2, Z: 2}},
		},
		{
			// origin = 4*(-0.375) - 0.5 + 2 = 0
			name: "corner voxel",
			p:    Placement{Position: Vec3{-0.375, -0.375, -0.375}, Scale: Vec3{0.25, 0.25, 0.25}, ParentScale: Vec3{4, 4, 4}},
			want: grid.Box{Origin: grid.Vec3i{X: 0, Y: 0, Z: 0}, Size: grid.Vec3i{X: 1, Y: 1, Z: 1}},
		},
		{
			// Negative scales mirror but never flip the box.
			name: "negative scales",
			p:    Placement{Position: Vec3{0.25, 0, 0}, Scale: Vec3{-0.5, 1, 1}, ParentScale: Vec3{-8, 2, 2}},
			want: grid.Box{Origin: grid.Vec3i{X: 4, Y: 0, Z: 0}, Size: grid.Vec3i{X: 4, Y: 2, Z: 2}},
		},
		{
			name: "centre voxel of 3x3x3",
			p:    Placement{Position: Vec3{0, 0, 0}, Scale: Vec3{1.0 / 3, 1.0 / 3, 1.0 / 3}, ParentScale: Vec3{3, 3, 3}},
			want: grid.Box{Origin: grid.Vec3i{X: 1, Y: 1, Z: 1}, Size: grid.Vec3i{X: 1, Y: 1, Z: 1}},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.p.VoxelBounds(); got != tc.want {
				t.Fatalf("bounds: got %s want %s", got, tc.want)
			}
		})
	}
}

func TestKinds_ParseAndString(t *testing.T) {
	for _, k := range SourceKinds() {
		got, err := ParseSourceKind(k.String())
		if err != nil || got != k {
			t.Fatalf("source %v: got %v err %v", k, got, err)
		}
	}
	for _, k := range FanKinds() {
		got, err := ParseFanKind(k.String())
		if err != nil || got != k {
			t.Fatalf("fan %v: got %v err %v", k, got, err)
		}
	}
	if SourceHDD2 != 11 || FanPSU != 6 {
		t.Fatalf("stable encoding changed: hdd2=%d psu=%d", SourceHDD2, FanPSU)
	}
	if _, err := ParseSourceKind("tpu"); err == nil {
		t.Fatalf("expected error for unknown source kind")
	}
}

func testCatalog(t *testing.T) *materials.Catalog {
	t.Helper()
	c, err := materials.Parse([]byte(`[{"name":"steel","density":7.85,"standard_atomic_weight":55.85,"molar_heat_capacity":25.1}]`))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func TestParse_DefaultsAndActiveFilter(t *testing.T) {
	doc := []byte(`
container:
  scale: [3, 3, 3]
blocks:
  - name: a
    material: steel
    position: [0, 0, 0]
    scale: [0.3333333, 0.3333333, 0.3333333]
    source: cpu
  - name: b
    material: steel
    active: false
    position: [0, 0, 0]
    scale: [1, 1, 1]
`)
	m, err := Parse(doc, testCatalog(t))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.ContainerSize() != (grid.Vec3i{X: 3, Y: 3, Z: 3}) {
		t.Fatalf("container size: %v", m.ContainerSize())
	}
	act := m.ActiveBlocks()
	if len(act) != 1 || act[0].Name != "a" {
		t.Fatalf("active blocks: %+v", act)
	}
	a := act[0]
	if a.Source != SourceCPU || a.Fan != FanNone {
		t.Fatalf("kinds: %v %v", a.Source, a.Fan)
	}
	if a.Passability != 1 || a.MaterialPercentage != 1 || a.Movability != (Vec3{1, 1, 1}) {
		t.Fatalf("defaults not applied: %+v", a)
	}
	if a.Airflow != 100 || a.MinRPM != 450 || a.MaxRPM != 2000 {
		t.Fatalf("fan defaults not applied: %+v", a)
	}
	if b := a.VoxelBounds(); b.Origin != (grid.Vec3i{X: 1, Y: 1, Z: 1}) || b.Size != (grid.Vec3i{X: 1, Y: 1, Z: 1}) {
		t.Fatalf("bounds: %s", b)
	}
}

func TestParse_SchemaRejects(t *testing.T) {
	cases := map[string]string{
		"missing container": "blocks: []\n",
		"passability > 1": `
container: {scale: [1, 1, 1]}
blocks:
  - {name: a, material: steel, position: [0, 0, 0], scale: [1, 1, 1], passability: 2}
`,
		"unknown fan": `
container: {scale: [1, 1, 1]}
blocks:
  - {name: a, material: steel, position: [0, 0, 0], scale: [1, 1, 1], fan: side}
`,
		"short vector": `
container: {scale: [1, 1]}
blocks: []
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc), testCatalog(t)); err == nil {
				t.Fatalf("expected schema error")
			}
		})
	}
}

func TestValidate_NumericFields(t *testing.T) {
	ok := `
container: {scale: [3, 3.5, 4]}
blocks:
  - {name: a, material: steel, position: [0, 0.25, 1], scale: [1, 1, 1], passability: 0.5, airflow: 72}
`
	if err := Validate([]byte(ok)); err != nil {
		t.Fatalf("validate: %v", err)
	}
	bad := `
container: {scale: [3, 3, 3]}
blocks:
  - {name: a, material: steel, position: [0, 0, 0], scale: [1, 1, 1], airflow: -1}
`
	if err := Validate([]byte(bad)); err == nil {
		t.Fatalf("expected negative airflow to be rejected")
	}
}

func TestParse_UnknownMaterial(t *testing.T) {
	doc := `
container: {scale: [1, 1, 1]}
blocks:
  - {name: a, material: unobtainium, position: [0, 0, 0], scale: [1, 1, 1]}
`
	_, err := Parse([]byte(doc), testCatalog(t))
	if err == nil || !strings.Contains(err.Error(), "unknown material") {
		t.Fatalf("expected unknown material error, got %v", err)
	}
}

func TestLoad_ShippedModel(t *testing.T) {
	cat, err := materials.Load(filepath.Join("..", "..", "..", "configs", "materials.json"))
	if err != nil {
		t.Fatalf("materials: %v", err)
	}
	m, err := Load(filepath.Join("..", "..", "..", "configs", "model.yaml"), cat)
	if err != nil {
		t.Fatalf("model: %v", err)
	}
	size := m.ContainerSize()
	if !grid.Valid(size) {
		t.Fatalf("container size: %v", size)
	}
	if _, ok := m.Block("hdd1"); !ok {
		t.Fatalf("missing hdd1")
	}
	for _, b := range m.ActiveBlocks() {
		if b.Name == "hdd1" {
			t.Fatalf("inactive block returned")
		}
		box := b.VoxelBounds()
		if box.Empty() {
			t.Fatalf("block %s has empty bounds %s", b.Name, box)
		}
		if c := box.Clip(size); c != box {
			t.Fatalf("block %s bounds %s exceed container %v", b.Name, box, size)
		}
	}
}
