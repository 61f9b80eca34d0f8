package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"voxelflow/internal/sim/model"
)

type Tuning struct {
	TickRateHz         int     `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	Workers            int     `yaml:"workers" json:"workers"`
	Kernel             string  `yaml:"kernel" json:"kernel"`
	DT                 float64 `yaml:"dt" json:"dt"`
	AutoSimulate       bool    `yaml:"auto_simulate" json:"auto_simulate"`
	AutoTest           bool    `yaml:"auto_test" json:"auto_test"`
	SnapshotEveryTicks int     `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`

	Test     TestInjection `yaml:"test" json:"test"`
	Baseline Baseline      `yaml:"baseline" json:"baseline"`

	// Sources maps a source kind name ("cpu", "gpu", ...) to its heat output in watts.
	Sources  map[string]float64 `yaml:"sources" json:"sources"`
	Exchange Exchange           `yaml:"exchange" json:"exchange"`
}

type TestInjection struct {
	Origin      [3]int  `yaml:"origin" json:"origin"`
	Size        [3]int  `yaml:"size" json:"size"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
}

type Baseline struct {
	AirTemp      float64 `yaml:"air_temp" json:"air_temp"`
	MaterialTemp float64 `yaml:"material_temp" json:"material_temp"`
	AirPressure  float64 `yaml:"air_pressure" json:"air_pressure"`
}

// Exchange holds the coefficients of the built-in "exchange" kernel.
type Exchange struct {
	Diffusion       float64 `yaml:"diffusion" json:"diffusion"`
	VelocityDamping float64 `yaml:"velocity_damping" json:"velocity_damping"`
	PressureRelax   float64 `yaml:"pressure_relax" json:"pressure_relax"`
	VoxelSizeM      float64 `yaml:"voxel_size_m" json:"voxel_size_m"`
	AmbientCoupling float64 `yaml:"ambient_coupling" json:"ambient_coupling"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         10,
		Kernel:             "exchange",
		DT:                 0.1,
		SnapshotEveryTicks: 600,
		Test: TestInjection{
			Origin:      [3]int{15, 15, 15},
			Size:        [3]int{1, 1, 1},
			Temperature: 200,
		},
		Baseline: Baseline{AirTemp: 20, MaterialTemp: 20},
		Sources: map[string]float64{
			"cpu":     65,
			"ddr":     5,
			"chipset": 6,
			"gpu":     150,
			"gddr":    10,
			"psu":     40,
			"ssd1":    3,
			"ssd2":    3,
			"ssd3":    3,
			"hdd1":    7,
			"hdd2":    7,
		},
		Exchange: Exchange{
			Diffusion:       0.1,
			VelocityDamping: 0.9,
			PressureRelax:   0.5,
			VoxelSizeM:      0.01,
			AmbientCoupling: 0,
		},
	}
}

// Load reads tuning.yaml on top of Defaults, so omitted keys keep their defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// MaxTickRateHz is the highest accepted tick_rate_hz.
const MaxTickRateHz = 1000

func (t Tuning) Validate() error {
	if t.TickRateHz <= 0 || t.TickRateHz > MaxTickRateHz {
		return fmt.Errorf("tick_rate_hz must be in 1..%d", MaxTickRateHz)
	}
	if t.Workers < 0 {
		return fmt.Errorf("workers must be >= 0")
	}
	if t.DT <= 0 {
		return fmt.Errorf("dt must be > 0")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	for name, w := range t.Sources {
		if k, err := model.ParseSourceKind(name); err != nil || k.String() != name {
			return fmt.Errorf("sources.%s: unknown source kind", name)
		}
		if w < 0 {
			return fmt.Errorf("sources.%s must be >= 0", name)
		}
	}
	return nil
}
