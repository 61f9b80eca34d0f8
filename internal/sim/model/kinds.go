package model

import (
	"fmt"
	"strings"
)

// SourceKind classifies a heat source. The numeric value is what gets stored
// per voxel in the source field; SourceNone (0) means "not a heat source".
type SourceKind uint8

const (
	SourceNone SourceKind = iota
	SourceCPU
	SourceDDR
	SourceChipset
	SourceGPU
	SourceGDDR
	SourcePSU
	SourceSSD1
	SourceSSD2
	SourceSSD3
	SourceHDD1
	SourceHDD2

	sourceKindCount
)

var sourceNames = [...]string{"none", "cpu", "ddr", "chipset", "gpu", "gddr", "psu", "ssd1", "ssd2", "ssd3", "hdd1", "hdd2"}

func (k SourceKind) String() string {
	if int(k) < len(sourceNames) {
		return sourceNames[k]
	}
	return fmt.Sprintf("source(%d)", uint8(k))
}

// SourceKinds lists every kind including SourceNone.
func SourceKinds() []SourceKind {
	out := make([]SourceKind, 0, sourceKindCount)
	for k := SourceNone; k < sourceKindCount; k++ {
		out = append(out, k)
	}
	return out
}

func ParseSourceKind(s string) (SourceKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return SourceNone, nil
	}
	for i, n := range sourceNames {
		if n == s {
			return SourceKind(i), nil
		}
	}
	return SourceNone, fmt.Errorf("unknown source kind %q", s)
}

// FanKind classifies an airflow source; FanNone (0) means "not a fan".
type FanKind uint8

const (
	FanNone FanKind = iota
	FanCPU
	FanGPU
	FanFront1
	FanFront2
	FanBack
	FanPSU

	fanKindCount
)

var fanNames = [...]string{"none", "cpu", "gpu", "front1", "front2", "back", "psu"}

func (k FanKind) String() string {
	if int(k) < len(fanNames) {
		return fanNames[k]
	}
	return fmt.Sprintf("fan(%d)", uint8(k))
}

func FanKinds() []FanKind {
	out := make([]FanKind, 0, fanKindCount)
	for k := FanNone; k < fanKindCount; k++ {
		out = append(out, k)
	}
	return out
}

func ParseFanKind(s string) (FanKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return FanNone, nil
	}
	for i, n := range fanNames {
		if n == s {
			return FanKind(i), nil
		}
	}
	return FanNone, fmt.Errorf("unknown fan kind %q", s)
}
