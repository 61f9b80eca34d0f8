package model

import "voxelflow/internal/sim/grid"

// Source is what the engine reads a model through.
type Source interface {
	// ContainerSize is the grid extent in voxels.
	ContainerSize() grid.Vec3i
	// ActiveBlocks returns the enabled blocks in a stable order. Each call
	// returns a fresh slice.
	ActiveBlocks() []*Block
}

// Model is a container with its child blocks.
type Model struct {
	Name   string
	Scale  Vec3
	Blocks []*Block
}

func (m *Model) ContainerSize() grid.Vec3i { return m.Scale.RoundInt() }

func (m *Model) ActiveBlocks() []*Block {
	out := make([]*Block, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		if b != nil && b.Active {
			out = append(out, b)
		}
	}
	return out
}

// Add parents b to the container and appends it.
func (m *Model) Add(b *Block) {
	b.ParentScale = m.Scale
	m.Blocks = append(m.Blocks, b)
}

// Block returns the first block with the given name.
func (m *Model) Block(name string) (*Block, bool) {
	for _, b := range m.Blocks {
		if b.Name == name {
			return b, true
		}
	}
	return nil, false
}
