package mesh

import (
	"fmt"

	"github.com/notargets/tilefem/partitions"
	"gonum.org/v1/gonum/mat"
)

// ComputeStiffness evaluates and caches K and B of every element for the
// constitutive matrix D. Elements are split into partitions evaluated by at
// most workers goroutines; workers < 1 runs a single partition.
//
// When several elements are degenerate, the error of the lowest element
// index is returned.
func (m *Mesh) ComputeStiffness(D mat.Matrix, workers int) error {
	if workers < 1 {
		workers = 1
	}
	layout, err := partitions.NewLayout(len(m.Elements), workers, partitions.BlockPartition)
	if err != nil {
		return err
	}

	// block partitions hold ascending element ranges, so the first failure
	// of the lowest failing partition is the lowest failing element
	return layout.Run(workers, func(p partitions.Partition) error {
		for _, k := range p.Elements {
			el := m.Elements[k]
			var x, y [3]float64
			for i, n := range el.Nodes {
				x[i], y[i] = m.Position(n)
			}
			if err := el.ComputeStiffness(x, y, D); err != nil {
				return fmt.Errorf("element %d: %w", k, err)
			}
		}
		return nil
	})
}
