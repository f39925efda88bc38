package meshio

import (
	"fmt"
	"math"

	"github.com/notargets/tilefem/mesh"
	"github.com/phil-mansfield/table"
)

// Load is an external nodal force
type Load struct {
	Node   int
	Fx, Fy float64
}

func toInt(v float64, what string, row int) (int, error) {
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("row %d: %s %g is not an integer", row, what, v)
	}
	return int(v), nil
}

// ReadLoads reads "node fx fy" rows
func ReadLoads(path string) ([]Load, error) {
	cols, err := table.ReadTable(path, []int{0, 1, 2}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	nodes, fx, fy := cols[0], cols[1], cols[2]
	loads := make([]Load, len(nodes))
	for i := range nodes {
		n, err := toInt(nodes[i], "node", i)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		loads[i] = Load{Node: n, Fx: fx[i], Fy: fy[i]}
	}
	return loads, nil
}

// ReadConstraints reads "node mask" rows, mask 1 (UX), 2 (UY) or 3 (UXY)
func ReadConstraints(path string) ([]mesh.Constraint, error) {
	cols, err := table.ReadTable(path, []int{0, 1}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	constraints := make([]mesh.Constraint, len(cols[0]))
	for i := range cols[0] {
		n, err := toInt(cols[0][i], "node", i)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		mask, err := toInt(cols[1][i], "mask", i)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if mask < int(mesh.UX) || mask > int(mesh.UXY) {
			return nil, fmt.Errorf("%s: row %d: mask %d not in {1, 2, 3}", path, i, mask)
		}
		constraints[i] = mesh.Constraint{Node: n, Mask: mesh.Mask(mask)}
	}
	return constraints, nil
}

// ReadWeldPairs reads "a b" rows
func ReadWeldPairs(path string) ([]mesh.WeldPair, error) {
	cols, err := table.ReadTable(path, []int{0, 1}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	pairs := make([]mesh.WeldPair, len(cols[0]))
	for i := range cols[0] {
		a, err := toInt(cols[0][i], "node", i)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		b, err := toInt(cols[1][i], "node", i)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		pairs[i] = mesh.WeldPair{A: a, B: b}
	}
	return pairs, nil
}

// ApplyLoads adds the loads to m
func ApplyLoads(m *mesh.Mesh, loads []Load) error {
	for _, l := range loads {
		if err := m.AddLoad(l.Node, l.Fx, l.Fy); err != nil {
			return err
		}
	}
	return nil
}
