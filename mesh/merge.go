package mesh

import "github.com/notargets/tilefem/element"

// Merge appends other into m. Node indices of other are shifted by the node
// count of m before the merge; cached element stiffness is carried over
// since it only depends on positions. Loads of both meshes are kept.
func (m *Mesh) Merge(other *Mesh) {
	offset := len(m.Nodes)

	m.Nodes = append(m.Nodes, other.Nodes...)

	for _, el := range other.Elements {
		cp := *el
		for i := range cp.Nodes {
			cp.Nodes[i] += offset
		}
		m.Elements = append(m.Elements, &cp)
	}

	for _, c := range other.Constraints {
		m.Constraints = append(m.Constraints, Constraint{Node: c.Node + offset, Mask: c.Mask})
	}

	for _, n := range other.FreeNodes {
		m.FreeNodes = append(m.FreeNodes, n+offset)
	}

	loads := make([]float64, 2*len(m.Nodes))
	copy(loads, m.Loads)
	copy(loads[2*offset:], other.Loads)
	m.Loads = loads
}

// Merged returns a new mesh holding the tiles in order
func Merged(tiles ...*Mesh) *Mesh {
	m := &Mesh{Elements: []*element.Triangle{}}
	for _, t := range tiles {
		m.Merge(t)
	}
	return m
}
