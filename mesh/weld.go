package mesh

import (
	"fmt"
)

// WeldPair names a node A that absorbs node B
type WeldPair struct {
	A, B int
}

// ReferencedBy returns the indices of the elements referencing node
func (m *Mesh) ReferencedBy(node int) []int {
	var ks []int
	for k, el := range m.Elements {
		if el.LocalIndex(node) >= 0 {
			ks = append(ks, k)
		}
	}
	return ks
}

// Weld rewires every element referencing b to reference a instead, and
// releases b as a free node.
//
// The elements keep the stiffness computed at b's position, so moving the
// corner from b to a is modelled as a prescribed corner displacement
// d = pos(a) - pos(b). The element's resisting force F = -K·d is added to
// the load vector at the element's rewired dofs. Node positions are never
// changed.
//
// Loads applied to b are moved onto a, and constraints naming b are
// rewritten to name a, so b carries neither once released.
func (m *Mesh) Weld(a, b int) error {
	if err := m.checkNode("weld", a); err != nil {
		return err
	}
	if err := m.checkNode("weld", b); err != nil {
		return err
	}
	if a == b {
		return fmt.Errorf("weld node %d to itself", a)
	}

	ks := m.ReferencedBy(b)
	for _, k := range ks {
		el := m.Elements[k]
		if !el.HasStiffness() {
			return fmt.Errorf("weld %d <- %d, element %d: %w", a, b, k, ErrStiffnessMissing)
		}
		if el.LocalIndex(a) >= 0 {
			return fmt.Errorf("weld %d <- %d, element %d %v: %w", a, b, k, el.Nodes, ErrCollapsedElement)
		}
	}

	dx := m.Nodes[a].X - m.Nodes[b].X
	dy := m.Nodes[a].Y - m.Nodes[b].Y
	for _, k := range ks {
		el := m.Elements[k]
		i := el.LocalIndex(b)

		d := make([]float64, 6)
		d[2*i], d[2*i+1] = dx, dy

		el.Nodes[i] = a

		F := el.ReactionTo(d)
		for j, dof := range el.Dofs() {
			m.Loads[dof] += F[j]
		}
	}

	m.Loads[2*a] += m.Loads[2*b]
	m.Loads[2*a+1] += m.Loads[2*b+1]
	m.Loads[2*b], m.Loads[2*b+1] = 0, 0
	for i := range m.Constraints {
		if m.Constraints[i].Node == b {
			m.Constraints[i].Node = a
		}
	}

	m.FreeNodes = append(m.FreeNodes, b)
	return nil
}

// WeldAll applies the welds in order, stopping at the first failure
func (m *Mesh) WeldAll(pairs []WeldPair) error {
	for _, p := range pairs {
		if err := m.Weld(p.A, p.B); err != nil {
			return err
		}
	}
	return nil
}
