package assembly

// ApplyConstraints imposes zero displacement on each dof in dofs by the
// identity row/column technique: every stored entry in a constrained row or
// column becomes 0, and the constrained diagonal becomes exactly 1, inserted
// if absent.
//
// The right hand side is not modified, so only homogeneous (zero) values
// can be prescribed. Applying the same set twice is a no-op.
func (m *Matrix) ApplyConstraints(dofs []int) {
	if len(dofs) == 0 || m.dok == nil {
		return
	}
	constrained := make(map[int]bool, len(dofs))
	for _, k := range dofs {
		constrained[k] = true
	}

	type entry struct{ i, j int }
	var touched []entry
	m.dok.DoNonZero(func(i, j int, v float64) {
		if constrained[i] || constrained[j] {
			touched = append(touched, entry{i, j})
		}
	})
	for _, e := range touched {
		if e.i == e.j {
			m.dok.Set(e.i, e.j, 1)
		} else {
			m.dok.Set(e.i, e.j, 0)
		}
	}

	for k := range constrained {
		m.dok.Set(k, k, 1)
	}
}
