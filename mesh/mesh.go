package mesh

import (
	"fmt"
	"sort"

	"github.com/notargets/tilefem/assembly"
	"github.com/notargets/tilefem/element"
)

// Node is a mesh vertex. Its identity is its index in Mesh.Nodes.
type Node struct {
	X, Y float64
}

// Mask selects the constrained axes of a node
type Mask uint8

const (
	UX  Mask = 1 << iota // zero displacement along x
	UY                   // zero displacement along y
	UXY = UX | UY
)

func (m Mask) String() string {
	switch m {
	case UX:
		return "UX"
	case UY:
		return "UY"
	case UXY:
		return "UXY"
	}
	return fmt.Sprintf("Mask(%d)", uint8(m))
}

// Constraint prescribes zero displacement of Node along the masked axes
type Constraint struct {
	Node int
	Mask Mask
}

// Mesh owns the nodes, elements, constraints and load vector of one
// analysis. Elements are owned exclusively by the mesh.
type Mesh struct {
	Nodes       []Node
	Elements    []*element.Triangle
	Constraints []Constraint

	// Loads holds (fx, fy) per node at (2i, 2i+1)
	Loads []float64

	// FreeNodes are nodes released by Weld. They keep their dof slots and
	// are deactivated like constrained nodes before solving.
	FreeNodes []int
}

// IndexOutOfRangeError reports a node reference outside [0, Count)
type IndexOutOfRangeError struct {
	Owner string // e.g. "element 3", "constraint 0", "weld"
	Index int
	Count int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("%s references node %d outside [0, %d)", e.Owner, e.Index, e.Count)
}

// New validates and builds a mesh. Every element and constraint node
// reference must lie in [0, len(nodes)).
func New(nodes []Node, elements [][3]int, constraints []Constraint) (*Mesh, error) {
	m := &Mesh{
		Nodes:    append([]Node(nil), nodes...),
		Elements: make([]*element.Triangle, 0, len(elements)),
		Loads:    make([]float64, 2*len(nodes)),
	}
	for k, el := range elements {
		for _, n := range el {
			if err := m.checkNode(fmt.Sprintf("element %d", k), n); err != nil {
				return nil, err
			}
		}
		m.Elements = append(m.Elements, element.NewTriangle(el[0], el[1], el[2]))
	}
	for _, c := range constraints {
		if err := m.AddConstraint(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NumNodes returns the number of node slots, including free nodes
func (m *Mesh) NumNodes() int { return len(m.Nodes) }

// NumDofs returns the size of the global system
func (m *Mesh) NumDofs() int { return 2 * len(m.Nodes) }

func (m *Mesh) checkNode(owner string, n int) error {
	if n < 0 || n >= len(m.Nodes) {
		return &IndexOutOfRangeError{Owner: owner, Index: n, Count: len(m.Nodes)}
	}
	return nil
}

// AddConstraint appends a zero displacement constraint
func (m *Mesh) AddConstraint(c Constraint) error {
	if err := m.checkNode(fmt.Sprintf("constraint %d", len(m.Constraints)), c.Node); err != nil {
		return err
	}
	if c.Mask == 0 || c.Mask&^UXY != 0 {
		return fmt.Errorf("constraint on node %d: invalid mask %v", c.Node, c.Mask)
	}
	m.Constraints = append(m.Constraints, c)
	return nil
}

// AddLoad adds an external nodal force
func (m *Mesh) AddLoad(node int, fx, fy float64) error {
	if err := m.checkNode("load", node); err != nil {
		return err
	}
	m.Loads[2*node] += fx
	m.Loads[2*node+1] += fy
	return nil
}

// Position returns the coordinates of a node
func (m *Mesh) Position(node int) (x, y float64) {
	return m.Nodes[node].X, m.Nodes[node].Y
}

// ConstrainedDofs expands the constraints and the free nodes into sorted,
// unique global dof indices
func (m *Mesh) ConstrainedDofs() []int {
	set := make(map[int]bool)
	for _, c := range m.Constraints {
		if c.Mask&UX != 0 {
			set[2*c.Node] = true
		}
		if c.Mask&UY != 0 {
			set[2*c.Node+1] = true
		}
	}
	for _, n := range m.FreeNodes {
		set[2*n] = true
		set[2*n+1] = true
	}
	dofs := make([]int, 0, len(set))
	for k := range set {
		dofs = append(dofs, k)
	}
	sort.Ints(dofs)
	return dofs
}

// ConstrainedLoads returns a copy of Loads with every constrained dof set
// to zero, the right hand side matching AssembleConstrained
func (m *Mesh) ConstrainedLoads() []float64 {
	f := append([]float64(nil), m.Loads...)
	for _, k := range m.ConstrainedDofs() {
		f[k] = 0
	}
	return f
}

// Assemble builds the unconstrained global stiffness matrix
func (m *Mesh) Assemble() (*assembly.Matrix, error) {
	return assembly.Assemble(m.Elements, len(m.Nodes))
}

// AssembleConstrained builds the global stiffness matrix with constraints
// and free nodes eliminated, ready for the solver
func (m *Mesh) AssembleConstrained() (*assembly.Matrix, error) {
	K, err := m.Assemble()
	if err != nil {
		return nil, err
	}
	K.ApplyConstraints(m.ConstrainedDofs())
	return K, nil
}

// Connectivity returns the node triples of all elements in element order
func (m *Mesh) Connectivity() [][3]int {
	conn := make([][3]int, len(m.Elements))
	for k, el := range m.Elements {
		conn[k] = el.Nodes
	}
	return conn
}

// Clone returns a deep copy. Cached element matrices are shared since they
// are never modified after ComputeStiffness.
func (m *Mesh) Clone() *Mesh {
	c := &Mesh{
		Nodes:       append([]Node(nil), m.Nodes...),
		Elements:    make([]*element.Triangle, len(m.Elements)),
		Constraints: append([]Constraint(nil), m.Constraints...),
		Loads:       append([]float64(nil), m.Loads...),
		FreeNodes:   append([]int(nil), m.FreeNodes...),
	}
	for k, el := range m.Elements {
		cp := *el
		c.Elements[k] = &cp
	}
	return c
}
