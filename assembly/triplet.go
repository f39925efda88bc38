package assembly

import (
	"fmt"

	"github.com/james-bowman/sparse"
	"github.com/notargets/tilefem/element"
	"gonum.org/v1/gonum/mat"
)

// Triplet accumulates unordered (row, col, value) contributions to a square
// matrix. Duplicate positions are allowed and are summed by Freeze.
type Triplet struct {
	n    int
	rows []int
	cols []int
	vals []float64
}

// NewTriplet allocates a builder for an n×n matrix with room for capacity
// contributions
func NewTriplet(n, capacity int) *Triplet {
	t := new(Triplet)
	t.Init(n, capacity)
	return t
}

// Init (re)initialises the builder, discarding previous contributions
func (t *Triplet) Init(n, capacity int) {
	t.n = n
	t.rows = make([]int, 0, capacity)
	t.cols = make([]int, 0, capacity)
	t.vals = make([]float64, 0, capacity)
}

// Start resets the contribution list while keeping its storage
func (t *Triplet) Start() {
	t.rows = t.rows[:0]
	t.cols = t.cols[:0]
	t.vals = t.vals[:0]
}

// Size returns the matrix dimension
func (t *Triplet) Size() int { return t.n }

// Len returns the number of stored contributions
func (t *Triplet) Len() int { return len(t.vals) }

// Put appends the contribution v at (i, j)
func (t *Triplet) Put(i, j int, v float64) {
	if i < 0 || i >= t.n || j < 0 || j >= t.n {
		panic(fmt.Sprintf("triplet: position (%d, %d) outside %d×%d", i, j, t.n, t.n))
	}
	t.rows = append(t.rows, i)
	t.cols = append(t.cols, j)
	t.vals = append(t.vals, v)
}

// AddElement scatters a local 6×6 stiffness through its global dof map
func (t *Triplet) AddElement(dofs [element.LocalDofs]int, K mat.Matrix) {
	for i := 0; i < element.LocalDofs; i++ {
		for j := 0; j < element.LocalDofs; j++ {
			t.Put(dofs[i], dofs[j], K.At(i, j))
		}
	}
}

// Freeze aggregates the contributions into an assembled sparse matrix.
// The builder is left untouched and can be frozen again.
func (t *Triplet) Freeze() *Matrix {
	m := newMatrix(t.n)
	if t.n == 0 {
		return m
	}
	coo := sparse.NewCOO(t.n, t.n, t.rows, t.cols, t.vals)
	coo.DoNonZero(func(i, j int, v float64) {
		m.dok.Set(i, j, m.dok.At(i, j)+v)
	})
	return m
}

// Assemble builds the global stiffness of nNodes nodes from the cached
// element stiffness matrices
func Assemble(elements []*element.Triangle, nNodes int) (*Matrix, error) {
	tr := NewTriplet(2*nNodes, len(elements)*element.LocalDofs*element.LocalDofs)
	for k, el := range elements {
		if !el.HasStiffness() {
			return nil, fmt.Errorf("element %d %v: stiffness not computed", k, el.Nodes)
		}
		tr.AddElement(el.Dofs(), el.K)
	}
	return tr.Freeze(), nil
}
