package element

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// degenerateTol is the relative bound on |det(C)| / L² below which a
// triangle is treated as collinear
const degenerateTol = 1e-12

// DegenerateElementError reports a triangle whose coordinate matrix is
// singular or numerically near-singular
type DegenerateElementError struct {
	Nodes [3]int
	Det   float64
}

func (e *DegenerateElementError) Error() string {
	return fmt.Sprintf("degenerate element %v: coordinate determinant %g", e.Nodes, e.Det)
}

// Triangle is a constant strain triangle referencing three mesh nodes.
// The node order fixes the orientation: counter-clockwise nodes give a
// positive determinant and therefore a positive semi-definite stiffness.
type Triangle struct {
	Nodes [3]int

	// Cached after ComputeStiffness
	K   *mat.Dense // [6 × 6] local stiffness, dof order n0.x n0.y n1.x n1.y n2.x n2.y
	B   *mat.Dense // [3 × 6] strain-displacement operator (εxx, εyy, γxy)
	Det float64    // det(C) = twice the signed area
}

// NewTriangle creates a triangle over nodes i, j, k
func NewTriangle(i, j, k int) *Triangle {
	return &Triangle{Nodes: [3]int{i, j, k}}
}

// HasStiffness reports whether K and B have been computed
func (t *Triangle) HasStiffness() bool {
	return t.K != nil && t.B != nil
}

// Area returns the signed area of the triangle from the cached determinant
func (t *Triangle) Area() float64 {
	return t.Det / 2
}

// Dofs maps the six local dofs to global dof indices
func (t *Triangle) Dofs() (dofs [LocalDofs]int) {
	for i, n := range t.Nodes {
		dofs[2*i] = 2 * n
		dofs[2*i+1] = 2*n + 1
	}
	return
}

// LocalIndex returns the corner (0..2) referencing node, or -1
func (t *Triangle) LocalIndex(node int) int {
	for i, n := range t.Nodes {
		if n == node {
			return i
		}
	}
	return -1
}

// ComputeStiffness derives B and K for the corner coordinates x, y and the
// constitutive matrix D.
//
// With C the coordinate matrix
//
//	C = | 1  x0  y0 |
//	    | 1  x1  y1 |
//	    | 1  x2  y2 |
//
// rows 1 and 2 of C⁻¹ hold ∂Ni/∂x and ∂Ni/∂y of the linear shape functions,
// and K = Bᵀ·D·B·det(C)/2 for unit thickness.
func (t *Triangle) ComputeStiffness(x, y [3]float64, D mat.Matrix) error {
	C := mat.NewDense(3, 3, []float64{
		1, x[0], y[0],
		1, x[1], y[1],
		1, x[2], y[2],
	})
	det := mat.Det(C)

	extent := math.Max(
		math.Max(x[0], math.Max(x[1], x[2]))-math.Min(x[0], math.Min(x[1], x[2])),
		math.Max(y[0], math.Max(y[1], y[2]))-math.Min(y[0], math.Min(y[1], y[2])),
	)
	if extent == 0 || math.Abs(det) <= degenerateTol*extent*extent {
		return &DegenerateElementError{Nodes: t.Nodes, Det: det}
	}

	var IC mat.Dense
	if err := IC.Inverse(C); err != nil {
		return &DegenerateElementError{Nodes: t.Nodes, Det: det}
	}

	B := mat.NewDense(CSTProperties.NStrain, LocalDofs, nil)
	for i := 0; i < 3; i++ {
		dNdx, dNdy := IC.At(1, i), IC.At(2, i)
		B.Set(0, 2*i, dNdx)
		B.Set(1, 2*i+1, dNdy)
		B.Set(2, 2*i, dNdy)
		B.Set(2, 2*i+1, dNdx)
	}

	var DB mat.Dense
	DB.Mul(D, B)
	K := mat.NewDense(LocalDofs, LocalDofs, nil)
	K.Mul(B.T(), &DB)
	K.Scale(det/2, K)

	t.B, t.K, t.Det = B, K, det
	return nil
}

// ReactionTo returns F = -K·d, the internal force the element exerts when
// its corners are displaced by d
func (t *Triangle) ReactionTo(d []float64) []float64 {
	F := mat.NewVecDense(LocalDofs, nil)
	F.MulVec(t.K, mat.NewVecDense(LocalDofs, d))
	F.ScaleVec(-1, F)
	return F.RawVector().Data
}
