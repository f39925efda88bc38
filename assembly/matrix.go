package assembly

import (
	"math"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// Matrix is an assembled square sparse matrix with mutable entry access,
// used for constraint elimination after assembly
type Matrix struct {
	n   int
	dok *sparse.DOK
}

var _ mat.Matrix = (*Matrix)(nil)

func newMatrix(n int) *Matrix {
	m := &Matrix{n: n}
	if n > 0 {
		m.dok = sparse.NewDOK(n, n)
	}
	return m
}

// Dims returns the matrix dimensions
func (m *Matrix) Dims() (r, c int) { return m.n, m.n }

// At returns the entry at (i, j)
func (m *Matrix) At(i, j int) float64 {
	if m.dok == nil {
		panic(mat.ErrIndexOutOfRange)
	}
	return m.dok.At(i, j)
}

// T returns the implicit transpose
func (m *Matrix) T() mat.Matrix { return mat.Transpose{Matrix: m} }

// Set overwrites the entry at (i, j)
func (m *Matrix) Set(i, j int, v float64) {
	if m.dok == nil {
		panic(mat.ErrIndexOutOfRange)
	}
	m.dok.Set(i, j, v)
}

// NNZ returns the number of stored entries
func (m *Matrix) NNZ() int {
	if m.dok == nil {
		return 0
	}
	return m.dok.NNZ()
}

// DoNonZero calls fn for every stored entry in unspecified order
func (m *Matrix) DoNonZero(fn func(i, j int, v float64)) {
	if m.dok == nil {
		return
	}
	m.dok.DoNonZero(fn)
}

// Clone returns a deep copy
func (m *Matrix) Clone() *Matrix {
	c := newMatrix(m.n)
	m.DoNonZero(func(i, j int, v float64) {
		c.dok.Set(i, j, v)
	})
	return c
}

// MulVec returns K·x
func (m *Matrix) MulVec(x []float64) []float64 {
	if len(x) != m.n {
		panic(mat.ErrShape)
	}
	y := make([]float64, m.n)
	m.DoNonZero(func(i, j int, v float64) {
		y[i] += v * x[j]
	})
	return y
}

// IsSymmetric reports whether |K[i,j] - K[j,i]| <= tol·max(1, |K[i,j]|)
// for every stored entry
func (m *Matrix) IsSymmetric(tol float64) bool {
	symmetric := true
	m.DoNonZero(func(i, j int, v float64) {
		if math.Abs(v-m.dok.At(j, i)) > tol*math.Max(1, math.Abs(v)) {
			symmetric = false
		}
	})
	return symmetric
}

// Bandwidth returns max |i-j| over the nonzero entries
func (m *Matrix) Bandwidth() (k int) {
	m.DoNonZero(func(i, j int, v float64) {
		if v == 0 {
			return
		}
		if d := i - j; d > k {
			k = d
		} else if -d > k {
			k = -d
		}
	})
	return
}

// ToDense expands the matrix, mainly for inspection and tests
func (m *Matrix) ToDense() *mat.Dense {
	if m.n == 0 {
		return &mat.Dense{}
	}
	return m.dok.ToDense()
}
