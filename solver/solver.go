package solver

import (
	"fmt"
	"math"
	"strings"

	"github.com/notargets/tilefem/assembly"
	"gonum.org/v1/gonum/mat"
)

// SingularSystemError reports a system that could not be factorized or
// solved to a finite result
type SingularSystemError struct {
	N      int
	Method string
	Reason string
}

func (e *SingularSystemError) Error() string {
	return fmt.Sprintf("singular system (n=%d, %s): %s", e.N, e.Method, e.Reason)
}

// Solver solves K·u = f for a symmetric positive definite K
type Solver interface {
	Solve(K *assembly.Matrix, f []float64) ([]float64, error)
	Name() string
}

// conditionLimit bounds the estimated condition number of the diagonally
// scaled system. Beyond it the factorization only succeeded through
// round-off and the system is treated as singular.
const conditionLimit = 1e14

// Method names accepted by New
const (
	MethodBand  = "band"
	MethodDense = "dense"
)

// New returns the solver registered under method. An empty name selects
// the banded Cholesky solver.
func New(method string) (Solver, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "", MethodBand:
		return BandCholesky{}, nil
	case MethodDense:
		return DenseCholesky{}, nil
	}
	return nil, fmt.Errorf("unknown solver method %q (want %q or %q)", method, MethodBand, MethodDense)
}

// BandCholesky factorizes K in symmetric band storage. The half bandwidth
// is taken from the assembled matrix, so node numbering drives the cost.
type BandCholesky struct{}

func (BandCholesky) Name() string { return MethodBand }

func (s BandCholesky) Solve(K *assembly.Matrix, f []float64) ([]float64, error) {
	n, err := checkSystem(K, f, s.Name())
	if err != nil {
		return nil, err
	}

	sc, err := jacobiScale(K, n, s.Name())
	if err != nil {
		return nil, err
	}
	k := K.Bandwidth()
	A := mat.NewSymBandDense(n, k, nil)
	K.DoNonZero(func(i, j int, v float64) {
		if j >= i && v != 0 {
			A.SetSymBand(i, j, v*sc[i]*sc[j])
		}
	})

	var chol mat.BandCholesky
	if ok := chol.Factorize(A); !ok {
		return nil, &SingularSystemError{N: n, Method: s.Name(), Reason: "matrix is not positive definite"}
	}
	if err := checkCondition(chol.Cond(), n, s.Name()); err != nil {
		return nil, err
	}
	u := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(u, scaled(f, sc)); err != nil {
		return nil, &SingularSystemError{N: n, Method: s.Name(), Reason: err.Error()}
	}
	return finite(unscale(u.RawVector().Data, sc), s.Name())
}

// DenseCholesky factorizes K as a dense symmetric matrix
type DenseCholesky struct{}

func (DenseCholesky) Name() string { return MethodDense }

func (s DenseCholesky) Solve(K *assembly.Matrix, f []float64) ([]float64, error) {
	n, err := checkSystem(K, f, s.Name())
	if err != nil {
		return nil, err
	}

	sc, err := jacobiScale(K, n, s.Name())
	if err != nil {
		return nil, err
	}
	A := mat.NewSymDense(n, nil)
	K.DoNonZero(func(i, j int, v float64) {
		if j >= i {
			A.SetSym(i, j, v*sc[i]*sc[j])
		}
	})

	var chol mat.Cholesky
	if ok := chol.Factorize(A); !ok {
		return nil, &SingularSystemError{N: n, Method: s.Name(), Reason: "matrix is not positive definite"}
	}
	if err := checkCondition(chol.Cond(), n, s.Name()); err != nil {
		return nil, err
	}
	u := mat.NewVecDense(n, nil)
	if err := chol.SolveVecTo(u, scaled(f, sc)); err != nil {
		return nil, &SingularSystemError{N: n, Method: s.Name(), Reason: err.Error()}
	}
	return finite(unscale(u.RawVector().Data, sc), s.Name())
}

func checkSystem(K *assembly.Matrix, f []float64, method string) (int, error) {
	n, _ := K.Dims()
	if n == 0 {
		return 0, &SingularSystemError{N: 0, Method: method, Reason: "empty system"}
	}
	if len(f) != n {
		return 0, fmt.Errorf("right hand side has length %d, matrix is %d × %d", len(f), n, n)
	}
	return n, nil
}

// jacobiScale returns 1/sqrt(K_ii) per dof. Factorizing S·K·S instead of
// K makes the condition estimate independent of the modulus and of the unit
// diagonals left by constrained dofs.
func jacobiScale(K *assembly.Matrix, n int, method string) ([]float64, error) {
	sc := make([]float64, n)
	for i := range sc {
		d := K.At(i, i)
		if !(d > 0) || math.IsInf(d, 0) {
			return nil, &SingularSystemError{N: n, Method: method,
				Reason: fmt.Sprintf("non-positive diagonal %g at dof %d", d, i)}
		}
		sc[i] = 1 / math.Sqrt(d)
	}
	return sc, nil
}

func scaled(f, sc []float64) *mat.VecDense {
	b := make([]float64, len(f))
	for i := range f {
		b[i] = f[i] * sc[i]
	}
	return mat.NewVecDense(len(b), b)
}

func unscale(y, sc []float64) []float64 {
	for i := range y {
		y[i] *= sc[i]
	}
	return y
}

func checkCondition(cond float64, n int, method string) error {
	if math.IsNaN(cond) || cond > conditionLimit {
		return &SingularSystemError{N: n, Method: method,
			Reason: fmt.Sprintf("condition number estimate %g", cond)}
	}
	return nil
}

func finite(u []float64, method string) ([]float64, error) {
	for i, v := range u {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &SingularSystemError{N: len(u), Method: method,
				Reason: fmt.Sprintf("non-finite displacement at dof %d", i)}
		}
	}
	return u, nil
}

// Residual returns max |K·u - f|
func Residual(K *assembly.Matrix, u, f []float64) float64 {
	r := K.MulVec(u)
	var max float64
	for i := range r {
		max = math.Max(max, math.Abs(r[i]-f[i]))
	}
	return max
}
