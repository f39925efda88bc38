package material

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Material holds the isotropic linear elastic constants of a plane-stress body
type Material struct {
	YoungModulus float64 // E
	PoissonRatio float64 // ν
}

// Default returns E = 1, ν = 0.3, the stitching driver defaults
func Default() Material {
	return Material{
		YoungModulus: 1.0,
		PoissonRatio: 0.3,
	}
}

// D returns the 3×3 plane-stress constitutive matrix of the material
func (m Material) D() *mat.SymDense {
	return PlaneStress(m.YoungModulus, m.PoissonRatio)
}

// Validate reports physically questionable constants as warnings.
// The computation still proceeds with whatever values were supplied.
func (m Material) Validate() []string {
	var warnings []string
	if m.YoungModulus <= 0 {
		warnings = append(warnings,
			fmt.Sprintf("young modulus %g is not positive", m.YoungModulus))
	}
	if m.PoissonRatio <= -1 || m.PoissonRatio >= 0.5 {
		warnings = append(warnings,
			fmt.Sprintf("poisson ratio %g is outside (-1, 0.5)", m.PoissonRatio))
	}
	return warnings
}

// PlaneStress builds the plane-stress constitutive relation
//
//	D = E/(1-ν²) · | 1  ν  0        |
//	               | ν  1  0        |
//	               | 0  0  (1-ν)/2  |
//
// relating (εxx, εyy, γxy) to (σxx, σyy, τxy)
func PlaneStress(E, nu float64) *mat.SymDense {
	scale := E / (1 - nu*nu)
	D := mat.NewSymDense(3, []float64{
		1, nu, 0,
		nu, 1, 0,
		0, 0, (1 - nu) / 2,
	})
	D.ScaleSym(scale, D)
	return D
}
