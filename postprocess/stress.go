package postprocess

import (
	"fmt"
	"math"

	"github.com/notargets/tilefem/element"
	"github.com/notargets/tilefem/partitions"
	"gonum.org/v1/gonum/mat"
)

// Stress is the constant stress state of one element
type Stress struct {
	Sxx, Syy, Txy float64
	VonMises      float64
}

// NewStress completes a stress state with its von Mises equivalent
func NewStress(sxx, syy, txy float64) Stress {
	return Stress{
		Sxx: sxx, Syy: syy, Txy: txy,
		VonMises: VonMises(sxx, syy, txy),
	}
}

// VonMises returns the plane stress equivalent stress
func VonMises(sxx, syy, txy float64) float64 {
	return math.Sqrt(sxx*sxx - sxx*syy + syy*syy + 3*txy*txy)
}

// ElementStress computes σ = D·B·u_e, gathering u_e from the global
// displacement vector through dofs
func ElementStress(B, D mat.Matrix, u []float64, dofs [element.LocalDofs]int) Stress {
	ue := mat.NewVecDense(element.LocalDofs, nil)
	for i, dof := range dofs {
		ue.SetVec(i, u[dof])
	}
	var strain, sigma mat.VecDense
	strain.MulVec(B, ue)
	sigma.MulVec(D, &strain)
	return NewStress(sigma.AtVec(0), sigma.AtVec(1), sigma.AtVec(2))
}

// Recoverer computes element stresses from a displacement solution
type Recoverer interface {
	Recover(elements []*element.Triangle, D mat.Matrix, u []float64) ([]Stress, error)
}

// Parallel recovers stresses on the host, one goroutine per partition
type Parallel struct {
	Workers  int
	Strategy partitions.PartitionStrategy
}

// Recover returns one stress per element, in element order
func (p Parallel) Recover(elements []*element.Triangle, D mat.Matrix, u []float64) ([]Stress, error) {
	if err := CheckInputs(elements, u); err != nil {
		return nil, err
	}
	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	layout, err := partitions.NewLayout(len(elements), workers, p.Strategy)
	if err != nil {
		return nil, err
	}

	out := make([]Stress, len(elements))
	err = layout.Run(workers, func(part partitions.Partition) error {
		for _, k := range part.Elements {
			el := elements[k]
			out[k] = ElementStress(el.B, D, u, el.Dofs())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CheckInputs verifies that every element has its strain operator and
// that u covers every referenced dof
func CheckInputs(elements []*element.Triangle, u []float64) error {
	for k, el := range elements {
		if !el.HasStiffness() {
			return fmt.Errorf("element %d %v: stiffness not computed", k, el.Nodes)
		}
		for _, dof := range el.Dofs() {
			if dof >= len(u) {
				return fmt.Errorf("element %d %v: dof %d outside displacement vector of length %d",
					k, el.Nodes, dof, len(u))
			}
		}
	}
	return nil
}

// MaxVonMises returns the largest equivalent stress and its element, or
// -1 when stresses is empty
func MaxVonMises(stresses []Stress) (vm float64, k int) {
	k = -1
	for i, s := range stresses {
		if k < 0 || s.VonMises > vm {
			vm, k = s.VonMises, i
		}
	}
	return
}
