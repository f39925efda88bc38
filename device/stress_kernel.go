package device

import (
	"fmt"
	"unsafe"

	"github.com/notargets/gocca"
	"github.com/notargets/tilefem/element"
	"github.com/notargets/tilefem/partitions"
	"github.com/notargets/tilefem/postprocess"
	"gonum.org/v1/gonum/mat"
)

const (
	bStride      = 3 * element.LocalDofs // B, row major
	stressStride = 4                     // sxx syy txy vm
)

const stressKernelSource = `
#define NPART %d
#define KpartMax %d

@kernel void cstStress(
	const long *K,
	const double *B,
	const long *DOF,
	const double *U,
	const double *D,
	double *S
) {
	for (int part = 0; part < NPART; ++part; @outer) {
		for (int i = 0; i < KpartMax; ++i; @inner) {
			if (i < K[part]) {
				const int e = part*KpartMax + i;
				const double *b = B + 18*e;
				const long *dof = DOF + 6*e;

				double eps[3];
				for (int r = 0; r < 3; ++r) {
					double acc = 0.0;
					for (int c = 0; c < 6; ++c) {
						acc += b[6*r + c]*U[dof[c]];
					}
					eps[r] = acc;
				}

				double sig[3];
				for (int r = 0; r < 3; ++r) {
					sig[r] = D[3*r]*eps[0] + D[3*r + 1]*eps[1] + D[3*r + 2]*eps[2];
				}

				double *s = S + 4*e;
				s[0] = sig[0];
				s[1] = sig[1];
				s[2] = sig[2];
				s[3] = sqrt(sig[0]*sig[0] - sig[0]*sig[1] + sig[1]*sig[1] + 3.0*sig[2]*sig[2]);
			}
		}
	}
}
`

// StressKernel recovers element stresses on an OCCA device. Each @outer
// iteration handles one partition of at most KpartMax elements.
type StressKernel struct {
	Device     *Device
	Partitions int
}

var _ postprocess.Recoverer = (*StressKernel)(nil)

// Recover returns one stress per element, in element order
func (sk *StressKernel) Recover(elements []*element.Triangle, D mat.Matrix, u []float64) ([]postprocess.Stress, error) {
	if err := postprocess.CheckInputs(elements, u); err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return []postprocess.Stress{}, nil
	}
	if r, c := D.Dims(); r != 3 || c != 3 {
		return nil, fmt.Errorf("constitutive matrix is %d × %d, want 3 × 3", r, c)
	}

	npart := sk.Partitions
	if npart < 1 {
		npart = 1
	}
	layout, err := partitions.NewLayout(len(elements), npart, partitions.BlockPartition)
	if err != nil {
		return nil, err
	}

	B := layout.Pack(bStride, func(k int, dst []float64) {
		copy(dst, mat.DenseCopyOf(elements[k].B).RawMatrix().Data)
	})
	dofs := packDofs(layout, elements)
	Dflat := mat.DenseCopyOf(D).RawMatrix().Data
	K := make([]int64, layout.NumPartitions)
	for i, k := range layout.K() {
		K[i] = int64(k)
	}
	S := make([]float64, layout.NumPartitions*layout.KpartMax*stressStride)

	kernel, err := sk.Device.buildKernel(
		fmt.Sprintf(stressKernelSource, layout.NumPartitions, layout.KpartMax), "cstStress")
	if err != nil {
		return nil, err
	}
	defer kernel.Free()

	occa := sk.Device.occa
	mems := []*gocca.OCCAMemory{
		occa.Malloc(int64(len(K)*8), unsafe.Pointer(&K[0]), nil),
		occa.Malloc(int64(len(B.GlobalData)*8), unsafe.Pointer(&B.GlobalData[0]), nil),
		occa.Malloc(int64(len(dofs)*8), unsafe.Pointer(&dofs[0]), nil),
		occa.Malloc(int64(len(u)*8), unsafe.Pointer(&u[0]), nil),
		occa.Malloc(int64(len(Dflat)*8), unsafe.Pointer(&Dflat[0]), nil),
		occa.Malloc(int64(len(S)*8), nil, nil),
	}
	defer func() {
		for _, m := range mems {
			m.Free()
		}
	}()

	if err := kernel.RunWithArgs(mems[0], mems[1], mems[2], mems[3], mems[4], mems[5]); err != nil {
		return nil, fmt.Errorf("kernel execution failed: %w", err)
	}
	occa.Finish()
	mems[5].CopyTo(unsafe.Pointer(&S[0]), int64(len(S)*8))

	out := make([]postprocess.Stress, len(elements))
	offsets := make([]int, layout.NumPartitions+1)
	for i := range layout.Partitions {
		offsets[i+1] = offsets[i] + layout.KpartMax*stressStride
	}
	layout.Unpack(&partitions.PartitionedArray{GlobalData: S, Offsets: offsets, Stride: stressStride},
		func(k int, src []float64) {
			out[k] = postprocess.Stress{Sxx: src[0], Syy: src[1], Txy: src[2], VonMises: src[3]}
		})
	return out, nil
}

// packDofs lays out the element dof maps in partition order, padded like
// the float arrays
func packDofs(layout *partitions.PartitionLayout, elements []*element.Triangle) []int64 {
	dofs := make([]int64, layout.NumPartitions*layout.KpartMax*element.LocalDofs)
	for i, p := range layout.Partitions {
		for local, k := range p.Elements {
			start := (i*layout.KpartMax + local) * element.LocalDofs
			for j, dof := range elements[k].Dofs() {
				dofs[start+j] = int64(dof)
			}
		}
	}
	return dofs
}
