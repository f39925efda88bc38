package device

import (
	"testing"

	"github.com/notargets/tilefem/element"
	"github.com/notargets/tilefem/material"
	"github.com/notargets/tilefem/partitions"
	"github.com/notargets/tilefem/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDevice(t *testing.T) *Device {
	t.Helper()
	d, err := NewDevice()
	if err != nil {
		t.Skipf("no OCCA device: %v", err)
	}
	t.Cleanup(d.Free)
	return d
}

func strip(t *testing.T, n int) ([]*element.Triangle, []float64) {
	t.Helper()
	D := material.Default().D()
	var elements []*element.Triangle
	for k := 0; k < n; k++ {
		// lower and upper triangle of cell k along x, nodes 2k..2k+3
		lo := element.NewTriangle(2*k, 2*k+2, 2*k+3)
		require.NoError(t, lo.ComputeStiffness(
			[3]float64{float64(k), float64(k + 1), float64(k + 1)}, [3]float64{0, 0, 1}, D))
		hi := element.NewTriangle(2*k, 2*k+3, 2*k+1)
		require.NoError(t, hi.ComputeStiffness(
			[3]float64{float64(k), float64(k + 1), float64(k)}, [3]float64{0, 1, 1}, D))
		elements = append(elements, lo, hi)
	}
	u := make([]float64, 2*(2*n+2))
	for i := range u {
		u[i] = 0.001 * float64((i*7)%11-5)
	}
	return elements, u
}

func TestPackDofs(t *testing.T) {
	elements, _ := strip(t, 2)
	layout, err := partitions.NewLayout(len(elements), 3, partitions.BlockPartition)
	require.NoError(t, err)
	dofs := packDofs(layout, elements)
	require.Len(t, dofs, layout.NumPartitions*layout.KpartMax*element.LocalDofs)
	for k, el := range elements {
		p := layout.GetPartition(k)
		local := 0
		for i, kk := range layout.Partitions[p].Elements {
			if kk == k {
				local = i
			}
		}
		start := (p*layout.KpartMax + local) * element.LocalDofs
		for j, dof := range el.Dofs() {
			assert.Equal(t, int64(dof), dofs[start+j])
		}
	}
}

func TestStressKernelMatchesHost(t *testing.T) {
	dev := testDevice(t)
	D := material.Default().D()
	elements, u := strip(t, 9)

	want, err := postprocess.Parallel{Workers: 1}.Recover(elements, D, u)
	require.NoError(t, err)

	for _, npart := range []int{1, 4, 18} {
		sk := &StressKernel{Device: dev, Partitions: npart}
		got, err := sk.Recover(elements, D, u)
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for k := range want {
			assert.InDelta(t, want[k].Sxx, got[k].Sxx, 1e-12)
			assert.InDelta(t, want[k].Syy, got[k].Syy, 1e-12)
			assert.InDelta(t, want[k].Txy, got[k].Txy, 1e-12)
			assert.InDelta(t, want[k].VonMises, got[k].VonMises, 1e-12)
		}
	}
}

func TestStressKernelEmpty(t *testing.T) {
	dev := testDevice(t)
	got, err := (&StressKernel{Device: dev}).Recover(nil, material.Default().D(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
