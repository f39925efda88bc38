package analysis

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/notargets/tilefem/element"
	"github.com/notargets/tilefem/material"
	"github.com/notargets/tilefem/mesh"
	"github.com/notargets/tilefem/partitions"
	"github.com/notargets/tilefem/postprocess"
	"github.com/notargets/tilefem/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	// unit square, node 0 fixed, node 1 on a roller, unit downward load at
	// node 2, E = 1, ν = 0.3
	refU = []float64{0, 0, 0.7225, 0, 1.1775, -1.8775, 1.3, -0.1225}

	refStress = []postprocess.Stress{
		{Sxx: 0.175, Syy: -1.825, Txy: 0.175, VonMises: 1.9422924599555027},
		{Sxx: -0.175, Syy: -0.175, Txy: -0.175, VonMises: 0.35},
	}
)

func square(t *testing.T) *mesh.Mesh {
	t.Helper()
	m, err := mesh.New(
		[]mesh.Node{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}},
		[][3]int{{0, 1, 2}, {0, 2, 3}},
		[]mesh.Constraint{{Node: 0, Mask: mesh.UXY}, {Node: 1, Mask: mesh.UY}})
	require.NoError(t, err)
	require.NoError(t, m.AddLoad(2, 0, -1))
	return m
}

// halves returns the unit square as two tiles with duplicated diagonal
// nodes: tile A holds the lower triangle, tile B the upper one with local
// nodes (0,0), (1,1), (0,1)
func halves(t *testing.T) (a, b *mesh.Mesh) {
	t.Helper()
	a, err := mesh.New(
		[]mesh.Node{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}},
		[][3]int{{0, 1, 2}},
		[]mesh.Constraint{{Node: 0, Mask: mesh.UXY}, {Node: 1, Mask: mesh.UY}})
	require.NoError(t, err)
	require.NoError(t, a.AddLoad(2, 0, -1))

	b, err = mesh.New(
		[]mesh.Node{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}},
		[][3]int{{0, 1, 2}}, nil)
	require.NoError(t, err)
	return a, b
}

func assertStresses(t *testing.T, want, got []postprocess.Stress) {
	t.Helper()
	require.Len(t, got, len(want))
	for k := range want {
		assert.InDelta(t, want[k].Sxx, got[k].Sxx, 1e-10, "element %d", k)
		assert.InDelta(t, want[k].Syy, got[k].Syy, 1e-10, "element %d", k)
		assert.InDelta(t, want[k].Txy, got[k].Txy, 1e-10, "element %d", k)
		assert.InDelta(t, want[k].VonMises, got[k].VonMises, 1e-10, "element %d", k)
	}
}

func TestRunUnitSquare(t *testing.T) {
	for _, s := range []solver.Solver{solver.BandCholesky{}, solver.DenseCholesky{}} {
		t.Run(s.Name(), func(t *testing.T) {
			tile := square(t)
			res, err := Run(context.Background(), Problem{
				Tiles:    []*mesh.Mesh{tile},
				Material: material.Default(),
				Options:  Options{Workers: 2, Solver: s},
			})
			require.NoError(t, err)
			assert.InDeltaSlice(t, refU, res.Displacements, 1e-10)
			assertStresses(t, refStress, res.Stresses)
			assert.Less(t, res.Residual, 1e-12)
			assert.Empty(t, res.Welds)

			// the input tile is left as it was
			assert.False(t, tile.Elements[0].HasStiffness())
		})
	}
}

func TestRunPoissonZero(t *testing.T) {
	res, err := Run(context.Background(), Problem{
		Tiles:    []*mesh.Mesh{square(t)},
		Material: material.Material{YoungModulus: 1, PoissonRatio: 0},
	})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 0, 0.25, 0, 0.75, -1.75, 1, -0.25}, res.Displacements, 1e-10)
	assertStresses(t, []postprocess.Stress{
		{Sxx: 0.25, Syy: -1.75, Txy: 0.25, VonMises: 1.9364916731037083},
		{Sxx: -0.25, Syy: -0.25, Txy: -0.25, VonMises: 0.5},
	}, res.Stresses)
}

// stitched tiles reproduce the contiguous solution at the shared nodes
func checkStitched(t *testing.T, res *Result) {
	t.Helper()
	u := res.Displacements
	require.Len(t, u, 12)
	// tile A nodes 0..2 are square nodes 0..2, tile B node 2 is square node 3
	for i, n := range []int{0, 1, 2, 5} {
		assert.InDelta(t, refU[2*i], u[2*n], 1e-10, "node %d x", n)
		assert.InDelta(t, refU[2*i+1], u[2*n+1], 1e-10, "node %d y", n)
	}
	// released nodes carry no displacement
	for _, n := range []int{3, 4} {
		assert.Zero(t, u[2*n])
		assert.Zero(t, u[2*n+1])
	}
	assertStresses(t, refStress, res.Stresses)
	assert.Equal(t, []int{3, 4}, res.Mesh.FreeNodes)
}

func TestRunStitched(t *testing.T) {
	a, b := halves(t)
	res, err := Run(context.Background(), Problem{
		Tiles:    []*mesh.Mesh{a, b},
		Welds:    []mesh.WeldPair{{A: 0, B: 0}, {A: 2, B: 1}},
		Material: material.Default(),
	})
	require.NoError(t, err)
	assert.Equal(t, []mesh.WeldPair{{A: 0, B: 3}, {A: 2, B: 4}}, res.Welds)
	assert.Equal(t, [3]int{0, 2, 5}, res.Mesh.Elements[1].Nodes)
	checkStitched(t, res)
}

func TestRunAutoWeld(t *testing.T) {
	a, b := halves(t)
	res, err := Run(context.Background(), Problem{
		Tiles:    []*mesh.Mesh{a, b},
		Material: material.Default(),
		Options:  Options{Workers: 3, AutoWeldTolerance: 1e-6},
	})
	require.NoError(t, err)
	assert.Equal(t, []mesh.WeldPair{{A: 0, B: 3}, {A: 2, B: 4}}, res.Welds)
	checkStitched(t, res)
}

func TestRunStitchedBoundaryOnReleasedNodes(t *testing.T) {
	welds := []mesh.WeldPair{{A: 0, B: 0}, {A: 2, B: 1}}

	t.Run("load", func(t *testing.T) {
		a, b := halves(t)
		a.Loads[5] = 0
		require.NoError(t, b.AddLoad(1, 0, -1))
		res, err := Run(context.Background(), Problem{
			Tiles: []*mesh.Mesh{a, b}, Welds: welds, Material: material.Default()})
		require.NoError(t, err)
		checkStitched(t, res)
		assert.Equal(t, -1.0, res.Mesh.Loads[5])
		assert.Zero(t, res.Mesh.Loads[9])
	})

	t.Run("constraint", func(t *testing.T) {
		a, err := mesh.New(
			[]mesh.Node{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}},
			[][3]int{{0, 1, 2}},
			[]mesh.Constraint{{Node: 1, Mask: mesh.UY}})
		require.NoError(t, err)
		require.NoError(t, a.AddLoad(2, 0, -1))
		b, err := mesh.New(
			[]mesh.Node{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}},
			[][3]int{{0, 1, 2}},
			[]mesh.Constraint{{Node: 0, Mask: mesh.UXY}})
		require.NoError(t, err)

		res, err := Run(context.Background(), Problem{
			Tiles: []*mesh.Mesh{a, b}, Welds: welds, Material: material.Default()})
		require.NoError(t, err)
		checkStitched(t, res)
	})
}

func TestRunOffsetWeld(t *testing.T) {
	ref, err := Run(context.Background(), Problem{
		Tiles: []*mesh.Mesh{square(t)}, Material: material.Default()})
	require.NoError(t, err)

	for _, s := range []solver.Solver{solver.BandCholesky{}, solver.DenseCholesky{}} {
		t.Run(s.Name(), func(t *testing.T) {
			a, b := halves(t)
			// tile B's corner sits off the fixed node 0
			b.Nodes[0].X = 0.01
			res, err := Run(context.Background(), Problem{
				Tiles:    []*mesh.Mesh{a, b},
				Welds:    []mesh.WeldPair{{A: 0, B: 0}, {A: 2, B: 1}},
				Material: material.Default(),
				Options:  Options{Solver: s},
			})
			require.NoError(t, err)
			u := res.Displacements

			// the weld reaction lands on the fixed node
			assert.NotZero(t, res.Mesh.Loads[0])
			assert.InDelta(t, 0, u[0], 1e-15)
			assert.InDelta(t, 0, u[1], 1e-15)
			assert.InDelta(t, 0, u[3], 1e-15)
			for _, n := range []int{3, 4} {
				assert.Zero(t, u[2*n])
				assert.Zero(t, u[2*n+1])
			}
			assert.Less(t, res.Residual, 1e-10)

			// and on the free corners of the rewired element
			var diff float64
			for i, n := range []int{0, 1, 2, 5} {
				diff = math.Max(diff, math.Abs(u[2*n]-ref.Displacements[2*i]))
				diff = math.Max(diff, math.Abs(u[2*n+1]-ref.Displacements[2*i+1]))
			}
			assert.Greater(t, diff, 1e-6)
		})
	}
}

func TestRunMergeEmpty(t *testing.T) {
	empty, err := mesh.New(nil, nil, nil)
	require.NoError(t, err)
	for _, tiles := range [][]*mesh.Mesh{{square(t), empty}, {empty, square(t)}} {
		res, err := Run(context.Background(), Problem{Tiles: tiles, Material: material.Default()})
		require.NoError(t, err)
		assert.InDeltaSlice(t, refU, res.Displacements, 1e-10)
		assertStresses(t, refStress, res.Stresses)
	}
}

func TestRunParallelMatchesSerial(t *testing.T) {
	a, b := halves(t)
	base := Problem{
		Tiles:    []*mesh.Mesh{a, b},
		Welds:    []mesh.WeldPair{{A: 0, B: 0}, {A: 2, B: 1}},
		Material: material.Default(),
	}
	serial, err := Run(context.Background(), base)
	require.NoError(t, err)

	base.Options = Options{
		Workers:   4,
		Recoverer: postprocess.Parallel{Workers: 4, Strategy: partitions.RoundRobin},
	}
	parallel, err := Run(context.Background(), base)
	require.NoError(t, err)
	assert.Equal(t, serial.Displacements, parallel.Displacements)
	assert.Equal(t, serial.Stresses, parallel.Stresses)
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("singular", func(t *testing.T) {
		m, err := mesh.New(
			[]mesh.Node{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}},
			[][3]int{{0, 1, 2}},
			[]mesh.Constraint{{Node: 0, Mask: mesh.UY}, {Node: 1, Mask: mesh.UY}})
		require.NoError(t, err)
		_, err = Run(ctx, Problem{Tiles: []*mesh.Mesh{m}, Material: material.Default()})
		var se *solver.SingularSystemError
		assert.True(t, errors.As(err, &se), "got %v", err)
	})

	t.Run("degenerate", func(t *testing.T) {
		m, err := mesh.New([]mesh.Node{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}}, [][3]int{{0, 1, 2}}, nil)
		require.NoError(t, err)
		_, err = Run(ctx, Problem{Tiles: []*mesh.Mesh{m}, Material: material.Default()})
		var de *element.DegenerateElementError
		assert.True(t, errors.As(err, &de), "got %v", err)
	})

	t.Run("weld index out of range", func(t *testing.T) {
		a, b := halves(t)
		_, err := Run(ctx, Problem{
			Tiles:    []*mesh.Mesh{a, b},
			Welds:    []mesh.WeldPair{{A: 0, B: 3}},
			Material: material.Default(),
		})
		var ioe *mesh.IndexOutOfRangeError
		assert.True(t, errors.As(err, &ioe), "got %v", err)

		// A numbers tile A, merged node 3 is tile B's first node
		a, b = halves(t)
		_, err = Run(ctx, Problem{
			Tiles:    []*mesh.Mesh{a, b},
			Welds:    []mesh.WeldPair{{A: 3, B: 1}},
			Material: material.Default(),
		})
		require.True(t, errors.As(err, &ioe), "got %v", err)
		assert.Equal(t, 3, ioe.Index)
		assert.Equal(t, 3, ioe.Count)
	})

	t.Run("collapsed element", func(t *testing.T) {
		_, err := Run(ctx, Problem{
			Tiles:    []*mesh.Mesh{square(t)},
			Welds:    []mesh.WeldPair{{A: 0, B: 2}},
			Material: material.Default(),
		})
		assert.ErrorIs(t, err, mesh.ErrCollapsedElement)
	})

	t.Run("no tiles", func(t *testing.T) {
		_, err := Run(ctx, Problem{Material: material.Default()})
		assert.Error(t, err)
	})

	t.Run("canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Run(cctx, Problem{Tiles: []*mesh.Mesh{square(t)}, Material: material.Default()})
		assert.ErrorIs(t, err, context.Canceled)
	})
}
