package utils

import (
	"testing"

	"github.com/notargets/tilefem/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// column returns the nodes of a 1 × ny strip of unit cells at x0
func column(x0 float64, ny int) []mesh.Node {
	var nodes []mesh.Node
	for j := 0; j <= ny; j++ {
		nodes = append(nodes, mesh.Node{X: x0, Y: float64(j)}, mesh.Node{X: x0 + 1, Y: float64(j)})
	}
	return nodes
}

func TestSeamConnector(t *testing.T) {
	t.Run("shared edge", func(t *testing.T) {
		a := column(0, 2)
		b := column(1, 2)
		sc, err := NewSeamConnector(a, b, 1e-6)
		require.NoError(t, err)
		require.NoError(t, sc.Verify())

		assert.Equal(t, []mesh.WeldPair{{A: 1, B: 0}, {A: 3, B: 2}, {A: 5, B: 4}}, sc.Pairs())
	})

	t.Run("perturbed within tolerance", func(t *testing.T) {
		a := column(0, 1)
		b := column(1.02, 1)
		b[2].Y += 0.01
		sc, err := NewSeamConnector(a, b, 0.05)
		require.NoError(t, err)
		require.NoError(t, sc.Verify())
		assert.Equal(t, []int{1, 3}, sc.Pick)
		assert.Equal(t, []int{0, 2}, sc.Place)
	})

	t.Run("nearest wins", func(t *testing.T) {
		a := []mesh.Node{{X: 0, Y: 0}}
		b := []mesh.Node{{X: 0.4, Y: 0}, {X: 0.1, Y: 0}, {X: -0.1, Y: 0}}
		sc, err := NewSeamConnector(a, b, 0.5)
		require.NoError(t, err)
		// equal distance resolves to the lower index
		assert.Equal(t, []mesh.WeldPair{{A: 0, B: 1}}, sc.Pairs())
	})

	t.Run("disjoint tiles", func(t *testing.T) {
		sc, err := NewSeamConnector(column(0, 1), column(5, 1), 0.1)
		require.NoError(t, err)
		assert.Empty(t, sc.Pairs())
		assert.NoError(t, sc.Verify())
	})

	t.Run("not one to one", func(t *testing.T) {
		a := []mesh.Node{{X: 0, Y: 0}, {X: 0.01, Y: 0}}
		b := []mesh.Node{{X: 0, Y: 0}}
		sc, err := NewSeamConnector(a, b, 0.1)
		require.NoError(t, err)
		assert.Error(t, sc.Verify())
	})

	t.Run("invalid tolerance", func(t *testing.T) {
		_, err := NewSeamConnector(nil, nil, 0)
		assert.Error(t, err)
		_, err = NewSeamConnector(nil, nil, -1)
		assert.Error(t, err)
	})
}
