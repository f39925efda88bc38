package utils

import (
	"fmt"
	"math"
	"sort"

	"github.com/notargets/tilefem/mesh"
)

// SeamConnector matches the nodes of two tiles that lie on a shared seam.
// For each node of tile A (the pick side) it finds the nearest node of
// tile B (the place side) within Tol. Indices are local to each tile.
type SeamConnector struct {
	Tol float64
	NA  int // nodes in tile A
	NB  int // nodes in tile B

	Pick  []int // tile A node of each pair, ascending
	Place []int // matching tile B node

	cells map[cellKey][]int // tile B nodes bucketed on a Tol grid
}

type cellKey struct {
	i, j int64
}

// NewSeamConnector builds the seam between tile A and tile B
func NewSeamConnector(a, b []mesh.Node, tol float64) (*SeamConnector, error) {
	if !(tol > 0) || math.IsInf(tol, 0) {
		return nil, fmt.Errorf("invalid seam tolerance %g", tol)
	}

	sc := &SeamConnector{
		Tol:   tol,
		NA:    len(a),
		NB:    len(b),
		cells: make(map[cellKey][]int),
	}
	for n, p := range b {
		key := sc.cell(p)
		sc.cells[key] = append(sc.cells[key], n)
	}

	sc.BuildIndices(a, b)
	return sc, nil
}

func (sc *SeamConnector) cell(p mesh.Node) cellKey {
	return cellKey{int64(math.Floor(p.X / sc.Tol)), int64(math.Floor(p.Y / sc.Tol))}
}

// BuildIndices fills Pick and Place. A node of tile A with no tile B node
// within Tol is not on the seam and is skipped.
func (sc *SeamConnector) BuildIndices(a, b []mesh.Node) {
	sc.Pick = sc.Pick[:0]
	sc.Place = sc.Place[:0]

	for na, p := range a {
		c := sc.cell(p)
		best, bestDist := -1, math.Inf(1)
		for di := int64(-1); di <= 1; di++ {
			for dj := int64(-1); dj <= 1; dj++ {
				for _, nb := range sc.cells[cellKey{c.i + di, c.j + dj}] {
					dist := math.Hypot(b[nb].X-p.X, b[nb].Y-p.Y)
					if dist > sc.Tol {
						continue
					}
					if dist < bestDist || (dist == bestDist && nb < best) {
						best, bestDist = nb, dist
					}
				}
			}
		}
		if best >= 0 {
			sc.Pick = append(sc.Pick, na)
			sc.Place = append(sc.Place, best)
		}
	}
}

// Pairs returns the seam as weld pairs in tile-local numbering, ordered
// by the tile A node
func (sc *SeamConnector) Pairs() []mesh.WeldPair {
	pairs := make([]mesh.WeldPair, len(sc.Pick))
	for i := range sc.Pick {
		pairs[i] = mesh.WeldPair{A: sc.Pick[i], B: sc.Place[i]}
	}
	return pairs
}

// Verify checks index validity and that the seam is one-to-one
func (sc *SeamConnector) Verify() error {
	if len(sc.Pick) != len(sc.Place) {
		return fmt.Errorf("length mismatch: pick=%d, place=%d", len(sc.Pick), len(sc.Place))
	}
	if !sort.IntsAreSorted(sc.Pick) {
		return fmt.Errorf("pick indices not ordered")
	}

	claimed := make(map[int]int, len(sc.Place))
	for i := range sc.Pick {
		na, nb := sc.Pick[i], sc.Place[i]
		if na < 0 || na >= sc.NA {
			return fmt.Errorf("invalid pick index %d (max %d)", na, sc.NA-1)
		}
		if nb < 0 || nb >= sc.NB {
			return fmt.Errorf("invalid place index %d (max %d)", nb, sc.NB-1)
		}
		if prev, ok := claimed[nb]; ok {
			return fmt.Errorf("tile B node %d matched by tile A nodes %d and %d", nb, prev, na)
		}
		claimed[nb] = na
	}
	return nil
}
