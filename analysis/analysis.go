package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/notargets/tilefem/assembly"
	"github.com/notargets/tilefem/material"
	"github.com/notargets/tilefem/mesh"
	"github.com/notargets/tilefem/observability"
	"github.com/notargets/tilefem/postprocess"
	"github.com/notargets/tilefem/solver"
	"github.com/notargets/tilefem/utils"
	"go.opentelemetry.io/otel/trace"
)

// Options tunes how a problem is solved. The zero value solves serially
// with the banded Cholesky solver and host stress recovery.
type Options struct {
	Workers int

	Solver    solver.Solver         // nil selects solver.BandCholesky
	Recoverer postprocess.Recoverer // nil selects postprocess.Parallel

	// AutoWeldTolerance > 0 discovers weld pairs between the last tile and
	// the tiles before it when no welds are given
	AutoWeldTolerance float64

	Logger *slog.Logger
}

// Problem is a set of tiles stitched into one plane stress model.
//
// Tiles are merged in order. In a weld pair, A numbers a node of the tiles
// before the last one (in merged order) and B numbers a node local to the
// last tile. With two tiles this is tile A and tile B numbering.
type Problem struct {
	Tiles    []*mesh.Mesh
	Welds    []mesh.WeldPair
	Material material.Material
	Options  Options
}

// Result of one analysis
type Result struct {
	Mesh          *mesh.Mesh // merged and welded
	Welds         []mesh.WeldPair
	Displacements []float64
	Stresses      []postprocess.Stress
	Residual      float64 // max |K·u - f| of the constrained system
}

type pipeline struct {
	log  *slog.Logger
	opts Options
}

// Run solves the problem. The tiles are not modified.
func Run(ctx context.Context, p Problem) (res *Result, err error) {
	opts := p.Options
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Solver == nil {
		opts.Solver = solver.BandCholesky{}
	}
	if opts.Recoverer == nil {
		opts.Recoverer = postprocess.Parallel{Workers: opts.Workers}
	}
	pl := &pipeline{log: opts.Logger, opts: opts}

	nElements := 0
	for _, t := range p.Tiles {
		nElements += len(t.Elements)
	}
	ctx, span := observability.StartAnalysisSpan(ctx, len(p.Tiles), nElements)
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	if len(p.Tiles) == 0 {
		return nil, fmt.Errorf("no tiles")
	}
	for _, w := range p.Material.Validate() {
		pl.log.Warn("material", "warning", w)
	}
	D := p.Material.D()

	var (
		m        *mesh.Mesh
		welds    []mesh.WeldPair
		K        *assembly.Matrix
		f        []float64
		u        []float64
		stresses []postprocess.Stress
		residual float64
	)

	err = pl.stage(ctx, observability.StageMerge, func(ctx context.Context, span trace.Span) (int, error) {
		m = mesh.Merged(p.Tiles...)
		return m.NumNodes(), nil
	})
	if err != nil {
		return nil, err
	}

	err = pl.stage(ctx, observability.StageStiffness, func(ctx context.Context, span trace.Span) (int, error) {
		return len(m.Elements), m.ComputeStiffness(D, opts.Workers)
	})
	if err != nil {
		return nil, err
	}

	err = pl.stage(ctx, observability.StageWeld, func(ctx context.Context, span trace.Span) (int, error) {
		welds, err = pl.weldPairs(p)
		if err != nil {
			return 0, err
		}
		return len(welds), m.WeldAll(welds)
	})
	if err != nil {
		return nil, err
	}

	err = pl.stage(ctx, observability.StageAssemble, func(ctx context.Context, span trace.Span) (int, error) {
		K, err = m.Assemble()
		if err != nil {
			return 0, err
		}
		return K.NNZ(), nil
	})
	if err != nil {
		return nil, err
	}

	err = pl.stage(ctx, observability.StageConstrain, func(ctx context.Context, span trace.Span) (int, error) {
		dofs := m.ConstrainedDofs()
		K.ApplyConstraints(dofs)
		f = m.ConstrainedLoads()
		return len(dofs), nil
	})
	if err != nil {
		return nil, err
	}

	err = pl.stage(ctx, observability.StageSolve, func(ctx context.Context, span trace.Span) (int, error) {
		u, err = opts.Solver.Solve(K, f)
		if err != nil {
			return 0, err
		}
		residual = solver.Residual(K, u, f)
		observability.RecordSolve(span, opts.Solver.Name(), m.NumDofs(), K.NNZ(), K.Bandwidth(), residual)
		return len(u), nil
	})
	if err != nil {
		return nil, err
	}

	err = pl.stage(ctx, observability.StageStress, func(ctx context.Context, span trace.Span) (int, error) {
		stresses, err = opts.Recoverer.Recover(m.Elements, D, u)
		return len(stresses), err
	})
	if err != nil {
		return nil, err
	}

	vm, k := postprocess.MaxVonMises(stresses)
	pl.log.Info("analysis complete",
		"nodes", m.NumNodes(),
		"elements", len(m.Elements),
		"welds", len(welds),
		"residual", residual,
		"max_von_mises", vm,
		"max_element", k,
	)

	return &Result{
		Mesh:          m,
		Welds:         welds,
		Displacements: u,
		Stresses:      stresses,
		Residual:      residual,
	}, nil
}

// stage runs fn inside a span, returning its error wrapped with the stage
// name
func (pl *pipeline) stage(ctx context.Context, name string, fn func(ctx context.Context, span trace.Span) (int, error)) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	ctx, span := observability.StartStageSpan(ctx, name)
	defer span.End()

	start := time.Now()
	items, err := fn(ctx, span)
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordError(span, err)
		pl.log.Error("stage failed", "stage", name, "error", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	observability.RecordStageResult(span, items, elapsed)
	pl.log.Debug("stage complete", "stage", name, "items", items, "duration", elapsed)
	return nil
}

// weldPairs returns the welds in merged numbering. B indices of explicit
// pairs are shifted past the nodes of all tiles but the last; A indices
// must name a node of those tiles.
func (pl *pipeline) weldPairs(p Problem) ([]mesh.WeldPair, error) {
	last := p.Tiles[len(p.Tiles)-1]
	offset := 0
	for _, t := range p.Tiles[:len(p.Tiles)-1] {
		offset += t.NumNodes()
	}

	pairs := p.Welds
	if len(pairs) == 0 && pl.opts.AutoWeldTolerance > 0 && len(p.Tiles) > 1 {
		var err error
		pairs, err = seam(mesh.Merged(p.Tiles[:len(p.Tiles)-1]...).Nodes, last.Nodes, pl.opts.AutoWeldTolerance)
		if err != nil {
			return nil, err
		}
		pl.log.Info("seam discovered", "pairs", len(pairs), "tolerance", pl.opts.AutoWeldTolerance)
	}

	// a single tile welds within itself
	aCount := offset
	if len(p.Tiles) == 1 {
		aCount = last.NumNodes()
	}
	welds := make([]mesh.WeldPair, len(pairs))
	for i, w := range pairs {
		if w.A < 0 || w.A >= aCount {
			return nil, &mesh.IndexOutOfRangeError{
				Owner: fmt.Sprintf("weld %d", i), Index: w.A, Count: aCount}
		}
		if w.B < 0 || w.B >= last.NumNodes() {
			return nil, &mesh.IndexOutOfRangeError{
				Owner: fmt.Sprintf("weld %d", i), Index: w.B, Count: last.NumNodes()}
		}
		welds[i] = mesh.WeldPair{A: w.A, B: w.B + offset}
	}
	return welds, nil
}

func seam(a, b []mesh.Node, tol float64) ([]mesh.WeldPair, error) {
	sc, err := utils.NewSeamConnector(a, b, tol)
	if err != nil {
		return nil, err
	}
	if err := sc.Verify(); err != nil {
		return nil, fmt.Errorf("seam: %w", err)
	}
	return sc.Pairs(), nil
}
