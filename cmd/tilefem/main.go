package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/notargets/tilefem/analysis"
	"github.com/notargets/tilefem/config"
	"github.com/notargets/tilefem/device"
	"github.com/notargets/tilefem/material"
	"github.com/notargets/tilefem/mesh"
	"github.com/notargets/tilefem/meshio"
	"github.com/notargets/tilefem/observability"
	"github.com/notargets/tilefem/partitions"
	"github.com/notargets/tilefem/postprocess"
	"github.com/notargets/tilefem/solver"
	"github.com/spf13/cobra"
)

type outputs struct {
	deformed string
	results  string
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "tilefem",
		Short:        "Plane stress CST solver with tile stitching",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")

	var (
		meshPath        string
		constraintsPath string
		loadsPath       string
		withMaterial    bool
		solveOut        outputs
	)
	solveCmd := &cobra.Command{
		Use:   "solve",
		Short: "Solve a single mesh",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				tile *mesh.Mesh
				mat  *material.Material
				err  error
			)
			if withMaterial {
				var m material.Material
				tile, m, err = meshio.ReadModelFile(meshPath)
				mat = &m
			} else {
				if constraintsPath == "" {
					return fmt.Errorf("required flag \"constraints\" not set")
				}
				tile, err = meshio.ReadMeshFile(meshPath)
			}
			if err != nil {
				return err
			}
			tiles := []*mesh.Mesh{tile}
			if err := applyBoundary(tiles, constraintsPath, loadsPath, nil); err != nil {
				return err
			}
			return run(cmd.Context(), configPath, analysis.Problem{Tiles: tiles}, mat, solveOut)
		},
	}
	solveCmd.Flags().StringVar(&meshPath, "mesh", "", "Mesh file")
	solveCmd.Flags().BoolVar(&withMaterial, "with-material", false,
		"Mesh starts with a \"poisson young\" line and may carry constraint and load sections")
	solveCmd.Flags().StringVar(&constraintsPath, "constraints", "", "Constraint table (node mask), required without --with-material")
	solveCmd.Flags().StringVar(&loadsPath, "loads", "", "Load table (node fx fy)")
	solveCmd.Flags().StringVar(&solveOut.deformed, "out", "deformed.txt", "Deformed mesh output")
	solveCmd.Flags().StringVar(&solveOut.results, "results", "", "Displacement and stress output")
	_ = solveCmd.MarkFlagRequired("mesh")

	var (
		tileA, tileB      string
		weldArgs          []string
		weldsPath         string
		autoWeld          float64
		stitchConstraints string
		stitchLoads       string
		stitchOut         outputs
	)
	stitchCmd := &cobra.Command{
		Use:   "stitch",
		Short: "Weld tile B onto tile A and solve the stitched mesh",
		Long: `Weld tile B onto tile A and solve the stitched mesh.

Weld pairs name a node of tile A and a node of tile B in each tile's own
numbering. Constraint and load tables use stitched numbering, where tile B
nodes follow tile A nodes. Without a constraint table node 0 is fixed and
node 1 is held vertically.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := meshio.ReadMeshFile(tileA)
			if err != nil {
				return err
			}
			b, err := meshio.ReadMeshFile(tileB)
			if err != nil {
				return err
			}
			welds, err := parseWelds(weldArgs)
			if err != nil {
				return err
			}
			if weldsPath != "" {
				fromFile, err := meshio.ReadWeldPairs(weldsPath)
				if err != nil {
					return err
				}
				welds = append(welds, fromFile...)
			}

			tiles := []*mesh.Mesh{a, b}
			defaults := []mesh.Constraint{{Node: 0, Mask: mesh.UXY}, {Node: 1, Mask: mesh.UY}}
			if err := applyBoundary(tiles, stitchConstraints, stitchLoads, defaults); err != nil {
				return err
			}
			p := analysis.Problem{Tiles: tiles, Welds: welds}
			p.Options.AutoWeldTolerance = autoWeld
			return run(cmd.Context(), configPath, p, nil, stitchOut)
		},
	}
	stitchCmd.Flags().StringVar(&tileA, "tile-a", "", "Tile A mesh file")
	stitchCmd.Flags().StringVar(&tileB, "tile-b", "", "Tile B mesh file")
	stitchCmd.Flags().StringArrayVar(&weldArgs, "weld", nil, "Weld pair a,b (repeatable)")
	stitchCmd.Flags().StringVar(&weldsPath, "welds", "", "Weld pair table (a b)")
	stitchCmd.Flags().Float64Var(&autoWeld, "auto-weld", 0, "Discover weld pairs within this distance")
	stitchCmd.Flags().StringVar(&stitchConstraints, "constraints", "", "Constraint table (node mask)")
	stitchCmd.Flags().StringVar(&stitchLoads, "loads", "", "Load table (node fx fy)")
	stitchCmd.Flags().StringVar(&stitchOut.deformed, "out", "stitched.txt", "Deformed mesh output")
	stitchCmd.Flags().StringVar(&stitchOut.results, "results", "", "Displacement and stress output")
	_ = stitchCmd.MarkFlagRequired("tile-a")
	_ = stitchCmd.MarkFlagRequired("tile-b")

	rootCmd.AddCommand(solveCmd, stitchCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func parseWelds(args []string) ([]mesh.WeldPair, error) {
	var pairs []mesh.WeldPair
	for _, arg := range args {
		parts := strings.Split(arg, ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("weld %q: want a,b", arg)
		}
		a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("weld %q: %w", arg, err)
		}
		b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("weld %q: %w", arg, err)
		}
		pairs = append(pairs, mesh.WeldPair{A: a, B: b})
	}
	return pairs, nil
}

// locate maps a stitched node index to its tile and local index
func locate(tiles []*mesh.Mesh, node int) (*mesh.Mesh, int, error) {
	local := node
	for _, t := range tiles {
		if local >= 0 && local < t.NumNodes() {
			return t, local, nil
		}
		local -= t.NumNodes()
	}
	total := 0
	for _, t := range tiles {
		total += t.NumNodes()
	}
	return nil, 0, &mesh.IndexOutOfRangeError{Owner: "boundary table", Index: node, Count: total}
}

// applyBoundary distributes constraints and loads given in stitched
// numbering over the tiles. defaults are used when constraintsPath is empty.
func applyBoundary(tiles []*mesh.Mesh, constraintsPath, loadsPath string, defaults []mesh.Constraint) error {
	constraints := defaults
	if constraintsPath != "" {
		var err error
		if constraints, err = meshio.ReadConstraints(constraintsPath); err != nil {
			return err
		}
	}
	for _, c := range constraints {
		t, local, err := locate(tiles, c.Node)
		if err != nil {
			return err
		}
		if err := t.AddConstraint(mesh.Constraint{Node: local, Mask: c.Mask}); err != nil {
			return err
		}
	}

	if loadsPath == "" {
		return nil
	}
	loads, err := meshio.ReadLoads(loadsPath)
	if err != nil {
		return err
	}
	for _, l := range loads {
		t, local, err := locate(tiles, l.Node)
		if err != nil {
			return err
		}
		if err := t.AddLoad(local, l.Fx, l.Fy); err != nil {
			return err
		}
	}
	return nil
}

// run solves p with the configured stack. A non-nil mat replaces the
// configured material.
func run(ctx context.Context, configPath string, p analysis.Problem, mat *material.Material, out outputs) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := observability.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	tp, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  cfg.Tracing.ServiceName,
		OTLPEndpoint: cfg.Tracing.Endpoint,
		SampleRate:   cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("tracing shutdown", "error", err)
		}
	}()

	s, err := solver.New(cfg.Solver.Method)
	if err != nil {
		logger.Warn("falling back to band solver", "error", err)
		s = solver.BandCholesky{}
	}
	strategy, err := partitions.ParseStrategy(cfg.Solver.Partition)
	if err != nil {
		logger.Warn("falling back to block partitions", "error", err)
	}

	p.Material = cfg.Material.Material()
	if mat != nil {
		p.Material = *mat
	}
	p.Options.Workers = cfg.Solver.Workers
	p.Options.Solver = s
	p.Options.Logger = logger
	p.Options.Recoverer = postprocess.Parallel{Workers: cfg.Solver.Workers, Strategy: strategy}
	if p.Options.AutoWeldTolerance == 0 {
		p.Options.AutoWeldTolerance = cfg.Seam.Tolerance
	}

	if cfg.Device.Enabled {
		dev, err := device.NewDevice(cfg.Device.Modes...)
		if err != nil {
			logger.Warn("recovering stresses on the host", "error", err)
		} else {
			defer dev.Free()
			logger.Info("recovering stresses on device", "mode", dev.Mode())
			p.Options.Recoverer = &device.StressKernel{Device: dev, Partitions: cfg.Device.Partitions}
		}
	}

	res, err := analysis.Run(ctx, p)
	if err != nil {
		return err
	}

	if err := writeFile(out.deformed, func(f *os.File) error {
		return meshio.WriteDeformed(f, res.Mesh, res.Displacements)
	}); err != nil {
		return err
	}
	if out.results != "" {
		if err := writeFile(out.results, func(f *os.File) error {
			return meshio.WriteResults(f, res.Displacements, res.Stresses)
		}); err != nil {
			return err
		}
	}

	vm, k := postprocess.MaxVonMises(res.Stresses)
	fmt.Printf("nodes %d, elements %d, welds %d, max von Mises %g (element %d)\n",
		res.Mesh.NumNodes(), len(res.Mesh.Elements), len(res.Welds), vm, k)
	return nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}
