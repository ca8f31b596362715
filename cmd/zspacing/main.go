package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"zspacing/internal/logging"
	"zspacing/internal/models"
	"zspacing/pkg/config"
	"zspacing/pkg/export"
	"zspacing/pkg/inference"
	"zspacing/pkg/similarity"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "zspacing.yaml", "Configuration file (.yaml or .toml)")
	initConfig := flag.Bool("init-config", false, "Write the default configuration to -config and exit")
	input := flag.String("input", "", "CSV file holding the section similarity matrix")
	outputDir := flag.String("output", "", "Directory for result files (overrides output.directory)")
	resume := flag.String("resume", "", "Snapshot of a previous run to continue from")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (overrides processing.numCores)")
	comparisonRange := flag.Int("range", 0, "Comparison range (overrides solver.comparisonRange)")
	iterations := flag.Int("iterations", 0, "Number of iterations (overrides solver.iterations)")
	reorder := flag.Bool("reorder", false, "Allow sections to swap places (overrides solver.withReorder)")
	flag.Parse()

	if *initConfig {
		if err := config.CreateDefaultConfigFile(*configPath); err != nil {
			log.Fatalf("Failed to write default configuration: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *configPath)
		return
	}

	if *input == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "output":
			cfg.Output.Directory = *outputDir
		case "cores":
			cfg.Processing.NumCores = *numCores
		case "range":
			cfg.Solver.ComparisonRange = *comparisonRange
		case "iterations":
			cfg.Solver.Iterations = *iterations
		case "reorder":
			cfg.Solver.WithReorder = *reorder
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, cfg, *input, *resume); err != nil {
		log.Fatalf("Run failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, input, resume string) error {
	logger, closer, err := logging.New(cfg.LoggingConfig())
	if err != nil {
		return err
	}
	defer closer.Close()

	opts, err := cfg.ToOptions()
	if err != nil {
		return err
	}
	opts.Logger = logger

	m, err := loadMatrix(input, opts.ComparisonRange)
	if err != nil {
		return err
	}
	initial := similarity.IdentityCoordinates(m.Size())
	if resume != "" {
		snap, err := export.LoadSnapshot(resume)
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		if initial, err = snap.Resume(&opts); err != nil {
			return err
		}
		logger.Info("resuming run", "snapshot", resume, "iteration", snap.Iteration)
	}

	dir := cfg.Output.Directory
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	snapshotPath := filepath.Join(dir, "state.json.zst")

	var visitors []inference.Visitor
	if cfg.Output.SaveIterations {
		iterDir := filepath.Join(dir, "iterations")
		if err := os.MkdirAll(iterDir, 0755); err != nil {
			return err
		}
		visitors = append(visitors, export.CSVVisitor(iterDir))
	}
	if cfg.Output.SnapshotEvery > 0 {
		visitors = append(visitors, export.SnapshotVisitor(snapshotPath, cfg.Output.SnapshotEvery))
	}

	solver, err := inference.NewSolver(opts)
	if err != nil {
		return err
	}

	fmt.Println("================================")
	fmt.Println("Z-SPACING CORRECTION")
	fmt.Println("================================")
	fmt.Printf("Sections: %s, comparison range: %d, iterations: %d\n",
		humanize.Comma(int64(m.Size())), opts.ComparisonRange, opts.Iterations)

	start := time.Now()
	res, err := solver.Run(ctx, m, initial, visitors...)
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := writeResults(dir, m, res, cfg); err != nil {
		return err
	}
	if err := export.SaveSnapshot(snapshotPath, export.ResultSnapshot(res)); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	printSummary(res, elapsed, snapshotPath)
	return nil
}

func loadMatrix(path string, comparisonRange int) (*similarity.Strip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := similarity.ReadCSV(f, comparisonRange)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return m, nil
}

func writeResults(dir string, m similarity.Matrix, res *inference.Result, cfg *config.Config) error {
	if err := create(filepath.Join(dir, "coordinates.csv"), func(w io.Writer) error {
		return export.WriteCoordinates(w, res.Coordinates, nil, res.ScalingFactors)
	}); err != nil {
		return err
	}
	if res.Fit != nil {
		if err := create(filepath.Join(dir, "fit.csv"), func(w io.Writer) error {
			return export.WriteFit(w, res.Fit)
		}); err != nil {
			return err
		}
	}
	if cfg.Output.RenderMatrix {
		opts := cfg.RenderOptions()
		return create(filepath.Join(dir, "matrix.jpg"), func(w io.Writer) error {
			return export.RenderMatrix(w, m, res.Coordinates, res.Permutation, opts)
		})
	}
	return nil
}

func create(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func printSummary(res *inference.Result, elapsed time.Duration, snapshotPath string) {
	sections := models.SectionsFromCoordinates(res.Coordinates, res.ScalingFactors)
	metrics := res.Report.Metrics

	fmt.Printf("\nRun completed in %.2f seconds\n", elapsed.Seconds())
	fmt.Printf("Stack extent: %.3f\n", models.Extent(sections))
	fmt.Printf("Section thickness: mean %.4f, std %.4f, min %.4f, max %.4f\n",
		metrics.MeanThickness, metrics.StdDevThickness, metrics.MinThickness, metrics.MaxThickness)
	fmt.Printf("Fit residual (RMSE): %.6f over %s pairs\n", metrics.RMSE, humanize.Comma(int64(metrics.Pairs)))

	if res.Report.Degraded() {
		fmt.Printf("Degraded estimates: %d fit buckets, %d scaling factors fell back\n",
			res.Report.FitFallbacks(), res.Report.ScalingFallbacks())
	}
	if n := len(res.Report.VisitorErrors); n > 0 {
		fmt.Printf("Observer failures: %d (first: %v)\n", n, res.Report.VisitorErrors[0])
	}
	if res.Permutation != nil && !res.Permutation.IsIdentity() {
		moved := 0
		for _, s := range sections {
			if s.Rank != s.Index {
				moved++
			}
		}
		fmt.Printf("Reordered sections: %d\n", moved)
	}
	if info, err := os.Stat(snapshotPath); err == nil {
		fmt.Printf("Snapshot saved to: %s (%s)\n", snapshotPath, humanize.Bytes(uint64(info.Size())))
	}
}
