package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/gdal-async/gdal"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Scenario file (YAML)")
		only        = flag.String("run", "", "Scenarios to run (comma-separated, default all)")
		workers     = flag.Int("workers", 0, "Worker pool size (overrides config)")
		size        = flag.String("size", "", "Raster size WxH (overrides config)")
		verbose     = flag.Bool("v", false, "Debug logging to stderr")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if *only != "" {
		cfg.Scenarios = strings.Split(*only, ",")
	}
	if *workers > 0 {
		cfg.Runtime.Workers = *workers
	}
	if *size != "" {
		if _, err := fmt.Sscanf(*size, "%dx%d", &cfg.Width, &cfg.Height); err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -size %q\n", *size)
			os.Exit(1)
		}
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive && !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Fprintln(os.Stderr, "stdout is not a terminal, using plain output")
		*interactive = false
	}
	if *interactive {
		if err := runInteractive(&cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(&cfg, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRuntime(ctx context.Context, cfg *benchConfig, logger *zap.Logger) (*gdal.Runtime, error) {
	opts, err := cfg.options()
	if err != nil {
		return nil, err
	}
	if logger != nil {
		opts = append(opts, gdal.WithLogger(logger))
	}
	return gdal.New(ctx, opts...)
}

func run(cfg *benchConfig, verbose bool) error {
	ctx := context.Background()

	var logger *zap.Logger
	if verbose {
		l, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer l.Sync()
		logger = l
	}

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("create runtime: %w", err)
	}
	defer rt.Close()

	fmt.Printf("Raster: %dx%d (%s per band), block rows: %d\n",
		cfg.Width, cfg.Height, units.BytesSize(float64(cfg.rasterBytes())), cfg.BlockY)
	fmt.Printf("Workers: %d, high water mark: %d\n\n", rt.Pool().Workers(), rt.HighWaterMark())

	for _, name := range cfg.Scenarios {
		fmt.Printf("%-10s ", name)
		res, err := scenarios[name](ctx, rt, cfg, func(int, int) {})
		if err != nil {
			fmt.Println("FAILED")
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Println(formatResult(res))
	}

	st := rt.Stats()
	fmt.Printf("\nTasks: %d submitted, %d panicked; wrappers: %d created, %d destroyed\n",
		st.Pool.Submitted, st.Pool.Panicked, st.Created, st.Destroyed)
	return nil
}

func formatResult(r result) string {
	s := fmt.Sprintf("%-8s %s", r.elapsed.Round(time.Millisecond), r.detail)
	if r.bytes > 0 && r.elapsed > 0 {
		rate := float64(r.bytes) / r.elapsed.Seconds()
		s += fmt.Sprintf(", %s/s", units.BytesSize(rate))
	}
	return s
}
