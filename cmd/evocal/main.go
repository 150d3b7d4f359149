// evocal fits a camera calibration to an image of a calibration target.
//
// Usage:
//
//	evocal <config.yaml>
//
// Ctrl-C stops the search and reports the best solution found so far.
// Ctrl-Z prints the current best solution and refreshes the plot without
// stopping.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironsheep/evocal/internal/calib"
	"github.com/ironsheep/evocal/internal/config"
	"github.com/ironsheep/evocal/internal/detection"
	"github.com/ironsheep/evocal/internal/diag"
	"github.com/ironsheep/evocal/internal/evolve"
	"github.com/ironsheep/evocal/internal/imaging"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: evocal <config.yaml>")
		os.Exit(2)
	}
	switch os.Args[1] {
	case "--version", "-v", "version":
		fmt.Printf("evocal %s\n", Version)
		fmt.Printf("  Build time: %s\n", BuildTime)
		fmt.Printf("  Git commit: %s\n", GitCommit)
		return
	case "--help", "-h", "help":
		fmt.Println("evocal - evolutionary camera calibration")
		fmt.Println()
		fmt.Println("Usage: evocal <config.yaml>")
		fmt.Println()
		fmt.Println("Signals:")
		fmt.Println("  SIGINT (Ctrl-C)     Stop and report the best solution")
		fmt.Println("  SIGTSTP (Ctrl-Z)    Report the current best solution and continue")
		fmt.Println()
		fmt.Println("Environment variables:")
		fmt.Println("  EVOCAL_LOG_LEVEL=debug    Log the version banner at startup")
		return
	}

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	if os.Getenv("EVOCAL_LOG_LEVEL") == "debug" {
		log.Printf("evocal v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// SIGTSTP would suspend the process; it is turned into snapshot requests.
	tstp := make(chan os.Signal, 1)
	signal.Notify(tstp, syscall.SIGTSTP)
	defer signal.Stop(tstp)
	snapshots := make(chan struct{}, 1)
	go func() {
		for range tstp {
			select {
			case snapshots <- struct{}{}:
			default:
			}
		}
	}()

	if err := run(ctx, os.Args[1], os.Stdout, snapshots); err != nil {
		log.Fatalf("Calibration failed: %v", err)
	}
}

// run loads the inputs named by the config at cfgPath, runs the search and
// writes the report to out. Search progress goes to the standard logger.
func run(ctx context.Context, cfgPath string, out io.Writer, snapshots <-chan struct{}) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	frame, err := imaging.NewImageCache().Load(cfg.Target.Image)
	if err != nil {
		return err
	}
	if b := frame.Bounds(); b.Dx() != cfg.Scene.ImageSize[0] || b.Dy() != cfg.Scene.ImageSize[1] {
		log.Printf("Warning: frame is %dx%d but scene.image_size is %dx%d",
			b.Dx(), b.Dy(), cfg.Scene.ImageSize[0], cfg.Scene.ImageSize[1])
	}

	hp := imaging.Highpass(frame, cfg.Scene.HighpassSize)
	targets, err := detection.DetectTargets(hp, cfg.Detection)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.New("no targets detected in the calibration image")
	}
	detected := detection.Positions(targets)

	known, err := calib.LoadKnownPoints(cfg.Target.KnownPoints)
	if err != nil {
		return err
	}
	log.Printf("Detected %d targets, %d known points", len(detected), len(known))

	bounds, err := cfg.Bounds()
	if err != nil {
		return err
	}
	problem := &evolve.Problem{
		RefPoints: known,
		Detected:  detected,
		Glass:     cfg.Glass(),
		Control:   cfg.ControlParams(),
	}
	fitter, err := evolve.NewProblemFitter(problem, bounds, cfg.EvolveConfig())
	if err != nil {
		return err
	}

	report := func(best calib.Vector, fitness float64) error {
		if err := diag.FormatSolution(out, best, fitness); err != nil {
			return err
		}
		if cfg.Output.Plot == "" {
			return nil
		}
		cal, err := calib.FromVector(best, problem.Glass)
		if err != nil {
			return err
		}
		return diag.RenderSolution(hp, detected, cal.PixelCoords(known, problem.Control), cfg.Output.Plot)
	}

	fitter.OnSnapshot(snapshots, func(it int, best calib.Vector, fitness float64) {
		log.Printf("Snapshot at iteration %d", it)
		if err := report(best, fitness); err != nil {
			log.Printf("Snapshot failed: %v", err)
		}
	})

	res, err := fitter.Run(ctx)
	switch {
	case errors.Is(err, evolve.ErrDegenerateFitness):
		log.Printf("Warning: %v", err)
	case err != nil:
		return err
	}
	if res.Best == nil {
		return errors.New("interrupted before the population was scored")
	}
	log.Printf("Stopped after %d iterations: %s", res.Iterations, res.Reason)

	if err := report(res.Best, res.BestFitness); err != nil {
		return err
	}
	if cfg.Output.HistoryPlot != "" && len(res.History) > 0 {
		if err := diag.RenderHistory(res.History, cfg.Output.HistoryPlot); err != nil {
			return err
		}
	}
	return nil
}
