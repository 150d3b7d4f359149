// particles runs one particle detector on a frame or reads targets from a
// recorded blob file.
//
// Usage examples:
//
//	# Large particles by template matching
//	particles -method large -size 15 -thresh 0.5 frame.tif
//
//	# Difference-of-Gaussians blobs in the top-left quadrant
//	particles -method blobs -roi top-left frame.tif
//
//	# Calibration targets after background removal
//	particles -method targets -highpass 25 cam0.tif
//
//	# Frame 12 of a blob file, as YAML
//	particles -method blobfile -frame 12 -format yaml blob0.dat
//
//	# Summaries of several blob files
//	particles -method scan blob0.dat blob1.dat blob2.dat
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ironsheep/evocal/internal/blobfile"
	"github.com/ironsheep/evocal/internal/detection"
	"github.com/ironsheep/evocal/internal/imaging"
)

type options struct {
	method    string
	size      int
	thresh    float64
	roi       string
	highpass  int
	frame     int
	maxFrames int
	format    string
}

func main() {
	var opts options
	flag.StringVar(&opts.method, "method", "large", "Detector: 'large', 'blobs', 'targets', 'blobfile' or 'scan'")
	flag.IntVar(&opts.size, "size", 15, "Approximate particle size in pixels")
	flag.Float64Var(&opts.thresh, "thresh", -1, "Detection threshold (default 0.5 for large, 0.1 for blobs, 40 for targets)")
	flag.StringVar(&opts.roi, "roi", "", "Region of interest: named region or x1,y1,x2,y2")
	flag.IntVar(&opts.highpass, "highpass", -1, "Highpass filter size (default 0, 25 for targets)")
	flag.IntVar(&opts.frame, "frame", 0, "Frame number for -method blobfile")
	flag.IntVar(&opts.maxFrames, "max-frames", 100, "Frames to read per file for -method scan")
	flag.StringVar(&opts.format, "format", "text", "Output format: 'text', 'json' or 'yaml'")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: particles [options] <frame or blob file>...")
		fmt.Fprintln(os.Stderr, "\nOptions:")
		flag.PrintDefaults()
		os.Exit(2)
	}

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, opts, flag.Args(), os.Stdout); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(ctx context.Context, opts options, args []string, out io.Writer) error {
	switch opts.format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown format: %s (use 'text', 'json' or 'yaml')", opts.format)
	}

	switch strings.ToLower(opts.method) {
	case "large", "blobs", "targets":
		targets, err := detect(opts, args[0])
		if err != nil {
			return err
		}
		return writeTargets(out, opts.format, targets)

	case "blobfile":
		f, err := blobfile.ReadFrame(args[0], opts.frame)
		if err != nil {
			return err
		}
		if os.Getenv("EVOCAL_LOG_LEVEL") == "debug" {
			log.Printf("Frame %d: stamp %d, %d blobs", f.Index, f.Stamp, len(f.Records))
		}
		return writeTargets(out, opts.format, f.Targets(opts.size))

	case "scan":
		summaries, err := blobfile.ScanFiles(ctx, args, opts.maxFrames)
		if err != nil {
			return err
		}
		return writeSummaries(out, opts.format, summaries)

	default:
		return fmt.Errorf("unknown method: %s", opts.method)
	}
}

func detect(opts options, path string) ([]detection.Target, error) {
	img, err := imaging.NewImageCache().Load(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	roi, err := imaging.ParseRegion(opts.roi, b.Dx(), b.Dy())
	if err != nil {
		return nil, err
	}
	region, err := imaging.CropRegion(img, roi)
	if err != nil {
		return nil, err
	}

	var targets []detection.Target
	switch strings.ToLower(opts.method) {
	case "large":
		targets, err = detection.DetectLargeParticles(highpass(region, opts.highpass, 0), opts.size, threshold(opts.thresh, 0.5))
	case "blobs":
		targets, err = detection.DetectBlobs(highpass(region, opts.highpass, 0), opts.size, threshold(opts.thresh, 0.1))
	case "targets":
		p := detection.DefaultTargetParams()
		if opts.thresh >= 0 {
			p.GreyThreshold = int(opts.thresh)
		}
		size := opts.highpass
		if size < 0 {
			size = 25
		}
		targets, err = detection.DetectTargets(imaging.Highpass(region, size), p)
	}
	if err != nil {
		return nil, err
	}

	for i := range targets {
		targets[i].X += float64(roi.Min.X)
		targets[i].Y += float64(roi.Min.Y)
	}
	return targets, nil
}

func highpass(img image.Image, size, def int) image.Image {
	if size < 0 {
		size = def
	}
	if size == 0 {
		return img
	}
	return imaging.Highpass(img, size)
}

func threshold(v, def float64) float64 {
	if v < 0 {
		return def
	}
	return v
}

func writeTargets(out io.Writer, format string, targets []detection.Target) error {
	if targets == nil {
		targets = []detection.Target{}
	}
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(targets)
	case "yaml":
		return yaml.NewEncoder(out).Encode(targets)
	}

	if _, err := fmt.Fprintf(out, "%d targets\n", len(targets)); err != nil {
		return err
	}
	for _, t := range targets {
		if _, err := fmt.Fprintf(out, "%4d %10.3f %10.3f %6d %4d %4d %8d\n",
			t.PNR, t.X, t.Y, t.N, t.NX, t.NY, t.SumGrey); err != nil {
			return err
		}
	}
	return nil
}

func writeSummaries(out io.Writer, format string, summaries []blobfile.Summary) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	case "yaml":
		return yaml.NewEncoder(out).Encode(summaries)
	}

	for _, s := range summaries {
		if s.Err != "" {
			if _, err := fmt.Fprintf(out, "%s: %s\n", s.Path, s.Err); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(out, "%s: %d frames in file, %d read, %d blobs, %d non-empty\n",
			s.Path, s.Header.FrameCount, s.Frames, s.Blobs, s.NonEmpty); err != nil {
			return err
		}
	}
	return nil
}
