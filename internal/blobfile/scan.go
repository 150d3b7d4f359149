package blobfile

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"

	"github.com/sourcegraph/conc/pool"
)

// Summary describes the start of one blob file.
type Summary struct {
	Path   string `json:"path"`
	Header Header `json:"header"`

	// Frames is the number of frames read, at most the scan limit.
	Frames int `json:"frames"`
	// Blobs is the total blob count of those frames.
	Blobs int `json:"blobs"`
	// NonEmpty counts frames with at least one blob.
	NonEmpty int `json:"non_empty"`

	// Err is set when the file could not be read to the limit.
	Err string `json:"error,omitempty"`
}

// ScanFiles reads the headers and up to maxFrames frames of every path
// concurrently. Per-file failures are reported in Summary.Err; only
// cancellation of ctx fails the whole scan. Summaries are in path order.
func ScanFiles(ctx context.Context, paths []string, maxFrames int) ([]Summary, error) {
	type indexed struct {
		i int
		s Summary
	}

	p := pool.NewWithResults[indexed]().WithContext(ctx).WithMaxGoroutines(4)
	for i, path := range paths {
		p.Go(func(ctx context.Context) (indexed, error) {
			if err := ctx.Err(); err != nil {
				return indexed{}, err
			}
			return indexed{i: i, s: scanFile(ctx, path, maxFrames)}, nil
		})
	}

	results, err := p.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(results, func(a, b int) bool { return results[a].i < results[b].i })
	summaries := make([]Summary, len(results))
	for i, r := range results {
		summaries[i] = r.s
	}
	return summaries, nil
}

func scanFile(ctx context.Context, path string, maxFrames int) Summary {
	s := Summary{Path: path}

	f, err := os.Open(path)
	if err != nil {
		s.Err = err.Error()
		return s
	}
	defer f.Close()

	r, err := NewReader(f)
	if err != nil {
		s.Err = err.Error()
		return s
	}
	s.Header = r.Header()

	for s.Frames < maxFrames {
		if ctx.Err() != nil {
			s.Err = ctx.Err().Error()
			return s
		}
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.Err = err.Error()
			return s
		}
		s.Frames++
		s.Blobs += len(frame.Records)
		if len(frame.Records) > 0 {
			s.NonEmpty++
		}
	}
	return s
}
