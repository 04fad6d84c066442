package main

import (
	"bufio"
	"context"
	"log/slog"
	"math/bits"
	"os"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"
)

const (
	maxFiles      = 64
	progressEvery = 10_000_000
)

// codeScanner selects the codes present in at least minFiles input files.
//
// Pass 1 builds one bloom filter per file. Pass 2 re-reads every file and
// keeps a code only when enough other filters report it, tagging it with the
// file's bit. Merging the bitmasks confirms the count exactly, discarding
// bloom false positives.
type codeScanner struct {
	minFiles int
	minLen   int
	maxLen   int
	capacity uint
	fpRate   float64
}

// Scan returns the selected codes, upper-cased and sorted.
func (s codeScanner) Scan(ctx context.Context, files []string) ([]string, error) {
	switch {
	case len(files) == 0:
		return nil, errors.New("no input files")
	case len(files) > maxFiles:
		return nil, errors.Errorf("%d input files, at most %d supported", len(files), maxFiles)
	case s.minFiles < 1 || s.minFiles > len(files):
		return nil, errors.Errorf("min files %d out of range [1, %d]", s.minFiles, len(files))
	}

	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters := make([]*bloom.BloomFilter, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			f, err := s.buildFilter(gctx, i, path)
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			filters[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slog.Info("pass 2: finding candidate codes")

	found := make([]map[string]uint64, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			c, err := s.candidates(gctx, i, path, filters)
			if err != nil {
				return errors.Wrapf(err, "scan %s for candidates", path)
			}
			found[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint64)
	for _, c := range found {
		for code, mask := range c {
			merged[code] |= mask
		}
	}

	var codes []string
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= s.minFiles {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

func (s codeScanner) buildFilter(ctx context.Context, idx int, path string) (*bloom.BloomFilter, error) {
	filter := bloom.NewWithEstimates(s.capacity, s.fpRate)
	var count uint64

	if err := s.stream(ctx, path, func(code string) {
		filter.AddString(code)
		count++
		if count%progressEvery == 0 {
			slog.Info("pass 1 progress", slog.Int("file", idx+1), slog.Uint64("codes", count))
		}
	}); err != nil {
		return nil, err
	}

	slog.Info("pass 1 complete", slog.Int("file", idx+1), slog.Uint64("total_codes", count))
	return filter, nil
}

func (s codeScanner) candidates(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
) (map[string]uint64, error) {
	candidates := make(map[string]uint64)
	fileBit := uint64(1) << uint(idx)
	need := s.minFiles - 1
	var count uint64

	if err := s.stream(ctx, path, func(code string) {
		count++
		if count%progressEvery == 0 {
			slog.Info("pass 2 progress", slog.Int("file", idx+1), slog.Uint64("codes", count))
		}

		hits := 0
		for j, f := range filters {
			if hits >= need {
				break
			}
			if j != idx && f.TestString(code) {
				hits++
			}
		}
		if hits >= need {
			candidates[code] |= fileBit
		}
	}); err != nil {
		return nil, err
	}

	slog.Info("pass 2 complete",
		slog.Int("file", idx+1),
		slog.Uint64("total_codes", count),
		slog.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// stream calls fn with every well-formed code of a gzip file.
func (s codeScanner) stream(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := strings.ToUpper(strings.TrimSpace(sc.Text()))
		if len(code) < s.minLen || len(code) > s.maxLen {
			continue
		}
		fn(code)
	}
	if err := sc.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
