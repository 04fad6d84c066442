// Command code-import issues single-use campaign codes in bulk. Codes are
// read from gzip files, kept when they occur in at least -min-files of them,
// and stored as clones of a template rule.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/xenking/kart-promotions/internal/domain/discount"
	"github.com/xenking/kart-promotions/internal/storage/postgres"
)

type options struct {
	databaseURL string
	pattern     string
	templateID  string
	minFiles    int
	minLen      int
	maxLen      int
	batchSize   int
	capacity    uint
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", slog.String("error", err.Error()))
	}

	var opts options

	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.pattern, "files", "data/*.gz", "glob of gzip files with one code per line")
	flag.StringVar(&opts.templateID, "template", "", "id of the rule every imported code is cloned from")
	flag.IntVar(&opts.minFiles, "min-files", 2, "number of files a code must appear in")
	flag.IntVar(&opts.minLen, "min-len", 8, "minimum code length")
	flag.IntVar(&opts.maxLen, "max-len", 10, "maximum code length")
	flag.IntVar(&opts.batchSize, "batch-size", 10_000, "rules per COPY batch")
	flag.UintVar(&opts.capacity, "bloom-capacity", 120_000_000, "expected codes per file")
	flag.Parse()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if opts.templateID == "" {
		slog.Error("template rule id is required: set --template")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		slog.Error("code import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("code import completed successfully")
}

func run(ctx context.Context, opts options) error {
	files, err := filepath.Glob(opts.pattern)
	if err != nil {
		return errors.Wrap(err, "expand file pattern")
	}
	sort.Strings(files)

	scanner := codeScanner{
		minFiles: opts.minFiles,
		minLen:   opts.minLen,
		maxLen:   opts.maxLen,
		capacity: opts.capacity,
		fpRate:   0.001,
	}
	codes, err := scanner.Scan(ctx, files)
	if err != nil {
		return errors.Wrap(err, "scan codes")
	}

	slog.Info("codes selected", slog.Int("count", len(codes)))
	if len(codes) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	rules := postgres.NewRuleRepository(pool)
	template, err := rules.Get(ctx, opts.templateID)
	if err != nil {
		return errors.Wrap(err, "load template rule")
	}

	now := time.Now().UTC()
	var written int64
	for start := 0; start < len(codes); start += opts.batchSize {
		end := min(start+opts.batchSize, len(codes))

		batch := make([]discount.Rule, 0, end-start)
		for _, code := range codes[start:end] {
			batch = append(batch, cloneRule(template, code, now))
		}
		n, err := rules.CopyRules(ctx, batch)
		if err != nil {
			return errors.Wrapf(err, "copy batch at %d", start)
		}
		written += n

		slog.Info("write progress", slog.Int64("written", written), slog.Int("total", len(codes)))
	}

	return nil
}

// cloneRule issues a coupon from template with fresh counters. Budgets are
// tracked per rule, so clones carry none; UsageLimit bounds each code and
// defaults to a single use.
func cloneRule(template *discount.Rule, code string, now time.Time) discount.Rule {
	r := *template
	r.ID = uuid.NewString()
	r.Code = code
	r.IsAutomatic = false
	r.UsageCount = 0
	r.CreatedAt = now
	if r.UsageLimit == 0 {
		r.UsageLimit = 1
	}
	r.Target.ProductIDs = append([]string(nil), template.Target.ProductIDs...)
	r.Target.CategoryIDs = append([]string(nil), template.Target.CategoryIDs...)
	r.Budget = nil
	return r
}
