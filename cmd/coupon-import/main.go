// Command coupon-import bulk-loads coupon codes from gzipped text files.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sakkat/grocery-market/internal/domain/coupon"
	"github.com/sakkat/grocery-market/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
)

// Importer stores one coupon unless its code exists.
type Importer interface {
	Import(ctx context.Context, c coupon.Coupon) (bool, error)
}

type stats struct {
	read      atomic.Int64
	invalid   atomic.Int64
	duplicate atomic.Int64
	inserted  atomic.Int64
	existing  atomic.Int64
}

func (s *stats) log(msg string) {
	slog.Info(msg,
		slog.Int64("read", s.read.Load()),
		slog.Int64("invalid", s.invalid.Load()),
		slog.Int64("duplicate", s.duplicate.Load()),
		slog.Int64("inserted", s.inserted.Load()),
		slog.Int64("existing", s.existing.Load()),
	)
}

func main() {
	_ = godotenv.Load()

	var (
		dataDir     string
		databaseURL string
		writers     int
		defType     string
		defValue    string
		defMinOrder string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory scanned for *.gz files when no files are given")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&writers, "writers", 8, "concurrent database writers")
	flag.StringVar(&defType, "type", "percentage", "discount type for codes listed without one")
	flag.StringVar(&defValue, "value", "10", "discount value for codes listed without one")
	flag.StringVar(&defMinOrder, "min-order", "0", "minimum order value for codes listed without one")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("MARKET_DATABASE_URL")
	}
	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	def, err := defaultRule(defType, defValue, defMinOrder)
	if err != nil {
		slog.Error("invalid default rule", slog.String("error", err.Error()))
		os.Exit(1)
	}

	files := flag.Args()
	if len(files) == 0 {
		if files, err = filepath.Glob(filepath.Join(dataDir, "*.gz")); err != nil {
			slog.Error("list data dir", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	if len(files) == 0 {
		slog.Error("no input files")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		slog.Error("connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	var st stats
	if err := run(ctx, postgres.NewCouponRepository(pool), files, def, writers, &st); err != nil {
		st.log("coupon import failed")
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	st.log("coupon import completed")
}

func defaultRule(typ, value, minOrder string) (rule, error) {
	var (
		r   rule
		err error
	)
	if r.discountType, err = coupon.ParseDiscountType(typ); err != nil {
		return r, err
	}
	if r.value, err = decimal.NewFromString(value); err != nil {
		return r, errors.Wrap(err, "value")
	}
	if r.minOrderValue, err = decimal.NewFromString(minOrder); err != nil {
		return r, errors.Wrap(err, "min order")
	}
	return r, nil
}

// run reads all files concurrently, drops codes already seen in any file
// and inserts the rest with writers concurrent workers.
func run(ctx context.Context, repo Importer, files []string, def rule, writers int, st *stats) error {
	writers = max(writers, 1)

	parsed := make(chan coupon.Coupon, 1024)
	unique := make(chan coupon.Coupon, 1024)

	g, ctx := errgroup.WithContext(ctx)

	readers, rctx := errgroup.WithContext(ctx)
	for _, path := range files {
		readers.Go(func() error {
			return readFile(rctx, path, def, parsed, st)
		})
	}
	g.Go(func() error {
		defer close(parsed)
		return readers.Wait()
	})

	g.Go(func() error {
		defer close(unique)
		seen := newDedupe(bloomCapacity, bloomFPR)
		for c := range parsed {
			if !seen.first(c.Code) {
				st.duplicate.Add(1)
				continue
			}
			select {
			case unique <- c:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for range writers {
		g.Go(func() error {
			for c := range unique {
				inserted, err := repo.Import(ctx, c)
				if err != nil {
					return errors.Wrapf(err, "import %s", c.Code)
				}
				if inserted {
					st.inserted.Add(1)
				} else {
					st.existing.Add(1)
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// readFile streams one gzipped file into out.
func readFile(ctx context.Context, path string, def rule, out chan<- coupon.Coupon, st *stats) error {
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

	scanner := bufio.NewScanner(gz)
	line := 0
	for scanner.Scan() {
		line++
		c, ok, err := parseLine(scanner.Text(), def)
		if err != nil {
			st.invalid.Add(1)
			slog.Warn("skipping line", slog.String("file", path), slog.Int("line", line), slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		if n := st.read.Add(1); n%progressEvery == 0 {
			st.log("import progress")
		}
		select {
		case out <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	slog.Info("file complete", slog.String("file", path), slog.Int("lines", line))
	return nil
}
