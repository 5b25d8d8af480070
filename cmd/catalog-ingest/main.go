package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/gallery-checkout/internal/domain/catalog"
	"github.com/xenking/gallery-checkout/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	batchSize     = 1000
	progressEvery = 100_000
	maxLineBytes  = 1 << 20
)

// upserter writes artworks to the catalog.
type upserter interface {
	Upsert(ctx context.Context, items []catalog.Item) error
}

func main() {
	var (
		dataDir     string
		pattern     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing gzipped NDJSON artwork exports")
	flag.StringVar(&pattern, "pattern", "*.ndjson.gz", "file glob inside data-dir; files are applied in name order")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, pattern, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, pattern, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, pattern))
	if err != nil {
		return errors.Wrap(err, "glob data files")
	}
	if len(files) == 0 {
		slog.Info("no files to ingest", slog.String("dir", dataDir), slog.String("pattern", pattern))
		return nil
	}
	slices.Sort(files)

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return ingest(ctx, files, postgres.NewCatalogRepository(pool))
}

// ingest loads files into the catalog. When an artwork id appears in more than
// one file the record from the file latest in order wins. Files are written
// concurrently, so records superseded by a later file are held back instead of
// written.
func ingest(ctx context.Context, files []string, repo upserter) error {
	// Pass 1: one bloom filter of ids per file.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: write records not present in any later file.
	slog.Info("pass 2: writing artworks")

	held, err := writeFiles(ctx, files, filters, repo)
	if err != nil {
		return errors.Wrap(err, "write artworks")
	}

	// Pass 3: bloom filters give false positives. Write held records whose id
	// does not actually occur in a later file.
	if len(held) == 0 {
		return nil
	}
	slog.Info("pass 3: resolving held records", slog.Int("held", len(held)))

	return resolveHeld(ctx, files, held, repo)
}

// heldRecord is a record skipped in pass 2 because a later file may replace it.
type heldRecord struct {
	file int
	item catalog.Item
}

func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
			var count int
			if err := streamGzFile(ctx, f, func(it catalog.Item) error {
				filter.AddString(strconv.FormatInt(it.ID, 10))
				count++
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", f)
			}

			slog.Info("pass 1 complete", slog.String("file", f), slog.Int("records", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

func writeFiles(ctx context.Context, files []string, filters []*bloom.BloomFilter, repo upserter) (map[int64]heldRecord, error) {
	var (
		mu   sync.Mutex
		held = make(map[int64]heldRecord)
	)

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			batch := make([]catalog.Item, 0, batchSize)
			var written int
			flush := func() error {
				if len(batch) == 0 {
					return nil
				}
				if err := repo.Upsert(ctx, batch); err != nil {
					return err
				}
				written += len(batch)
				if written%progressEvery < len(batch) {
					slog.Info("pass 2 progress", slog.String("file", f), slog.Int("written", written))
				}
				batch = batch[:0]
				return nil
			}

			err := streamGzFile(ctx, f, func(it catalog.Item) error {
				if inLaterFile(filters, i, it.ID) {
					mu.Lock()
					// Within a file the last occurrence wins.
					held[it.ID] = newerHeld(held[it.ID], heldRecord{file: i, item: it})
					mu.Unlock()
					return nil
				}
				batch = append(batch, it)
				if len(batch) == batchSize {
					return flush()
				}
				return nil
			})
			if err == nil {
				err = flush()
			}
			if err != nil {
				return errors.Wrapf(err, "ingest %s", f)
			}

			slog.Info("pass 2 complete", slog.String("file", f), slog.Int("written", written))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return held, nil
}

func resolveHeld(ctx context.Context, files []string, held map[int64]heldRecord, repo upserter) error {
	// lastSeen is the index of the latest file that really contains each held id.
	lastSeen := make(map[int64]int, len(held))
	for i, f := range files {
		if err := streamGzFile(ctx, f, func(it catalog.Item) error {
			if _, ok := held[it.ID]; ok {
				lastSeen[it.ID] = i
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "rescan %s", f)
		}
	}

	var items []catalog.Item
	for id, h := range held {
		if lastSeen[id] == h.file {
			items = append(items, h.item)
		}
	}
	slog.Info("pass 3 complete", slog.Int("false_positives", len(items)))

	for chunk := range slices.Chunk(items, batchSize) {
		if err := repo.Upsert(ctx, chunk); err != nil {
			return errors.Wrap(err, "write held records")
		}
	}
	return nil
}

// inLaterFile reports whether any filter after idx may contain id.
func inLaterFile(filters []*bloom.BloomFilter, idx int, id int64) bool {
	key := strconv.FormatInt(id, 10)
	for _, f := range filters[idx+1:] {
		if f.TestString(key) {
			return true
		}
	}
	return false
}

func newerHeld(cur, next heldRecord) heldRecord {
	if cur.item.ID == 0 || next.file >= cur.file {
		return next
	}
	return cur
}

// streamGzFile opens a gzip-compressed NDJSON file and calls fn for each
// artwork record. Blank lines are skipped.
func streamGzFile(ctx context.Context, path string, fn func(catalog.Item) error) error {
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
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)
	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		it, err := parseArtwork(scanner.Bytes())
		if err != nil {
			return errors.Wrapf(err, "%s:%d", path, line)
		}
		if err := fn(it); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
