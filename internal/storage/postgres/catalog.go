package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/gallery-checkout/internal/domain/catalog"
)

const (
	resolvePricesSQL = `SELECT id, price, seller_id, status FROM artworks WHERE id = ANY($1)`

	getArtworkByIDSQL = `SELECT id, seller_id, title, price, image_url, status
		FROM artworks WHERE id = $1`

	getArtworksByIDsSQL = `SELECT id, seller_id, title, price, image_url, status
		FROM artworks WHERE id = ANY($1) ORDER BY id`

	upsertArtworkSQL = `INSERT INTO artworks (id, seller_id, title, price, image_url, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			seller_id = EXCLUDED.seller_id,
			title     = EXCLUDED.title,
			price     = EXCLUDED.price,
			image_url = EXCLUDED.image_url,
			status    = EXCLUDED.status`

	syncArtworkSeqSQL = `SELECT setval(pg_get_serial_sequence('artworks', 'id'),
		GREATEST((SELECT max(id) FROM artworks), 1))`
)

var (
	_ catalog.Resolver = (*CatalogRepository)(nil)
	_ catalog.Reader   = (*CatalogRepository)(nil)
)

// CatalogRepository reads artworks for pricing and display and writes them
// for the seed and ingest tools.
type CatalogRepository struct {
	db querier
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: pool}
}

// Resolve reads current price, seller and status for ids in one statement.
// Unknown ids are absent from the result.
func (r *CatalogRepository) Resolve(ctx context.Context, ids []int64) (map[int64]catalog.Quote, error) {
	quotes := make(map[int64]catalog.Quote, len(ids))
	if len(ids) == 0 {
		return quotes, nil
	}

	rows, err := r.db.Query(ctx, resolvePricesSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "resolve prices")
	}
	var (
		id     int64
		status string
		q      catalog.Quote
	)
	_, err = pgx.ForEachRow(rows, []any{&id, &q.UnitPrice, &q.SellerID, &status}, func() error {
		q.Status = catalog.Status(status)
		quotes[id] = q
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "resolve prices")
	}
	return quotes, nil
}

// GetByID returns a single artwork by its identifier.
func (r *CatalogRepository) GetByID(ctx context.Context, id int64) (*catalog.Item, error) {
	rows, err := r.db.Query(ctx, getArtworkByIDSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get artwork %d", id)
	}

	it, err := pgx.CollectExactlyOneRow(rows, scanArtwork)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get artwork %d", id)
	}
	return &it, nil
}

// GetByIDs returns the artworks matching any of ids, ordered by id.
func (r *CatalogRepository) GetByIDs(ctx context.Context, ids []int64) ([]catalog.Item, error) {
	rows, err := r.db.Query(ctx, getArtworksByIDsSQL, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get artworks by ids")
	}
	return pgx.CollectRows(rows, scanArtwork)
}

// Upsert inserts or replaces artworks by id in one batch and moves the id
// sequence past the highest stored id.
func (r *CatalogRepository) Upsert(ctx context.Context, items []catalog.Item) error {
	if len(items) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for _, it := range items {
		b.Queue(upsertArtworkSQL, it.ID, it.SellerID, it.Title, it.Price, it.ImageURL, string(it.Status))
	}
	b.Queue(syncArtworkSeqSQL)

	if err := r.db.SendBatch(ctx, b).Close(); err != nil {
		return errors.Wrapf(err, "upsert %d artworks", len(items))
	}
	return nil
}

func scanArtwork(row pgx.CollectableRow) (catalog.Item, error) {
	var (
		it     catalog.Item
		status string
	)
	err := row.Scan(&it.ID, &it.SellerID, &it.Title, &it.Price, &it.ImageURL, &status)
	it.Status = catalog.Status(status)
	return it, err
}
