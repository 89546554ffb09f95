package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/catalogsync/import-service/internal/database"
	"github.com/catalogsync/import-service/internal/types"
)

// PostgresSchema creates the catalog table read by PostgresStore
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS catalog_products (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	name           TEXT NOT NULL,
	sku            TEXT,
	price          DOUBLE PRECISION NOT NULL DEFAULT 0,
	cost_price     DOUBLE PRECISION,
	stock_quantity INTEGER,
	category       TEXT,
	status         TEXT NOT NULL DEFAULT 'active',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_catalog_products_tenant ON catalog_products (tenant_id, created_at, id);
`

const snapshotQuery = `
SELECT id, name, sku, price, cost_price, stock_quantity, category, status
FROM catalog_products
WHERE tenant_id = $1
ORDER BY created_at, id`

// PostgresStore reads catalog snapshots from PostgreSQL
type PostgresStore struct {
	pool  *pgxpool.Pool
	owned bool
}

// NewPostgresStore wraps an existing pool; Close leaves the pool open
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// OpenPostgres connects to url and owns the resulting pool
func OpenPostgres(ctx context.Context, url string) (*PostgresStore, error) {
	pool, err := database.Connect(ctx, database.Config{URL: url})
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, owned: true}, nil
}

// EnsureSchema creates the catalog table when missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return nil
}

// Snapshot loads every product of the tenant
func (s *PostgresStore) Snapshot(ctx context.Context, tenant string) ([]types.CatalogProduct, error) {
	rows, err := s.pool.Query(ctx, snapshotQuery, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	products := make([]types.CatalogProduct, 0)
	for rows.Next() {
		var p types.CatalogProduct
		var status string
		if err := rows.Scan(&p.ID, &p.Name, &p.SKU, &p.Price, &p.CostPrice, &p.StockQuantity, &p.Category, &status); err != nil {
			return nil, fmt.Errorf("failed to scan catalog product: %w", err)
		}
		p.Status = types.ProductStatus(status)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	log.Debug().Str("tenant", tenant).Int("products", len(products)).Msg("Loaded catalog snapshot")
	return products, nil
}

// Insert adds products for a tenant in one batch; used to seed snapshots
func (s *PostgresStore) Insert(ctx context.Context, tenant string, products []types.CatalogProduct) error {
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(`
			INSERT INTO catalog_products (id, tenant_id, name, sku, price, cost_price, stock_quantity, category, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, clock_timestamp())`,
			p.ID, tenant, p.Name, p.SKU, p.Price, p.CostPrice, p.StockQuantity, p.Category, string(statusOrActive(p.Status)))
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert catalog products: %w", err)
	}
	return nil
}

// Close releases the pool when the store opened it
func (s *PostgresStore) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}

func statusOrActive(s types.ProductStatus) types.ProductStatus {
	if s == "" {
		return types.StatusActive
	}
	return s
}
