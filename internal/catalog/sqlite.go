package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/catalogsync/import-service/internal/types"
)

// SQLiteSchema creates the catalog table read by SQLiteStore
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS catalog_products (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	name           TEXT NOT NULL,
	sku            TEXT,
	price          REAL NOT NULL DEFAULT 0,
	cost_price     REAL,
	stock_quantity INTEGER,
	category       TEXT,
	status         TEXT NOT NULL DEFAULT 'active'
);
CREATE INDEX IF NOT EXISTS idx_catalog_products_tenant ON catalog_products (tenant_id);
`

// SQLiteStore reads catalog snapshots from a local SQLite file, for CLI
// previews against an exported catalog
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and creates when missing) a SQLite catalog.
// ":memory:" gives a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite catalog: %w", err)
	}
	// In-memory databases exist per connection
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create catalog schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Snapshot loads every product of the tenant in insertion order
func (s *SQLiteStore) Snapshot(ctx context.Context, tenant string) ([]types.CatalogProduct, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sku, price, cost_price, stock_quantity, category, status
		FROM catalog_products
		WHERE tenant_id = ?
		ORDER BY rowid`, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	products := make([]types.CatalogProduct, 0)
	for rows.Next() {
		var (
			p        types.CatalogProduct
			sku      sql.NullString
			cost     sql.NullFloat64
			stock    sql.NullInt64
			category sql.NullString
			status   string
		)
		if err := rows.Scan(&p.ID, &p.Name, &sku, &p.Price, &cost, &stock, &category, &status); err != nil {
			return nil, fmt.Errorf("failed to scan catalog product: %w", err)
		}
		if sku.Valid {
			p.SKU = &sku.String
		}
		if cost.Valid {
			p.CostPrice = &cost.Float64
		}
		if stock.Valid {
			n := int(stock.Int64)
			p.StockQuantity = &n
		}
		if category.Valid {
			p.Category = &category.String
		}
		p.Status = types.ProductStatus(status)
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	log.Debug().Str("tenant", tenant).Int("products", len(products)).Msg("Loaded sqlite catalog snapshot")
	return products, nil
}

// Insert adds products for a tenant in one transaction
func (s *SQLiteStore) Insert(ctx context.Context, tenant string, products []types.CatalogProduct) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_products (id, tenant_id, name, sku, price, cost_price, stock_quantity, category, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.ExecContext(ctx, p.ID, tenant, p.Name, p.SKU, p.Price, p.CostPrice, p.StockQuantity, p.Category, string(statusOrActive(p.Status))); err != nil {
			return fmt.Errorf("failed to insert %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
