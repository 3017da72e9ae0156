package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "modernc.org/sqlite"
)

// Product is the catalog view the cart needs: what to show and what to charge.
type Product struct {
	ID        string
	TenantID  string
	Title     string
	Price     int64
	Currency  string
	Available bool
}

type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// sqlite allows one writer; ":memory:" databases also live on a single connection
	db.SetMaxOpenConns(1)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations(migrationsPath string) error {
	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"sqlite",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

// Lookup returns the product of a tenant, or domain.ErrProductNotFound.
func (r *Repository) Lookup(ctx context.Context, tenantID, productID string) (*Product, error) {
	query := `
		SELECT id, tenant_id, title, price_minor, currency, available
		FROM products
		WHERE tenant_id = ? AND id = ?
	`

	p := &Product{}
	err := r.db.QueryRowContext(ctx, query, tenantID, productID).Scan(
		&p.ID,
		&p.TenantID,
		&p.Title,
		&p.Price,
		&p.Currency,
		&p.Available,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query product: %w", err)
	}
	return p, nil
}

func (r *Repository) ListProducts(ctx context.Context, tenantID string) ([]*Product, error) {
	query := `
		SELECT id, tenant_id, title, price_minor, currency, available
		FROM products
		WHERE tenant_id = ?
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*Product
	for rows.Next() {
		p := &Product{}
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Title, &p.Price, &p.Currency, &p.Available); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return products, nil
}

// UpsertProduct is used by catalog sync jobs and tests; catalog CRUD lives outside this service.
func (r *Repository) UpsertProduct(ctx context.Context, p *Product) error {
	query := `
		INSERT INTO products (tenant_id, id, title, price_minor, currency, available, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			title = excluded.title,
			price_minor = excluded.price_minor,
			currency = excluded.currency,
			available = excluded.available,
			updated_at = CURRENT_TIMESTAMP
	`
	if _, err := r.db.ExecContext(ctx, query, p.TenantID, p.ID, p.Title, p.Price, p.Currency, p.Available); err != nil {
		return fmt.Errorf("failed to upsert product: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
