package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"warehouseservice/internal/product"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const productColumns = "id, name, price, quantity, version"

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// SQLStore implements product.Store on top of sqlx. Queries are written with '?'
// placeholders and rebound for the active driver.
type SQLStore struct {
	db *sqlx.DB
}

// Open connects to the database, applies the schema and returns the store.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to database: %w", product.ErrTransport, err)
	}
	if driver == DriverSQLite {
		// a single connection keeps ":memory:" databases shared and serializes writers
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
	}

	s := &SQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) FindByID(ctx context.Context, id string) (product.Product, error) {
	var p product.Product
	query := s.db.Rebind(`SELECT ` + productColumns + ` FROM products WHERE id = ?`)
	if err := s.db.GetContext(ctx, &p, query, id); err != nil {
		return product.Product{}, s.translate(err, "find product %s", id)
	}
	return p, nil
}

func (s *SQLStore) UpdateByID(ctx context.Context, id string, fields product.Fields) (product.Product, error) {
	if fields.Quantity != nil && *fields.Quantity < 0 {
		return product.Product{}, product.ErrInvalidQuantity
	}
	var p product.Product
	query := s.db.Rebind(`UPDATE products SET
		name = COALESCE(?, name),
		price = COALESCE(?, price),
		quantity = COALESCE(?, quantity),
		version = version + 1
		WHERE id = ?
		RETURNING ` + productColumns)
	if err := s.db.GetContext(ctx, &p, query, fields.Name, fields.Price, fields.Quantity, id); err != nil {
		return product.Product{}, s.translate(err, "update product %s", id)
	}
	return p, nil
}

func (s *SQLStore) CompareAndSetQuantity(ctx context.Context, id string, expectedVersion int64, quantity int) (product.Product, error) {
	if quantity < 0 {
		return product.Product{}, product.ErrInvalidQuantity
	}
	var p product.Product
	query := s.db.Rebind(`UPDATE products SET quantity = ?, version = version + 1
		WHERE id = ? AND version = ?
		RETURNING ` + productColumns)
	err := s.db.GetContext(ctx, &p, query, quantity, id, expectedVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return product.Product{}, s.missOrReject(ctx, id, product.ErrStaleVersion)
	}
	if err != nil {
		return product.Product{}, s.translate(err, "compare-and-set product %s", id)
	}
	return p, nil
}

func (s *SQLStore) DecrementQuantity(ctx context.Context, id string, delta int) (product.Product, error) {
	if err := product.ValidateQuantity(delta); err != nil {
		return product.Product{}, err
	}
	var p product.Product
	query := s.db.Rebind(`UPDATE products SET quantity = quantity - ?, version = version + 1
		WHERE id = ? AND quantity >= ?
		RETURNING ` + productColumns)
	err := s.db.GetContext(ctx, &p, query, delta, id, delta)
	if errors.Is(err, sql.ErrNoRows) {
		return product.Product{}, s.missOrReject(ctx, id, product.ErrInsufficientStock)
	}
	if err != nil {
		return product.Product{}, s.translate(err, "decrement product %s", id)
	}
	return p, nil
}

func (s *SQLStore) InsertMany(ctx context.Context, products []product.Product) ([]product.Product, error) {
	if len(products) == 0 {
		return nil, nil
	}
	out := make([]product.Product, 0, len(products))
	for _, p := range products {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if p.Quantity < 0 {
			return nil, product.ErrInvalidQuantity
		}
		p.Version = 1
		out = append(out, p)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin insert: %w", product.ErrTransport, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT INTO products (` + productColumns + `) VALUES (:id, :name, :price, :quantity, :version)`
	if _, err := tx.NamedExecContext(ctx, query, out); err != nil {
		if isConstraintViolation(err) {
			return nil, fmt.Errorf("%w: %w", product.ErrInvalidProduct, err)
		}
		return nil, fmt.Errorf("%w: insert products: %w", product.ErrTransport, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit insert: %w", product.ErrTransport, err)
	}
	return out, nil
}

func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM products`); err != nil {
		return 0, fmt.Errorf("%w: count products: %w", product.ErrTransport, err)
	}
	return n, nil
}

// missOrReject tells a missing row apart from a failed guard after a conditional update
// matched nothing.
func (s *SQLStore) missOrReject(ctx context.Context, id string, reject error) error {
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}
	return reject
}

// isConstraintViolation reports duplicate keys and failed CHECKs.
func isConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}

func (s *SQLStore) translate(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return product.ErrNotFound
	}
	return fmt.Errorf("%w: %s: %w", product.ErrTransport, fmt.Sprintf(format, args...), err)
}
