package store

// schema is valid for both Postgres and SQLite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id       TEXT PRIMARY KEY,
		name     TEXT NOT NULL,
		price    DOUBLE PRECISION NOT NULL CHECK (price > 0),
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		version  BIGINT NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_name ON products (name)`,
}
