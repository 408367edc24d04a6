// Package store implements the §6 persisted-state contract: compressed
// monthly chunks of historical data keyed by (symbol, resolution,
// base_data_type, yyyy-mm), behind a ChunkStore interface with a
// pgx/v5-backed Postgres implementation, grounded on
// libs/database/postgres.go's connection-pool-and-migration shape.
package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"fundforge/internal/data"
)

// ChunkKey identifies one compressed monthly chunk.
type ChunkKey struct {
	Symbol       data.Symbol
	Resolution   data.Resolution
	BaseDataType data.BaseDataType
	YearMonth    string // "2024-03"
}

// ChunkStore persists and retrieves compressed historical chunks. The
// vendor layer owns the schema within a chunk's payload; this interface
// only owns addressing and compression.
type ChunkStore interface {
	PutChunk(ctx context.Context, key ChunkKey, slice data.TimeSlice) error
	GetChunk(ctx context.Context, key ChunkKey) (data.TimeSlice, bool, error)
	DeleteChunk(ctx context.Context, key ChunkKey) error
}

// PostgresStore is the concrete ChunkStore implementation backing
// GetCompressedHistoricalData.
type PostgresStore struct {
	db *sql.DB
}

// chunkRow is the JSON-serializable, gzip-compressed wire shape stored in
// the chunk_data column. BaseData is a closed interface, so items are
// stored as a discriminated envelope rather than gob/json of the
// interface directly.
type chunkRow struct {
	Kind string          `json:"kind"`
	Item json.RawMessage `json:"item"`
}

func Open(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Migrate applies migrations from migrationsPath ("file://..." source)
// using golang-migrate.
func (s *PostgresStore) Migrate(migrationsPath string) error {
	driver, err := pgxmigrate.WithInstance(s.db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(migrationsPath, "pgx", driver)
	if err != nil {
		return fmt.Errorf("store: migration init: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("store: applying migrations: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) PutChunk(ctx context.Context, key ChunkKey, slice data.TimeSlice) error {
	compressed, err := compressChunk(slice)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO historical_chunks (symbol, vendor, market_type, resolution_kind, resolution_n, base_data_type, year_month, chunk_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, vendor, market_type, resolution_kind, resolution_n, base_data_type, year_month)
		DO UPDATE SET chunk_data = EXCLUDED.chunk_data`,
		key.Symbol.Name, key.Symbol.Vendor, string(key.Symbol.MarketType),
		int(key.Resolution.Kind), key.Resolution.N, int(key.BaseDataType), key.YearMonth, compressed)
	if err != nil {
		return fmt.Errorf("store: upserting chunk: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetChunk(ctx context.Context, key ChunkKey) (data.TimeSlice, bool, error) {
	var compressed []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT chunk_data FROM historical_chunks
		WHERE symbol = $1 AND vendor = $2 AND market_type = $3
		  AND resolution_kind = $4 AND resolution_n = $5 AND base_data_type = $6 AND year_month = $7`,
		key.Symbol.Name, key.Symbol.Vendor, string(key.Symbol.MarketType),
		int(key.Resolution.Kind), key.Resolution.N, int(key.BaseDataType), key.YearMonth,
	).Scan(&compressed)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: selecting chunk: %w", err)
	}
	slice, err := decompressChunk(compressed)
	if err != nil {
		return nil, false, err
	}
	return slice, true, nil
}

func (s *PostgresStore) DeleteChunk(ctx context.Context, key ChunkKey) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM historical_chunks
		WHERE symbol = $1 AND vendor = $2 AND market_type = $3
		  AND resolution_kind = $4 AND resolution_n = $5 AND base_data_type = $6 AND year_month = $7`,
		key.Symbol.Name, key.Symbol.Vendor, string(key.Symbol.MarketType),
		int(key.Resolution.Kind), key.Resolution.N, int(key.BaseDataType), key.YearMonth)
	if err != nil {
		return fmt.Errorf("store: deleting chunk: %w", err)
	}
	return nil
}

func compressChunk(slice data.TimeSlice) ([]byte, error) {
	rows := make([]chunkRow, 0, len(slice))
	for _, d := range slice {
		kind, raw, err := encodeItem(d)
		if err != nil {
			return nil, err
		}
		rows = append(rows, chunkRow{Kind: kind, Item: raw})
	}
	plain, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("store: marshaling chunk: %w", err)
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(plain); err != nil {
		return nil, fmt.Errorf("store: compressing chunk: %w", err)
	}
	if err := gw.Close(); err != nil {
		return nil, fmt.Errorf("store: closing gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

func decompressChunk(compressed []byte) (data.TimeSlice, error) {
	gr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("store: opening gzip reader: %w", err)
	}
	defer gr.Close()
	plain, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("store: decompressing chunk: %w", err)
	}
	var rows []chunkRow
	if err := json.Unmarshal(plain, &rows); err != nil {
		return nil, fmt.Errorf("store: unmarshaling chunk: %w", err)
	}
	slice := make(data.TimeSlice, 0, len(rows))
	for _, row := range rows {
		d, err := decodeItem(row)
		if err != nil {
			return nil, err
		}
		slice = append(slice, d)
	}
	return slice, nil
}

func encodeItem(d data.BaseData) (string, json.RawMessage, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", nil, fmt.Errorf("store: marshaling item: %w", err)
	}
	switch d.(type) {
	case data.Tick:
		return "tick", raw, nil
	case data.Quote:
		return "quote", raw, nil
	case data.Candle:
		return "candle", raw, nil
	case data.QuoteBar:
		return "quotebar", raw, nil
	case data.Price:
		return "price", raw, nil
	case data.Fundamental:
		return "fundamental", raw, nil
	default:
		return "", nil, fmt.Errorf("store: unknown BaseData type %T", d)
	}
}

func decodeItem(row chunkRow) (data.BaseData, error) {
	switch row.Kind {
	case "tick":
		var v data.Tick
		return v, json.Unmarshal(row.Item, &v)
	case "quote":
		var v data.Quote
		return v, json.Unmarshal(row.Item, &v)
	case "candle":
		var v data.Candle
		return v, json.Unmarshal(row.Item, &v)
	case "quotebar":
		var v data.QuoteBar
		return v, json.Unmarshal(row.Item, &v)
	case "price":
		var v data.Price
		return v, json.Unmarshal(row.Item, &v)
	case "fundamental":
		var v data.Fundamental
		return v, json.Unmarshal(row.Item, &v)
	default:
		return nil, fmt.Errorf("store: unknown chunk row kind %q", row.Kind)
	}
}
