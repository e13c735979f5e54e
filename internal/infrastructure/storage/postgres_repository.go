// Package storage implements the repository ports on Postgres. Every write
// is a conflict-aware upsert so several processes can race on the same rows;
// the unique constraints are the correctness boundary.
package storage

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/ports"
)

// querier is satisfied by both pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository persists sources, claims, the catalog and price history.
type PostgresRepository struct {
	pool    *pgxpool.Pool
	db      querier
	builder sq.StatementBuilderType
}

var (
	_ ports.SourceRegistry    = (*PostgresRepository)(nil)
	_ ports.ClaimRepository   = (*PostgresRepository)(nil)
	_ ports.CatalogRepository = (*PostgresRepository)(nil)
)

// NewPostgresRepository wires a pgx pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{
		pool:    pool,
		db:      pool,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sources (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		account TEXT NOT NULL,
		monitored BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS processed_channels (
		channel_id BIGINT PRIMARY KEY,
		account TEXT NOT NULL,
		completed BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS products_cleaned (
		id BIGSERIAL PRIMARY KEY,
		brand TEXT NOT NULL,
		lineup TEXT,
		model TEXT NOT NULL,
		region TEXT,
		name_std TEXT NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		standard_id BIGINT NOT NULL REFERENCES products_cleaned(id),
		UNIQUE (standard_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS prices (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products(id),
		price INTEGER NOT NULL,
		country TEXT,
		source_account TEXT,
		channel_name TEXT,
		message_id BIGINT NOT NULL,
		message_date TIMESTAMPTZ,
		UNIQUE (product_id, message_id)
	)`,
	`CREATE TABLE IF NOT EXISTS unmatched_models (
		id BIGSERIAL PRIMARY KEY,
		raw_name TEXT NOT NULL,
		source_channel TEXT NOT NULL,
		first_seen TIMESTAMPTZ,
		sample_price INTEGER,
		brand TEXT,
		model TEXT,
		region TEXT,
		UNIQUE (raw_name, source_channel)
	)`,
}

// InitSchema creates the pipeline tables and their conflict keys.
func (r *PostgresRepository) InitSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// ListAllowedSources returns monitored sources for the account.
func (r *PostgresRepository) ListAllowedSources(ctx context.Context, account string, kind domain.SourceKind) ([]domain.Source, error) {
	query := r.builder.
		Select("id", "name", "kind", "account", "monitored").
		From("sources").
		Where(sq.Eq{"account": account, "monitored": true}).
		OrderBy("id")
	if kind != "" {
		query = query.Where(sq.Eq{"kind": string(kind)})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sources query: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var s domain.Source
		if err := rows.Scan(&s.ID, &s.Name, &s.Kind, &s.Account, &s.Monitored); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return sources, nil
}

// RefreshTitle updates the denormalized source display name.
func (r *PostgresRepository) RefreshTitle(ctx context.Context, sourceID int64, title string) error {
	sqlStr, args, err := r.builder.
		Update("sources").
		Set("name", title).
		Where(sq.Eq{"id": sourceID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build title update: %w", err)
	}
	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("refresh title: %w", err)
	}
	return nil
}

// Claim inserts the lease if the source is unclaimed, then reads back the
// winner. The primary key on channel_id makes the race safe across processes.
func (r *PostgresRepository) Claim(ctx context.Context, sourceID int64, account string) (domain.ClaimRecord, error) {
	sqlStr, args, err := r.builder.
		Insert("processed_channels").
		Columns("channel_id", "account").
		Values(sourceID, account).
		Suffix("ON CONFLICT (channel_id) DO NOTHING").
		ToSql()
	if err != nil {
		return domain.ClaimRecord{}, fmt.Errorf("build claim insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return domain.ClaimRecord{}, fmt.Errorf("insert claim: %w", err)
	}

	sqlStr, args, err = r.builder.
		Select("channel_id", "account", "completed").
		From("processed_channels").
		Where(sq.Eq{"channel_id": sourceID}).
		ToSql()
	if err != nil {
		return domain.ClaimRecord{}, fmt.Errorf("build claim select: %w", err)
	}

	var rec domain.ClaimRecord
	if err := r.db.QueryRow(ctx, sqlStr, args...).Scan(&rec.SourceID, &rec.Account, &rec.Completed); err != nil {
		return domain.ClaimRecord{}, fmt.Errorf("read claim: %w", err)
	}
	return rec, nil
}

// Complete marks the claim done for the holding account only.
func (r *PostgresRepository) Complete(ctx context.Context, sourceID int64, account string) error {
	sqlStr, args, err := r.builder.
		Update("processed_channels").
		Set("completed", true).
		Where(sq.Eq{"channel_id": sourceID, "account": account}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build complete update: %w", err)
	}
	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("complete claim: %w", err)
	}
	return nil
}

// UpsertProduct inserts the canonical product if its key is new.
func (r *PostgresRepository) UpsertProduct(ctx context.Context, product domain.CanonicalProduct) (int64, bool, error) {
	sqlStr, args, err := r.builder.
		Insert("products_cleaned").
		Columns("brand", "lineup", "model", "region", "name_std").
		Values(product.Brand, product.Lineup, product.Model, product.Region, product.NormalizedKey).
		Suffix("ON CONFLICT (name_std) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build product insert: %w", err)
	}

	var id int64
	err = r.db.QueryRow(ctx, sqlStr, args...).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, false, fmt.Errorf("insert product: %w", err)
	}

	// Conflict path: the key already exists, read the canonical row.
	sqlStr, args, err = r.builder.
		Select("id").
		From("products_cleaned").
		Where(sq.Eq{"name_std": product.NormalizedKey}).
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build product select: %w", err)
	}
	if err := r.db.QueryRow(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("select product: %w", err)
	}
	return id, false, nil
}

// EnsureVariant resolves or creates the variant row for a raw name.
func (r *PostgresRepository) EnsureVariant(ctx context.Context, canonicalID int64, rawName string) (int64, error) {
	sqlStr, args, err := r.builder.
		Insert("products").
		Columns("name", "standard_id").
		Values(rawName, canonicalID).
		Suffix("ON CONFLICT (standard_id, name) DO NOTHING RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build variant insert: %w", err)
	}

	var id int64
	err = r.db.QueryRow(ctx, sqlStr, args...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("insert variant: %w", err)
	}

	sqlStr, args, err = r.builder.
		Select("id").
		From("products").
		Where(sq.Eq{"standard_id": canonicalID, "name": rawName}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build variant select: %w", err)
	}
	if err := r.db.QueryRow(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("select variant: %w", err)
	}
	return id, nil
}

// InsertObservation appends a price row; (product_id, message_id) replays
// are ignored and reported as not inserted.
func (r *PostgresRepository) InsertObservation(ctx context.Context, obs domain.PriceObservation) (bool, error) {
	sqlStr, args, err := r.builder.
		Insert("prices").
		Columns("product_id", "price", "country", "source_account", "channel_name", "message_id", "message_date").
		Values(obs.VariantID, obs.Price, obs.Region, obs.Account, obs.SourceName, obs.MessageID, obs.SeenAt).
		Suffix("ON CONFLICT (product_id, message_id) DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build price insert: %w", err)
	}

	tag, err := r.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("insert price: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// EnqueueUnmatched insert-or-ignores a manual-review entry.
func (r *PostgresRepository) EnqueueUnmatched(ctx context.Context, entry domain.UnmatchedEntry) error {
	sqlStr, args, err := r.builder.
		Insert("unmatched_models").
		Columns("raw_name", "source_channel", "first_seen", "sample_price", "brand", "model", "region").
		Values(entry.RawName, entry.SourceName, entry.FirstSeen, entry.SamplePrice, entry.Brand, entry.Model, entry.Region).
		Suffix("ON CONFLICT (raw_name, source_channel) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build unmatched insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert unmatched: %w", err)
	}
	return nil
}

// Atomic runs fn inside one transaction. Nested calls reuse the active
// transaction so a line's steps stay a single unit of work.
func (r *PostgresRepository) Atomic(ctx context.Context, fn func(ports.CatalogRepository) error) error {
	if r.pool == nil {
		return fn(r)
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&PostgresRepository{db: tx, builder: r.builder})
	})
}
