package ports

import (
	"context"
	"time"

	"PriceScanner/internal/domain"
)

// SourceRegistry reads the set of sources an account is allowed to process.
type SourceRegistry interface {
	// ListAllowedSources returns monitored sources for the account; kind may
	// be empty to list every kind.
	ListAllowedSources(ctx context.Context, account string, kind domain.SourceKind) ([]domain.Source, error)

	// RefreshTitle updates the denormalized display name of a source.
	RefreshTitle(ctx context.Context, sourceID int64, title string) error
}

// EntityHandle is an opaque resolved reference to a source held by a client.
type EntityHandle struct {
	SourceID int64
	Title    string
}

// MessagingClient is the per-account messaging-platform boundary.
type MessagingClient interface {
	// ResolveEntity turns a source id into a usable handle. Fails with
	// ErrNotFound, ErrRateLimited or ErrForbidden.
	ResolveEntity(ctx context.Context, source domain.Source) (EntityHandle, error)

	// FetchHistory returns up to window messages of recent history,
	// newest first.
	FetchHistory(ctx context.Context, handle EntityHandle, window int) ([]domain.Message, error)

	// Subscribe delivers new messages across all of the account's sources
	// until ctx is cancelled. The channel is closed on cancellation.
	Subscribe(ctx context.Context) (<-chan domain.MessageEvent, error)
}

// ClaimRepository persists processing leases with storage-level atomicity.
type ClaimRepository interface {
	// Claim atomically inserts the claim if the source is unclaimed and
	// returns the resulting record, whoever holds it.
	Claim(ctx context.Context, sourceID int64, account string) (domain.ClaimRecord, error)

	// Complete marks the claim done; only the holding account matches.
	Complete(ctx context.Context, sourceID int64, account string) error
}

// CatalogRepository persists the canonical catalog and price history.
// All writes are conflict-aware upserts.
type CatalogRepository interface {
	// UpsertProduct inserts the canonical product if its normalized key is
	// new and reports whether a row was created.
	UpsertProduct(ctx context.Context, product domain.CanonicalProduct) (id int64, created bool, err error)

	// EnsureVariant resolves or creates the variant for a raw name.
	EnsureVariant(ctx context.Context, canonicalID int64, rawName string) (int64, error)

	// InsertObservation appends a price row unless (variant, message)
	// already exists; reports whether a row was inserted.
	InsertObservation(ctx context.Context, obs domain.PriceObservation) (bool, error)

	// EnqueueUnmatched insert-or-ignores a manual-review entry.
	EnqueueUnmatched(ctx context.Context, entry domain.UnmatchedEntry) error

	// Atomic runs fn against a transactional view of the repository.
	Atomic(ctx context.Context, fn func(CatalogRepository) error) error
}

// Scheduler drives recurring backfill passes.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
