// Package catalog resolves classified listings against the canonical product
// catalog and records price observations idempotently.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"PriceScanner/internal/classify"
	"PriceScanner/internal/domain"
	"PriceScanner/internal/normalize"
	"PriceScanner/internal/ports"
)

// Matcher is the match-and-record engine in front of the catalog repository.
type Matcher struct {
	repo   ports.CatalogRepository
	logger *slog.Logger
}

// NewMatcher wires the repository.
func NewMatcher(repo ports.CatalogRepository, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{repo: repo, logger: logger}
}

// MatchAndRecord resolves one classified listing to the catalog and appends a
// price observation. Low-confidence listings go to the manual-review queue and
// never touch the catalog. All catalog steps for one listing run atomically;
// re-recording the same (variant, message) pair is a no-op.
func (m *Matcher) MatchAndRecord(ctx context.Context, classified domain.Classified, listing domain.Listing, src domain.SourceContext) (domain.Outcome, error) {
	if classified.Confidence == domain.ConfidenceLow {
		entry := domain.UnmatchedEntry{
			RawName:     listing.RawName,
			SourceName:  src.SourceName,
			FirstSeen:   src.MessageDate,
			SamplePrice: listing.Price,
			Region:      classified.Region,
		}
		if classified.Brand != classify.UnknownBrand {
			entry.Brand = classified.Brand
		}
		if classified.Model != listing.RawName {
			entry.Model = classified.Model
		}
		if err := m.repo.EnqueueUnmatched(ctx, entry); err != nil {
			return "", fmt.Errorf("enqueue unmatched %q: %w", listing.RawName, err)
		}
		return domain.OutcomeQueued, nil
	}

	key := NormalizedKey(classified)

	var outcome domain.Outcome
	err := m.repo.Atomic(ctx, func(tx ports.CatalogRepository) error {
		canonicalID, created, err := tx.UpsertProduct(ctx, domain.CanonicalProduct{
			Brand:         classified.Brand,
			Lineup:        classified.Lineup,
			Model:         classified.Model,
			Region:        classified.Region,
			NormalizedKey: key,
		})
		if err != nil {
			return fmt.Errorf("upsert product %q: %w", key, err)
		}

		variantID, err := tx.EnsureVariant(ctx, canonicalID, listing.RawName)
		if err != nil {
			return fmt.Errorf("ensure variant %q: %w", listing.RawName, err)
		}

		inserted, err := tx.InsertObservation(ctx, domain.PriceObservation{
			VariantID:  variantID,
			Price:      listing.Price,
			Region:     classified.Region,
			Account:    src.Account,
			SourceName: src.SourceName,
			MessageID:  src.MessageID,
			SeenAt:     src.MessageDate,
		})
		if err != nil {
			return fmt.Errorf("insert observation: %w", err)
		}

		switch {
		case !inserted:
			outcome = domain.OutcomeDuplicateIgnored
		case created:
			outcome = domain.OutcomeCreated
		default:
			outcome = domain.OutcomeExisting
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if outcome == domain.OutcomeCreated {
		m.logger.Debug("canonical product created", "key", key, "brand", classified.Brand)
	}
	return outcome, nil
}

// NormalizedKey computes the unique catalog key for a classification.
func NormalizedKey(c domain.Classified) string {
	parts := fmt.Sprintf("%s %s %s %s", c.Brand, c.Lineup, c.Model, c.Region)
	return normalize.Key(strings.TrimSpace(parts))
}
