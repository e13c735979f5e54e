package domain

import "time"

// Source is a monitorable external channel or group chat.
type Source struct {
	ID        int64
	Name      string
	Kind      SourceKind
	Account   string
	Monitored bool
}

// SourceKind distinguishes broadcast channels from group chats.
type SourceKind string

const (
	KindChannel SourceKind = "channel"
	KindChat    SourceKind = "chat"
)

// ClaimState enumerates the processing lease lifecycle of a source.
type ClaimState string

const (
	ClaimUnclaimed ClaimState = "unclaimed"
	ClaimHeld      ClaimState = "held"
	ClaimCompleted ClaimState = "completed"
)

// ClaimRecord maps a source to the account currently owning its processing.
// At most one account holds a source at any time.
type ClaimRecord struct {
	SourceID  int64
	Account   string
	Completed bool
}

// State derives the lifecycle position from the stored record.
func (c ClaimRecord) State() ClaimState {
	switch {
	case c.Account == "":
		return ClaimUnclaimed
	case c.Completed:
		return ClaimCompleted
	default:
		return ClaimHeld
	}
}

// CanonicalProduct is the deduplicated catalog entry. NormalizedKey is unique.
type CanonicalProduct struct {
	ID            int64
	Brand         string
	Lineup        string
	Model         string
	Region        string
	NormalizedKey string
}

// ProductVariant is an observed raw-text form mapped to a canonical product.
type ProductVariant struct {
	ID          int64
	RawName     string
	CanonicalID int64
}

// PriceObservation is one price seen for a variant in one message.
// Append-only; unique per (VariantID, MessageID).
type PriceObservation struct {
	VariantID  int64
	Price      int
	Region     string
	Account    string
	SourceName string
	MessageID  int64
	SeenAt     time.Time
}

// UnmatchedEntry is a listing line that could not be confidently classified,
// held for manual review. Unique per (RawName, SourceName).
type UnmatchedEntry struct {
	RawName     string
	SourceName  string
	FirstSeen   time.Time
	SamplePrice int
	Brand       string
	Model       string
	Region      string
}

// Outcome reports how the matcher resolved one classified listing.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeExisting         Outcome = "existing"
	OutcomeQueued           Outcome = "queued"
	OutcomeDuplicateIgnored Outcome = "duplicate_ignored"
)
