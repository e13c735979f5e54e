package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"PriceScanner/internal/catalog"
	"PriceScanner/internal/claims"
	"PriceScanner/internal/classify"
	"PriceScanner/internal/domain"
	"PriceScanner/internal/ports"
)

// ---- fakes -----------------------------------------------------------------

type fakeRegistry struct {
	sources []domain.Source
	titles  map[int64]string
}

func (f *fakeRegistry) ListAllowedSources(_ context.Context, account string, _ domain.SourceKind) ([]domain.Source, error) {
	var out []domain.Source
	for _, s := range f.sources {
		if s.Account == account && s.Monitored {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRegistry) RefreshTitle(_ context.Context, sourceID int64, title string) error {
	if f.titles == nil {
		f.titles = map[int64]string{}
	}
	f.titles[sourceID] = title
	return nil
}

type fakeClient struct {
	history      map[int64][]domain.Message
	resolveErr   map[int64]error
	historyErr   map[int64]error
	events       chan domain.MessageEvent
	historyCalls map[int64]int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		history:      map[int64][]domain.Message{},
		resolveErr:   map[int64]error{},
		historyErr:   map[int64]error{},
		events:       make(chan domain.MessageEvent, 16),
		historyCalls: map[int64]int{},
	}
}

func (f *fakeClient) ResolveEntity(_ context.Context, source domain.Source) (ports.EntityHandle, error) {
	if err := f.resolveErr[source.ID]; err != nil {
		return ports.EntityHandle{}, err
	}
	return ports.EntityHandle{SourceID: source.ID, Title: source.Name}, nil
}

func (f *fakeClient) FetchHistory(_ context.Context, handle ports.EntityHandle, window int) ([]domain.Message, error) {
	f.historyCalls[handle.SourceID]++
	if err := f.historyErr[handle.SourceID]; err != nil {
		return nil, err
	}
	msgs := f.history[handle.SourceID]
	if len(msgs) > window {
		msgs = msgs[:window]
	}
	return msgs, nil
}

func (f *fakeClient) Subscribe(_ context.Context) (<-chan domain.MessageEvent, error) {
	return f.events, nil
}

// shared state fakes mirroring the Postgres conflict semantics

type sharedClaims struct {
	records map[int64]*domain.ClaimRecord
}

func (s *sharedClaims) Claim(_ context.Context, sourceID int64, account string) (domain.ClaimRecord, error) {
	if rec, ok := s.records[sourceID]; ok {
		return *rec, nil
	}
	rec := &domain.ClaimRecord{SourceID: sourceID, Account: account}
	s.records[sourceID] = rec
	return *rec, nil
}

func (s *sharedClaims) Complete(_ context.Context, sourceID int64, account string) error {
	if rec, ok := s.records[sourceID]; ok && rec.Account == account {
		rec.Completed = true
	}
	return nil
}

type sharedCatalog struct {
	nextID       int64
	products     map[string]int64
	variants     map[string]int64
	observations map[string]domain.PriceObservation
	unmatched    map[string]domain.UnmatchedEntry
}

func newSharedCatalog() *sharedCatalog {
	return &sharedCatalog{
		products:     map[string]int64{},
		variants:     map[string]int64{},
		observations: map[string]domain.PriceObservation{},
		unmatched:    map[string]domain.UnmatchedEntry{},
	}
}

func (s *sharedCatalog) UpsertProduct(_ context.Context, p domain.CanonicalProduct) (int64, bool, error) {
	if id, ok := s.products[p.NormalizedKey]; ok {
		return id, false, nil
	}
	s.nextID++
	s.products[p.NormalizedKey] = s.nextID
	return s.nextID, true, nil
}

func (s *sharedCatalog) EnsureVariant(_ context.Context, canonicalID int64, rawName string) (int64, error) {
	key := fmt.Sprintf("%d|%s", canonicalID, rawName)
	if id, ok := s.variants[key]; ok {
		return id, nil
	}
	s.nextID++
	s.variants[key] = s.nextID
	return s.nextID, nil
}

func (s *sharedCatalog) InsertObservation(_ context.Context, obs domain.PriceObservation) (bool, error) {
	key := fmt.Sprintf("%d|%d", obs.VariantID, obs.MessageID)
	if _, ok := s.observations[key]; ok {
		return false, nil
	}
	s.observations[key] = obs
	return true, nil
}

func (s *sharedCatalog) EnqueueUnmatched(_ context.Context, entry domain.UnmatchedEntry) error {
	key := entry.RawName + "|" + entry.SourceName
	if _, ok := s.unmatched[key]; !ok {
		s.unmatched[key] = entry
	}
	return nil
}

func (s *sharedCatalog) Atomic(_ context.Context, fn func(ports.CatalogRepository) error) error {
	return fn(s)
}

type noopDriver struct{}

func (noopDriver) Start(context.Context, func(time.Time)) error { return nil }
func (noopDriver) Stop(context.Context) error                   { return nil }

// ---- helpers ---------------------------------------------------------------

func buildOrchestrator(account string, registry *fakeRegistry, client *fakeClient, cl *sharedClaims, cat *sharedCatalog) *Orchestrator {
	return NewOrchestrator(OrchestratorDeps{
		Account:    account,
		Client:     client,
		Registry:   registry,
		Claims:     claims.NewCoordinator(cl, 0, nil),
		Matcher:    catalog.NewMatcher(cat, nil),
		Classifier: classify.New(nil),
		Driver:     noopDriver{},
	})
}

func priceMessages() []domain.Message {
	at := time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)
	return []domain.Message{
		{ID: 11, Text: "iPhone 15 Pro Max 256GB \U0001F1FA\U0001F1F8 89900", Timestamp: at},
		{ID: 12, Text: "Galaxy S24 Ultra 512GB 112000 \U0001F1EF\U0001F1F5", Timestamp: at},
	}
}

// ---- tests -----------------------------------------------------------------

func TestBackfillProcessesClaimedSource(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{sources: []domain.Source{
		{ID: 101, Name: "Prices", Kind: domain.KindChannel, Account: "acc-a", Monitored: true},
	}}
	client := newFakeClient()
	client.history[101] = priceMessages()
	cl := &sharedClaims{records: map[int64]*domain.ClaimRecord{}}
	cat := newSharedCatalog()

	o := buildOrchestrator("acc-a", registry, client, cl, cat)
	ctx := context.Background()
	if err := o.refreshSources(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	o.runBackfillPass(ctx)

	if len(cat.observations) != 2 {
		t.Fatalf("observations = %d, want 2", len(cat.observations))
	}
	if !cl.records[101].Completed {
		t.Fatalf("source not completed after a 2-message pass")
	}

	snap := o.Stats().SnapshotNow()
	if snap.ChannelsClaimed != 1 || snap.MessagesSeen != 2 || snap.PriceRowsCreated != 2 {
		t.Fatalf("unexpected stats %+v", snap)
	}
}

func TestBackfillSecondAccountRejected(t *testing.T) {
	t.Parallel()

	// The same source is reachable from both accounts.
	registry := &fakeRegistry{sources: []domain.Source{
		{ID: 55, Name: "Shared", Kind: domain.KindChannel, Account: "acc-a", Monitored: true},
		{ID: 55, Name: "Shared", Kind: domain.KindChannel, Account: "acc-b", Monitored: true},
	}}
	clientA := newFakeClient()
	clientA.history[55] = priceMessages()
	clientB := newFakeClient()
	clientB.history[55] = priceMessages()

	cl := &sharedClaims{records: map[int64]*domain.ClaimRecord{}}
	cat := newSharedCatalog()

	a := buildOrchestrator("acc-a", registry, clientA, cl, cat)
	b := buildOrchestrator("acc-b", registry, clientB, cl, cat)
	ctx := context.Background()

	if err := a.refreshSources(ctx); err != nil {
		t.Fatalf("refresh a: %v", err)
	}
	if err := b.refreshSources(ctx); err != nil {
		t.Fatalf("refresh b: %v", err)
	}

	a.runBackfillPass(ctx)
	rows := len(cat.observations)

	b.runBackfillPass(ctx)
	if len(cat.observations) != rows {
		t.Fatalf("second account added %d duplicate rows", len(cat.observations)-rows)
	}
	if clientB.historyCalls[55] != 0 {
		t.Fatalf("second account fetched history despite rejected claim")
	}
}

func TestBackfillShortPassLeavesClaimHeld(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{sources: []domain.Source{
		{ID: 7, Name: "Thin", Kind: domain.KindChannel, Account: "acc-a", Monitored: true},
	}}
	client := newFakeClient()
	client.history[7] = []domain.Message{
		{ID: 1, Text: "iPhone 15 Pro Max 66000", Timestamp: time.Now()},
	}
	cl := &sharedClaims{records: map[int64]*domain.ClaimRecord{}}

	o := buildOrchestrator("acc-a", registry, client, cl, newSharedCatalog())
	ctx := context.Background()
	if err := o.refreshSources(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	o.runBackfillPass(ctx)

	if cl.records[7].Completed {
		t.Fatalf("source completed on a 1-message pass")
	}
	if cl.records[7].State() != domain.ClaimHeld {
		t.Fatalf("state = %q, want held for retry", cl.records[7].State())
	}
}

func TestBackfillRateLimitSkipsSource(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{sources: []domain.Source{
		{ID: 1, Name: "Flooded", Kind: domain.KindChannel, Account: "acc-a", Monitored: true},
		{ID: 2, Name: "Healthy", Kind: domain.KindChannel, Account: "acc-a", Monitored: true},
	}}
	client := newFakeClient()
	client.historyErr[1] = ports.ErrRateLimited
	client.history[2] = priceMessages()
	cl := &sharedClaims{records: map[int64]*domain.ClaimRecord{}}
	cat := newSharedCatalog()

	o := buildOrchestrator("acc-a", registry, client, cl, cat)
	ctx := context.Background()
	if err := o.refreshSources(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	o.runBackfillPass(ctx)

	if cl.records[1].Completed {
		t.Fatalf("rate-limited source marked complete")
	}
	if !cl.records[2].Completed {
		t.Fatalf("healthy source not processed after rate-limited one")
	}
	if len(cat.observations) != 2 {
		t.Fatalf("observations = %d, want 2 from healthy source", len(cat.observations))
	}
}

func TestRefreshToleratesResolutionFailures(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{sources: []domain.Source{
		{ID: 1, Name: "Gone", Kind: domain.KindChannel, Account: "acc-a", Monitored: true},
		{ID: 2, Name: "Alive", Kind: domain.KindChannel, Account: "acc-a", Monitored: true},
	}}
	client := newFakeClient()
	client.resolveErr[1] = ports.ErrNotFound

	o := buildOrchestrator("acc-a", registry, client, &sharedClaims{records: map[int64]*domain.ClaimRecord{}}, newSharedCatalog())
	if err := o.refreshSources(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if _, ok := o.lookupAllowed(1); ok {
		t.Fatalf("unresolvable source ended up in the allowed set")
	}
	if _, ok := o.lookupAllowed(2); !ok {
		t.Fatalf("healthy source missing from the allowed set")
	}
}

func TestLiveEventDedupAndAllowedFilter(t *testing.T) {
	t.Parallel()

	registry := &fakeRegistry{sources: []domain.Source{
		{ID: 9, Name: "Live", Kind: domain.KindChat, Account: "acc-a", Monitored: true},
	}}
	client := newFakeClient()
	cat := newSharedCatalog()

	o := buildOrchestrator("acc-a", registry, client, &sharedClaims{records: map[int64]*domain.ClaimRecord{}}, cat)
	ctx := context.Background()
	if err := o.refreshSources(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	msg := domain.Message{ID: 31, Text: "Pixel 9 Pro 128GB 78000", Timestamp: time.Now()}

	o.handleLiveEvent(ctx, domain.MessageEvent{SourceID: 9, Message: msg})
	o.handleLiveEvent(ctx, domain.MessageEvent{SourceID: 9, Message: msg})
	o.handleLiveEvent(ctx, domain.MessageEvent{SourceID: 404, Message: msg})

	if len(cat.observations) != 1 {
		t.Fatalf("observations = %d, want 1 (dedup + allowed filter)", len(cat.observations))
	}
	if snap := o.Stats().SnapshotNow(); snap.MessagesSeen != 1 {
		t.Fatalf("messages seen = %d, want 1", snap.MessagesSeen)
	}
}
