// Package usecase hosts the per-account ingestion orchestration.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"PriceScanner/internal/catalog"
	"PriceScanner/internal/claims"
	"PriceScanner/internal/classify"
	"PriceScanner/internal/domain"
	"PriceScanner/internal/extract"
	"PriceScanner/internal/ports"
)

// OrchestratorDeps wires all driven adapters into one account's control loop.
type OrchestratorDeps struct {
	Account    string
	Client     ports.MessagingClient
	Registry   ports.SourceRegistry
	Claims     *claims.Coordinator
	Matcher    *catalog.Matcher
	Classifier *classify.Classifier
	Driver     ports.Scheduler
	Logger     *slog.Logger

	RefreshInterval time.Duration
	HistoryWindow   int
}

type liveKey struct {
	sourceID  int64
	messageID int64
}

type allowedSource struct {
	source domain.Source
	handle ports.EntityHandle
}

// Orchestrator runs one account's duties: periodic source refresh, claimed
// historical backfill, and live consumption. All state is owned per instance;
// nothing is shared across accounts except the storage layer.
type Orchestrator struct {
	account    string
	client     ports.MessagingClient
	registry   ports.SourceRegistry
	claims     *claims.Coordinator
	matcher    *catalog.Matcher
	classifier *classify.Classifier
	driver     ports.Scheduler
	logger     *slog.Logger

	refreshInterval time.Duration
	historyWindow   int

	mu      sync.RWMutex
	allowed map[int64]allowedSource

	// Local live dedup; an optimization only, storage uniqueness is the
	// correctness boundary.
	seen       map[liveKey]struct{}
	permFailed map[int64]bool

	stats *Stats
}

// NewOrchestrator constructs the account control loop.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	refresh := deps.RefreshInterval
	if refresh <= 0 {
		refresh = time.Minute
	}
	window := deps.HistoryWindow
	if window <= 0 {
		window = 50
	}
	return &Orchestrator{
		account:         deps.Account,
		client:          deps.Client,
		registry:        deps.Registry,
		claims:          deps.Claims,
		matcher:         deps.Matcher,
		classifier:      deps.Classifier,
		driver:          deps.Driver,
		logger:          logger.With("account", deps.Account),
		refreshInterval: refresh,
		historyWindow:   window,
		allowed:         map[int64]allowedSource{},
		seen:            map[liveKey]struct{}{},
		permFailed:      map[int64]bool{},
		stats:           NewStats(),
	}
}

// Stats exposes the account's observability counters.
func (o *Orchestrator) Stats() *Stats {
	return o.stats
}

// Run executes the account duties until ctx is cancelled. Errors in one
// source never abort another; only setup-level failures terminate the loop.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("starting account monitoring")

	if err := o.refreshSources(ctx); err != nil {
		return fmt.Errorf("initial source refresh: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return o.refreshLoop(ctx) })
	g.Go(func() error { return o.backfillLoop(ctx) })
	g.Go(func() error { return o.liveLoop(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (o *Orchestrator) refreshLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.refreshSources(ctx); err != nil {
				o.logger.Warn("source refresh failed", "error", err)
			}
		}
	}
}

// refreshSources re-resolves the allowed set. Individual resolution failures
// are tolerated; the registry listing itself failing aborts the refresh.
func (o *Orchestrator) refreshSources(ctx context.Context) error {
	sources, err := o.registry.ListAllowedSources(ctx, o.account, "")
	if err != nil {
		return fmt.Errorf("list allowed sources: %w", err)
	}

	next := make(map[int64]allowedSource, len(sources))
	for _, src := range sources {
		handle, err := o.client.ResolveEntity(ctx, src)
		if err != nil {
			if ports.IsPermanent(err) {
				if !o.permFailed[src.ID] {
					o.permFailed[src.ID] = true
					o.logger.Warn("source unreachable until registry changes",
						"source_id", src.ID, "name", src.Name, "error", err)
				}
			} else {
				o.logger.Warn("source resolution failed", "source_id", src.ID, "error", err)
			}
			continue
		}
		delete(o.permFailed, src.ID)

		if handle.Title != "" && handle.Title != src.Name {
			if err := o.registry.RefreshTitle(ctx, src.ID, handle.Title); err != nil {
				o.logger.Warn("title refresh failed", "source_id", src.ID, "error", err)
			}
			src.Name = handle.Title
		}
		next[src.ID] = allowedSource{source: src, handle: handle}
	}

	o.mu.Lock()
	o.allowed = next
	o.mu.Unlock()

	o.logger.Debug("allowed sources refreshed", "count", len(next))
	return nil
}

func (o *Orchestrator) backfillLoop(ctx context.Context) error {
	if err := o.driver.Start(ctx, func(time.Time) { o.runBackfillPass(ctx) }); err != nil {
		return fmt.Errorf("start backfill driver: %w", err)
	}
	<-ctx.Done()
	if err := o.driver.Stop(context.Background()); err != nil {
		o.logger.Warn("backfill driver stop failed", "error", err)
	}
	return ctx.Err()
}

// runBackfillPass walks every allowed source not yet completed for this
// account, claiming it first so a source's history is processed exactly once
// across the fleet.
func (o *Orchestrator) runBackfillPass(ctx context.Context) {
	o.stats.BeginPass()
	for _, entry := range o.allowedSnapshot() {
		if ctx.Err() != nil {
			return
		}
		o.backfillSource(ctx, entry)
	}

	snap := o.stats.SnapshotNow()
	o.logger.Info("backfill pass done",
		"channels_claimed", snap.ChannelsClaimed,
		"messages_seen", snap.MessagesSeen,
		"price_rows", snap.PriceRowsCreated)
}

func (o *Orchestrator) backfillSource(ctx context.Context, entry allowedSource) {
	src := entry.source

	decision, err := o.claims.Acquire(ctx, src.ID, o.account)
	if err != nil {
		o.logger.Warn("claim attempt failed", "source_id", src.ID, "error", err)
		return
	}
	if decision != claims.DecisionAcquired {
		o.logger.Debug("skipping source", "source_id", src.ID, "decision", string(decision))
		return
	}
	o.stats.NoteClaimed()

	messages, err := o.client.FetchHistory(ctx, entry.handle, o.historyWindow)
	if err != nil {
		if ports.IsTransient(err) {
			o.logger.Warn("history fetch rate limited, retrying next pass", "source_id", src.ID)
		} else {
			o.logger.Warn("history fetch failed", "source_id", src.ID, "error", err)
		}
		return
	}

	textMessages := 0
	for _, msg := range messages {
		if ctx.Err() != nil {
			return
		}
		if msg.Text == "" {
			continue
		}
		textMessages++
		o.processMessage(ctx, src.ID, src.Name, msg)
	}

	completed, err := o.claims.Finish(ctx, src.ID, o.account, textMessages)
	if err != nil {
		o.logger.Warn("completion failed", "source_id", src.ID, "error", err)
		return
	}
	o.logger.Debug("backfilled source",
		"source_id", src.ID, "messages", textMessages, "completed", completed)
}

func (o *Orchestrator) liveLoop(ctx context.Context) error {
	events, err := o.client.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe live events: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ctx.Err()
			}
			o.handleLiveEvent(ctx, ev)
		}
	}
}

func (o *Orchestrator) handleLiveEvent(ctx context.Context, ev domain.MessageEvent) {
	key := liveKey{sourceID: ev.SourceID, messageID: ev.Message.ID}
	if _, dup := o.seen[key]; dup {
		return
	}
	o.seen[key] = struct{}{}

	entry, ok := o.lookupAllowed(ev.SourceID)
	if !ok {
		return
	}
	if ev.Message.Text == "" {
		return
	}

	name := entry.source.Name
	if ev.SourceTitle != "" {
		name = ev.SourceTitle
	}
	o.processMessage(ctx, ev.SourceID, name, ev.Message)
}

// processMessage runs one message through extract -> classify -> match.
// Failures are contained at line granularity.
func (o *Orchestrator) processMessage(ctx context.Context, sourceID int64, sourceName string, msg domain.Message) {
	o.stats.NoteMessage(sourceName)

	for _, listing := range extract.Lines(msg.Text) {
		classified := o.classifier.Classify(ctx, listing.RawName, listing.RegionMarker)

		outcome, err := o.matcher.MatchAndRecord(ctx, classified, listing, domain.SourceContext{
			Account:     o.account,
			SourceID:    sourceID,
			SourceName:  sourceName,
			MessageID:   msg.ID,
			MessageDate: msg.Timestamp,
		})
		if err != nil {
			o.logger.Warn("listing abandoned",
				"source_id", sourceID, "message_id", msg.ID,
				"raw_name", listing.RawName, "error", err)
			continue
		}
		o.stats.NoteOutcome(sourceName, outcome)
	}
}

func (o *Orchestrator) allowedSnapshot() []allowedSource {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]allowedSource, 0, len(o.allowed))
	for _, entry := range o.allowed {
		out = append(out, entry)
	}
	return out
}

func (o *Orchestrator) lookupAllowed(sourceID int64) (allowedSource, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.allowed[sourceID]
	return entry, ok
}
