// Package telegram implements the messaging-client boundary on top of public
// channel preview pages. Authenticated MTProto access stays outside this
// repository; the preview surface covers public broadcast channels.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/ports"
)

const defaultBaseURL = "https://t.me"

// PreviewClient scrapes per-channel preview pages and exposes them through
// the MessagingClient port. One instance serves one account.
type PreviewClient struct {
	account string
	baseURL string
	client  *http.Client
	poll    time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	slugs    map[int64]string
	lastSeen map[int64]int64
}

var _ ports.MessagingClient = (*PreviewClient)(nil)

// Options configures a preview client.
type Options struct {
	Account      string
	BaseURL      string
	Client       *http.Client
	PollInterval time.Duration
	Logger       *slog.Logger
}

// NewPreviewClient wires an HTTP client; poll interval defaults to 30s.
func NewPreviewClient(opts Options) *PreviewClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PreviewClient{
		account:  opts.Account,
		baseURL:  base,
		client:   client,
		poll:     poll,
		logger:   logger,
		slugs:    map[int64]string{},
		lastSeen: map[int64]int64{},
	}
}

// Factory builds preview clients from account options for the registry.
func Factory(account string, options map[string]string, logger *slog.Logger) (ports.MessagingClient, error) {
	return NewPreviewClient(Options{
		Account: account,
		BaseURL: options["baseUrl"],
		Logger:  logger,
	}), nil
}

// ResolveEntity fetches the source's preview page and returns its handle with
// the current channel title. The source name is the public channel slug.
func (p *PreviewClient) ResolveEntity(ctx context.Context, source domain.Source) (ports.EntityHandle, error) {
	slug := strings.TrimPrefix(strings.TrimSpace(source.Name), "@")
	if slug == "" {
		return ports.EntityHandle{}, fmt.Errorf("source %d: %w", source.ID, ports.ErrNotFound)
	}

	doc, err := p.fetchPage(ctx, slug)
	if err != nil {
		return ports.EntityHandle{}, fmt.Errorf("resolve %s: %w", slug, err)
	}

	title := strings.TrimSpace(doc.Find(".tgme_channel_info_header_title").First().Text())
	if title == "" {
		title = slug
	}

	p.mu.Lock()
	p.slugs[source.ID] = slug
	p.mu.Unlock()

	return ports.EntityHandle{SourceID: source.ID, Title: title}, nil
}

// FetchHistory returns up to window recent messages, newest first.
func (p *PreviewClient) FetchHistory(ctx context.Context, handle ports.EntityHandle, window int) ([]domain.Message, error) {
	slug, ok := p.slug(handle.SourceID)
	if !ok {
		return nil, fmt.Errorf("source %d not resolved: %w", handle.SourceID, ports.ErrNotFound)
	}

	doc, err := p.fetchPage(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", slug, err)
	}

	messages := parseMessages(doc)
	sort.Slice(messages, func(i, j int) bool { return messages[i].ID > messages[j].ID })
	if window > 0 && len(messages) > window {
		messages = messages[:window]
	}
	return messages, nil
}

// Subscribe polls every resolved source and emits messages not seen before,
// in ascending id order per source. The channel closes when ctx ends.
func (p *PreviewClient) Subscribe(ctx context.Context) (<-chan domain.MessageEvent, error) {
	events := make(chan domain.MessageEvent)

	go func() {
		defer close(events)
		ticker := time.NewTicker(p.poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.pollOnce(ctx, events)
			}
		}
	}()

	return events, nil
}

func (p *PreviewClient) pollOnce(ctx context.Context, events chan<- domain.MessageEvent) {
	for sourceID, slug := range p.slugSnapshot() {
		doc, err := p.fetchPage(ctx, slug)
		if err != nil {
			p.logger.Warn("live poll failed", "slug", slug, "error", err)
			continue
		}

		messages := parseMessages(doc)
		sort.Slice(messages, func(i, j int) bool { return messages[i].ID < messages[j].ID })

		for _, msg := range messages {
			if !p.markSeen(sourceID, msg.ID) {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case events <- domain.MessageEvent{SourceID: sourceID, Message: msg}:
			}
		}
	}
}

func (p *PreviewClient) fetchPage(ctx context.Context, slug string) (*goquery.Document, error) {
	url := fmt.Sprintf("%s/s/%s", p.baseURL, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ports.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return nil, ports.ErrNotFound
	case resp.StatusCode == http.StatusForbidden:
		return nil, ports.ErrForbidden
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// parseMessages walks the preview page's message blocks. Blocks without a
// numeric post id are skipped; media-only posts yield empty text.
func parseMessages(doc *goquery.Document) []domain.Message {
	var messages []domain.Message
	doc.Find("div.tgme_widget_message").Each(func(_ int, sel *goquery.Selection) {
		post := sel.AttrOr("data-post", "")
		idx := strings.LastIndex(post, "/")
		if idx < 0 {
			return
		}
		id, err := strconv.ParseInt(post[idx+1:], 10, 64)
		if err != nil {
			return
		}

		msg := domain.Message{
			ID:   id,
			Text: strings.TrimSpace(sel.Find(".tgme_widget_message_text").First().Text()),
		}
		if stamp := sel.Find("time").First().AttrOr("datetime", ""); stamp != "" {
			if ts, err := time.Parse(time.RFC3339, stamp); err == nil {
				msg.Timestamp = ts.UTC()
			}
		}
		messages = append(messages, msg)
	})
	return messages
}

func (p *PreviewClient) slug(sourceID int64) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	slug, ok := p.slugs[sourceID]
	return slug, ok
}

func (p *PreviewClient) slugSnapshot() map[int64]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[int64]string, len(p.slugs))
	for id, slug := range p.slugs {
		out[id] = slug
	}
	return out
}

// markSeen records the message id and reports whether it was new.
func (p *PreviewClient) markSeen(sourceID, messageID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if messageID <= p.lastSeen[sourceID] {
		return false
	}
	p.lastSeen[sourceID] = messageID
	return true
}
