package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"PriceScanner/internal/domain"
	"PriceScanner/internal/ports"
)

const previewPage = `
<html><body>
<div class="tgme_channel_info_header_title">Gadget Prices</div>
<section>
  <div class="tgme_widget_message" data-post="gadgetprices/101">
    <div class="tgme_widget_message_text">iPhone 15 Pro Max 256GB 89900</div>
    <time datetime="2026-03-01T10:00:00+00:00"></time>
  </div>
  <div class="tgme_widget_message" data-post="gadgetprices/102">
    <div class="tgme_widget_message_text">Galaxy S24 Ultra 112000</div>
    <time datetime="2026-03-01T11:00:00+00:00"></time>
  </div>
  <div class="tgme_widget_message" data-post="gadgetprices/103">
    <time datetime="2026-03-01T12:00:00+00:00"></time>
  </div>
</section>
</body></html>`

func previewServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(previewPage))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestResolveEntityReadsTitle(t *testing.T) {
	t.Parallel()

	server := previewServer(t, http.StatusOK)
	client := NewPreviewClient(Options{Account: "acc-a", BaseURL: server.URL, Client: server.Client()})

	handle, err := client.ResolveEntity(context.Background(), domain.Source{ID: 9, Name: "@gadgetprices"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if handle.Title != "Gadget Prices" {
		t.Fatalf("title = %q, want %q", handle.Title, "Gadget Prices")
	}
}

func TestFetchHistoryNewestFirst(t *testing.T) {
	t.Parallel()

	server := previewServer(t, http.StatusOK)
	client := NewPreviewClient(Options{Account: "acc-a", BaseURL: server.URL, Client: server.Client()})
	ctx := context.Background()

	handle, err := client.ResolveEntity(ctx, domain.Source{ID: 9, Name: "gadgetprices"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	messages, err := client.FetchHistory(ctx, handle, 50)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(messages))
	}
	if messages[0].ID != 103 || messages[2].ID != 101 {
		t.Fatalf("unexpected order: %d, %d, %d", messages[0].ID, messages[1].ID, messages[2].ID)
	}
	if messages[2].Text != "iPhone 15 Pro Max 256GB 89900" {
		t.Fatalf("unexpected text %q", messages[2].Text)
	}
	if messages[0].Text != "" {
		t.Fatalf("media-only post should have empty text, got %q", messages[0].Text)
	}
	if messages[2].Timestamp.IsZero() {
		t.Fatalf("timestamp not parsed")
	}

	// Window bound applies.
	messages, err = client.FetchHistory(ctx, handle, 1)
	if err != nil {
		t.Fatalf("bounded history: %v", err)
	}
	if len(messages) != 1 || messages[0].ID != 103 {
		t.Fatalf("window not applied: %+v", messages)
	}
}

func TestFetchPageErrorTaxonomy(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ports.ErrRateLimited},
		{http.StatusNotFound, ports.ErrNotFound},
		{http.StatusForbidden, ports.ErrForbidden},
	}

	for _, tc := range cases {
		server := previewServer(t, tc.status)
		client := NewPreviewClient(Options{Account: "acc-a", BaseURL: server.URL, Client: server.Client()})

		_, err := client.ResolveEntity(context.Background(), domain.Source{ID: 1, Name: "gadgetprices"})
		if !errors.Is(err, tc.want) {
			t.Fatalf("status %d: error = %v, want %v", tc.status, err, tc.want)
		}
	}
}
