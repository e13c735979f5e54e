package extract

import (
	"testing"

	"PriceScanner/internal/domain"
)

const (
	flagUS = "\U0001F1FA\U0001F1F8"
	flagJP = "\U0001F1EF\U0001F1F5"
	flagAE = "\U0001F1E6\U0001F1EA"
)

func TestLinesSingleListing(t *testing.T) {
	t.Parallel()

	got := Lines("iPhone 15 Pro Max 256GB " + flagUS + " 89900")
	if len(got) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(got))
	}

	// The flag sits between name and price; it marks the region and must be
	// stripped from the raw name.
	want := domain.Listing{RawName: "iPhone 15 Pro Max 256GB", Price: 89900, RegionMarker: flagUS}
	if got[0] != want {
		t.Fatalf("got %+v, want %+v", got[0], want)
	}
}

func TestLinesFlagAfterPrice(t *testing.T) {
	t.Parallel()

	got := Lines("iPhone 15 Pro Max 256GB 89900 " + flagUS)
	if len(got) != 1 {
		t.Fatalf("expected 1 listing, got %d", len(got))
	}
	want := domain.Listing{RawName: "iPhone 15 Pro Max 256GB", Price: 89900, RegionMarker: flagUS}
	if got[0] != want {
		t.Fatalf("got %+v, want %+v", got[0], want)
	}
}

func TestLinesNoPrice(t *testing.T) {
	t.Parallel()

	if got := Lines("куплю айфон"); len(got) != 0 {
		t.Fatalf("expected no listings, got %+v", got)
	}
}

func TestLinesRegionFanOut(t *testing.T) {
	t.Parallel()

	got := Lines("• Galaxy S24 Ultra 512GB 112000 " + flagUS + " " + flagJP + flagAE)
	if len(got) != 3 {
		t.Fatalf("expected 3 listings, got %d: %+v", len(got), got)
	}

	wantRegions := []string{flagUS, flagJP, flagAE}
	for i, listing := range got {
		if listing.RawName != "Galaxy S24 Ultra 512GB" {
			t.Fatalf("listing %d raw name = %q", i, listing.RawName)
		}
		if listing.Price != 112000 {
			t.Fatalf("listing %d price = %d", i, listing.Price)
		}
		if listing.RegionMarker != wantRegions[i] {
			t.Fatalf("listing %d region = %q, want %q", i, listing.RegionMarker, wantRegions[i])
		}
	}
}

func TestLinesMultiLineOrder(t *testing.T) {
	t.Parallel()

	body := "price list\n" +
		"- iPhone 15 128GB 65000\n" +
		"\n" +
		": Pixel 9 Pro 78000 " + flagJP + "\n" +
		"short 1234 line"

	got := Lines(body)
	if len(got) != 2 {
		t.Fatalf("expected 2 listings, got %d: %+v", len(got), got)
	}
	if got[0].RawName != "iPhone 15 128GB" || got[0].Price != 65000 {
		t.Fatalf("unexpected first listing: %+v", got[0])
	}
	if got[1].RawName != "Pixel 9 Pro" || got[1].RegionMarker != flagJP {
		t.Fatalf("unexpected second listing: %+v", got[1])
	}
}

func TestLinesDigitRunBounds(t *testing.T) {
	t.Parallel()

	// 8 digits in a row is not a price token.
	if got := Lines("serial 12345678 number"); len(got) != 0 {
		t.Fatalf("expected no listings for 8-digit run, got %+v", got)
	}

	// 4 digits is below the price range.
	if got := Lines("iPhone 15 Pro 9999"); len(got) != 0 {
		t.Fatalf("expected no listings for 4-digit run, got %+v", got)
	}
}
