package mock

import (
	"context"
	"testing"
	"time"

	"price-agent/models"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestFetchIsDeterministic(t *testing.T) {
	day := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	a, err := New(models.PlatformAmazon, 3, fixedClock(day)).Fetch(context.Background(), "Wireless Headphones")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	b, _ := New(models.PlatformAmazon, 3, fixedClock(day.Add(5*time.Hour))).Fetch(context.Background(), "  wireless   headphones ")

	if len(a) != 3 || len(b) != 3 {
		t.Fatalf("len: got %d/%d, want 3", len(a), len(b))
	}
	for i := range a {
		if a[i].ProductID != b[i].ProductID || a[i].CurrentPrice != b[i].CurrentPrice {
			t.Errorf("result %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestFetchKeepsIdentityAcrossDays(t *testing.T) {
	d1 := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	a, _ := New(models.PlatformFlipkart, 2, fixedClock(d1)).Fetch(context.Background(), "laptop")
	b, _ := New(models.PlatformFlipkart, 2, fixedClock(d2)).Fetch(context.Background(), "laptop")

	for i := range a {
		if a[i].ProductID != b[i].ProductID {
			t.Errorf("product %d id changed between days: %s vs %s", i, a[i].ProductID, b[i].ProductID)
		}
		if a[i].Seller.Name != b[i].Seller.Name {
			t.Errorf("product %d seller changed between days", i)
		}
	}
}

func TestFetchListingsAreComplete(t *testing.T) {
	for _, platform := range []string{models.PlatformAmazon, models.PlatformFlipkart, models.PlatformMeesho, "snapdeal"} {
		got, err := New(platform, 5, nil).Fetch(context.Background(), "phone")
		if err != nil {
			t.Fatalf("%s: %v", platform, err)
		}
		if len(got) != 5 {
			t.Errorf("%s: got %d listings, want 5", platform, len(got))
		}
		for _, l := range got {
			if !l.Complete() {
				t.Errorf("%s: incomplete listing %+v", platform, l)
			}
			if l.Platform != platform {
				t.Errorf("platform: got %s, want %s", l.Platform, platform)
			}
			if l.OriginalPrice < l.CurrentPrice {
				t.Errorf("%s: original %.2f below current %.2f", platform, l.OriginalPrice, l.CurrentPrice)
			}
			if l.DiscountPercentage < 0 || l.DiscountPercentage >= 1 {
				t.Errorf("%s: discount out of range: %v", platform, l.DiscountPercentage)
			}
		}
	}
}

func TestFetchPriceBands(t *testing.T) {
	got, _ := New(models.PlatformMeesho, 3, nil).Fetch(context.Background(), "kurta")
	for _, l := range got {
		if l.CurrentPrice < 3500*0.7 || l.CurrentPrice > 35000*1.1 {
			t.Errorf("meesho price out of band: %.2f", l.CurrentPrice)
		}
		if l.Seller.Rating < 3.5 || l.Seller.Rating > 4.5 {
			t.Errorf("meesho seller rating out of band: %.1f", l.Seller.Rating)
		}
	}
}

func TestFetchEmptyQueryAndCanceledContext(t *testing.T) {
	p := New(models.PlatformAmazon, 3, nil)
	if got, err := p.Fetch(context.Background(), "   "); err != nil || len(got) != 0 {
		t.Errorf("blank query: got %d listings, err %v", len(got), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Fetch(ctx, "phone"); err == nil {
		t.Error("expected error for canceled context")
	}
}
