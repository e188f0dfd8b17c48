package services

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"price-agent/models"
	"price-agent/storage"
)

func series(prices ...float64) []models.PriceRecord {
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.PriceRecord, len(prices))
	for i, p := range prices {
		out[i] = models.PriceRecord{ProductID: "P", Platform: "amazon", Price: p, Timestamp: base.Add(time.Duration(i) * 24 * time.Hour)}
	}
	return out
}

func TestTrustScoreWithSeller(t *testing.T) {
	s := NewTrustScorer(nil)
	l := models.NewListing("amazon", "A1", "Phone", 100, 120)
	l.Seller = &models.SellerInfo{Name: "Cloudtail India", ID: "cloudtail", Rating: 4.5, PositivePercentage: 90, ShipOnTimePercentage: 95, Verified: true}

	got := s.Score(l)
	// seller = 36 + 27 + 19 + 10 = 92; 0.3*80 + 0.7*92 = 88.4
	if got.Score != 88.4 {
		t.Errorf("Score: got %.2f, want 88.40", got.Score)
	}
	if got.ReducedConfidence {
		t.Error("ReducedConfidence should be false with seller info")
	}
	if got.SellerID != "cloudtail" || got.PlatformPrior != 80 {
		t.Errorf("unexpected score fields: %+v", got)
	}
}

func TestTrustScoreWithoutSellerUsesPrior(t *testing.T) {
	s := NewTrustScorer(nil)
	tests := []struct {
		platform string
		want     float64
	}{
		{"amazon", 80},
		{"flipkart", 75},
		{"meesho", 65},
		{"localshop", 60},
	}
	for _, tt := range tests {
		got := s.Score(models.NewListing(tt.platform, "X", "x", 10, 0))
		if got.Score != tt.want || !got.ReducedConfidence {
			t.Errorf("%s: got %.2f reduced=%v, want %.2f reduced=true", tt.platform, got.Score, got.ReducedConfidence, tt.want)
		}
	}
}

func TestTrustScoreIsBounded(t *testing.T) {
	s := NewTrustScorer(map[string]float64{"x": 100})
	l := models.NewListing("x", "X", "x", 10, 0)
	l.Seller = &models.SellerInfo{Rating: 9, PositivePercentage: 400, ShipOnTimePercentage: 150, Verified: true}
	if got := s.Score(l).Score; got < 0 || got > 100 {
		t.Errorf("score out of range: %.2f", got)
	}
}

func TestTrendSparseHistoryIsStable(t *testing.T) {
	for _, current := range []float64{1, 500, 99999} {
		got := AnalyzeSeries("P", "amazon", series(100), current, TrendConfig{})
		if got.Direction != models.DirectionStable || got.Confidence != 0 {
			t.Errorf("current=%.0f: got %s/%.2f, want stable/0", current, got.Direction, got.Confidence)
		}
	}
	got := AnalyzeSeries("P", "amazon", nil, 0, TrendConfig{})
	if got.Direction != models.DirectionStable || got.Confidence != 0 || got.SampleCount != 0 {
		t.Errorf("empty: got %+v", got)
	}
}

func TestTrendDirection(t *testing.T) {
	tests := []struct {
		name    string
		history []models.PriceRecord
		current float64
		want    models.Direction
	}{
		{"rising", series(100, 110, 120, 130), 140, models.DirectionRising},
		{"falling", series(140, 130, 120, 110), 100, models.DirectionFalling},
		{"flat", series(100, 100, 100), 100, models.DirectionStable},
		{"tiny drift", series(1000, 1001, 1002), 1003, models.DirectionStable},
	}
	for _, tt := range tests {
		got := AnalyzeSeries("P", "amazon", tt.history, tt.current, TrendConfig{})
		if got.Direction != tt.want {
			t.Errorf("%s: direction got %s, want %s (slope %.4f)", tt.name, got.Direction, tt.want, got.Slope)
		}
		if got.Confidence <= 0 || got.Confidence > 1 {
			t.Errorf("%s: confidence out of range: %.4f", tt.name, got.Confidence)
		}
	}
}

func TestTrendCurrentPriceNotDuplicated(t *testing.T) {
	got := AnalyzeSeries("P", "amazon", series(100, 100, 100), 100, TrendConfig{})
	if got.SampleCount != 3 {
		t.Errorf("SampleCount: got %d, want 3", got.SampleCount)
	}
	// 3/30*0.5 + 0.5 with zero volatility
	if got.Confidence != 0.55 {
		t.Errorf("Confidence: got %.4f, want 0.55", got.Confidence)
	}
}

func TestTrendVolatilityAndStats(t *testing.T) {
	got := AnalyzeSeries("P", "amazon", series(100, 200, 100, 200, 100), 100, TrendConfig{})
	if !got.Volatile {
		t.Errorf("expected volatile series, cv=%.4f", got.Volatility)
	}
	if math.Abs(got.Volatility-0.3499) > 0.001 {
		t.Errorf("Volatility: got %.4f, want ~0.35", got.Volatility)
	}
	if got.MinPrice != 100 || got.MaxPrice != 200 || got.MeanPrice != 140 || got.MedianPrice != 100 {
		t.Errorf("stats: got min %.0f max %.0f mean %.0f median %.0f", got.MinPrice, got.MaxPrice, got.MeanPrice, got.MedianPrice)
	}
	if got.Position != "excellent" {
		t.Errorf("Position: got %q, want excellent", got.Position)
	}
}

func TestTrendSampleCap(t *testing.T) {
	prices := make([]float64, 100)
	for i := range prices {
		prices[i] = float64(100 + i)
	}
	got := AnalyzeSeries("P", "amazon", series(prices...), 500, TrendConfig{MaxSamples: 60})
	if got.SampleCount != 60 {
		t.Errorf("SampleCount: got %d, want 60", got.SampleCount)
	}
}

type brokenStore struct {
	storage.HistoryStore
}

func (brokenStore) Record(context.Context, *models.Listing) (models.PriceRecord, error) {
	return models.PriceRecord{}, errors.New("disk full")
}

func (brokenStore) History(context.Context, string, string, int) ([]models.PriceRecord, error) {
	return nil, errors.New("disk full")
}

func (brokenStore) Close() error { return nil }

func TestTrendAnalyzerReadsStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	now := time.Now().UTC()
	for i, p := range []float64{150, 140, 130, 120} {
		l := models.NewListing("flipkart", "F1", "Phone", p, 200)
		l.RetrievedAt = now.Add(time.Duration(i-4) * time.Hour)
		if _, err := store.Record(ctx, l); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	a := NewTrendAnalyzer(store, TrendConfig{})
	got, err := a.Analyze(ctx, "F1", "flipkart", 110)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.Direction != models.DirectionFalling || got.SampleCount != 5 {
		t.Errorf("got %s with %d samples, want falling with 5", got.Direction, got.SampleCount)
	}

	b := NewTrendAnalyzer(brokenStore{}, TrendConfig{})
	got, err = b.Analyze(ctx, "F1", "flipkart", 110)
	if err == nil {
		t.Fatal("expected store error")
	}
	if got.Direction != models.DirectionStable || got.Confidence != 0 {
		t.Errorf("on error got %s/%.2f, want stable/0", got.Direction, got.Confidence)
	}
}

func day(month time.Month, d int) time.Time {
	return time.Date(2026, month, d, 10, 0, 0, 0, time.UTC)
}

func TestPredictorRules(t *testing.T) {
	p := NewPredictor(PredictorConfig{})
	stable := models.TrendResult{Platform: "amazon", Direction: models.DirectionStable}

	tests := []struct {
		name       string
		trend      models.TrendResult
		asOf       time.Time
		want       models.Advice
		reasonPart string
	}{
		{"ongoing sale", stable, day(time.October, 18), models.AdviceBuyNow, "Diwali"},
		{"high value sale ahead", stable, day(time.November, 10), models.AdviceWait, "Black Friday"},
		{"sharp fall beats sale", models.TrendResult{Platform: "amazon", Direction: models.DirectionFalling, Slope: -0.08, Confidence: 0.6},
			day(time.November, 10), models.AdviceBuyNow, "falling"},
		// 1000, 998, 994, 990: confidently falling but only about 1% over the window.
		{"shallow confident fall still waits for sale", models.TrendResult{Platform: "amazon", Direction: models.DirectionFalling, Slope: -0.0102, Confidence: 0.56},
			day(time.September, 22), models.AdviceWait, "Diwali"},
		{"mild fall still waits for sale", models.TrendResult{Platform: "amazon", Direction: models.DirectionFalling, Confidence: 0.4},
			day(time.November, 10), models.AdviceWait, "Black Friday"},
		{"falling no sale", models.TrendResult{Platform: "amazon", Direction: models.DirectionFalling, Confidence: 0.4},
			day(time.July, 1), models.AdviceBuyNow, "falling"},
		{"weak fall ignored", models.TrendResult{Platform: "amazon", Direction: models.DirectionFalling, Confidence: 0.2},
			day(time.July, 1), models.AdviceWait, "no strong signal"},
		{"rising", models.TrendResult{Platform: "amazon", Direction: models.DirectionRising, Confidence: 0.7},
			day(time.July, 1), models.AdviceBuyNow, "up"},
		{"discount above baseline", models.TrendResult{Platform: "amazon", Direction: models.DirectionStable, CurrentDiscount: 0.3},
			day(time.July, 1), models.AdviceBuyNow, "discount"},
		{"discount below baseline", models.TrendResult{Platform: "meesho", Direction: models.DirectionStable, CurrentDiscount: 0.3},
			day(time.July, 1), models.AdviceWait, "no strong signal"},
		{"minor sale ahead", stable, day(time.February, 5), models.AdviceWait, "no strong signal"},
	}
	for _, tt := range tests {
		got := p.Predict(tt.trend, tt.asOf)
		if got.Advice != tt.want {
			t.Errorf("%s: advice got %s, want %s (%s)", tt.name, got.Advice, tt.want, got.Reason)
		}
		if !strings.Contains(got.Reason, tt.reasonPart) {
			t.Errorf("%s: reason %q does not mention %q", tt.name, got.Reason, tt.reasonPart)
		}
	}
}

func TestPredictorReportsNextEvent(t *testing.T) {
	p := NewPredictor(PredictorConfig{})
	got := p.Predict(models.TrendResult{Platform: "amazon"}, day(time.February, 5))
	if got.NextExpectedEvent == nil || got.NextExpectedEvent.Name != "Valentine's Day Sale" {
		t.Fatalf("NextExpectedEvent: got %+v", got.NextExpectedEvent)
	}
	if got.NextExpectedEvent.DaysUntil != 5 {
		t.Errorf("DaysUntil: got %d, want 5", got.NextExpectedEvent.DaysUntil)
	}
	if got.Confidence != 0.35 {
		t.Errorf("Confidence: got %.2f, want 0.35", got.Confidence)
	}
}

func TestPredictorForecast(t *testing.T) {
	p := NewPredictor(PredictorConfig{})

	// 11 samples, mean 1000, 20% fall across the window: -20 per sample.
	falling := models.TrendResult{Platform: "amazon", Direction: models.DirectionFalling, Slope: -0.2,
		Confidence: 0.6, SampleCount: 11, MeanPrice: 1000, CurrentPrice: 900}
	got := p.Predict(falling, day(time.July, 1))
	if got.PredictedPrice != 760 {
		t.Errorf("PredictedPrice: got %.2f, want 760", got.PredictedPrice)
	}
	if got.ExpectedDrop != 140 || got.ExpectedDropPct != 15.56 {
		t.Errorf("ExpectedDrop: got %.2f (%.2f%%), want 140 (15.56%%)", got.ExpectedDrop, got.ExpectedDropPct)
	}
	if got.OptimalBuyDate == nil || !got.OptimalBuyDate.Equal(time.Date(2026, time.July, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("OptimalBuyDate: got %v, want 2026-07-08", got.OptimalBuyDate)
	}

	rising := models.TrendResult{Platform: "amazon", Direction: models.DirectionRising, Slope: 0.1,
		Confidence: 0.7, SampleCount: 6, MeanPrice: 500, CurrentPrice: 520}
	got = p.Predict(rising, day(time.July, 1))
	if got.PredictedPrice <= 520 || got.ExpectedDrop != 0 || got.ExpectedDropPct != 0 {
		t.Errorf("rising forecast: got %.2f drop %.2f", got.PredictedPrice, got.ExpectedDrop)
	}
	if got.OptimalBuyDate == nil || !got.OptimalBuyDate.Equal(time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("buy now should be today, got %v", got.OptimalBuyDate)
	}

	flat := models.TrendResult{Platform: "amazon", Direction: models.DirectionStable, SampleCount: 1, CurrentPrice: 300}
	got = p.Predict(flat, day(time.November, 10))
	if got.PredictedPrice != 300 || got.ExpectedDrop != 0 {
		t.Errorf("flat forecast: got %.2f drop %.2f", got.PredictedPrice, got.ExpectedDrop)
	}
	if got.Advice != models.AdviceWait || got.OptimalBuyDate == nil || !got.OptimalBuyDate.Equal(got.NextExpectedEvent.StartsAt) {
		t.Errorf("waiting for a sale should buy on its first day, got %v", got.OptimalBuyDate)
	}

	got = p.Predict(flat, day(time.July, 1))
	if got.Advice != models.AdviceWait || got.OptimalBuyDate != nil {
		t.Errorf("no signal should leave the buy date empty, got %v", got.OptimalBuyDate)
	}
}

func TestPredictorIsTotal(t *testing.T) {
	p := NewPredictor(PredictorConfig{})
	directions := []models.Direction{models.DirectionRising, models.DirectionFalling, models.DirectionStable, ""}
	for _, dir := range directions {
		for _, conf := range []float64{0, 0.3, 0.5, 1} {
			for m := time.January; m <= time.December; m++ {
				for _, d := range []int{1, 15, 28} {
					got := p.Predict(models.TrendResult{Platform: "x", Direction: dir, Confidence: conf}, day(m, d))
					if got.Advice != models.AdviceBuyNow && got.Advice != models.AdviceWait {
						t.Fatalf("invalid advice %q", got.Advice)
					}
					if got.Confidence < 0 || got.Confidence > 1 || got.Reason == "" {
						t.Fatalf("invalid prediction %+v", got)
					}
				}
			}
		}
	}
}

func TestUpcomingSalesWrapsYearEnd(t *testing.T) {
	events := []models.SaleEvent{{Name: "Year End", StartMonth: 12, StartDay: 28, EndMonth: 1, EndDay: 3, HighValue: true}}

	got := UpcomingSales(events, time.Date(2027, 1, 2, 8, 0, 0, 0, time.UTC), 14)
	if len(got) != 1 || !got[0].Ongoing {
		t.Fatalf("expected ongoing sale on Jan 2, got %+v", got)
	}

	got = UpcomingSales(events, time.Date(2026, 12, 20, 8, 0, 0, 0, time.UTC), 14)
	if len(got) != 1 || got[0].Ongoing || got[0].DaysUntil != 8 {
		t.Fatalf("expected sale in 8 days, got %+v", got)
	}

	if got := UpcomingSales(events, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), 14); len(got) != 0 {
		t.Errorf("expected nothing within horizon, got %+v", got)
	}
}

func TestLoadSaleCalendar(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sales.yaml")
	content := `events:
  - name: Big Billion Days
    start_month: 10
    start_day: 8
    end_month: 10
    end_day: 15
    high_value: true
  - name: Monsoon Sale
    start_month: 7
    start_day: 1
    end_month: 7
    end_day: 7
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	events, err := LoadSaleCalendar(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events: got %d, want 2", len(events))
	}
	if events[0].Name != "Big Billion Days" || !events[0].HighValue || events[0].EndDay != 15 {
		t.Errorf("unexpected first event: %+v", events[0])
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("events:\n  - name: Broken\n    start_month: 13\n    start_day: 1\n    end_month: 1\n    end_day: 2\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSaleCalendar(bad); err == nil {
		t.Error("expected error for month 13")
	}
	if _, err := LoadSaleCalendar(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
