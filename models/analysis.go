package models

import "time"

// PriceRecord is one persisted price observation. Records are append-only.
type PriceRecord struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	Platform      string    `json:"platform"`
	Price         float64   `json:"price"`
	OriginalPrice float64   `json:"original_price"`
	Rating        float64   `json:"rating"`
	Timestamp     time.Time `json:"timestamp"`
}

// TrustScore is a 0-100 reliability score for a platform/seller pairing.
type TrustScore struct {
	Platform          string  `json:"platform"`
	SellerID          string  `json:"seller_id"`
	Score             float64 `json:"score"`
	SellerRating      float64 `json:"seller_rating"`
	PlatformPrior     float64 `json:"platform_prior"`
	ReducedConfidence bool    `json:"reduced_confidence"`
}

type Direction string

const (
	DirectionRising  Direction = "rising"
	DirectionFalling Direction = "falling"
	DirectionStable  Direction = "stable"
)

// TrendResult is the derived price movement for one product on one platform.
type TrendResult struct {
	ProductID   string    `json:"product_id"`
	Platform    string    `json:"platform"`
	Direction   Direction `json:"direction"`
	Slope       float64   `json:"slope"`
	Volatility  float64   `json:"volatility"`
	Volatile    bool      `json:"volatile"`
	Confidence  float64   `json:"confidence"`
	SampleCount int       `json:"sample_count"`

	CurrentPrice    float64 `json:"current_price"`
	CurrentDiscount float64 `json:"current_discount"`
	MinPrice        float64 `json:"min_price"`
	MaxPrice        float64 `json:"max_price"`
	MeanPrice       float64 `json:"mean_price"`
	MedianPrice     float64 `json:"median_price"`
	Position        string  `json:"position,omitempty"`
}

type Advice string

const (
	AdviceBuyNow Advice = "buy_now"
	AdviceWait   Advice = "wait"
)

// SaleEvent is a recurring yearly sale window. Start and end are inclusive
// month/day pairs; an end before the start wraps into the next year.
type SaleEvent struct {
	Name       string `json:"name" mapstructure:"name"`
	StartMonth int    `json:"start_month" mapstructure:"start_month"`
	StartDay   int    `json:"start_day" mapstructure:"start_day"`
	EndMonth   int    `json:"end_month" mapstructure:"end_month"`
	EndDay     int    `json:"end_day" mapstructure:"end_day"`
	HighValue  bool   `json:"high_value" mapstructure:"high_value"`
}

// UpcomingSale is a concrete occurrence of a SaleEvent relative to a date.
type UpcomingSale struct {
	Name      string    `json:"name"`
	StartsAt  time.Time `json:"starts_at"`
	DaysUntil int       `json:"days_until"`
	Ongoing   bool      `json:"ongoing"`
	HighValue bool      `json:"high_value"`
}

// Prediction is a buy-now / wait signal.
type Prediction struct {
	Advice            Advice        `json:"advice"`
	Confidence        float64       `json:"confidence"`
	Reason            string        `json:"reason"`
	NextExpectedEvent *UpcomingSale `json:"next_expected_event,omitempty"`

	// PredictedPrice is the linear forecast a week ahead; ExpectedDrop is
	// how far below the current price it lands (0 when it does not).
	PredictedPrice  float64    `json:"predicted_price"`
	ExpectedDrop    float64    `json:"expected_drop"`
	ExpectedDropPct float64    `json:"expected_drop_percentage"`
	OptimalBuyDate  *time.Time `json:"optimal_buy_date,omitempty"`
}

// RankedListing carries a listing together with everything the ranking
// stage derived for it.
type RankedListing struct {
	Listing    *Listing    `json:"listing"`
	Trust      TrustScore  `json:"trust"`
	Trend      TrendResult `json:"trend"`
	Prediction Prediction  `json:"prediction"`
	Score      float64     `json:"score"`
}

// Recommendation is the pipeline output for one query. It is built fresh per
// query and never persisted as a unit.
type Recommendation struct {
	Query                  string          `json:"query"`
	BestProduct            *Listing        `json:"best_product"`
	AllProducts            []*Listing      `json:"all_products"`
	Ranked                 []RankedListing `json:"ranked"`
	TotalSavings           float64         `json:"total_savings"`
	SavingsPercentage      float64         `json:"savings_percentage"`
	Summary                string          `json:"summary"`
	DetailedAnalysis       string          `json:"detailed_analysis"`
	TimingAdvice           string          `json:"timing_advice"`
	AlternativeSuggestions []string        `json:"alternative_suggestions"`

	UnavailablePlatforms []string  `json:"unavailable_platforms,omitempty"`
	HistoryDegraded      bool      `json:"history_degraded"`
	NarrativeFallback    bool      `json:"narrative_fallback"`
	CreatedAt            time.Time `json:"created_at"`
}

// Best returns the ranked entry of the best product.
func (r *Recommendation) Best() *RankedListing {
	if r == nil || len(r.Ranked) == 0 {
		return nil
	}
	return &r.Ranked[0]
}

// SearchState tracks a single query through the pipeline.
type SearchState string

const (
	StateIdle             SearchState = "idle"
	StateFetching         SearchState = "fetching"
	StateAggregating      SearchState = "aggregating"
	StateRanking          SearchState = "ranking"
	StateNarrativePending SearchState = "narrative_pending"
	StateComplete         SearchState = "complete"
	StateFailed           SearchState = "failed"
)
