package models

// MarketReport holds aggregate statistics over the listings of one query.
type MarketReport struct {
	TotalListings      int            `json:"total_listings"`
	InStockListings    int            `json:"in_stock_listings"`
	ListingsByPlatform map[string]int `json:"listings_by_platform"`
	AveragePrice       float64        `json:"average_price"`
	MinPrice           float64        `json:"min_price"`
	MaxPrice           float64        `json:"max_price"`
	Cheapest           *Listing       `json:"cheapest,omitempty"`
	MostExpensive      *Listing       `json:"most_expensive,omitempty"`
	TopRated           []*Listing     `json:"top_rated,omitempty"`
}

// InsightPrompt is the structured summary handed to an insight generator.
type InsightPrompt struct {
	Query                string          `json:"query"`
	Best                 RankedListing   `json:"best"`
	Alternatives         []RankedListing `json:"alternatives"`
	Market               *MarketReport   `json:"market"`
	TotalSavings         float64         `json:"total_savings"`
	SavingsPercentage    float64         `json:"savings_percentage"`
	UnavailablePlatforms []string        `json:"unavailable_platforms,omitempty"`
	HistoryDegraded      bool            `json:"history_degraded"`
}

// Insight is the narrative part of a Recommendation.
type Insight struct {
	Summary                string   `json:"summary"`
	DetailedAnalysis       string   `json:"detailed_analysis"`
	TimingAdvice           string   `json:"timing_advice"`
	AlternativeSuggestions []string `json:"alternative_suggestions"`
}

// Complete reports whether every narrative field is filled.
func (i *Insight) Complete() bool {
	return i != nil && i.Summary != "" && i.DetailedAnalysis != "" && i.TimingAdvice != "" && len(i.AlternativeSuggestions) > 0
}
