package services

import (
	"context"
	"fmt"
	"math"
	"sort"

	"price-agent/models"
	"price-agent/storage"
)

const (
	defaultTrendWindowDays = 30
	defaultTrendMaxSamples = 60
	defaultTrendMinSamples = 3

	// trendEpsilon is the relative movement across the window below which a
	// series counts as stable.
	trendEpsilon = 0.01
	// volatileCV marks a series volatile above this coefficient of variation.
	volatileCV = 0.15
)

// TrendConfig bounds the history a TrendAnalyzer looks at. Zero values fall
// back to 30 days, 60 samples and a minimum of 3 samples.
type TrendConfig struct {
	WindowDays int
	MaxSamples int
	MinSamples int
}

func (c TrendConfig) withDefaults() TrendConfig {
	if c.WindowDays <= 0 {
		c.WindowDays = defaultTrendWindowDays
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = defaultTrendMaxSamples
	}
	if c.MinSamples <= 0 {
		c.MinSamples = defaultTrendMinSamples
	}
	return c
}

// TrendAnalyzer derives price direction and volatility from the history store.
type TrendAnalyzer struct {
	store storage.HistoryStore
	cfg   TrendConfig
}

func NewTrendAnalyzer(store storage.HistoryStore, cfg TrendConfig) *TrendAnalyzer {
	return &TrendAnalyzer{store: store, cfg: cfg.withDefaults()}
}

// Analyze loads the recent history of one product on one platform and
// evaluates it together with the current price. On a store error the
// returned result is the zero-confidence stable trend.
func (a *TrendAnalyzer) Analyze(ctx context.Context, productID, platform string, currentPrice float64) (models.TrendResult, error) {
	records, err := a.store.History(ctx, productID, platform, a.cfg.WindowDays)
	if err != nil {
		return AnalyzeSeries(productID, platform, nil, currentPrice, a.cfg),
			fmt.Errorf("trend: load history %s/%s: %w", platform, productID, err)
	}
	return AnalyzeSeries(productID, platform, records, currentPrice, a.cfg), nil
}

// AnalyzeSeries is the pure part of Analyze. records must be ordered oldest
// first. The current price is appended as the newest sample unless it is
// already the last recorded price.
func AnalyzeSeries(productID, platform string, records []models.PriceRecord, currentPrice float64, cfg TrendConfig) models.TrendResult {
	cfg = cfg.withDefaults()
	prices := make([]float64, 0, len(records)+1)
	for _, r := range records {
		prices = append(prices, r.Price)
	}
	if currentPrice > 0 && (len(prices) == 0 || prices[len(prices)-1] != currentPrice) {
		prices = append(prices, currentPrice)
	}
	if len(prices) > cfg.MaxSamples {
		prices = prices[len(prices)-cfg.MaxSamples:]
	}

	res := models.TrendResult{
		ProductID:    productID,
		Platform:     platform,
		Direction:    models.DirectionStable,
		SampleCount:  len(prices),
		CurrentPrice: currentPrice,
	}
	if len(prices) == 0 {
		return res
	}

	mean := meanOf(prices)
	res.MinPrice, res.MaxPrice = minMax(prices)
	res.MeanPrice = round2(mean)
	res.MedianPrice = round2(medianOf(prices))

	if len(prices) < cfg.MinSamples {
		return res
	}

	cv := 0.0
	if mean > 0 {
		cv = stddevOf(prices, mean) / mean
		res.Slope = round4(regressionSlope(prices) * float64(len(prices)-1) / mean)
	}
	res.Volatility = round4(cv)
	res.Volatile = cv > volatileCV

	switch {
	case res.Slope > trendEpsilon:
		res.Direction = models.DirectionRising
	case res.Slope < -trendEpsilon:
		res.Direction = models.DirectionFalling
	}

	coverage := math.Min(float64(len(prices))/30, 1) * 0.5
	stability := 0.5 - math.Min(cv*0.5, 0.3)
	res.Confidence = round4(coverage + stability)
	res.Position = pricePosition(currentPrice, res.MinPrice, mean)
	return res
}

// pricePosition places the current price against the window statistics.
func pricePosition(current, min, mean float64) string {
	switch {
	case current <= min*1.05:
		return "excellent"
	case current <= mean*0.95:
		return "good"
	case current <= mean*1.05:
		return "average"
	default:
		return "high"
	}
}

// regressionSlope is the least-squares slope of ys against their index.
func regressionSlope(ys []float64) float64 {
	n := float64(len(ys))
	xMean := (n - 1) / 2
	yMean := meanOf(ys)
	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xMean
		num += dx * (y - yMean)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func meanOf(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddevOf(xs []float64, mean float64) float64 {
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return math.Sqrt(ss / float64(len(xs)))
}

func medianOf(xs []float64) float64 {
	s := append([]float64(nil), xs...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}

func minMax(xs []float64) (float64, float64) {
	lo, hi := xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

func round4(f float64) float64 {
	return math.Round(f*10000) / 10000
}
