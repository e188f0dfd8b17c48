package services

import (
	"fmt"
	"math"
	"time"

	"price-agent/models"
)

// defaultDiscountBaselines is the typical discount per platform. A listing
// at or above its baseline is already a good deal.
var defaultDiscountBaselines = map[string]float64{
	models.PlatformAmazon:   0.20,
	models.PlatformFlipkart: 0.25,
	models.PlatformMeesho:   0.35,
}

const (
	fallbackDiscountBaseline = 0.20
	defaultSaleHorizonDays   = 14

	// A fall overrides waiting for an upcoming sale only when it moved at
	// least sharpFallSlope across the window with sharpFallConfidence.
	sharpFallSlope      = 0.05
	sharpFallConfidence = 0.5
	// fallingConfidence is the minimum confidence for acting on a fall.
	fallingConfidence = 0.3
	defaultConfidence = 0.35

	// forecastDays is how far ahead the price forecast looks.
	forecastDays = 7
	// bigDropPct is the forecast drop from which waiting forecastDays is worth it.
	bigDropPct = 5.0
)

// PredictorConfig holds the static inputs of a Predictor. Empty fields fall
// back to the built-in calendar, a 14-day horizon and built-in baselines.
type PredictorConfig struct {
	Calendar    []models.SaleEvent
	HorizonDays int
	Baselines   map[string]float64
}

// Predictor turns a trend and the sale calendar into a buy-now or wait signal.
type Predictor struct {
	calendar  []models.SaleEvent
	horizon   int
	baselines map[string]float64
}

func NewPredictor(cfg PredictorConfig) *Predictor {
	p := &Predictor{calendar: cfg.Calendar, horizon: cfg.HorizonDays, baselines: cfg.Baselines}
	if len(p.calendar) == 0 {
		p.calendar = DefaultSaleCalendar()
	}
	if p.horizon <= 0 {
		p.horizon = defaultSaleHorizonDays
	}
	if p.baselines == nil {
		p.baselines = defaultDiscountBaselines
	}
	return p
}

// Baseline returns the discount baseline of a platform.
func (p *Predictor) Baseline(platform string) float64 {
	if b, ok := p.baselines[platform]; ok {
		return b
	}
	return fallbackDiscountBaseline
}

// Predict never fails. The rules apply in order:
//
//  1. a sale is running now: buy now
//  2. a high-value sale starts within the horizon and the price is not
//     already falling sharply: wait
//  3. the price is falling with some confidence: buy now, the drop is
//     already being captured
//  4. the price is rising: buy now before it climbs further
//  5. the discount meets the platform baseline: buy now
//  6. otherwise wait, with low confidence
//
// Every prediction also carries a linear price forecast forecastDays ahead
// and, when there is something to wait for, an optimal buy date.
func (p *Predictor) Predict(trend models.TrendResult, asOf time.Time) models.Prediction {
	sales := UpcomingSales(p.calendar, asOf, p.horizon)
	pred := p.advise(trend, sales)

	pred.PredictedPrice = forecastPrice(trend, forecastDays)
	if trend.CurrentPrice > 0 {
		pred.ExpectedDrop = models.RoundMoney(math.Max(0, trend.CurrentPrice-pred.PredictedPrice))
		pred.ExpectedDropPct = round2(pred.ExpectedDrop / trend.CurrentPrice * 100)
	}
	pred.OptimalBuyDate = optimalBuyDate(pred, sales, asOf)
	return pred
}

// forecastPrice extends the window's regression line days samples past the
// current price. Snapshots are taken about once a day, so a sample stands
// for a day. Without a trend the forecast is the current price.
func forecastPrice(trend models.TrendResult, days int) float64 {
	if trend.CurrentPrice <= 0 {
		return 0
	}
	if trend.SampleCount < 2 || trend.Slope == 0 || trend.MeanPrice <= 0 {
		return models.RoundMoney(trend.CurrentPrice)
	}
	perSample := trend.Slope * trend.MeanPrice / float64(trend.SampleCount-1)
	return models.RoundMoney(math.Max(0, trend.CurrentPrice+perSample*float64(days)))
}

// optimalBuyDate is today during a running sale, the start of the sale
// being waited for, forecastDays ahead when the forecast drop is large,
// today for any other buy-now call, and nil otherwise.
func optimalBuyDate(pred models.Prediction, sales []models.UpcomingSale, asOf time.Time) *time.Time {
	today := truncateDay(asOf)
	for _, s := range sales {
		if s.Ongoing {
			return &today
		}
	}
	if pred.Advice == models.AdviceWait && pred.NextExpectedEvent != nil && pred.NextExpectedEvent.HighValue {
		d := pred.NextExpectedEvent.StartsAt
		return &d
	}
	if pred.ExpectedDropPct > bigDropPct {
		d := today.AddDate(0, 0, forecastDays)
		return &d
	}
	if pred.Advice == models.AdviceBuyNow {
		return &today
	}
	return nil
}

func (p *Predictor) advise(trend models.TrendResult, sales []models.UpcomingSale) models.Prediction {
	var next *models.UpcomingSale
	if len(sales) > 0 {
		s := sales[0]
		next = &s
	}

	for _, s := range sales {
		if s.Ongoing {
			s := s
			return models.Prediction{
				Advice:            models.AdviceBuyNow,
				Confidence:        0.75,
				Reason:            fmt.Sprintf("%s is running now", s.Name),
				NextExpectedEvent: &s,
			}
		}
	}

	sharplyFalling := trend.Direction == models.DirectionFalling &&
		trend.Slope <= -sharpFallSlope && trend.Confidence >= sharpFallConfidence
	if !sharplyFalling {
		for _, s := range sales {
			if !s.HighValue {
				continue
			}
			s := s
			closeness := float64(p.horizon-s.DaysUntil) / float64(p.horizon)
			return models.Prediction{
				Advice:            models.AdviceWait,
				Confidence:        round2(0.5 + 0.4*closeness),
				Reason:            fmt.Sprintf("%s starts in %d days", s.Name, s.DaysUntil),
				NextExpectedEvent: &s,
			}
		}
	}

	switch {
	case trend.Direction == models.DirectionFalling && trend.Confidence >= fallingConfidence:
		return models.Prediction{
			Advice:            models.AdviceBuyNow,
			Confidence:        round2(trend.Confidence),
			Reason:            "price is already falling",
			NextExpectedEvent: next,
		}
	case trend.Direction == models.DirectionRising:
		return models.Prediction{
			Advice:            models.AdviceBuyNow,
			Confidence:        round2(math.Max(trend.Confidence, 0.5)),
			Reason:            "price is trending up",
			NextExpectedEvent: next,
		}
	}

	if baseline := p.Baseline(trend.Platform); trend.CurrentDiscount >= baseline {
		return models.Prediction{
			Advice:     models.AdviceBuyNow,
			Confidence: 0.6,
			Reason: fmt.Sprintf("discount %.0f%% is at or above the usual %.0f%% on %s",
				trend.CurrentDiscount*100, baseline*100, trend.Platform),
			NextExpectedEvent: next,
		}
	}

	return models.Prediction{
		Advice:            models.AdviceWait,
		Confidence:        defaultConfidence,
		Reason:            "no strong signal; the discount is below the usual level",
		NextExpectedEvent: next,
	}
}
