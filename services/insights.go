package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"price-agent/models"
	"price-agent/utils"
)

// InsightGenerator maps a structured prompt to narrative text. It may fail;
// the engine falls back to TemplateInsights.
type InsightGenerator interface {
	Generate(ctx context.Context, prompt *models.InsightPrompt) (*models.Insight, error)
}

// MarketStats aggregates counts and price statistics over listings.
func MarketStats(listings []*models.Listing) *models.MarketReport {
	report := &models.MarketReport{
		ListingsByPlatform: make(map[string]int),
	}

	if len(listings) == 0 {
		return report
	}

	report.TotalListings = len(listings)

	var priced []*models.Listing
	var rated []*models.Listing

	for _, l := range listings {
		if l.InStock {
			report.InStockListings++
		}
		if l.CurrentPrice > 0 {
			priced = append(priced, l)
		}
		if l.Rating > 0 {
			rated = append(rated, l)
		}
		report.ListingsByPlatform[l.Platform]++
	}

	// Price stats (only listings with price > 0)
	if len(priced) > 0 {
		report.Cheapest = priced[0]
		report.MostExpensive = priced[0]
		var total float64
		for _, l := range priced {
			total += l.CurrentPrice
			if l.CurrentPrice < report.Cheapest.CurrentPrice {
				report.Cheapest = l
			}
			if l.CurrentPrice > report.MostExpensive.CurrentPrice {
				report.MostExpensive = l
			}
		}
		report.AveragePrice = round2(total / float64(len(priced)))
		report.MinPrice = round2(report.Cheapest.CurrentPrice)
		report.MaxPrice = round2(report.MostExpensive.CurrentPrice)
	}

	// Top 5 by rating
	sort.SliceStable(rated, func(i, j int) bool {
		return rated[i].Rating > rated[j].Rating
	})
	if len(rated) > 5 {
		report.TopRated = rated[:5]
	} else {
		report.TopRated = rated
	}

	return report
}

var genericTips = []string{
	"Check seller ratings before purchasing",
	"Compare shipping costs",
	"Look for additional coupons",
}

// TemplateInsights builds the narrative from the prompt alone. It never
// fails and gives the same text for the same prompt.
type TemplateInsights struct {
	logger *utils.Logger
}

func NewTemplateInsights(logger *utils.Logger) *TemplateInsights {
	return &TemplateInsights{logger: logger}
}

func (t *TemplateInsights) Generate(_ context.Context, p *models.InsightPrompt) (*models.Insight, error) {
	return t.Build(p), nil
}

// Build is Generate without the context and error.
func (t *TemplateInsights) Build(p *models.InsightPrompt) *models.Insight {
	best := p.Best.Listing
	if best == nil {
		return &models.Insight{
			Summary:                "No products found for comparison.",
			DetailedAnalysis:       "Unable to perform analysis.",
			TimingAdvice:           "Please try a different search query.",
			AlternativeSuggestions: append([]string(nil), genericTips...),
		}
	}

	summary := fmt.Sprintf("Best deal for %q is on %s at ₹%.2f (%.0f%% off",
		p.Query, best.Platform, best.CurrentPrice, best.DiscountPercentage*100)
	if saved := best.Savings(); saved > 0 {
		summary += fmt.Sprintf(", ₹%.2f below MRP", saved)
	}
	summary += ")."
	if p.TotalSavings > 0 {
		summary += fmt.Sprintf(" That saves ₹%.2f (%.1f%%) against the priciest comparable offer.",
			p.TotalSavings, p.SavingsPercentage)
	}

	var detail strings.Builder
	if m := p.Market; m != nil && m.TotalListings > 0 {
		fmt.Fprintf(&detail, "Compared %d listings across %d platforms (%s); prices range ₹%.2f to ₹%.2f, averaging ₹%.2f. ",
			m.TotalListings, len(m.ListingsByPlatform), strings.Join(sortedKeys(m.ListingsByPlatform), ", "),
			m.MinPrice, m.MaxPrice, m.AveragePrice)
	}
	fmt.Fprintf(&detail, "%s by %s scores %.0f/100 on seller trust", truncate(best.Title, 60), sellerName(best), p.Best.Trust.Score)
	if p.Best.Trust.ReducedConfidence {
		detail.WriteString(" (platform baseline only, no seller data)")
	}
	detail.WriteString(". ")
	detail.WriteString(trendSentence(p.Best.Trend))
	if len(p.UnavailablePlatforms) > 0 {
		fmt.Fprintf(&detail, " Not compared: %s did not respond.", strings.Join(p.UnavailablePlatforms, ", "))
	}
	if p.HistoryDegraded {
		detail.WriteString(" Price history could not be fully updated for this search.")
	}

	timing := timingSentence(p.Best.Prediction)

	var alts []string
	for i, a := range p.Alternatives {
		if i == 2 {
			break
		}
		alts = append(alts, fmt.Sprintf("%s: %s at ₹%.2f (trust %.0f/100)",
			a.Listing.Platform, truncate(a.Listing.Title, 40), a.Listing.CurrentPrice, a.Trust.Score))
	}
	alts = append(alts, genericTips...)

	return &models.Insight{
		Summary:                summary,
		DetailedAnalysis:       strings.TrimSpace(detail.String()),
		TimingAdvice:           timing,
		AlternativeSuggestions: alts,
	}
}

func trendSentence(tr models.TrendResult) string {
	if tr.Confidence == 0 {
		return fmt.Sprintf("Only %d price observations so far, not enough for a trend.", tr.SampleCount)
	}
	s := fmt.Sprintf("Over %d observations the price is %s (confidence %.0f%%)", tr.SampleCount, tr.Direction, tr.Confidence*100)
	if tr.Position != "" {
		s += fmt.Sprintf(" and the current price is %s against its recent range", tr.Position)
	}
	if tr.Volatile {
		s += "; prices swing a lot"
	}
	return s + "."
}

func timingSentence(p models.Prediction) string {
	verb := "Buy now"
	if p.Advice == models.AdviceWait {
		verb = "Wait"
	}
	s := fmt.Sprintf("%s: %s (confidence %.0f%%).", verb, p.Reason, p.Confidence*100)
	if p.ExpectedDrop > 0 {
		s += fmt.Sprintf(" Expected to reach ₹%.2f within a week, ₹%.2f (%.1f%%) lower.",
			p.PredictedPrice, p.ExpectedDrop, p.ExpectedDropPct)
	}
	if e := p.NextExpectedEvent; e != nil && !e.Ongoing && p.Advice == models.AdviceBuyNow {
		s += fmt.Sprintf(" Next sale: %s in %d days.", e.Name, e.DaysUntil)
	}
	if p.OptimalBuyDate != nil {
		s += fmt.Sprintf(" Best day to buy: %s.", p.OptimalBuyDate.Format("2 Jan 2006"))
	}
	return s
}

func sellerName(l *models.Listing) string {
	if l.Seller == nil || l.Seller.Name == "" {
		return "an unknown seller"
	}
	return l.Seller.Name
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
