package services

import (
	"sort"

	"price-agent/models"
)

// Composite score weights.
const (
	weightPrice      = 0.5
	weightTrust      = 0.2
	weightDiscount   = 0.2
	weightPrediction = 0.1
)

// RankListings scores every entry and returns them best first. In-stock
// listings always precede out-of-stock ones. Equal scores fall back to price
// ascending, trust descending, platform ascending and product id ascending,
// so the order is total and repeatable.
func RankListings(entries []models.RankedListing) []models.RankedListing {
	ranked := append([]models.RankedListing(nil), entries...)
	if len(ranked) == 0 {
		return ranked
	}

	lo, hi := ranked[0].Listing.CurrentPrice, ranked[0].Listing.CurrentPrice
	for _, r := range ranked[1:] {
		if p := r.Listing.CurrentPrice; p < lo {
			lo = p
		} else if p > hi {
			hi = p
		}
	}

	for i := range ranked {
		ranked[i].Score = compositeScore(ranked[i], lo, hi)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Listing.InStock != b.Listing.InStock {
			return a.Listing.InStock
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Listing.CurrentPrice != b.Listing.CurrentPrice {
			return a.Listing.CurrentPrice < b.Listing.CurrentPrice
		}
		if a.Trust.Score != b.Trust.Score {
			return a.Trust.Score > b.Trust.Score
		}
		if a.Listing.Platform != b.Listing.Platform {
			return a.Listing.Platform < b.Listing.Platform
		}
		return a.Listing.ProductID < b.Listing.ProductID
	})
	return ranked
}

func compositeScore(r models.RankedListing, lo, hi float64) float64 {
	price := 100.0
	if hi > lo {
		price = 100 * (hi - r.Listing.CurrentPrice) / (hi - lo)
	}
	discount := r.Listing.DiscountPercentage * 100

	prediction := 50 + 50*r.Prediction.Confidence
	if r.Prediction.Advice == models.AdviceWait {
		prediction = 50 - 50*r.Prediction.Confidence
	}

	return round2(weightPrice*price + weightTrust*r.Trust.Score + weightDiscount*discount + weightPrediction*prediction)
}

// ComputeSavings compares the best price with the highest in-stock price.
// When nothing is in stock every listing counts as comparable.
func ComputeSavings(ranked []models.RankedListing) (amount, percentage float64) {
	if len(ranked) == 0 {
		return 0, 0
	}
	best := ranked[0].Listing.CurrentPrice

	highest := 0.0
	for _, r := range ranked {
		if r.Listing.InStock && r.Listing.CurrentPrice > highest {
			highest = r.Listing.CurrentPrice
		}
	}
	if highest == 0 {
		for _, r := range ranked {
			if r.Listing.CurrentPrice > highest {
				highest = r.Listing.CurrentPrice
			}
		}
	}

	amount = highest - best
	if amount <= 0 || highest <= 0 {
		return 0, 0
	}
	return models.RoundMoney(amount), round2(amount / highest * 100)
}
