package services

import (
	"math"

	"price-agent/models"
)

// defaultPlatformPriors is the platform reputation baseline on a 0-100 scale.
var defaultPlatformPriors = map[string]float64{
	models.PlatformAmazon:   80,
	models.PlatformFlipkart: 75,
	models.PlatformMeesho:   65,
}

const (
	fallbackPlatformPrior = 60
	priorWeight           = 0.3
	sellerWeight          = 0.7
)

// TrustScorer derives a 0-100 reliability score from seller metadata and a
// per-platform prior. It does no I/O and is safe for concurrent use.
type TrustScorer struct {
	priors map[string]float64
}

// NewTrustScorer returns a scorer using the given priors; nil selects the
// built-in table.
func NewTrustScorer(priors map[string]float64) *TrustScorer {
	if priors == nil {
		priors = defaultPlatformPriors
	}
	return &TrustScorer{priors: priors}
}

// Prior returns the reputation baseline for a platform.
func (s *TrustScorer) Prior(platform string) float64 {
	if p, ok := s.priors[platform]; ok {
		return p
	}
	return fallbackPlatformPrior
}

// Score blends the platform prior with the seller component. A listing
// without seller info scores the prior alone with ReducedConfidence set.
func (s *TrustScorer) Score(l *models.Listing) models.TrustScore {
	prior := s.Prior(l.Platform)
	ts := models.TrustScore{
		Platform:      l.Platform,
		SellerID:      l.SellerID(),
		PlatformPrior: prior,
	}
	if l.Seller == nil {
		ts.Score = prior
		ts.ReducedConfidence = true
		return ts
	}

	ts.SellerRating = l.Seller.Rating
	ts.Score = models.RoundMoney(clamp(priorWeight*prior+sellerWeight*sellerComponent(l.Seller), 0, 100))
	return ts
}

// sellerComponent weights rating 40, positive feedback 30, on-time shipping
// 20 and verification 10.
func sellerComponent(si *models.SellerInfo) float64 {
	score := clamp(si.Rating, 0, 5) / 5 * 40
	score += clamp(si.PositivePercentage, 0, 100) / 100 * 30
	score += clamp(si.ShipOnTimePercentage, 0, 100) / 100 * 20
	if si.Verified {
		score += 10
	}
	return score
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
