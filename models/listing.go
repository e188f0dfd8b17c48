package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Known platform identifiers. Providers may use any other label; these only
// carry a trust prior and a discount baseline.
const (
	PlatformAmazon   = "amazon"
	PlatformFlipkart = "flipkart"
	PlatformMeesho   = "meesho"
)

// RawListing holds unprocessed card data scraped from a results page.
// Prices and ratings are still display strings at this point.
type RawListing struct {
	Platform         string
	ProductID        string
	Title            string
	RawPrice         string
	RawOriginalPrice string
	Rating           string
	SellerName       string
	InStock          bool
	URL              string
	ScrapedAt        time.Time
}

// SellerInfo describes the merchant behind a listing.
type SellerInfo struct {
	Name                 string  `json:"name"`
	ID                   string  `json:"id"`
	Rating               float64 `json:"rating"`
	TotalRatings         int     `json:"total_ratings"`
	PositivePercentage   float64 `json:"positive_percentage"`
	ShipOnTimePercentage float64 `json:"ship_on_time_percentage"`
	Verified             bool    `json:"verified"`
}

// Listing is one platform's snapshot offer for a product. A Listing is never
// mutated after construction; a new fetch produces a new snapshot.
type Listing struct {
	Platform           string      `json:"platform"`
	ProductID          string      `json:"product_id"`
	Title              string      `json:"title"`
	CurrentPrice       float64     `json:"current_price"`
	OriginalPrice      float64     `json:"original_price"`
	DiscountPercentage float64     `json:"discount_percentage"`
	Rating             float64     `json:"rating"`
	Seller             *SellerInfo `json:"seller_info"`
	InStock            bool        `json:"in_stock"`
	URL                string      `json:"url,omitempty"`
	RetrievedAt        time.Time   `json:"retrieved_at"`
}

// NewListing builds a Listing and enforces the price invariants:
// original price is never below current price, and the discount is the
// fraction 1 - current/original (0 when no original price is known).
func NewListing(platform, productID, title string, current, original float64) *Listing {
	if current < 0 {
		current = 0
	}
	if original > 0 && original < current {
		original = current
	}
	return &Listing{
		Platform:           platform,
		ProductID:          productID,
		Title:              title,
		CurrentPrice:       current,
		OriginalPrice:      original,
		DiscountPercentage: Discount(current, original),
		InStock:            true,
		RetrievedAt:        time.Now().UTC(),
	}
}

// Discount returns 1 - current/original rounded to four places, clamped to
// [0,1]. An absent or non-positive original price yields 0.
func Discount(current, original float64) float64 {
	if original <= 0 || current >= original {
		return 0
	}
	if current <= 0 {
		return 1
	}
	d := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(current).Div(decimal.NewFromFloat(original)))
	f, _ := d.Round(4).Float64()
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Savings is the absolute amount saved against the original price.
func (l *Listing) Savings() float64 {
	if l.OriginalPrice <= 0 {
		return 0
	}
	return RoundMoney(l.OriginalPrice - l.CurrentPrice)
}

// SellerID returns the seller identifier or "" when the seller is unknown.
func (l *Listing) SellerID() string {
	if l.Seller == nil {
		return ""
	}
	return l.Seller.ID
}

// Complete reports whether the listing carries everything needed to be
// ranked and persisted.
func (l *Listing) Complete() bool {
	return l != nil && l.Platform != "" && l.ProductID != "" && l.CurrentPrice > 0 && !l.RetrievedAt.IsZero()
}

// RoundMoney rounds an amount to two decimal places.
func RoundMoney(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
