package services

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"price-agent/models"
	"price-agent/utils"
)

var (
	// priceRegexp captures numeric price values
	priceRegexp = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	// ratingRegexp captures a numeric rating in the 0.0–5.0 range
	ratingRegexp = regexp.MustCompile(`\b([0-5](?:\.\d{1,2})?)\b`)
	// productIDRegexp matches ASIN-like or slug identifiers in product URLs
	productIDRegexp = regexp.MustCompile(`/(?:dp|p|product|itm)/([A-Za-z0-9_-]+)`)
)

// Cleaner transforms RawListings into clean, validated Listings.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean processes raw listings and returns cleaned records. Cards without a
// usable identity or a positive price are dropped; duplicates (same
// platform and product) keep the first occurrence.
func (c *Cleaner) Clean(raw []*models.RawListing) []*models.Listing {
	seen := make(map[string]struct{})
	result := make([]*models.Listing, 0, len(raw))

	for _, r := range raw {
		link := strings.TrimSpace(r.URL)
		productID := strings.TrimSpace(r.ProductID)
		if productID == "" {
			productID = productIDFromURL(link)
		}
		if productID == "" {
			c.logger.Warn("[cleaner] Dropping listing without product id: %s", r.Title)
			continue
		}

		platform := normalisePlatform(r.Platform)
		key := platform + "\x00" + productID
		if _, dup := seen[key]; dup {
			c.logger.Debug("[cleaner] Duplicate product skipped: %s/%s", platform, productID)
			continue
		}
		seen[key] = struct{}{}

		price := c.parsePrice(r.RawPrice)
		if price <= 0 {
			c.logger.Warn("[cleaner] Dropping listing with unparseable price %q: %s", r.RawPrice, r.Title)
			continue
		}

		listing := models.NewListing(platform, productID, normaliseText(r.Title), price, c.parsePrice(r.RawOriginalPrice))
		listing.Rating = c.parseRating(r.Rating)
		listing.URL = link
		listing.InStock = r.InStock
		if name := normaliseText(r.SellerName); name != "" {
			listing.Seller = &models.SellerInfo{Name: name, ID: sellerSlug(name)}
		}
		if !r.ScrapedAt.IsZero() {
			listing.RetrievedAt = r.ScrapedAt.UTC()
		} else {
			listing.RetrievedAt = time.Now().UTC()
		}

		result = append(result, listing)
	}

	c.logger.Info("[cleaner] Cleaned %d → %d listings (dropped %d)",
		len(raw), len(result), len(raw)-len(result))
	return result
}

// parsePrice extracts the first amount from a display price.
// Examples:
//
//	"₹12,999"      → 12999
//	"Rs. 1,299.50" → 1299.5
//	"MRP ₹2,000"   → 2000
func (c *Cleaner) parsePrice(raw string) float64 {
	match := priceRegexp.FindString(raw)
	if match == "" {
		return 0
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(match, ",", ""))
	if err != nil {
		return 0
	}
	f, _ := d.Round(2).Float64()
	return f
}

// parseRating extracts a 0.0–5.0 numeric rating from a raw string.
func (c *Cleaner) parseRating(raw string) float64 {
	match := ratingRegexp.FindStringSubmatch(raw)
	if len(match) < 2 {
		return 0
	}
	val, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0
	}
	if val < 0 || val > 5 {
		return 0
	}
	return val
}

func productIDFromURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if m := productIDRegexp.FindStringSubmatch(u.Path); len(m) == 2 {
		return m[1]
	}
	if pid := u.Query().Get("pid"); pid != "" {
		return pid
	}
	base := path.Base(strings.TrimRight(u.Path, "/"))
	if base == "." || base == "/" {
		return ""
	}
	return base
}

func sellerSlug(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}

func normalisePlatform(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
