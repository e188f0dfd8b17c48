package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"time"
	"unicode"

	"price-agent/models"
)

// profile describes how one platform's catalogue looks: its price band,
// markup over list price, seller pool and rating ranges.
type profile struct {
	baseMin, baseMax int
	variation        [2]float64
	markup           [2]float64
	sellers          []string
	sellerRating     [2]float64
	totalRatings     [2]int
	positivePct      [2]float64
	onTimePct        [2]float64
	verifiedOdds     float64
	inStockOdds      float64
	productRating    [2]float64
	titleFormat      string
	urlFormat        string
}

var profiles = map[string]profile{
	models.PlatformAmazon: {
		baseMin: 5000, baseMax: 50000,
		variation: [2]float64{0.8, 1.2}, markup: [2]float64{1.1, 1.4},
		sellers:      []string{"Amazon.in", "Cloudtail India", "Appario Retail", "RetailNet", "TechMart India"},
		sellerRating: [2]float64{4.0, 4.8}, totalRatings: [2]int{500, 50000},
		positivePct: [2]float64{85, 98}, onTimePct: [2]float64{90, 99},
		verifiedOdds: 2.0 / 3, inStockOdds: 0.75, productRating: [2]float64{3.8, 4.7},
		titleFormat: "%s - Model %c", urlFormat: "https://amazon.in/dp/%s",
	},
	models.PlatformFlipkart: {
		baseMin: 4800, baseMax: 48000,
		variation: [2]float64{0.85, 1.15}, markup: [2]float64{1.15, 1.5},
		sellers:      []string{"Flipkart", "RetailNet", "Omnitech Retail", "SuperComNet", "TechZone India"},
		sellerRating: [2]float64{3.9, 4.7}, totalRatings: [2]int{300, 40000},
		positivePct: [2]float64{82, 96}, onTimePct: [2]float64{88, 97},
		verifiedOdds: 2.0 / 3, inStockOdds: 0.75, productRating: [2]float64{3.7, 4.6},
		titleFormat: "%s - Variant %c", urlFormat: "https://flipkart.com/product/%s",
	},
	models.PlatformMeesho: {
		baseMin: 3500, baseMax: 35000,
		variation: [2]float64{0.7, 1.1}, markup: [2]float64{1.2, 1.6},
		sellers:      []string{"Meesho Store", "Value Bazaar", "Budget Electronics", "Smart Deals", "Discount Hub"},
		sellerRating: [2]float64{3.5, 4.5}, totalRatings: [2]int{100, 15000},
		positivePct: [2]float64{75, 92}, onTimePct: [2]float64{80, 95},
		verifiedOdds: 1.0 / 3, inStockOdds: 2.0 / 3, productRating: [2]float64{3.5, 4.4},
		titleFormat: "%s - Option %c", urlFormat: "https://meesho.com/product/%s",
	},
}

// Provider generates a repeatable catalogue for any query. Product
// identities depend only on (query, platform, index); prices also depend on
// the calendar day so repeated daily searches build a price history.
type Provider struct {
	platform   string
	profile    profile
	maxResults int
	now        func() time.Time
}

// New returns a mock provider for platform. Unknown platforms reuse the
// amazon profile under their own label. now may be nil.
func New(platform string, maxResults int, now func() time.Time) *Provider {
	p, ok := profiles[platform]
	if !ok {
		p = profiles[models.PlatformAmazon]
		p.sellers = []string{platform + " Retail", platform + " Direct"}
		p.titleFormat = "%s - Item %c"
		p.urlFormat = "https://" + platform + ".example/item/%s"
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	if now == nil {
		now = time.Now
	}
	return &Provider{platform: platform, profile: p, maxResults: maxResults, now: now}
}

func (p *Provider) Platform() string { return p.platform }

func (p *Provider) Fetch(ctx context.Context, query string) ([]*models.Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if q == "" {
		return nil, nil
	}

	now := p.now().UTC()
	catalog := rand.New(rand.NewSource(seed(q, p.platform)))
	daily := rand.New(rand.NewSource(seed(q, p.platform, now.Format("2006-01-02"))))

	pr := p.profile
	base := float64(pr.baseMin + catalog.Intn(pr.baseMax-pr.baseMin+1))

	out := make([]*models.Listing, 0, p.maxResults)
	for i := 0; i < p.maxResults; i++ {
		id := productID(q, p.platform, i)
		current := round2(base * uniform(daily, pr.variation))
		original := round2(current * uniform(daily, pr.markup))

		l := models.NewListing(p.platform, id, fmt.Sprintf(pr.titleFormat, titleCase(q), rune('A'+i)), current, original)
		l.URL = fmt.Sprintf(pr.urlFormat, id)
		l.Rating = round1(uniform(catalog, pr.productRating))
		l.InStock = daily.Float64() < pr.inStockOdds
		l.RetrievedAt = now
		seller := pr.sellers[catalog.Intn(len(pr.sellers))]
		l.Seller = &models.SellerInfo{
			Name:                 seller,
			ID:                   strings.ToLower(strings.ReplaceAll(seller, " ", "-")),
			Rating:               round1(uniform(catalog, pr.sellerRating)),
			TotalRatings:         pr.totalRatings[0] + catalog.Intn(pr.totalRatings[1]-pr.totalRatings[0]+1),
			PositivePercentage:   round1(uniform(catalog, pr.positivePct)),
			ShipOnTimePercentage: round1(uniform(catalog, pr.onTimePct)),
			Verified:             catalog.Float64() < pr.verifiedOdds,
		}
		out = append(out, l)
	}
	return out, nil
}

func seed(parts ...string) int64 {
	h := fnv.New64a()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return int64(h.Sum64() & math.MaxInt64)
}

func productID(query, platform string, index int) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s\x00%s\x00%d", query, platform, index)
	return strings.ToUpper(fmt.Sprintf("%s-%012x", platform[:min(3, len(platform))], h.Sum64()&0xffffffffffff))
}

func uniform(r *rand.Rand, span [2]float64) float64 {
	return span[0] + r.Float64()*(span[1]-span[0])
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
func round2(f float64) float64 { return math.Round(f*100) / 100 }
