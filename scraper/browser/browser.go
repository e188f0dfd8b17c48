package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	"price-agent/models"
	"price-agent/services"
	"price-agent/utils"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config describes one platform's search page. SearchURL must contain
// {query}; {page} is replaced by the 1-based page number when present.
type Config struct {
	Platform       string
	SearchURL      string
	Pages          int
	MaxResults     int
	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	ChromeBin      string
	PageTimeout    time.Duration
	// CardSelector overrides the per-platform result card selector.
	CardSelector string
}

// Provider loads a platform's search result pages in headless Chrome and
// turns the visible product cards into listings.
type Provider struct {
	cfg     Config
	logger  *utils.Logger
	cleaner *services.Cleaner
	retry   *utils.RetryConfig
}

// card is the shape returned by the extraction script.
type card struct {
	Title         string `json:"title"`
	Price         string `json:"price"`
	OriginalPrice string `json:"original"`
	Rating        string `json:"rating"`
	Seller        string `json:"seller"`
	URL           string `json:"url"`
	OutOfStock    bool   `json:"out_of_stock"`
}

var cardSelectors = map[string]string{
	models.PlatformAmazon:   `[data-component-type="s-search-result"]`,
	models.PlatformFlipkart: `div[data-id]`,
	models.PlatformMeesho:   `a[href*="/p/"]`,
}

func New(cfg Config, logger *utils.Logger) (*Provider, error) {
	if cfg.Platform == "" {
		return nil, errors.New("browser: platform is required")
	}
	if !strings.Contains(cfg.SearchURL, "{query}") {
		return nil, fmt.Errorf("browser: search url for %s must contain {query}", cfg.Platform)
	}
	if cfg.Pages < 1 {
		cfg.Pages = 1
	}
	if cfg.MaxResults < 1 {
		cfg.MaxResults = 10
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 45 * time.Second
	}
	if cfg.CardSelector == "" {
		cfg.CardSelector = cardSelectors[cfg.Platform]
		if cfg.CardSelector == "" {
			cfg.CardSelector = `[data-product-id], article, li[class*="product"]`
		}
	}
	return &Provider{
		cfg:     cfg,
		logger:  logger,
		cleaner: services.NewCleaner(logger),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
	}, nil
}

func (p *Provider) Platform() string { return p.cfg.Platform }

// Fetch scrapes up to cfg.Pages result pages concurrently and returns at most
// cfg.MaxResults cleaned listings in page order. It fails only when every
// page fails.
func (p *Provider) Fetch(ctx context.Context, query string) ([]*models.Listing, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	chromeBin := findChromeBinary(p.cfg.ChromeBin)
	p.logger.Debug("[browser] %s: using browser binary %q", p.cfg.Platform, chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()
	if err := chromedp.Run(browserCtx); err != nil {
		return nil, fmt.Errorf("browser: start chrome: %w", err)
	}

	pool := utils.NewWorkerPool(p.cfg.MaxConcurrency, p.cfg.RateLimitMs)
	seen := utils.NewKeySet()
	pages := make([][]*models.RawListing, p.cfg.Pages)
	var (
		mu   sync.Mutex
		errs []error
	)

	for page := 1; page <= p.cfg.Pages; page++ {
		target := PageURL(p.cfg.SearchURL, query, page)
		pool.Submit(ctx, func(ctx context.Context) {
			cards, err := p.scrapePage(ctx, browserCtx, target, page)
			if err != nil {
				p.logger.Warn("[browser] %s page %d failed: %v", p.cfg.Platform, page, err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return
			}
			pages[page-1] = toRawListings(p.cfg.Platform, target, cards, seen, time.Now().UTC())
		})
	}
	pool.Wait()

	if len(errs) == p.cfg.Pages {
		return nil, fmt.Errorf("browser: %s: %w", p.cfg.Platform, errors.Join(errs...))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []*models.RawListing
	for _, pr := range pages {
		raw = append(raw, pr...)
	}
	listings := p.cleaner.Clean(raw)
	if len(listings) > p.cfg.MaxResults {
		listings = listings[:p.cfg.MaxResults]
	}
	p.logger.Info("[browser] %s: %d listings for %q", p.cfg.Platform, len(listings), query)
	return listings, nil
}

// scrapePage loads one results page in its own tab and extracts its cards.
func (p *Provider) scrapePage(ctx, browserCtx context.Context, pageURL string, pageNum int) ([]card, error) {
	var cards []card

	err := p.retry.Do(ctx, fmt.Sprintf("%s-page-%d", p.cfg.Platform, pageNum), func() error {
		tabCtx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, p.cfg.PageTimeout)
		defer cancelTimeout()

		var found []card
		err := chromedp.Run(tabCtx,
			chromedp.Navigate(pageURL),
			chromedp.Sleep(3*time.Second),

			// Scroll to load lazy cards
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight / 2)`, nil),
			chromedp.Sleep(1*time.Second),
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(1*time.Second),

			chromedp.Evaluate(extractScript(p.cfg.CardSelector, p.cfg.MaxResults), &found),
		)
		if err != nil {
			return fmt.Errorf("chromedp page scrape: %w", err)
		}
		cards = found
		return nil
	})

	p.logger.Debug("[browser] %s page %d: %d cards", p.cfg.Platform, pageNum, len(cards))
	return cards, err
}

// PageURL fills a search URL template.
func PageURL(template, query string, page int) string {
	out := strings.ReplaceAll(template, "{query}", url.QueryEscape(query))
	return strings.ReplaceAll(out, "{page}", strconv.Itoa(page))
}

// toRawListings resolves card links against the page URL, strips tracking
// parameters (keeping pid) and drops cards whose link was already seen in
// this fetch.
func toRawListings(platform, pageURL string, cards []card, seen *utils.KeySet, now time.Time) []*models.RawListing {
	base, _ := url.Parse(pageURL)
	out := make([]*models.RawListing, 0, len(cards))
	for _, c := range cards {
		link := strings.TrimSpace(c.URL)
		if link == "" {
			continue
		}
		if base != nil {
			if ref, err := base.Parse(link); err == nil {
				pid := ref.Query().Get("pid")
				ref.RawQuery = ""
				ref.Fragment = ""
				if pid != "" {
					ref.RawQuery = "pid=" + url.QueryEscape(pid)
				}
				link = ref.String()
			}
		}
		if !seen.Add(link) {
			continue
		}
		out = append(out, &models.RawListing{
			Platform:         platform,
			Title:            c.Title,
			RawPrice:         c.Price,
			RawOriginalPrice: c.OriginalPrice,
			Rating:           c.Rating,
			SellerName:       c.Seller,
			InStock:          !c.OutOfStock,
			URL:              link,
			ScrapedAt:        now,
		})
	}
	return out
}

// extractScript returns the in-page function that reads up to limit cards.
func extractScript(selector string, limit int) string {
	return fmt.Sprintf(`
		(function() {
			var results = [];
			var limit = %d;
			var cards = document.querySelectorAll(%s);
			var seen = {};
			var money = /(₹|Rs\.?)\s*[\d,]+(\.\d+)?/g;
			for (var i = 0; i < cards.length && results.length < limit; i++) {
				var card = cards[i];
				var link = card.tagName === 'A' ? card : card.querySelector('a[href]');
				if (!link || !link.href || seen[link.href]) continue;
				seen[link.href] = true;

				var text = card.innerText || '';
				var lines = text.split('\n').map(function(l){return l.trim();}).filter(Boolean);
				var titleEl = card.querySelector('h2, h3, [class*="title"], [class*="name"]');
				var prices = text.match(money) || [];
				var strike = card.querySelector('s, del, [class*="strike"], .a-text-price');
				var ratingMatch = text.match(/(\d\.\d)\s*(out of 5|★|stars?)?/);
				var sellerEl = card.querySelector('[class*="seller"], [class*="brand"]');

				results.push({
					title:        titleEl ? titleEl.innerText.trim() : (lines[0] || ''),
					price:        prices[0] || '',
					original:     strike ? strike.innerText.trim() : (prices[1] || ''),
					rating:       ratingMatch ? ratingMatch[1] : '',
					seller:       sellerEl ? sellerEl.innerText.trim() : '',
					url:          link.href,
					out_of_stock: /out of stock|currently unavailable|sold out/i.test(text)
				});
			}
			return results;
		})()
	`, limit, strconv.Quote(selector))
}

// findChromeBinary locates a Chrome/Chromium binary. An explicit path wins.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
