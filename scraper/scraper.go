// Package scraper builds the source providers the engine fans out to.
// Each platform is configured as a Spec; the kind decides which
// implementation backs it and is invisible to the rest of the pipeline.
package scraper

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"price-agent/metrics"
	"price-agent/scraper/browser"
	"price-agent/scraper/cache"
	"price-agent/scraper/mock"
	"price-agent/services"
	"price-agent/utils"
)

// Kind selects a provider implementation.
type Kind string

const (
	KindMock    Kind = "mock"
	KindBrowser Kind = "browser"
)

// Spec configures one platform.
type Spec struct {
	Platform  string
	Kind      Kind
	SearchURL string
}

// Deps carries the shared settings and clients providers are built with.
type Deps struct {
	Logger         *utils.Logger
	MaxResults     int
	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	PagesToScrape  int
	ChromeBin      string
	Redis          *redis.Client
	CacheTTL       time.Duration
	Metrics        *metrics.Registry
	Clock          func() time.Time
}

// New builds the provider for spec. When Redis is set the provider is
// wrapped in the read-through cache.
func New(spec Spec, deps Deps) (services.SourceProvider, error) {
	logger := deps.Logger.With("platform", spec.Platform)

	var p services.SourceProvider
	switch spec.Kind {
	case KindMock:
		p = mock.New(spec.Platform, deps.MaxResults, deps.Clock)
	case KindBrowser:
		b, err := browser.New(browser.Config{
			Platform:       spec.Platform,
			SearchURL:      spec.SearchURL,
			Pages:          deps.PagesToScrape,
			MaxResults:     deps.MaxResults,
			MaxConcurrency: deps.MaxConcurrency,
			RateLimitMs:    deps.RateLimitMs,
			MaxRetries:     deps.MaxRetries,
			ChromeBin:      deps.ChromeBin,
		}, logger)
		if err != nil {
			return nil, err
		}
		p = b
	default:
		return nil, fmt.Errorf("scraper: unknown provider kind %q for %s", spec.Kind, spec.Platform)
	}

	if deps.Redis != nil {
		p = cache.New(p, deps.Redis, deps.CacheTTL, deps.Metrics, logger)
	}
	return p, nil
}

// NewAll builds one provider per spec and fails on the first bad spec.
func NewAll(specs []Spec, deps Deps) ([]services.SourceProvider, error) {
	out := make([]services.SourceProvider, 0, len(specs))
	for _, s := range specs {
		p, err := New(s, deps)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ParseSpecs parses "platform:kind" pairs separated by commas. A missing
// kind means mock. urls maps platform to its browser search URL template.
func ParseSpecs(list string, urls map[string]string) ([]Spec, error) {
	var specs []Spec
	seen := make(map[string]bool)
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		platform, kind, _ := strings.Cut(item, ":")
		platform = strings.ToLower(strings.TrimSpace(platform))
		kind = strings.ToLower(strings.TrimSpace(kind))
		if platform == "" {
			return nil, fmt.Errorf("scraper: empty platform in %q", item)
		}
		if seen[platform] {
			return nil, fmt.Errorf("scraper: platform %s configured twice", platform)
		}
		seen[platform] = true

		spec := Spec{Platform: platform, Kind: KindMock}
		switch Kind(kind) {
		case "", KindMock:
		case KindBrowser:
			spec.Kind = KindBrowser
			spec.SearchURL = urls[platform]
			if spec.SearchURL == "" {
				return nil, fmt.Errorf("scraper: no search url for browser provider %s", platform)
			}
		default:
			return nil, fmt.Errorf("scraper: unknown provider kind %q for %s", kind, platform)
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("scraper: no providers configured")
	}
	return specs, nil
}
