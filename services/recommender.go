package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"price-agent/metrics"
	"price-agent/models"
	"price-agent/storage"
	"price-agent/utils"
)

// SourceProvider supplies candidate listings for a query on one platform.
// An empty result is a valid answer; an error marks the platform
// unavailable for that search only.
type SourceProvider interface {
	Platform() string
	Fetch(ctx context.Context, query string) ([]*models.Listing, error)
}

// EngineConfig holds the tunables of an Engine. Zero durations fall back to
// 10s per provider and 15s for the narrative.
type EngineConfig struct {
	ProviderTimeout  time.Duration
	NarrativeTimeout time.Duration
	WriteAttempts    int
	WriteBaseDelay   time.Duration
	MaxAlternatives  int

	Trend     TrendConfig
	Predictor PredictorConfig
	Priors    map[string]float64

	// Clock overrides time.Now for sale-calendar lookups.
	Clock func() time.Time
}

// Engine runs the search pipeline: fetch, persist, analyse, rank, narrate.
// It keeps no per-query state between calls.
type Engine struct {
	providers []SourceProvider
	store     storage.HistoryStore
	trust     *TrustScorer
	trend     *TrendAnalyzer
	predictor *Predictor
	narrator  InsightGenerator
	fallback  *TemplateInsights
	retry     *utils.RetryConfig
	metrics   *metrics.Registry
	logger    *utils.Logger
	cfg       EngineConfig
}

// NewEngine wires an Engine. A nil narrator uses the template generator; a
// nil registry disables metrics.
func NewEngine(cfg EngineConfig, providers []SourceProvider, store storage.HistoryStore,
	narrator InsightGenerator, reg *metrics.Registry, logger *utils.Logger) *Engine {
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = 10 * time.Second
	}
	if cfg.NarrativeTimeout <= 0 {
		cfg.NarrativeTimeout = 15 * time.Second
	}
	if cfg.WriteAttempts <= 0 {
		cfg.WriteAttempts = 3
	}
	if cfg.WriteBaseDelay <= 0 {
		cfg.WriteBaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxAlternatives <= 0 {
		cfg.MaxAlternatives = 4
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	fallback := NewTemplateInsights(logger)
	if narrator == nil {
		narrator = fallback
	}
	return &Engine{
		providers: providers,
		store:     store,
		trust:     NewTrustScorer(cfg.Priors),
		trend:     NewTrendAnalyzer(store, cfg.Trend),
		predictor: NewPredictor(cfg.Predictor),
		narrator:  narrator,
		fallback:  fallback,
		retry:     &utils.RetryConfig{MaxAttempts: cfg.WriteAttempts, BaseDelay: cfg.WriteBaseDelay, Logger: logger},
		metrics:   reg,
		logger:    logger,
		cfg:       cfg,
	}
}

// Platforms lists the configured provider labels.
func (e *Engine) Platforms() []string {
	out := make([]string, 0, len(e.providers))
	for _, p := range e.providers {
		out = append(out, p.Platform())
	}
	return out
}

// searchRun tracks one query through the state machine.
type searchRun struct {
	query  string
	state  models.SearchState
	logger *utils.Logger
}

func (r *searchRun) to(next models.SearchState) {
	r.logger.Debug("[engine] %q: %s → %s", r.query, r.state, next)
	r.state = next
}

func (r *searchRun) fail(kind models.FailureKind, retryable bool, unavailable []string, err error) *models.SearchError {
	se := &models.SearchError{Kind: kind, State: r.state, Retryable: retryable, Unavailable: unavailable, Err: err}
	r.logger.Warn("[engine] %q failed: %v", r.query, se)
	r.state = models.StateFailed
	return se
}

// Search runs the whole pipeline for one query. Every failure is returned
// as a *models.SearchError.
func (e *Engine) Search(ctx context.Context, query string) (*models.Recommendation, error) {
	run := &searchRun{query: strings.TrimSpace(query), state: models.StateIdle, logger: e.logger}

	if run.query == "" {
		e.metrics.ObserveSearch(string(models.FailureValidation))
		return nil, run.fail(models.FailureValidation, false, nil,
			fmt.Errorf("%w: query is empty", models.ErrValidation))
	}

	rec, err := e.search(ctx, run)
	if err != nil {
		var se *models.SearchError
		if errors.As(err, &se) {
			e.metrics.ObserveSearch(string(se.Kind))
		}
		return nil, err
	}
	e.metrics.ObserveSearch("complete")
	return rec, nil
}

func (e *Engine) search(ctx context.Context, run *searchRun) (*models.Recommendation, error) {
	run.to(models.StateFetching)
	listings, unavailable, faults := e.fetchAll(ctx, run.query)
	if err := ctx.Err(); err != nil {
		return nil, run.fail(models.FailureCanceled, true, unavailable, err)
	}
	if len(listings) == 0 {
		// Any faulted platform might have had matches, so a retry can help.
		return nil, run.fail(models.FailureNoResults, len(unavailable) > 0, unavailable,
			errors.Join(append([]error{models.ErrNoResults}, faults...)...))
	}
	e.logger.Info("[engine] %q: %d listings from %d/%d platforms",
		run.query, len(listings), len(e.providers)-len(unavailable), len(e.providers))

	run.to(models.StateAggregating)
	if err := ctx.Err(); err != nil {
		return nil, run.fail(models.FailureCanceled, true, unavailable, err)
	}
	degraded, err := e.persist(ctx, listings)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, run.fail(models.FailureCanceled, true, unavailable, ctxErr)
		}
		return nil, run.fail(models.FailurePersistence, true, unavailable, err)
	}

	asOf := e.cfg.Clock()
	entries := make([]models.RankedListing, 0, len(listings))
	for _, l := range listings {
		tr, terr := e.trend.Analyze(ctx, l.ProductID, l.Platform, l.CurrentPrice)
		if terr != nil {
			e.logger.Warn("[engine] %v", terr)
			degraded = true
		}
		tr.CurrentDiscount = l.DiscountPercentage
		entries = append(entries, models.RankedListing{
			Listing:    l,
			Trust:      e.trust.Score(l),
			Trend:      tr,
			Prediction: e.predictor.Predict(tr, asOf),
		})
	}

	run.to(models.StateRanking)
	ranked := RankListings(entries)
	savings, savingsPct := ComputeSavings(ranked)

	all := make([]*models.Listing, len(ranked))
	for i, r := range ranked {
		all[i] = r.Listing
	}
	rec := &models.Recommendation{
		Query:                run.query,
		BestProduct:          ranked[0].Listing,
		AllProducts:          all,
		Ranked:               ranked,
		TotalSavings:         savings,
		SavingsPercentage:    savingsPct,
		UnavailablePlatforms: unavailable,
		HistoryDegraded:      degraded,
		CreatedAt:            time.Now().UTC(),
	}

	run.to(models.StateNarrativePending)
	e.narrate(ctx, rec)

	run.to(models.StateComplete)
	e.logger.Info("[engine] %q: best %s/%s at ₹%.2f, savings ₹%.2f",
		run.query, rec.BestProduct.Platform, rec.BestProduct.ProductID, rec.BestProduct.CurrentPrice, rec.TotalSavings)
	return rec, nil
}

type fetchOutcome struct {
	listings []*models.Listing
	err      error
}

// fetchAll queries every provider concurrently and waits for all of them.
// Faulted platforms are reported, never fatal.
func (e *Engine) fetchAll(ctx context.Context, query string) ([]*models.Listing, []string, []error) {
	outcomes := make([]fetchOutcome, len(e.providers))

	var g errgroup.Group
	for i, p := range e.providers {
		i, p := i, p
		g.Go(func() error {
			start := time.Now()
			ls, err := e.fetchOne(ctx, p, query)
			outcomes[i] = fetchOutcome{listings: ls, err: err}
			outcome := "ok"
			if err != nil {
				outcome = "fault"
				e.logger.Warn("[engine] %s unavailable: %v", p.Platform(), err)
			}
			e.metrics.ObserveFetch(p.Platform(), outcome, time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	var listings []*models.Listing
	var unavailable []string
	var faults []error
	for i, o := range outcomes {
		if o.err != nil {
			unavailable = append(unavailable, e.providers[i].Platform())
			faults = append(faults, &models.ProviderError{Platform: e.providers[i].Platform(), Err: o.err})
			continue
		}
		for _, l := range o.listings {
			if !l.Complete() {
				e.logger.Debug("[engine] %s: dropping incomplete listing %q", e.providers[i].Platform(), l.ProductID)
				continue
			}
			listings = append(listings, normalisePrices(l))
		}
	}
	sort.Strings(unavailable)
	return listings, unavailable, faults
}

// normalisePrices returns a copy of l whose original price is never below
// the current one and whose discount is derived from the two prices,
// whatever the provider reported.
func normalisePrices(l *models.Listing) *models.Listing {
	n := *l
	if n.OriginalPrice < 0 {
		n.OriginalPrice = 0
	}
	if n.OriginalPrice > 0 && n.OriginalPrice < n.CurrentPrice {
		n.OriginalPrice = n.CurrentPrice
	}
	n.DiscountPercentage = models.Discount(n.CurrentPrice, n.OriginalPrice)
	return &n
}

// fetchOne bounds a single provider call by the per-provider timeout, even
// when the provider ignores its context.
func (e *Engine) fetchOne(ctx context.Context, p SourceProvider, query string) ([]*models.Listing, error) {
	pctx, cancel := context.WithTimeout(ctx, e.cfg.ProviderTimeout)
	defer cancel()

	done := make(chan fetchOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchOutcome{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		ls, err := p.Fetch(pctx, query)
		done <- fetchOutcome{listings: ls, err: err}
	}()

	select {
	case o := <-done:
		return o.listings, o.err
	case <-pctx.Done():
		return nil, pctx.Err()
	}
}

// persist records every listing with retry. It fails only when no record
// could be written; partial failure is reported as degraded history.
func (e *Engine) persist(ctx context.Context, listings []*models.Listing) (bool, error) {
	var failed int
	var lastErr error
	for _, l := range listings {
		l := l
		err := e.retry.Do(ctx, "record "+l.Platform+"/"+l.ProductID, func() error {
			_, err := e.store.Record(ctx, l)
			return err
		})
		e.metrics.ObserveHistoryWrite(err == nil)
		if err != nil {
			failed++
			lastErr = err
			e.logger.Error("[engine] history write failed: %v", err)
		}
	}
	if failed == len(listings) {
		return true, errors.Join(models.ErrPersistence, lastErr)
	}
	return failed > 0, nil
}

// narrate fills the narrative fields, falling back to the template when
// the generator fails or leaves fields empty.
func (e *Engine) narrate(ctx context.Context, rec *models.Recommendation) {
	prompt := e.buildPrompt(rec)
	fallback := e.fallback.Build(prompt)

	nctx, cancel := context.WithTimeout(ctx, e.cfg.NarrativeTimeout)
	defer cancel()

	insight, err := e.generate(nctx, prompt)
	if err != nil || insight == nil {
		if err == nil {
			err = errors.New("empty insight")
		}
		e.logger.Warn("[engine] %v: %v, using template", models.ErrNarrative, err)
		e.metrics.ObserveNarrativeFallback()
		insight = fallback
		rec.NarrativeFallback = true
	} else if !insight.Complete() {
		filled := *insight
		if filled.Summary == "" {
			filled.Summary = fallback.Summary
		}
		if filled.DetailedAnalysis == "" {
			filled.DetailedAnalysis = fallback.DetailedAnalysis
		}
		if filled.TimingAdvice == "" {
			filled.TimingAdvice = fallback.TimingAdvice
		}
		if len(filled.AlternativeSuggestions) == 0 {
			filled.AlternativeSuggestions = fallback.AlternativeSuggestions
		}
		insight = &filled
		rec.NarrativeFallback = true
		e.metrics.ObserveNarrativeFallback()
	}

	rec.Summary = insight.Summary
	rec.DetailedAnalysis = insight.DetailedAnalysis
	rec.TimingAdvice = insight.TimingAdvice
	rec.AlternativeSuggestions = insight.AlternativeSuggestions
}

type generateOutcome struct {
	insight *models.Insight
	err     error
}

// generate bounds the narrator by ctx even when it ignores cancellation,
// the same way fetchOne bounds a provider.
func (e *Engine) generate(ctx context.Context, prompt *models.InsightPrompt) (*models.Insight, error) {
	done := make(chan generateOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generateOutcome{err: fmt.Errorf("narrator panic: %v", r)}
			}
		}()
		insight, err := e.narrator.Generate(ctx, prompt)
		done <- generateOutcome{insight: insight, err: err}
	}()

	select {
	case o := <-done:
		return o.insight, o.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) buildPrompt(rec *models.Recommendation) *models.InsightPrompt {
	alts := rec.Ranked[1:]
	if len(alts) > e.cfg.MaxAlternatives {
		alts = alts[:e.cfg.MaxAlternatives]
	}
	return &models.InsightPrompt{
		Query:                rec.Query,
		Best:                 rec.Ranked[0],
		Alternatives:         alts,
		Market:               MarketStats(rec.AllProducts),
		TotalSavings:         rec.TotalSavings,
		SavingsPercentage:    rec.SavingsPercentage,
		UnavailablePlatforms: rec.UnavailablePlatforms,
		HistoryDegraded:      rec.HistoryDegraded,
	}
}
