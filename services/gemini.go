package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"price-agent/models"
	"price-agent/utils"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiConfig configures GeminiInsights.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	BaseURL     string
	Timeout     time.Duration
}

// GeminiInsights asks the Gemini generateContent REST endpoint for the
// narrative.
type GeminiInsights struct {
	client *resty.Client
	cfg    GeminiConfig
	logger *utils.Logger
}

func NewGeminiInsights(cfg GeminiConfig, logger *utils.Logger) (*GeminiInsights, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGeminiBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	return &GeminiInsights{client: client, cfg: cfg, logger: logger}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature float64 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *GeminiInsights) Generate(ctx context.Context, p *models.InsightPrompt) (*models.Insight, error) {
	prompt, err := buildGeminiPrompt(p)
	if err != nil {
		return nil, fmt.Errorf("gemini: build prompt: %w", err)
	}

	var body geminiRequest
	body.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}
	body.GenerationConfig.Temperature = g.cfg.Temperature

	var result geminiResponse
	var apiErr geminiError
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParam("key", g.cfg.APIKey).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", g.cfg.Model))
	if err != nil {
		return nil, fmt.Errorf("gemini: request: %w", err)
	}
	if resp.IsError() {
		if apiErr.Error.Message != "" {
			return nil, fmt.Errorf("gemini: %s: %s", resp.Status(), apiErr.Error.Message)
		}
		return nil, fmt.Errorf("gemini: %s", resp.Status())
	}

	var text strings.Builder
	if len(result.Candidates) > 0 {
		for _, part := range result.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, errors.New("gemini: empty response")
	}

	g.logger.Debug("[gemini] Received %d bytes of narrative", text.Len())
	return parseInsight(text.String()), nil
}

// parseInsight takes the JSON object between the first '{' and the last '}'.
// Text that is not JSON becomes the summary and analysis; missing fields are
// left empty for the caller to fill.
func parseInsight(text string) *models.Insight {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end > start {
		var in models.Insight
		if err := json.Unmarshal([]byte(text[start:end+1]), &in); err == nil {
			return &in
		}
	}
	text = strings.TrimSpace(text)
	summary := []rune(text)
	if len(summary) > 200 {
		summary = summary[:200]
	}
	return &models.Insight{
		Summary:          string(summary),
		DetailedAnalysis: text,
	}
}

type promptProduct struct {
	Platform      string  `json:"platform"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"original_price"`
	Discount      string  `json:"discount"`
	Rating        float64 `json:"rating"`
	Seller        string  `json:"seller"`
	TrustScore    string  `json:"seller_trust_score"`
	InStock       bool    `json:"in_stock"`
	Score         float64 `json:"rank_score"`
	SavedVsMRP    float64 `json:"saved_vs_mrp"`
}

func buildGeminiPrompt(p *models.InsightPrompt) (string, error) {
	ranked := append([]models.RankedListing{p.Best}, p.Alternatives...)
	products := make([]promptProduct, 0, len(ranked))
	for _, r := range ranked {
		if r.Listing == nil {
			continue
		}
		products = append(products, promptProduct{
			Platform:      r.Listing.Platform,
			Name:          r.Listing.Title,
			Price:         r.Listing.CurrentPrice,
			OriginalPrice: r.Listing.OriginalPrice,
			Discount:      fmt.Sprintf("%.0f%%", r.Listing.DiscountPercentage*100),
			Rating:        r.Listing.Rating,
			Seller:        sellerName(r.Listing),
			TrustScore:    fmt.Sprintf("%.0f/100", r.Trust.Score),
			InStock:       r.Listing.InStock,
			Score:         r.Score,
			SavedVsMRP:    r.Listing.Savings(),
		})
	}
	productJSON, err := json.MarshalIndent(products, "", "  ")
	if err != nil {
		return "", err
	}

	tr := p.Best.Trend
	analysisJSON, err := json.MarshalIndent(map[string]any{
		"current_price":  tr.CurrentPrice,
		"min_price":      tr.MinPrice,
		"max_price":      tr.MaxPrice,
		"average_price":  tr.MeanPrice,
		"trend":          tr.Direction,
		"volatile":       tr.Volatile,
		"price_position": tr.Position,
		"samples":        tr.SampleCount,
		"total_savings":  p.TotalSavings,
		"savings_pct":    p.SavingsPercentage,
		"forecast_price": p.Best.Prediction.PredictedPrice,
		"forecast_drop":  p.Best.Prediction.ExpectedDrop,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	predictionJSON, err := json.MarshalIndent(p.Best.Prediction, "", "  ")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`You are an expert e-commerce price analyst helping users make smart purchasing decisions.
The user searched for: %q

**PRODUCTS COMPARISON (best first):**
%s

**PRICE ANALYSIS:**
%s

**PRICE PREDICTION:**
%s

Please provide a comprehensive analysis in the following JSON format:
{
    "summary": "A concise 2-3 sentence summary highlighting the best deal and key insight",
    "detailed_analysis": "Detailed comparison of prices, discounts, and seller trustworthiness across platforms.",
    "timing_advice": "Clear advice on when to buy, based on price trends and upcoming sales.",
    "alternative_suggestions": ["Suggestion 1", "Suggestion 2", "Suggestion 3"]
}

Guidelines:
1. Be specific with numbers (prices in INR, discounts, savings)
2. Consider both price AND seller trustworthiness
3. If there's an upcoming sale, emphasize it
4. Keep it user-friendly

Provide ONLY the JSON response, no additional text.`,
		p.Query, productJSON, analysisJSON, predictionJSON), nil
}
