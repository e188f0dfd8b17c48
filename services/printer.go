package services

import (
	"fmt"
	"io"
	"os"
	"strings"

	"price-agent/models"
)

// Printer renders a Recommendation as a coloured terminal report.
type Printer struct {
	out io.Writer
}

// NewPrinter writes to w; nil means stdout.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w}
}

func (p *Printer) Print(r *models.Recommendation) {
	sep := strings.Repeat("═", 64)
	thin := strings.Repeat("─", 64)
	w := p.out

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  🛒 BEST DEAL: %s\033[0m\n", strings.ToUpper(r.Query))
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	if best := r.Best(); best != nil {
		l := best.Listing
		fmt.Fprintf(w, "\033[1;33m  Best Product\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(l.Title, 60))
		fmt.Fprintf(w, "  Platform : \033[1m%s\033[0m\n", l.Platform)
		fmt.Fprintf(w, "  Price    : \033[1;32m₹%.2f\033[0m (was ₹%.2f, %.0f%% off, save ₹%.2f)\n",
			l.CurrentPrice, l.OriginalPrice, l.DiscountPercentage*100, l.Savings())
		fmt.Fprintf(w, "  Seller   : %s (trust %.0f/100)\n", sellerName(l), best.Trust.Score)
		fmt.Fprintf(w, "  Savings  : \033[1;32m₹%.2f\033[0m (%.1f%%)\n", r.TotalSavings, r.SavingsPercentage)
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;33m  All Offers (ranked)\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	for i, rl := range r.Ranked {
		l := rl.Listing
		stock := ""
		if !l.InStock {
			stock = " \033[31m(out of stock)\033[0m"
		}
		fmt.Fprintf(w, "  \033[1m%d.\033[0m %-10s %-32s ₹%10.2f  %4.1f ★  score %5.1f%s\n",
			i+1, l.Platform, truncate(l.Title, 30), l.CurrentPrice, l.Rating, rl.Score, stock)
	}
	fmt.Fprintln(w)

	section := func(title, body string) {
		if body == "" {
			return
		}
		fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n\n", body)
	}
	section("Summary", r.Summary)
	section("Analysis", r.DetailedAnalysis)
	section("Timing", r.TimingAdvice)

	if len(r.AlternativeSuggestions) > 0 {
		fmt.Fprintf(w, "\033[1;33m  Suggestions\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		for _, s := range r.AlternativeSuggestions {
			fmt.Fprintf(w, "  • %s\n", s)
		}
		fmt.Fprintln(w)
	}

	var notes []string
	if len(r.UnavailablePlatforms) > 0 {
		notes = append(notes, "unavailable: "+strings.Join(r.UnavailablePlatforms, ", "))
	}
	if r.HistoryDegraded {
		notes = append(notes, "price history partially saved")
	}
	if r.NarrativeFallback {
		notes = append(notes, "template narrative")
	}
	if len(notes) > 0 {
		fmt.Fprintf(w, "  \033[2m(%s)\033[0m\n", strings.Join(notes, "; "))
	}

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}
