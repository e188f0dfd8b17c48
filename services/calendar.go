package services

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/viper"

	"price-agent/models"
)

// DefaultSaleCalendar returns the recurring Indian-market sale events.
func DefaultSaleCalendar() []models.SaleEvent {
	return []models.SaleEvent{
		{Name: "New Year Sale", StartMonth: 1, StartDay: 1, EndMonth: 1, EndDay: 6},
		{Name: "Republic Day Sale", StartMonth: 1, StartDay: 20, EndMonth: 1, EndDay: 26, HighValue: true},
		{Name: "Valentine's Day Sale", StartMonth: 2, StartDay: 10, EndMonth: 2, EndDay: 14},
		{Name: "Holi Sale", StartMonth: 3, StartDay: 15, EndMonth: 3, EndDay: 24},
		{Name: "Summer Sale", StartMonth: 5, StartDay: 1, EndMonth: 5, EndDay: 30, HighValue: true},
		{Name: "Independence Day Sale", StartMonth: 8, StartDay: 8, EndMonth: 8, EndDay: 15, HighValue: true},
		{Name: "Ganesh Chaturthi Sale", StartMonth: 9, StartDay: 1, EndMonth: 9, EndDay: 14},
		{Name: "Diwali Sale", StartMonth: 10, StartDay: 1, EndMonth: 10, EndDay: 30, HighValue: true},
		{Name: "Black Friday", StartMonth: 11, StartDay: 20, EndMonth: 11, EndDay: 29, HighValue: true},
		{Name: "Christmas Sale", StartMonth: 12, StartDay: 20, EndMonth: 12, EndDay: 30},
	}
}

// LoadSaleCalendar reads events from a YAML, JSON or TOML file with a
// top-level "events" list.
func LoadSaleCalendar(path string) ([]models.SaleEvent, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("calendar: read %q: %w", path, err)
	}
	var events []models.SaleEvent
	if err := v.UnmarshalKey("events", &events); err != nil {
		return nil, fmt.Errorf("calendar: decode %q: %w", path, err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("calendar: %q defines no events", path)
	}
	for i, e := range events {
		if err := validateSaleEvent(e); err != nil {
			return nil, fmt.Errorf("calendar: event %d: %w", i, err)
		}
	}
	return events, nil
}

func validateSaleEvent(e models.SaleEvent) error {
	if e.Name == "" {
		return fmt.Errorf("missing name")
	}
	if e.StartMonth < 1 || e.StartMonth > 12 || e.EndMonth < 1 || e.EndMonth > 12 {
		return fmt.Errorf("%s: month out of range", e.Name)
	}
	if e.StartDay < 1 || e.StartDay > 31 || e.EndDay < 1 || e.EndDay > 31 {
		return fmt.Errorf("%s: day out of range", e.Name)
	}
	return nil
}

// UpcomingSales lists the occurrences that are ongoing at asOf or start
// within horizonDays, nearest first. Ties sort by name.
func UpcomingSales(events []models.SaleEvent, asOf time.Time, horizonDays int) []models.UpcomingSale {
	today := truncateDay(asOf)
	var out []models.UpcomingSale
	for _, e := range events {
		if s, ok := nextOccurrence(e, today); ok && s.DaysUntil <= horizonDays {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DaysUntil != out[j].DaysUntil {
			return out[i].DaysUntil < out[j].DaysUntil
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// nextOccurrence finds the window of e that contains today or starts after
// it. Windows that end before they start wrap into the next year.
func nextOccurrence(e models.SaleEvent, today time.Time) (models.UpcomingSale, bool) {
	for y := today.Year() - 1; y <= today.Year()+1; y++ {
		start := time.Date(y, time.Month(e.StartMonth), e.StartDay, 0, 0, 0, 0, time.UTC)
		endYear := y
		if e.EndMonth < e.StartMonth || (e.EndMonth == e.StartMonth && e.EndDay < e.StartDay) {
			endYear++
		}
		end := time.Date(endYear, time.Month(e.EndMonth), e.EndDay, 0, 0, 0, 0, time.UTC)

		if !today.Before(start) && !today.After(end) {
			return models.UpcomingSale{Name: e.Name, StartsAt: start, Ongoing: true, HighValue: e.HighValue}, true
		}
		if start.After(today) {
			return models.UpcomingSale{
				Name:      e.Name,
				StartsAt:  start,
				DaysUntil: int(start.Sub(today).Hours() / 24),
				HighValue: e.HighValue,
			}, true
		}
	}
	return models.UpcomingSale{}, false
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
