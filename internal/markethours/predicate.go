package markethours

import "time"

// Predicate gates task submission against one configured exchange's trading
// calendar. The scheduler's control plane consults it for any task type
// marked market_hours_only.
type Predicate struct {
	exchangeCode string
	service      *MarketHoursService
}

// NewPredicate builds a Predicate for the given exchange (e.g. "XNAS" for
// NASDAQ). An empty exchangeCode selects the XNAS calendar: 09:30-16:00
// America/New_York, Mon-Fri, with US holidays and early closes. There is
// no separate fixed 09:15-15:30 window.
func NewPredicate(exchangeCode string) *Predicate {
	if exchangeCode == "" {
		exchangeCode = "XNAS"
	}
	return &Predicate{
		exchangeCode: exchangeCode,
		service:      NewMarketHoursService(),
	}
}

// IsOpen reports whether t falls inside the configured exchange's trading
// window, honoring weekends, holidays, lunch breaks, and early closes.
func (p *Predicate) IsOpen(t time.Time) bool {
	return p.service.IsMarketOpen(p.exchangeCode, t)
}
