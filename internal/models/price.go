package models

import (
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/datlens/internal/common"
)

// Price is an optional closing price. The zero value means "not available".
type Price struct {
	Value float64
	Valid bool
}

// PriceOf wraps a known price.
func PriceOf(v float64) Price {
	return Price{Value: v, Valid: true}
}

// NoPrice is the absent price.
var NoPrice = Price{}

// String renders the price with two decimals, or "N/A" when absent. This is the
// only place a Price becomes the textual sentinel.
func (p Price) String() string {
	if !p.Valid {
		return common.NotAvailable
	}
	return fmt.Sprintf("%.2f", p.Value)
}

// PricePoint is one dated close.
type PricePoint struct {
	Date  time.Time
	Close float64
}

// PriceSeries is an ascending, one-close-per-day series for one
// (provider, symbol) pair.
type PriceSeries struct {
	Provider string
	Symbol   string
	// Complete marks a series holding everything the provider returns for the
	// symbol, independent of the requested window.
	Complete bool
	points   []PricePoint
}

// NewPriceSeries builds a series from YYYY-MM-DD keyed closes. Keys that are
// not valid dates are dropped.
func NewPriceSeries(provider, symbol string, closes map[string]float64) *PriceSeries {
	s := &PriceSeries{Provider: provider, Symbol: symbol}
	for k, v := range closes {
		t, err := time.Parse(common.DateLayout, k)
		if err != nil {
			continue
		}
		s.points = append(s.points, PricePoint{Date: t, Close: v})
	}
	s.sort()
	return s
}

// NewPriceSeriesFromPoints builds a series from points; when a day repeats the
// first point for that day is kept.
func NewPriceSeriesFromPoints(provider, symbol string, points []PricePoint) *PriceSeries {
	s := &PriceSeries{Provider: provider, Symbol: symbol}
	s.Merge(points)
	return s
}

// Merge adds points for days not already present.
func (s *PriceSeries) Merge(points []PricePoint) {
	seen := make(map[time.Time]bool, len(s.points))
	for _, p := range s.points {
		seen[p.Date] = true
	}
	for _, p := range points {
		day := common.TruncateDay(p.Date)
		if seen[day] {
			continue
		}
		seen[day] = true
		s.points = append(s.points, PricePoint{Date: day, Close: p.Close})
	}
	s.sort()
}

func (s *PriceSeries) sort() {
	sort.Slice(s.points, func(i, j int) bool {
		return s.points[i].Date.Before(s.points[j].Date)
	})
}

// Len returns the number of priced days.
func (s *PriceSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.points)
}

// Empty reports whether the series has no prices.
func (s *PriceSeries) Empty() bool {
	return s.Len() == 0
}

// Points returns the ascending points. The slice must not be modified.
func (s *PriceSeries) Points() []PricePoint {
	if s == nil {
		return nil
	}
	return s.points
}

// CloseOn returns the close recorded exactly on day.
func (s *PriceSeries) CloseOn(day time.Time) (float64, bool) {
	day = common.TruncateDay(day)
	pts := s.Points()
	i := sort.Search(len(pts), func(i int) bool { return !pts[i].Date.Before(day) })
	if i < len(pts) && pts[i].Date.Equal(day) {
		return pts[i].Close, true
	}
	return 0, false
}

// First and Last return the boundary dates; ok is false for an empty series.
func (s *PriceSeries) First() (time.Time, bool) {
	if s.Empty() {
		return time.Time{}, false
	}
	return s.points[0].Date, true
}

func (s *PriceSeries) Last() (time.Time, bool) {
	if s.Empty() {
		return time.Time{}, false
	}
	return s.points[len(s.points)-1].Date, true
}

// Anchoring selects how a target date maps onto a sparse series.
type Anchoring int

const (
	// AnchorBackward takes the latest close on or before the target.
	AnchorBackward Anchoring = iota
	// AnchorForward takes the first close on or after the target, falling back
	// to the most recent close when the target is past the end of the series.
	AnchorForward
)

func (a Anchoring) String() string {
	if a == AnchorForward {
		return "forward"
	}
	return "backward"
}

// FetchMode describes how a provider returns history.
type FetchMode int

const (
	// FetchRange returns a contiguous window in one call.
	FetchRange FetchMode = iota
	// FetchPoint returns one date per call.
	FetchPoint
)

func (m FetchMode) String() string {
	if m == FetchPoint {
		return "point"
	}
	return "range"
}
