package enrich

import (
	"fmt"

	"github.com/ternarybob/datlens/internal/models"
	"github.com/ternarybob/datlens/internal/services/prices"
)

// side describes one price domain of a fact card.
type side struct {
	name       string // "equity" or "token", for logs
	label      string // word used in performance field names
	priceField string
}

var (
	equitySide = side{name: "equity", label: "Stock", priceField: models.FieldSharePrice}
	tokenSide  = side{name: "token", label: "Token", priceField: models.FieldTokenPrice}
)

// perfMetric is pct(P[base], P[other]) written to a named field.
type perfMetric struct {
	format string
	base   int
	other  int
}

var perfMetrics = []perfMetric{
	{"1D %s Perf", 0, 1},
	{"7D %s Perf", 0, 7},
	{"30D %s Perf", 0, 30},
	{"D %s Perf", -1, 0},
	{"-7D %s Perf", -7, 0},
	{"-7 to -1D %s Perf", -7, -1},
	{"-30D %s Perf (to D-1)", -30, -1},
}

func (m perfMetric) field(s side) string {
	return fmt.Sprintf(m.format, s.label)
}

// EquityFields lists the equity fields written for the configured offsets.
func EquityFields(offsets []int) []string {
	return fieldsFor(equitySide, offsets)
}

// TokenFields lists the token fields written for the configured offsets.
func TokenFields(offsets []int) []string {
	return fieldsFor(tokenSide, offsets)
}

func fieldsFor(s side, offsets []int) []string {
	set := offsetSet(offsets)
	var out []string
	if set[0] {
		out = append(out, s.priceField)
	}
	for _, m := range perfMetrics {
		if set[m.base] && set[m.other] {
			out = append(out, m.field(s))
		}
	}
	return out
}

func offsetSet(offsets []int) map[int]bool {
	set := make(map[int]bool, len(offsets))
	for _, o := range offsets {
		set[o] = true
	}
	return set
}

// apply fills the side's fields from quote and reports whether the card changed.
// A metric is written only when all of its offsets are configured.
func apply(card *models.FactCard, s side, quote *prices.Quote, offsets []int) bool {
	set := offsetSet(offsets)
	changed := false

	if set[0] {
		changed = card.Fill(s.priceField, quote.At(0).String()) || changed
	}
	for _, m := range perfMetrics {
		if !set[m.base] || !set[m.other] {
			continue
		}
		changed = card.Fill(m.field(s), prices.PctChange(quote.At(m.base), quote.At(m.other))) || changed
	}
	return changed
}
