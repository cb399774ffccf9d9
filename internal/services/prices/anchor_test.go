package prices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/datlens/internal/models"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestAnchor_SparseSeries(t *testing.T) {
	series := models.NewPriceSeries("test", "X", map[string]float64{
		"2025-01-01": 10,
		"2025-01-03": 12,
	})

	assert.Equal(t, models.PriceOf(10), Anchor(series, day("2025-01-02"), models.AnchorBackward))
	assert.Equal(t, models.PriceOf(12), Anchor(series, day("2025-01-02"), models.AnchorForward))
}

func TestAnchor_Boundaries(t *testing.T) {
	series := models.NewPriceSeries("test", "X", map[string]float64{
		"2025-01-02": 10,
		"2025-01-03": 11,
		"2025-01-06": 12,
	})

	tests := []struct {
		name      string
		target    string
		anchoring models.Anchoring
		want      models.Price
	}{
		{"backward exact", "2025-01-03", models.AnchorBackward, models.PriceOf(11)},
		{"backward weekend", "2025-01-05", models.AnchorBackward, models.PriceOf(11)},
		{"backward before start", "2025-01-01", models.AnchorBackward, models.NoPrice},
		{"backward after end", "2025-02-01", models.AnchorBackward, models.PriceOf(12)},
		{"forward exact", "2025-01-03", models.AnchorForward, models.PriceOf(11)},
		{"forward weekend", "2025-01-04", models.AnchorForward, models.PriceOf(12)},
		{"forward before start", "2024-12-01", models.AnchorForward, models.PriceOf(10)},
		{"forward after end falls back to last", "2025-02-01", models.AnchorForward, models.PriceOf(12)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Anchor(series, day(tt.target), tt.anchoring))
		})
	}
}

func TestAnchor_EmptySeries(t *testing.T) {
	assert.Equal(t, models.NoPrice, Anchor(nil, day("2025-01-01"), models.AnchorForward))
	assert.Equal(t, models.NoPrice, Anchor(models.NewPriceSeries("p", "X", nil), day("2025-01-01"), models.AnchorBackward))
}

func TestAnchor_IgnoresTimeOfDay(t *testing.T) {
	series := models.NewPriceSeries("test", "X", map[string]float64{"2025-01-03": 12})
	target := time.Date(2025, 1, 3, 18, 45, 0, 0, time.UTC)
	assert.Equal(t, models.PriceOf(12), Anchor(series, target, models.AnchorBackward))
}

func TestPctChange(t *testing.T) {
	assert.Equal(t, "N/A", PctChange(models.NoPrice, models.PriceOf(5)))
	assert.Equal(t, "N/A", PctChange(models.PriceOf(5), models.NoPrice))
	assert.Equal(t, "N/A", PctChange(models.PriceOf(0), models.PriceOf(5)))
	assert.Equal(t, "10.00%", PctChange(models.PriceOf(100), models.PriceOf(110)))
	assert.Equal(t, "-25.00%", PctChange(models.PriceOf(200), models.PriceOf(150)))
	assert.Equal(t, "0.33%", PctChange(models.PriceOf(300), models.PriceOf(301)))
}
