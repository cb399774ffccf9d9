package eodhd

// EODData is one daily bar from /eod. Only the fields used for close
// lookups are decoded.
type EODData struct {
	DateStr       string  `json:"date"`
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close"`
}

// EODResponse is the ascending bar list for one symbol.
type EODResponse []EODData

// Closes converts the response into a date -> close map, preferring the
// adjusted close when the API supplies one. Non-positive closes are dropped.
func (r EODResponse) Closes() map[string]float64 {
	out := make(map[string]float64, len(r))
	for _, d := range r {
		if d.DateStr == "" {
			continue
		}
		price := d.Close
		if d.AdjustedClose > 0 {
			price = d.AdjustedClose
		}
		if price <= 0 {
			continue
		}
		out[d.DateStr] = price
	}
	return out
}
