package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/datlens/internal/common"
)

// Fact-card field names relied on by deduplication and enrichment.
const (
	FieldStockTicker     = "Stock Ticker"
	FieldStockName       = "Stock Name"
	FieldToken           = "Token"
	FieldAnnouncement    = "Raise Ann. Date"
	FieldInferredRefDate = "Inferred Ref. Date"
	FieldSharePrice      = "Share Price on Ann. Date"
	FieldTokenPrice      = "Token Price on Ann. Date"
)

// ErrNotObject is returned when a fact-card file does not hold a JSON object.
var ErrNotObject = errors.New("fact card is not a JSON object")

// FactCard is one JSON object describing a candidate DAT event. Field order is
// preserved across decode/encode so rewritten files diff cleanly. Values are
// kept as raw JSON so non-string values survive a round trip untouched.
type FactCard struct {
	keys   []string
	values map[string]json.RawMessage
}

// NewFactCard creates an empty fact card.
func NewFactCard() *FactCard {
	return &FactCard{values: make(map[string]json.RawMessage)}
}

// ParseFactCard decodes a JSON object, keeping the original key order.
// Duplicate keys keep their first position and last value.
func ParseFactCard(data []byte) (*FactCard, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to decode fact card: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	card := NewFactCard()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to decode fact card key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("failed to decode fact card: unexpected key %v", keyTok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode fact card value for %q: %w", key, err)
		}
		card.setRaw(key, raw)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to decode fact card: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to decode fact card: trailing data")
	}
	return card, nil
}

func (c *FactCard) setRaw(key string, raw json.RawMessage) {
	if _, exists := c.values[key]; !exists {
		c.keys = append(c.keys, key)
	}
	c.values[key] = raw
}

// Keys returns field names in file order.
func (c *FactCard) Keys() []string {
	out := make([]string, len(c.keys))
	copy(out, c.keys)
	return out
}

// Len returns the number of fields.
func (c *FactCard) Len() int {
	return len(c.keys)
}

// Has reports whether the field exists, whatever its value.
func (c *FactCard) Has(field string) bool {
	_, ok := c.values[field]
	return ok
}

// Get returns the field as text. Strings are unquoted, null is "", and any
// other JSON value is returned as its literal JSON text.
func (c *FactCard) Get(field string) string {
	raw, ok := c.values[field]
	if !ok {
		return ""
	}
	return rawText(raw)
}

func rawText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

// Set stores a string value, appending the field if it is new.
func (c *FactCard) Set(field, value string) {
	raw, _ := json.Marshal(value)
	c.setRaw(field, raw)
}

// IsUnset reports whether a field is absent, null, empty or the "N/A" sentinel.
func (c *FactCard) IsUnset(field string) bool {
	return common.IsBlank(c.Get(field))
}

// Fill sets field only when it is currently unset and reports whether the card
// changed. Present values are never overwritten.
func (c *FactCard) Fill(field, value string) bool {
	if !c.IsUnset(field) {
		return false
	}
	if c.Has(field) && c.Get(field) == value {
		return false
	}
	c.Set(field, value)
	return true
}

// FilledCount counts fields holding real data (not empty, null or "N/A").
func (c *FactCard) FilledCount() int {
	n := 0
	for _, k := range c.keys {
		if !common.IsBlank(rawText(c.values[k])) {
			n++
		}
	}
	return n
}

// Ticker returns the normalized equity ticker.
func (c *FactCard) Ticker() string {
	return common.NormalizeSymbol(c.Get(FieldStockTicker))
}

// Token returns the normalized token symbol.
func (c *FactCard) Token() string {
	return common.NormalizeSymbol(c.Get(FieldToken))
}

// AnnouncementDate returns the normalized announcement date (YYYY-MM-DD) or "".
func (c *FactCard) AnnouncementDate() string {
	return common.NormalizeDate(c.Get(FieldAnnouncement))
}

// Key derives the natural key from the card's ticker, token and date.
func (c *FactCard) Key() NaturalKey {
	return NaturalKey{
		Ticker: c.Ticker(),
		Token:  c.Token(),
		Date:   c.AnnouncementDate(),
	}
}

// MarshalJSON encodes the card as a two-space indented object in field order,
// without HTML escaping.
func (c *FactCard) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, k := range c.keys {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  ")
		if err := encodeNoEscape(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteString(": ")
		if err := writeIndentedValue(&buf, c.values[k]); err != nil {
			return nil, fmt.Errorf("failed to encode field %q: %w", k, err)
		}
	}
	if len(c.keys) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}")
	return buf.Bytes(), nil
}

// Encode returns the file representation of the card (trailing newline excluded).
func (c *FactCard) Encode() ([]byte, error) {
	return c.MarshalJSON()
}

func encodeNoEscape(buf *bytes.Buffer, v interface{}) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

func writeIndentedValue(buf *bytes.Buffer, raw json.RawMessage) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		buf.WriteString("null")
		return nil
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		var out bytes.Buffer
		if err := json.Indent(&out, trimmed, "  ", "  "); err != nil {
			return err
		}
		buf.Write(out.Bytes())
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		return encodeNoEscape(buf, s)
	}
	buf.Write(trimmed)
	return nil
}

// NaturalKey identifies the real-world event a fact card describes.
type NaturalKey struct {
	Ticker string
	Token  string
	Date   string
}

// Complete reports whether all three components are present.
func (k NaturalKey) Complete() bool {
	return k.Ticker != "" && k.Token != "" && k.Date != ""
}

// Partial reports whether the key carries a date and at least one symbol.
func (k NaturalKey) Partial() bool {
	return k.Date != "" && (k.Ticker != "" || k.Token != "")
}

func (k NaturalKey) String() string {
	return strings.Join([]string{k.Ticker, k.Token, k.Date}, "|")
}
