// Package classify scores news text for digital-asset-treasury language.
package classify

import (
	"regexp"
	"strconv"
	"strings"
)

// Keyword weights. The sum is capped at MaxScore.
const (
	TokenWeight     = 30
	TreasuryWeight  = 30
	ActionWeight    = 20
	FinancingWeight = 10
	MaxScore        = 100
	// DATThreshold is the score a text must reach to count as a DAT event.
	DATThreshold = 60
)

var (
	treasuryKeywords = []string{
		"treasury",
		"digital asset treasury",
		"reserve",
		"treasury policy",
	}

	actionKeywords = []string{
		"acquire",
		"purchase",
		"allocate",
		"hold",
		"mandate",
		"explore",
	}

	financingKeywords = []string{
		"registered direct",
		"private placement",
		"pipe",
		"convertible",
		"atm offering",
		"credit facility",
	}

	tokenKeywords = []string{
		"btc",
		"bitcoin",
		"eth",
		"ether",
		"ethereum",
		"sol",
		"solana",
		"bnb",
		"ton",
		"avax",
		"native token",
		"token",
	}
)

var (
	amountPattern = regexp.MustCompile(`\$\s?([0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]{1,2})?)`)
	tokenPattern  = regexp.MustCompile(`(?i)\b(BTC|Bitcoin|ETH|Ether|Solana|SOL|BNB|TON|AVAX)\b`)
)

// Signals records which keyword families matched.
type Signals struct {
	Token     bool `json:"token"`
	Treasury  bool `json:"treasury"`
	Action    bool `json:"action"`
	Financing bool `json:"financing"`
}

// Classification is the verdict for one text.
type Classification struct {
	Score     int      `json:"score"`
	IsDAT     bool     `json:"is_dat"`
	Signals   Signals  `json:"signals"`
	Tokens    []string `json:"tokens"`
	AmountUSD *float64 `json:"amount_usd"`
}

// Classifier applies the keyword scorer with a minimum score.
type Classifier struct {
	minScore int
}

// NewClassifier creates a classifier. A text is DAT when its score reaches
// both DATThreshold and minScore.
func NewClassifier(minScore int) *Classifier {
	return &Classifier{minScore: minScore}
}

// Classify scores text. Matching is case-insensitive substring matching.
func (c *Classifier) Classify(text string) Classification {
	lower := strings.ToLower(text)

	signals := Signals{
		Token:     containsAny(lower, tokenKeywords),
		Treasury:  containsAny(lower, treasuryKeywords),
		Action:    containsAny(lower, actionKeywords),
		Financing: containsAny(lower, financingKeywords),
	}

	score := 0
	if signals.Token {
		score += TokenWeight
	}
	if signals.Treasury {
		score += TreasuryWeight
	}
	if signals.Action {
		score += ActionWeight
	}
	if signals.Financing {
		score += FinancingWeight
	}
	if score > MaxScore {
		score = MaxScore
	}

	return Classification{
		Score:     score,
		IsDAT:     score >= DATThreshold && score >= c.minScore,
		Signals:   signals,
		Tokens:    ExtractTokens(text),
		AmountUSD: ExtractAmount(text),
	}
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// ExtractTokens returns upper-cased token mentions in order of first
// appearance, without repeats.
func ExtractTokens(text string) []string {
	tokens := []string{}
	seen := make(map[string]bool)
	for _, m := range tokenPattern.FindAllStringSubmatch(text, -1) {
		tok := strings.ToUpper(m[1])
		if seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}
	return tokens
}

// ExtractAmount returns the first dollar amount in text, or nil.
func ExtractAmount(text string) *float64 {
	for _, m := range amountPattern.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err == nil {
			return &v
		}
	}
	return nil
}
