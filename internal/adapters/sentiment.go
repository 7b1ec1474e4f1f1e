package adapters

import (
	"regexp"
	"strings"

	"github.com/eventfuse/eventfuse/internal/models"
	"github.com/eventfuse/eventfuse/pkg/utils"
)

// Lexicon-based enrichment used as the cheap synchronous pass before the
// external classifier fills in richer fields asynchronously.

var negativeWords = []string{
	"crash", "plunge", "collapse", "halt", "default", "fraud",
	"lawsuit", "recall", "breach", "outage", "shortage", "warning",
	"downgrade", "loss", "selloff", "panic", "risk",
	"崩盤", "暴跌", "重挫", "跳水", "違約", "詐欺", "停牌", "召回",
	"警告", "降評", "虧損", "恐慌", "風險", "利空",
}

var positiveWords = []string{
	"surge", "rally", "record", "breakthrough", "upgrade", "profit",
	"growth", "beat", "recovery", "approval", "partnership",
	"飆漲", "大漲", "創高", "突破", "升評", "獲利", "成長", "利多",
	"回升", "核准", "合作",
}

var highSeverityWords = []string{
	"crash", "collapse", "halt", "default", "emergency", "breach",
	"bankruptcy", "critical",
	"崩盤", "停牌", "違約", "緊急", "破產", "重大",
}

var mediumSeverityWords = []string{
	"plunge", "surge", "lawsuit", "recall", "downgrade", "warning",
	"shortage", "outage", "volatile",
	"暴跌", "飆漲", "訴訟", "召回", "降評", "警告", "缺貨", "震盪",
}

// DetectedEntity is a lexicon hit with its instrument symbol, when known.
type DetectedEntity struct {
	Name   string
	Type   string
	Symbol string
}

type lexiconEntry struct {
	symbol   string
	entType  string
	patterns []string
}

// Built-in instrument lexicon. Patterns are matched case-insensitively
// against the combined title+summary text.
var instrumentLexicon = []lexiconEntry{
	{symbol: "2330.TW", entType: "stock", patterns: []string{"台積電", "tsmc", "2330"}},
	{symbol: "2317.TW", entType: "stock", patterns: []string{"鴻海", "foxconn", "2317"}},
	{symbol: "2454.TW", entType: "stock", patterns: []string{"聯發科", "mediatek", "2454"}},
	{symbol: "AAPL", entType: "stock", patterns: []string{"蘋果", "apple", "aapl"}},
	{symbol: "NVDA", entType: "stock", patterns: []string{"輝達", "nvidia", "nvda"}},
	{symbol: "TSLA", entType: "stock", patterns: []string{"特斯拉", "tesla", "tsla"}},
	{symbol: "BTC-USD", entType: "crypto", patterns: []string{"比特幣", "bitcoin", "btc"}},
	{symbol: "ETH-USD", entType: "crypto", patterns: []string{"以太坊", "ethereum", "eth"}},
	{symbol: "USDTWD", entType: "fx", patterns: []string{"台幣", "新台幣", "usdtwd"}},
}

// LexiconSentiment derives a coarse sentiment from word lists. It is the
// fallback when the external classifier is unavailable.
func LexiconSentiment(text string) string {
	text = strings.ToLower(text)

	if utils.ContainsAny(text, negativeWords) {
		return models.SentimentNegative
	}
	if utils.ContainsAny(text, positiveWords) {
		return models.SentimentPositive
	}
	return models.SentimentNeutral
}

// ScoreSeverity produces a 0-100 severity from keyword weight plus an
// engagement boost. Engagement is weighted so shares count most.
func ScoreSeverity(text string, engagement models.Engagement) int {
	text = strings.ToLower(text)

	score := 30
	if utils.ContainsAny(text, highSeverityWords) {
		score += 40
	} else if utils.ContainsAny(text, mediumSeverityWords) {
		score += 20
	}

	weighted := engagement.Likes + engagement.Comments*2 + engagement.Shares*3
	switch {
	case weighted >= 10000:
		score += 20
	case weighted >= 1000:
		score += 10
	case weighted >= 100:
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}

// DetectEntities scans text against the instrument lexicon. The first hit
// per instrument wins; order follows the lexicon so results are stable.
func DetectEntities(text string) []DetectedEntity {
	lower := strings.ToLower(text)

	var out []DetectedEntity
	for _, entry := range instrumentLexicon {
		for _, p := range entry.patterns {
			if strings.Contains(lower, p) {
				out = append(out, DetectedEntity{
					Name:   entry.patterns[0],
					Type:   entry.entType,
					Symbol: entry.symbol,
				})
				break
			}
		}
	}
	return out
}

var (
	hashtagPattern = regexp.MustCompile(`#([\p{L}\p{N}_]+)`)
	cashtagPattern = regexp.MustCompile(`\$([A-Za-z]{1,6})\b`)
)

// ExtractKeywords pulls hashtags, cashtags, and lexicon pattern hits out of
// text, deduplicated and capped at max.
func ExtractKeywords(text string, max int) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(kw string) {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] || len(out) >= max {
			return
		}
		seen[kw] = true
		out = append(out, kw)
	}

	for _, m := range hashtagPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range cashtagPattern.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}

	lower := strings.ToLower(text)
	for _, entry := range instrumentLexicon {
		for _, p := range entry.patterns {
			if strings.Contains(lower, p) {
				add(p)
			}
		}
	}
	for _, w := range highSeverityWords {
		if strings.Contains(lower, w) {
			add(w)
		}
	}
	for _, w := range mediumSeverityWords {
		if strings.Contains(lower, w) {
			add(w)
		}
	}
	return out
}
