// Package fusion correlates normalized events across domains inside a
// sliding time window and emits fused events with a combined severity.
package fusion

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/eventfuse/eventfuse/internal/errors"
	"github.com/eventfuse/eventfuse/internal/logger"
	"github.com/eventfuse/eventfuse/internal/metrics"
	"github.com/eventfuse/eventfuse/internal/models"
	"github.com/eventfuse/eventfuse/pkg/utils"
)

// Impact hint labels, keyed on final severity thresholds.
const (
	hintHighAttention = "高度關注：多來源確認的重要事件"
	hintWorthTracking = "值得追蹤：跨領域關聯事件"
	hintInformation   = "資訊彙整：多來源相關資料"
)

// minKeywordOverlap is the topic-overlap threshold for two events to count
// as related.
const minKeywordOverlap = 2

// windowEvent wraps a window member with its consumed flag. An event fused
// into one cluster is never reused in a later overlapping cluster within
// the same window.
type windowEvent struct {
	ev       models.NormalizedEvent
	consumed bool
}

// Engine holds per-tenant sliding windows. Window membership is keyed by
// event timestamp, not arrival time, so out-of-order arrival across domains
// is tolerated.
type Engine struct {
	mu      sync.Mutex
	width   time.Duration
	windows map[string][]*windowEvent
}

// NewEngine creates a fusion engine with the given window width
func NewEngine(width time.Duration) *Engine {
	return &Engine{
		width:   width,
		windows: make(map[string][]*windowEvent),
	}
}

// Ingest feeds one normalized event into the engine. It returns a fused
// event when the new event completes a qualifying multi-domain cluster, nil
// otherwise. Malformed events are rejected with a FusionInputError and
// dropped; the engine keeps running.
func (e *Engine) Ingest(ev models.NormalizedEvent) (*models.FusedEvent, error) {
	if ev.CreatedAt.IsZero() {
		return nil, apperrors.FusionInputError{PostKey: ev.PostKey, Missing: "timestamp"}
	}
	if ev.Domain == "" {
		return nil, apperrors.FusionInputError{PostKey: ev.PostKey, Missing: "domain"}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	window := e.evict(ev.TenantID, ev.CreatedAt)

	cluster := e.findCluster(window, ev)
	entry := &windowEvent{ev: ev}
	e.windows[ev.TenantID] = append(window, entry)

	domains := distinctDomains(cluster, ev)
	if len(domains) < 2 {
		return nil, nil
	}

	for _, member := range cluster {
		member.consumed = true
	}
	entry.consumed = true

	fused := e.buildFusedEvent(cluster, ev, domains)
	metrics.RecordFusionEmitted(ev.TenantID)
	logger.Info("Fused event emitted",
		"tenant_id", ev.TenantID,
		"fused_id", fused.ID,
		"severity", fused.Severity,
		"domains", len(domains),
		"cluster_size", len(cluster)+1,
	)
	return fused, nil
}

// evict drops window members older than the width relative to the incoming
// event's timestamp and returns the surviving window.
func (e *Engine) evict(tenantID string, ref time.Time) []*windowEvent {
	cutoff := ref.Add(-e.width)
	window := e.windows[tenantID]

	kept := window[:0]
	for _, member := range window {
		if member.ev.CreatedAt.After(cutoff) {
			kept = append(kept, member)
		}
	}
	e.windows[tenantID] = kept
	return kept
}

// findCluster collects all unconsumed window members transitively related
// to ev. Relatedness is symbol match or keyword overlap.
func (e *Engine) findCluster(window []*windowEvent, ev models.NormalizedEvent) []*windowEvent {
	var cluster []*windowEvent
	inCluster := make(map[*windowEvent]bool)

	frontier := []models.NormalizedEvent{ev}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		for _, member := range window {
			if member.consumed || inCluster[member] {
				continue
			}
			if related(current, member.ev) {
				inCluster[member] = true
				cluster = append(cluster, member)
				frontier = append(frontier, member.ev)
			}
		}
	}
	return cluster
}

// related applies the two correlation rules; either qualifies the pair.
func related(a, b models.NormalizedEvent) bool {
	if symbolsEqual(a.Symbol, b.Symbol) {
		return true
	}
	return utils.IntersectionSize(a.Keywords, b.Keywords) >= minKeywordOverlap
}

// symbolsEqual compares instrument symbols ignoring case and exchange
// suffix, so "2330.TW" and "2330" refer to the same instrument.
func symbolsEqual(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return baseSymbol(a) == baseSymbol(b)
}

func baseSymbol(symbol string) string {
	return strings.SplitN(strings.ToLower(symbol), ".", 2)[0]
}

func distinctDomains(cluster []*windowEvent, ev models.NormalizedEvent) []string {
	seen := map[string]bool{ev.Domain: true}
	domains := []string{ev.Domain}
	for _, member := range cluster {
		if !seen[member.ev.Domain] {
			seen[member.ev.Domain] = true
			domains = append(domains, member.ev.Domain)
		}
	}
	return domains
}

func (e *Engine) buildFusedEvent(cluster []*windowEvent, ev models.NormalizedEvent, domains []string) *models.FusedEvent {
	members := make([]models.NormalizedEvent, 0, len(cluster)+1)
	for _, m := range cluster {
		members = append(members, m.ev)
	}
	members = append(members, ev)

	maxSeverity := 0
	var top models.NormalizedEvent
	for _, m := range members {
		if m.Severity >= maxSeverity {
			maxSeverity = m.Severity
			top = m
		}
	}

	// No upper clamp: multi-domain corroboration may push past 100 and
	// downstream consumers treat the scale as open-ended.
	severity := maxSeverity + (len(domains)-1)*10

	symbol := ""
	symbolMatched := false
	for _, m := range members {
		if m.Symbol != "" {
			if symbol == "" {
				symbol = m.Symbol
			} else if symbolsEqual(symbol, m.Symbol) {
				symbolMatched = true
			}
		}
	}

	title := newsTitle(members, top)
	direction := clusterDirection(members)

	evidence := make([]models.Evidence, 0, len(members))
	ids := make([]string, 0, len(members))
	for _, m := range members {
		evidence = append(evidence, models.Evidence{
			Source: m.Domain,
			Title:  m.Title,
			URL:    m.URL,
			Ts:     m.CreatedAt,
		})
		ids = append(ids, m.PostKey)
	}

	confidence := 0.5 + 0.1*float64(len(domains)-1)
	if confidence > 0.9 {
		confidence = 0.9
	}

	return &models.FusedEvent{
		ID:               fusedEventID(ev.CreatedAt),
		Ts:               ev.CreatedAt,
		TenantID:         ev.TenantID,
		Domain:           models.DomainFusion,
		EventType:        models.EventTypeMarketImpact,
		NewsTitle:        title,
		Severity:         severity,
		Instrument:       instrumentFor(symbol, members),
		Sentiment:        marketSentiment(direction),
		ImpactHypothesis: impactHypothesis(direction, symbol, domains),
		Evidence:         evidence,
		Confidence:       confidence,
		Direction:        direction,
		Rationale:        rationale(domains, symbolMatched),
		ImpactHint:       impactHint(severity),
		SourceEventIDs:   ids,
	}
}

// newsTitle prefers a news-domain headline, falling back to the highest
// severity member's title.
func newsTitle(members []models.NormalizedEvent, top models.NormalizedEvent) string {
	for _, m := range members {
		if m.Domain == models.DomainNews && m.Title != "" {
			return m.Title
		}
	}
	return top.Title
}

func clusterDirection(members []models.NormalizedEvent) string {
	negative, positive := 0, 0
	for _, m := range members {
		switch m.Sentiment {
		case models.SentimentNegative:
			negative++
		case models.SentimentPositive:
			positive++
		}
	}
	switch {
	case negative > positive:
		return models.DirectionBearish
	case positive > negative:
		return models.DirectionBullish
	case negative == 0 && positive == 0:
		return models.DirectionUnknown
	default:
		return models.DirectionNeutral
	}
}

func marketSentiment(direction string) string {
	if direction == models.DirectionUnknown {
		return "unknown"
	}
	return direction
}

func instrumentFor(symbol string, members []models.NormalizedEvent) models.Instrument {
	if symbol == "" {
		return models.Instrument{}
	}

	name := ""
	for _, m := range members {
		if symbolsEqual(m.Symbol, symbol) && len(m.Entities) > 0 {
			name = m.Entities[0].Name
			break
		}
	}
	return models.Instrument{
		Type:   instrumentType(symbol),
		Symbol: symbol,
		Name:   name,
	}
}

func instrumentType(symbol string) string {
	upper := strings.ToUpper(symbol)
	switch {
	case strings.HasSuffix(upper, "-USD"):
		return "crypto"
	case strings.HasPrefix(upper, "USD") || strings.HasSuffix(upper, "TWD"):
		return "fx"
	default:
		return "stock"
	}
}

func impactHypothesis(direction, symbol string, domains []string) []string {
	var out []string
	subject := symbol
	if subject == "" {
		subject = "相關標的"
	}
	switch direction {
	case models.DirectionBearish:
		out = append(out, fmt.Sprintf("%s 短期面臨賣壓", subject))
	case models.DirectionBullish:
		out = append(out, fmt.Sprintf("%s 短期有上漲動能", subject))
	default:
		out = append(out, fmt.Sprintf("%s 波動可能加大", subject))
	}
	out = append(out, fmt.Sprintf("%d 個領域同時出現相關訊號", len(domains)))
	return out
}

func rationale(domains []string, symbolMatched bool) string {
	matchType := "關鍵字重疊"
	if symbolMatched {
		matchType = "標的代碼一致"
	}
	return fmt.Sprintf("跨 %d 個領域（%s）的事件在時間窗內相互關聯，匹配依據：%s",
		len(domains), strings.Join(domains, "、"), matchType)
}

func impactHint(severity int) string {
	switch {
	case severity >= 70:
		return hintHighAttention
	case severity >= 50:
		return hintWorthTracking
	default:
		return hintInformation
	}
}

func fusedEventID(ts time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:4]
	return fmt.Sprintf("evt_%s_%s", ts.UTC().Format("20060102_150405"), suffix)
}
