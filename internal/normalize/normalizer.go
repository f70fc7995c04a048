package normalize

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/maru-labs/maru/internal/cache"
	"github.com/maru-labs/maru/internal/llm"
	"github.com/maru-labs/maru/internal/turn"
)

// ThresholdProvider supplies the fuzzy-match threshold for a keyword group.
// The threshold tuner implements it; a nil provider means the default applies.
type ThresholdProvider interface {
	ThresholdFor(group string) (float64, bool)
}

// Result is the outcome of normalizing one query.
type Result struct {
	Normalized string
	Layer      turn.NormalizationLayer

	// MatchedKeywords are the domain keywords present after normalization.
	MatchedKeywords []string

	// Recognized is false when no domain keyword matched; such queries
	// were candidates for the L3 rewrite.
	Recognized bool

	// CacheHit reports the result came from the normalization cache.
	CacheHit bool
}

// Config holds normalizer tunables.
type Config struct {
	Groups           []KeywordGroup
	Dictionary       TypoDictionary
	DefaultThreshold float64
	L3PerSession     int     // rewrites per session per minute
	L3Global         float64 // rewrites per second process-wide
}

// DefaultConfig returns the production normalizer configuration.
func DefaultConfig() Config {
	return Config{
		Groups:           DefaultKeywordGroups(),
		Dictionary:       DefaultTypoDictionary(),
		DefaultThreshold: 0.70,
		L3PerSession:     3,
		L3Global:         2.0,
	}
}

// maxSessionLimiters caps the per-session limiter map; past the cap the
// stalest session is evicted before a new one is tracked.
const maxSessionLimiters = 4096

type sessionLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Normalizer applies L1 jamo fuzzy correction, L2 dictionary replacement,
// and the rate-limited L3 LLM rewrite, consulting the tiered cache first.
type Normalizer struct {
	config     Config
	thresholds ThresholdProvider
	rewriter   llm.Client    // fast model; nil disables L3
	cache      *cache.Tiered // nil disables caching

	globalLimit *rate.Limiter
	mu          sync.Mutex
	sessions    map[string]*sessionLimiter
}

// New creates a normalizer. rewriter and tiered may be nil for degraded
// operation (no L3, no cache).
func New(config Config, thresholds ThresholdProvider, rewriter llm.Client, tiered *cache.Tiered) *Normalizer {
	if config.DefaultThreshold <= 0 {
		config.DefaultThreshold = 0.70
	}
	if config.L3Global <= 0 {
		config.L3Global = 1.0
	}
	if config.L3PerSession <= 0 {
		config.L3PerSession = 3
	}
	return &Normalizer{
		config:      config,
		thresholds:  thresholds,
		rewriter:    rewriter,
		cache:       tiered,
		globalLimit: rate.NewLimiter(rate.Limit(config.L3Global), 1),
		sessions:    make(map[string]*sessionLimiter),
	}
}

// Normalize resolves the raw query through the cache and the three layers.
func (n *Normalizer) Normalize(ctx context.Context, sessionID, raw string) Result {
	trimmed := strings.TrimSpace(raw)
	rawFP := cache.Fingerprint(trimmed)

	if n.cache != nil {
		if entry, ok := n.cache.GetNormalization(ctx, rawFP); ok {
			normalized := entry.Normalized
			matched := n.matchedKeywords(normalized)
			return Result{
				Normalized:      normalized,
				Layer:           turn.NormalizationLayer(entry.Layer),
				MatchedKeywords: matched,
				Recognized:      len(matched) > 0,
				CacheHit:        true,
			}
		}
	}

	result := n.applyLayers(ctx, sessionID, rawFP, trimmed)

	if n.cache != nil {
		if result.Recognized {
			n.cache.SetNormalization(ctx, rawFP, cache.NormalizationEntry{
				Normalized: result.Normalized,
				Layer:      string(result.Layer),
			})
		} else {
			n.cache.SetNegative(ctx, rawFP)
		}
	}

	return result
}

func (n *Normalizer) applyLayers(ctx context.Context, sessionID, rawFP, trimmed string) Result {
	current := trimmed
	layer := turn.LayerNone

	// L1: jamo fuzzy correction toward domain keywords.
	if corrected, changed := n.fuzzyCorrect(current); changed {
		current = corrected
		layer = turn.LayerL1
	}

	// L2: exact typo dictionary replacement.
	for typo, fix := range n.config.Dictionary {
		if strings.Contains(current, typo) {
			current = strings.ReplaceAll(current, typo, fix)
			layer = turn.LayerL2
		}
	}

	matched := n.matchedKeywords(current)

	// L3: LLM rewrite, only for still-unrecognized queries, rate-limited,
	// and skipped entirely when the negative cache marks a recent miss.
	if len(matched) == 0 && n.rewriter != nil && !n.recentNegative(ctx, rawFP) && n.allowL3(sessionID) {
		if rewritten, ok := n.rewrite(ctx, current); ok {
			rewrittenMatches := n.matchedKeywords(rewritten)
			if len(rewrittenMatches) > 0 {
				current = rewritten
				matched = rewrittenMatches
				layer = turn.LayerL3
			}
		}
	}

	return Result{
		Normalized:      current,
		Layer:           layer,
		MatchedKeywords: matched,
		Recognized:      len(matched) > 0,
	}
}

// fuzzyCorrect replaces near-miss substrings with their canonical keyword.
// An exact keyword occurrence short-circuits correction for that keyword,
// which makes the layer idempotent.
func (n *Normalizer) fuzzyCorrect(query string) (string, bool) {
	current := query
	changed := false

	for _, group := range n.config.Groups {
		threshold := n.config.DefaultThreshold
		if n.thresholds != nil {
			if t, ok := n.thresholds.ThresholdFor(group.Name); ok {
				threshold = t
			}
		}

		for _, kw := range group.Keywords {
			if strings.Contains(current, kw) {
				continue
			}
			if replaced, ok := replaceBestMatch(current, kw, threshold); ok {
				current = replaced
				changed = true
			}
		}
	}

	return current, changed
}

// replaceBestMatch scans rune windows close to the keyword's length and
// replaces the best-scoring window when it clears the threshold.
func replaceBestMatch(query, keyword string, threshold float64) (string, bool) {
	runes := []rune(query)
	kwLen := len([]rune(keyword))

	bestScore := threshold
	bestStart, bestEnd := -1, -1

	for width := kwLen - 1; width <= kwLen+1; width++ {
		if width <= 0 || width > len(runes) {
			continue
		}
		for start := 0; start+width <= len(runes); start++ {
			window := runes[start : start+width]
			if containsSpace(window) {
				continue
			}
			score := JamoSimilarity(string(window), keyword)
			if score >= bestScore && score < 1.0 {
				bestScore = score
				bestStart, bestEnd = start, start+width
			}
		}
	}

	if bestStart < 0 {
		return query, false
	}

	return string(runes[:bestStart]) + keyword + string(runes[bestEnd:]), true
}

func containsSpace(runes []rune) bool {
	for _, r := range runes {
		if r == ' ' || r == '\t' {
			return true
		}
	}
	return false
}

func (n *Normalizer) matchedKeywords(query string) []string {
	var matched []string
	for _, group := range n.config.Groups {
		for _, kw := range group.Keywords {
			if strings.Contains(query, kw) {
				matched = append(matched, kw)
			}
		}
	}
	return matched
}

func (n *Normalizer) recentNegative(ctx context.Context, rawFP string) bool {
	if n.cache == nil {
		return false
	}
	return n.cache.GetNegative(ctx, rawFP)
}

// allowL3 enforces both the per-session and the process-wide rewrite limits.
func (n *Normalizer) allowL3(sessionID string) bool {
	n.mu.Lock()
	s, ok := n.sessions[sessionID]
	if !ok {
		if len(n.sessions) >= maxSessionLimiters {
			n.evictStalestLocked()
		}
		s = &sessionLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(n.config.L3PerSession)), n.config.L3PerSession),
		}
		n.sessions[sessionID] = s
	}
	s.lastSeen = time.Now()
	n.mu.Unlock()

	return s.limiter.Allow() && n.globalLimit.Allow()
}

// evictStalestLocked drops the session with the oldest activity. Callers
// hold n.mu.
func (n *Normalizer) evictStalestLocked() {
	var stalest string
	var oldest time.Time
	first := true
	for id, s := range n.sessions {
		if first || s.lastSeen.Before(oldest) {
			stalest, oldest = id, s.lastSeen
			first = false
		}
	}
	if !first {
		delete(n.sessions, stalest)
	}
}

func (n *Normalizer) rewrite(ctx context.Context, query string) (string, bool) {
	prompt := "다음 프로젝트 관리 질문의 오타를 교정해 주세요. 교정된 질문만 출력하세요.\n\n질문: " + query
	text, err := n.rewriter.Generate(ctx, prompt)
	if err != nil {
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return text, true
}
