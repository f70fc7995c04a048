// Package classify assigns an answer type to each normalized query through a
// priority-ordered rule matcher. The priority order is part of the contract:
// CASUAL wins over everything, the STATUS family wins over HOWTO, and MIXED
// is the last resort for queries that trip several rule families at once.
package classify

import (
	"context"
	"regexp"
	"strings"

	"github.com/maru-labs/maru/internal/cache"
	"github.com/maru-labs/maru/internal/normalize"
	"github.com/maru-labs/maru/internal/turn"
)

// Result carries the classification and its supporting signals.
type Result struct {
	AnswerType turn.AnswerType
	Confidence float64
	RulesFired []string
	CacheHit   bool
}

// Config holds classifier tunables.
type Config struct {
	// LowConfidence marks results that should trigger a clarification.
	LowConfidence float64

	// MaxClarificationsPerIntent bounds the clarification branch.
	MaxClarificationsPerIntent int
}

// DefaultConfig returns the production classifier settings.
func DefaultConfig() Config {
	return Config{
		LowConfidence:              0.55,
		MaxClarificationsPerIntent: 2,
	}
}

var (
	casualWords = []string{"안녕", "고마워", "감사", "잘가", "하이", "수고", "ㅎㅇ", "hello", "hi"}
	metricWords = []string{"진행률", "진척도", "달성률", "완료율", "몇 퍼센트", "몇개", "몇 개", "수치", "퍼센트", "비율"}
	listWords   = []string{"목록", "리스트", "전부", "모두", "어떤 것들", "뭐가 있", "나열"}
	howtoWords  = []string{"이란", "무엇", "방법", "어떻게", "정책", "규정", "프로세스", "가이드", "란?"}

	// entityKeyPattern matches issue/entity keys like "PMS-142".
	entityKeyPattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]+-\d+\b`)

	drilldownWords = []string{"상세", "자세히", "드릴다운", "왜 지연", "원인"}
)

// Classifier is the priority rule matcher, fronted by the classification
// cache tier.
type Classifier struct {
	config Config
	cache  *cache.Tiered // nil disables caching
}

// New creates a classifier. tiered may be nil.
func New(config Config, tiered *cache.Tiered) *Classifier {
	return &Classifier{config: config, cache: tiered}
}

// Classify assigns an answer type to the normalized query.
func (c *Classifier) Classify(ctx context.Context, normalized string, matchedKeywords []string) Result {
	normFP := cache.Fingerprint(normalized)

	if c.cache != nil {
		if entry, ok := c.cache.GetClassification(ctx, normFP); ok {
			return Result{
				AnswerType: turn.AnswerType(entry.Intent),
				Confidence: entry.Confidence,
				CacheHit:   true,
			}
		}
	}

	result := c.match(normalized, matchedKeywords)

	if c.cache != nil {
		c.cache.SetClassification(ctx, normFP, cache.ClassificationEntry{
			Intent:     string(result.AnswerType),
			Confidence: result.Confidence,
		})
	}

	return result
}

// match applies the rules in strict priority order. Ties resolve to the
// higher-priority rule by construction.
func (c *Classifier) match(query string, matchedKeywords []string) Result {
	var fired []string

	if containsAny(query, casualWords) && len(matchedKeywords) == 0 {
		return Result{AnswerType: turn.AnswerCasual, Confidence: 0.95, RulesFired: []string{"casual_words"}}
	}

	hasEntity := entityKeyPattern.MatchString(query) ||
		(containsAny(query, drilldownWords) && len(matchedKeywords) > 0)
	hasMetric := fuzzyContainsAny(query, metricWords)
	hasList := containsAny(query, listWords)
	hasHowto := containsAny(query, howtoWords)

	if hasEntity {
		fired = append(fired, "entity_named")
		confidence := 0.85
		if hasHowto {
			confidence = 0.65
		}
		return Result{AnswerType: turn.AnswerStatusDrilldown, Confidence: confidence, RulesFired: fired}
	}

	if hasMetric {
		fired = append(fired, "metric_words")
		confidence := 0.9
		if hasHowto || hasList {
			confidence = 0.7
		}
		return Result{AnswerType: turn.AnswerStatusMetric, Confidence: confidence, RulesFired: fired}
	}

	if hasList && len(matchedKeywords) > 0 {
		fired = append(fired, "list_words")
		return Result{AnswerType: turn.AnswerStatusList, Confidence: 0.8, RulesFired: fired}
	}

	if hasHowto {
		fired = append(fired, "howto_words")
		return Result{AnswerType: turn.AnswerHowtoPolicy, Confidence: 0.85, RulesFired: fired}
	}

	if len(matchedKeywords) > 0 {
		fired = append(fired, "domain_keyword_only")
		return Result{AnswerType: turn.AnswerMixed, Confidence: 0.5, RulesFired: fired}
	}

	return Result{AnswerType: turn.AnswerCasual, Confidence: 0.4, RulesFired: []string{"no_rule_matched"}}
}

// NeedsClarification reports whether the result's confidence is low enough
// to warrant a clarification question instead of a direct answer.
func (c *Classifier) NeedsClarification(r Result) bool {
	return r.Confidence < c.config.LowConfidence
}

func containsAny(query string, words []string) bool {
	for _, w := range words {
		if strings.Contains(query, w) {
			return true
		}
	}
	return false
}

// fuzzyContainsAny tolerates jamo-level typos in intent words the normalizer
// did not correct (intent words are not all domain keywords).
func fuzzyContainsAny(query string, words []string) bool {
	if containsAny(query, words) {
		return true
	}
	for _, w := range words {
		if len([]rune(w)) < 3 {
			continue
		}
		runes := []rune(query)
		width := len([]rune(w))
		for start := 0; start+width <= len(runes); start++ {
			if normalize.JamoSimilarity(string(runes[start:start+width]), w) >= 0.8 {
				return true
			}
		}
	}
	return false
}
