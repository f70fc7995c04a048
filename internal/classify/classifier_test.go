package classify

import (
	"context"
	"testing"

	"github.com/maru-labs/maru/internal/cache"
	"github.com/maru-labs/maru/internal/turn"
)

func classifyQuery(t *testing.T, query string, keywords []string) Result {
	t.Helper()
	c := New(DefaultConfig(), nil)
	return c.Classify(context.Background(), query, keywords)
}

func TestClassify_PriorityOrder(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		keywords []string
		want     turn.AnswerType
	}{
		{"casual greeting", "안녕하세요", nil, turn.AnswerCasual},
		{"metric intent", "이번주 진행률 알려줘", []string{"진행률"}, turn.AnswerStatusMetric},
		{"drilldown by entity key", "PMS-142 왜 지연됐어?", []string{"지연"}, turn.AnswerStatusDrilldown},
		{"drilldown words", "블로커 상세 내역 보여줘", []string{"블로커"}, turn.AnswerStatusDrilldown},
		{"list intent", "이번 스프린트 이슈 목록 보여줘", []string{"스프린트", "이슈"}, turn.AnswerStatusList},
		{"howto", "스크럼이란?", []string{"스크럼"}, turn.AnswerHowtoPolicy},
		{"domain keyword only", "스프린트 관련해서", []string{"스프린트"}, turn.AnswerMixed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyQuery(t, tt.query, tt.keywords)
			if got.AnswerType != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.query, got.AnswerType, tt.want)
			}
		})
	}
}

func TestClassify_DrilldownBeatsMetric(t *testing.T) {
	// Entity key present and metric words present: drilldown wins by priority.
	got := classifyQuery(t, "PMS-7 진행률 자세히", []string{"진행률"})
	if got.AnswerType != turn.AnswerStatusDrilldown {
		t.Errorf("expected STATUS_DRILLDOWN, got %s", got.AnswerType)
	}
}

func TestClassify_FuzzyMetricWords(t *testing.T) {
	// "진행율" is a jamo-level near miss of "진행률".
	got := classifyQuery(t, "이번주 진행율 어때", []string{})
	if got.AnswerType != turn.AnswerStatusMetric {
		t.Errorf("expected STATUS_METRIC for fuzzy metric word, got %s", got.AnswerType)
	}
}

func TestClassify_LowConfidenceNeedsClarification(t *testing.T) {
	c := New(DefaultConfig(), nil)
	result := c.Classify(context.Background(), "스프린트 관련해서", []string{"스프린트"})

	if !c.NeedsClarification(result) {
		t.Errorf("expected clarification for MIXED confidence %f", result.Confidence)
	}

	confident := c.Classify(context.Background(), "이번주 진행률 알려줘", []string{"진행률"})
	if c.NeedsClarification(confident) {
		t.Errorf("did not expect clarification for confidence %f", confident.Confidence)
	}
}

func TestClassify_CacheRoundTrip(t *testing.T) {
	tiered := cache.NewTiered(nil, cache.NewMemoryStore(32), cache.DefaultTTLs())
	c := New(DefaultConfig(), tiered)
	ctx := context.Background()

	first := c.Classify(ctx, "이번주 진행률 알려줘", []string{"진행률"})
	if first.CacheHit {
		t.Fatal("first classification must not hit the cache")
	}

	second := c.Classify(ctx, "이번주 진행률 알려줘", []string{"진행률"})
	if !second.CacheHit {
		t.Error("expected classification cache hit")
	}
	if second.AnswerType != first.AnswerType {
		t.Errorf("cache returned %s, want %s", second.AnswerType, first.AnswerType)
	}
}
