package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/maru-labs/maru/internal/docstore"
	"github.com/maru-labs/maru/internal/graphstore"
	"github.com/maru-labs/maru/internal/statusquery"
	"github.com/maru-labs/maru/internal/turn"
)

type fakeStatus struct {
	result *statusquery.Result
	err    error
}

func (f *fakeStatus) Execute(_ context.Context, _ *statusquery.Plan, _ time.Time) (*statusquery.Result, error) {
	return f.result, f.err
}

type fakeGraph struct {
	neighbors []graphstore.Neighbor
	err       error
}

func (f *fakeGraph) Neighborhood(_ context.Context, _, _ string, _ int) ([]graphstore.Neighbor, error) {
	return f.neighbors, f.err
}

type fakeDocs struct {
	chunks []docstore.Chunk
	err    error
}

func (f *fakeDocs) Search(_ context.Context, _ string, _ int, _ string) ([]docstore.Chunk, error) {
	return f.chunks, f.err
}

func (f *fakeDocs) Close() error { return nil }

func statusState(sources ...turn.Source) *turn.State {
	return &turn.State{
		AnswerType:      turn.AnswerStatusMetric,
		NormalizedQuery: "이번주 진행률 알려줘",
		Plan: &turn.AnalystPlan{
			RequestType:     turn.RequestStatus,
			RequiredSources: sources,
			Scope:           turn.Scope{ProjectID: "p1"},
		},
	}
}

func TestDispatch_DBMetrics(t *testing.T) {
	status := &fakeStatus{result: &statusquery.Result{
		ErrorCode: turn.ErrCodeNone,
		Metrics: []statusquery.MetricResult{
			{Metric: "progress_rate", Value: 42.5, JudgmentCount: 17, Ref: "db:p1:progress_rate:2025-06-02"},
		},
	}}

	d := NewDispatcher(DefaultConfig(), status, nil, nil)
	outcome, err := d.Dispatch(context.Background(), statusState(turn.SourceDB))
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if outcome.ErrorCode != turn.ErrCodeNone {
		t.Errorf("expected NONE, got %s", outcome.ErrorCode)
	}
	if len(outcome.Evidence) != 1 || outcome.Evidence[0].Source != turn.SourceDB {
		t.Fatalf("expected one db evidence item, got %+v", outcome.Evidence)
	}
	if outcome.Metrics[0].Value != 42.5 {
		t.Errorf("unexpected metric value %f", outcome.Metrics[0].Value)
	}
}

func TestDispatch_DBFailurePropagatesCode(t *testing.T) {
	status := &fakeStatus{
		result: &statusquery.Result{ErrorCode: turn.ErrCodeDBFailure},
		err:    errors.New("connection reset"),
	}

	d := NewDispatcher(DefaultConfig(), status, nil, nil)
	outcome, err := d.Dispatch(context.Background(), statusState(turn.SourceDB))
	if err != nil {
		t.Fatalf("dispatch must not fail for a coded db error: %v", err)
	}

	if outcome.ErrorCode != turn.ErrCodeDBFailure {
		t.Errorf("expected DB_FAILURE, got %s", outcome.ErrorCode)
	}
	if len(outcome.Evidence) != 0 {
		t.Error("no evidence may be fabricated on db failure")
	}
}

func TestDispatch_DocSearch(t *testing.T) {
	docs := &fakeDocs{chunks: []docstore.Chunk{
		{ChunkID: "doc:scrum-guide:1", Text: "스크럼은 반복적 개발 프레임워크", Confidence: 0.9},
		{ChunkID: "doc:scrum-guide:2", Text: "스프린트는 고정 기간", Confidence: 0.8},
		{ChunkID: "doc:low", Text: "무관한 내용", Confidence: 0.1},
	}}

	state := &turn.State{
		AnswerType:      turn.AnswerHowtoPolicy,
		NormalizedQuery: "스크럼이란",
		Plan: &turn.AnalystPlan{
			RequestType:     turn.RequestHowto,
			RequiredSources: []turn.Source{turn.SourceDoc},
			Scope:           turn.Scope{ProjectID: "p1"},
		},
	}

	d := NewDispatcher(DefaultConfig(), nil, nil, docs)
	outcome, err := d.Dispatch(context.Background(), state)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if len(outcome.Evidence) != 2 {
		t.Fatalf("expected 2 chunks above floor, got %d", len(outcome.Evidence))
	}
	if outcome.Evidence[0].Ref != "doc:scrum-guide:1" {
		t.Errorf("expected highest-ranked chunk first, got %s", outcome.Evidence[0].Ref)
	}
	for _, e := range outcome.Evidence {
		if e.Source != turn.SourceDoc {
			t.Errorf("expected doc source, got %s", e.Source)
		}
	}
}

func TestDispatch_BlendDedupsAndBounds(t *testing.T) {
	docs := &fakeDocs{chunks: []docstore.Chunk{
		{ChunkID: "ref-a", Text: "a", Confidence: 0.9},
		{ChunkID: "ref-b", Text: "b", Confidence: 0.8},
	}}
	graph := &fakeGraph{neighbors: []graphstore.Neighbor{
		{Ref: "ref-a", Kind: "Issue", Relationship: "BLOCKS", Summary: "dup"},
		{Ref: "ref-c", Kind: "Issue", Relationship: "RELATES", Summary: "c"},
	}}

	state := &turn.State{
		AnswerType:      turn.AnswerMixed,
		NormalizedQuery: "질문",
		Plan: &turn.AnalystPlan{
			RequiredSources: []turn.Source{turn.SourceDoc, turn.SourceGraph},
			Scope:           turn.Scope{ProjectID: "p1", Entity: "PMS-1"},
		},
	}

	config := DefaultConfig()
	config.TopK = 3
	d := NewDispatcher(config, nil, graph, docs)

	outcome, err := d.Dispatch(context.Background(), state)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	refs := map[string]int{}
	for _, e := range outcome.Evidence {
		refs[e.Ref]++
	}
	if refs["ref-a"] != 1 {
		t.Errorf("expected ref-a deduplicated, seen %d times", refs["ref-a"])
	}
	if len(outcome.Evidence) > 3 {
		t.Errorf("expected at most topK items, got %d", len(outcome.Evidence))
	}
}

func TestDispatch_EmptyEvidenceYieldsEmptyCode(t *testing.T) {
	docs := &fakeDocs{chunks: nil}
	state := &turn.State{
		AnswerType:      turn.AnswerHowtoPolicy,
		NormalizedQuery: "아무것도 없는 질문",
		Plan: &turn.AnalystPlan{
			RequiredSources: []turn.Source{turn.SourceDoc},
			Scope:           turn.Scope{ProjectID: "p1"},
		},
	}

	d := NewDispatcher(DefaultConfig(), nil, nil, docs)
	outcome, err := d.Dispatch(context.Background(), state)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if outcome.ErrorCode != turn.ErrCodeEmpty {
		t.Errorf("expected EMPTY, got %s", outcome.ErrorCode)
	}
}
