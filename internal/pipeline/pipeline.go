// Package pipeline runs a turn through the fixed stage order: normalize,
// classify, policy gate, plan, retrieve, spec, generate, verify. Failures
// route through the recovery planner, and every response honors the rule
// that no failure ships without next steps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/maru-labs/maru/internal/analyst"
	"github.com/maru-labs/maru/internal/architect"
	"github.com/maru-labs/maru/internal/cache"
	"github.com/maru-labs/maru/internal/classify"
	"github.com/maru-labs/maru/internal/config"
	"github.com/maru-labs/maru/internal/events"
	"github.com/maru-labs/maru/internal/explain"
	"github.com/maru-labs/maru/internal/generate"
	"github.com/maru-labs/maru/internal/guardian"
	"github.com/maru-labs/maru/internal/metrics"
	"github.com/maru-labs/maru/internal/normalize"
	"github.com/maru-labs/maru/internal/policy"
	"github.com/maru-labs/maru/internal/recovery"
	"github.com/maru-labs/maru/internal/retrieval"
	"github.com/maru-labs/maru/internal/snapshot"
	"github.com/maru-labs/maru/internal/trace"
	"github.com/maru-labs/maru/internal/tuning"
	"github.com/maru-labs/maru/internal/turn"
)

// lowJudgmentFloor is the judgment count under which a metric answer
// carries a reliability warning.
const lowJudgmentFloor = 5

// clarificationKind tags clarification issuance in the attempt tracker so
// each (session, intent) pair asks at most the configured number of times.
const clarificationKind = "clarification"

// Nodes bundles the pipeline's stage implementations. Snapshots, Emitter,
// and Shadow may be nil for degraded operation.
type Nodes struct {
	Normalizer *normalize.Normalizer
	Classifier *classify.Classifier
	Policy     *policy.Engine
	Analyst    *analyst.Analyst
	Dispatcher *retrieval.Dispatcher
	Architect  *architect.Architect
	Generator  *generate.Generator
	Guardian   *guardian.Guardian
	Recovery   *recovery.Planner
	Snapshots  snapshot.Provider
	Emitter    *events.Emitter
	Metrics    *metrics.Registry
	Shadow     *tuning.ShadowCollector
}

// Pipeline is the turn orchestrator.
type Pipeline struct {
	config         config.Config
	logger         *zap.Logger
	nodes          Nodes
	clarifications *recovery.AttemptTracker
}

// New assembles the pipeline.
func New(cfg config.Config, logger *zap.Logger, nodes Nodes) *Pipeline {
	if nodes.Metrics == nil {
		nodes.Metrics = metrics.NewRegistry()
	}
	return &Pipeline{
		config:         cfg,
		logger:         logger,
		nodes:          nodes,
		clarifications: recovery.NewAttemptTracker(cfg.Classify.MaxClarificationsPerIntent),
	}
}

// HandleTurn runs one request through the pipeline and returns the frozen
// response contract.
func (p *Pipeline) HandleTurn(ctx context.Context, req *turn.Request) (*turn.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	state := turn.NewState(req)
	ctx = trace.WithTraceID(ctx, state.TraceID)
	ctx = trace.WithSessionID(ctx, state.SessionID)

	if p.config.Turn.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Turn.Deadline)
		defer cancel()
	}

	p.nodes.Metrics.Counter(metrics.TurnsTotal).Inc()
	defer func() {
		p.nodes.Metrics.Histogram(metrics.TurnLatencyMS).Observe(
			float64(time.Since(state.StartedAt).Milliseconds()))
	}()

	resp := p.run(ctx, state)
	if resp.ErrorCode != turn.ErrCodeNone {
		p.nodes.Metrics.Counter(metrics.TurnErrorsTotal).Inc()
		p.debugEvent(ctx, state, resp)
	}
	return resp, nil
}

func (p *Pipeline) run(ctx context.Context, state *turn.State) *turn.Response {
	// Normalization.
	norm := p.nodes.Normalizer.Normalize(ctx, state.SessionID, state.RawQuery)
	state.NormalizedQuery = norm.Normalized
	state.NormalizationLayer = norm.Layer
	p.countCache(norm.CacheHit)
	if norm.Layer == turn.LayerL3 {
		p.nodes.Metrics.Counter(metrics.L3RewritesTotal).Inc()
	}
	p.traceEvent(ctx, "normalize", map[string]string{
		"layer": string(norm.Layer), "cache_hit": fmt.Sprintf("%t", norm.CacheHit),
	})

	// Answer-type classification.
	cls := p.nodes.Classifier.Classify(ctx, state.NormalizedQuery, norm.MatchedKeywords)
	state.AnswerType = cls.AnswerType
	state.Confidence = cls.Confidence
	p.traceEvent(ctx, "classify", map[string]string{
		"answer_type": string(cls.AnswerType), "confidence": fmt.Sprintf("%.2f", cls.Confidence),
	})

	// Feed corrected typos to the shadow collector now that intent is known.
	if p.nodes.Shadow != nil && norm.Layer != turn.LayerNone && !norm.CacheHit {
		p.nodes.Shadow.Record(
			cache.Fingerprint(state.RawQuery),
			cache.Fingerprint(state.NormalizedQuery),
			string(state.AnswerType),
			state.SessionID,
		)
	}

	// Policy gate. A denial is terminal and never retried.
	masked, err := p.nodes.Policy.PreGate(state)
	if err != nil {
		p.logger.Warn("policy gate denied turn",
			zap.String("trace_id", state.TraceID), zap.Error(err))
		return p.render(state, &turn.Response{
			ErrorCode: turn.ErrCodeForbidden,
			Data:      "요청을 처리할 수 없습니다.",
			Tips:      []string{"프로젝트 현황이나 업무 방법에 대해 질문해 주세요."},
		}, cls.RulesFired)
	}
	state.NormalizedQuery = masked

	// Analyst plan.
	plan := p.nodes.Analyst.Plan(ctx, state)
	state.Plan = plan
	state.Track = plan.Track
	state.RequestType = plan.RequestType
	p.traceEvent(ctx, "plan", map[string]string{
		"intent": plan.Intent, "track": string(plan.Track),
	})

	if len(plan.ClarificationQuestions) > 0 {
		if p.clarifications.Allowed(state.SessionID, plan.Intent, clarificationKind) {
			p.clarifications.Record(state.SessionID, plan.Intent, clarificationKind)
			p.nodes.Metrics.Counter(metrics.ClarificationsTotal).Inc()
			return p.render(state, &turn.Response{
				ErrorCode: turn.ErrCodeNone,
				Data:      strings.Join(plan.ClarificationQuestions, "\n"),
			}, cls.RulesFired)
		}
		// Ceiling hit: answer best-effort instead of asking again.
		plan.ClarificationQuestions = nil
	}

	// Retrieval, skipped for turns that answer without evidence.
	var dbMetrics []statusMetric
	if !analyst.ShouldSkipRetrieval(plan) {
		outcome, err := p.nodes.Dispatcher.Dispatch(ctx, state)
		if err != nil {
			p.logger.Error("retrieval failed",
				zap.String("trace_id", state.TraceID), zap.Error(err))
			return p.recover(state, turn.ErrCodeUnsupported, cls.RulesFired)
		}
		if err := state.AppendEvidence(outcome.Evidence...); err != nil {
			return p.recover(state, turn.ErrCodeUnsupported, cls.RulesFired)
		}
		for _, m := range outcome.Metrics {
			dbMetrics = append(dbMetrics, statusMetric{name: m.Metric, judgments: m.JudgmentCount})
		}
		p.provenanceEvent(ctx, state)

		if outcome.ErrorCode != turn.ErrCodeNone {
			return p.recover(state, outcome.ErrorCode, cls.RulesFired)
		}
	}

	// Context snapshot for the quality track, best-effort.
	var snap *snapshot.Snapshot
	if state.Track == turn.TrackQuality && p.nodes.Snapshots != nil {
		snap, err = p.nodes.Snapshots.Snapshot(ctx, state.ProjectID, p.config.Turn.SnapshotBudget)
		if err != nil {
			p.logger.Warn("snapshot unavailable",
				zap.String("trace_id", state.TraceID), zap.Error(err))
			snap = nil
		}
	}

	// Answer spec from the architect.
	state.Spec = p.nodes.Architect.Spec(ctx, state)

	// Generate and verify, with a bounded retry loop.
	for {
		draft, err := p.nodes.Generator.Draft(ctx, state, snap)
		if err != nil {
			if ctx.Err() != nil {
				return p.recover(state, turn.ErrCodeTimeout, cls.RulesFired)
			}
			p.logger.Error("generation failed",
				zap.String("trace_id", state.TraceID), zap.Error(err))
			return p.recover(state, turn.ErrCodeUnsupported, cls.RulesFired)
		}
		state.Draft = draft

		report := p.nodes.Guardian.Review(state)
		state.Report = report
		p.traceEvent(ctx, "verify", map[string]string{"verdict": string(report.Verdict)})

		switch report.Verdict {
		case turn.VerdictPass:
			return p.finish(state, cls.RulesFired, dbMetrics)
		case turn.VerdictRetry:
			state.RetryCount++
			p.nodes.Metrics.Counter(metrics.GuardianRetryTotal).Inc()
			continue
		default:
			p.nodes.Metrics.Counter(metrics.GuardianFailTotal).Inc()
			if report.HasFailingCheck(turn.CheckPolicy) {
				return p.render(state, &turn.Response{
					ErrorCode: turn.ErrCodeForbidden,
					Data:      "요청을 처리할 수 없습니다.",
					Tips:      []string{"프로젝트 현황이나 업무 방법에 대해 질문해 주세요."},
				}, cls.RulesFired)
			}
			if report.HasFailingCheck(turn.CheckEvidence) {
				return p.recover(state, turn.ErrCodeEmpty, cls.RulesFired)
			}
			return p.recover(state, turn.ErrCodeUnsupported, cls.RulesFired)
		}
	}
}

// statusMetric carries the judgment counts used for degradation warnings.
type statusMetric struct {
	name      string
	judgments int
}

// finish renders a passing draft into the response contract.
func (p *Pipeline) finish(state *turn.State, rulesFired []string, dbMetrics []statusMetric) *turn.Response {
	if err := explain.CheckShippable(state); err != nil {
		if errors.Is(err, explain.ErrUnsourcedStatus) {
			return p.recover(state, turn.ErrCodeEmpty, rulesFired)
		}
		return p.recover(state, turn.ErrCodeUnsupported, rulesFired)
	}

	resp := &turn.Response{
		ErrorCode: turn.ErrCodeNone,
		Data:      state.Draft,
	}
	for _, m := range dbMetrics {
		if m.judgments < lowJudgmentFloor {
			resp.Warnings = append(resp.Warnings, fmt.Sprintf(
				"%s 판단에 사용된 데이터가 %d건으로 적어 신뢰도가 낮을 수 있습니다.", m.name, m.judgments))
		}
	}
	return p.render(state, resp, rulesFired)
}

// recover builds the failure response through the recovery planner.
// Exhausted ceilings degrade the code to UNSUPPORTED.
func (p *Pipeline) recover(state *turn.State, code turn.ErrorCode, rulesFired []string) *turn.Response {
	plan := p.nodes.Recovery.Plan(state, code)
	state.Recovery = plan
	p.nodes.Metrics.Counter(metrics.RecoveryPlansTotal).Inc()

	if recovery.Exhausted(plan) {
		code = turn.ErrCodeUnsupported
	}

	resp := &turn.Response{
		ErrorCode: code,
		Data:      plan.Reason,
	}
	for _, action := range plan.Actions {
		resp.Tips = append(resp.Tips, action.Detail)
	}
	if len(resp.Tips) == 0 {
		resp.Tips = []string{"질문을 바꾸어 다시 시도해 주세요."}
	}
	return p.render(state, resp, rulesFired)
}

// render freezes the state and attaches the transparency record.
func (p *Pipeline) render(state *turn.State, resp *turn.Response, rulesFired []string) *turn.Response {
	state.Freeze()

	resp.TraceID = state.TraceID
	resp.AnswerType = state.AnswerType
	if state.AnswerType != turn.AnswerCasual {
		resp.Explanation = explain.Build(state, rulesFired)
	}
	return resp
}

func (p *Pipeline) countCache(hit bool) {
	if hit {
		p.nodes.Metrics.Counter(metrics.CacheHitsTotal).Inc()
	} else {
		p.nodes.Metrics.Counter(metrics.CacheMissesTotal).Inc()
	}
}

func (p *Pipeline) traceEvent(ctx context.Context, stage string, fields map[string]string) {
	if p.nodes.Emitter != nil {
		p.nodes.Emitter.Trace(ctx, stage, fields)
	}
}

func (p *Pipeline) provenanceEvent(ctx context.Context, state *turn.State) {
	if p.nodes.Emitter == nil {
		return
	}
	refs := make([]string, 0, len(state.Evidence))
	for _, e := range state.Evidence {
		refs = append(refs, string(e.Source)+":"+e.Ref)
	}
	p.nodes.Emitter.Provenance(ctx, "retrieve", map[string]string{
		"evidence": strings.Join(refs, ","),
	})
}

func (p *Pipeline) debugEvent(ctx context.Context, state *turn.State, resp *turn.Response) {
	if p.nodes.Emitter == nil {
		return
	}
	fields := map[string]string{
		"error_code": string(resp.ErrorCode),
		"query":      state.NormalizedQuery,
	}
	if state.Report != nil {
		fields["reasons"] = strings.Join(state.Report.Reasons, "; ")
	}
	p.nodes.Emitter.Debug(ctx, "turn_failed", fields)
}
