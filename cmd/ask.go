package cmd

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/maru-labs/maru/internal/analyst"
	"github.com/maru-labs/maru/internal/architect"
	"github.com/maru-labs/maru/internal/cache"
	"github.com/maru-labs/maru/internal/classify"
	"github.com/maru-labs/maru/internal/config"
	"github.com/maru-labs/maru/internal/docstore"
	"github.com/maru-labs/maru/internal/events"
	"github.com/maru-labs/maru/internal/generate"
	"github.com/maru-labs/maru/internal/graphstore"
	"github.com/maru-labs/maru/internal/guardian"
	"github.com/maru-labs/maru/internal/llm"
	"github.com/maru-labs/maru/internal/logging"
	"github.com/maru-labs/maru/internal/metrics"
	"github.com/maru-labs/maru/internal/normalize"
	"github.com/maru-labs/maru/internal/pipeline"
	"github.com/maru-labs/maru/internal/policy"
	"github.com/maru-labs/maru/internal/recovery"
	"github.com/maru-labs/maru/internal/retrieval"
	"github.com/maru-labs/maru/internal/snapshot"
	"github.com/maru-labs/maru/internal/statusquery"
	"github.com/maru-labs/maru/internal/tuning"
	"github.com/maru-labs/maru/internal/turn"
)

var (
	projectID string
	sessionID string
	userID    string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a project management question",
	Long: `Ask a natural language question about a project.

The question runs through the full pipeline: normalization, classification,
the policy gate, retrieval from the configured backends, and verified
generation. Backends that are not configured degrade gracefully.

Required environment variables:
  OPENAI_API_KEY     - OpenAI API key for the fast and quality models

Optional backend variables (also settable in maru.yaml):
  MARU_POSTGRES_DSN  - Postgres for status metrics and the context snapshot
  MARU_NEO4J_URI     - Neo4j for relationship evidence
  MARU_REDIS_ADDR    - Redis for the shared query cache
  MILVUS_ADDRESS     - Milvus for document evidence

Examples:
  maru ask "이번주 진행률 알려줘" --project PMS
  maru ask "스크럼이란 뭐야?" --project PMS --verbose`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVar(&projectID, "project", "", "Project ID the question is scoped to (required)")
	askCmd.Flags().StringVar(&sessionID, "session", "cli", "Session ID for cache and rate limiting")
	askCmd.Flags().StringVar(&userID, "user", "cli", "User ID for the permission check")
	_ = askCmd.MarkFlagRequired("project")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]
	ctx := context.Background()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(verbose)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	// Styling
	var (
		headerColor   = lipgloss.Color("#F780FF") // Bright pink
		questionColor = lipgloss.Color("#8BE9FD") // Cyan
		answerColor   = lipgloss.Color("#E9E9F4") // Light purple/white
		contextColor  = lipgloss.Color("#6272A4") // Muted purple
		warningColor  = lipgloss.Color("#FFB86C") // Orange
		tipColor      = lipgloss.Color("#50FA7B") // Green
	)

	headerStyle := lipgloss.NewStyle().
		Foreground(headerColor).
		Bold(true)

	questionStyle := lipgloss.NewStyle().
		Foreground(questionColor).
		Italic(true)

	answerStyle := lipgloss.NewStyle().
		Foreground(answerColor)

	contextStyle := lipgloss.NewStyle().
		Foreground(contextColor).
		Italic(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(warningColor)

	tipStyle := lipgloss.NewStyle().
		Foreground(tipColor)

	fmt.Println()
	fmt.Println(headerStyle.Render("Question:"))
	fmt.Println(questionStyle.Render(question))
	fmt.Println()

	if verbose {
		fmt.Println(contextStyle.Render("→ Assembling pipeline..."))
	}

	p, cleanup, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := p.HandleTurn(ctx, &turn.Request{
		RawQuery:  question,
		SessionID: sessionID,
		ProjectID: projectID,
		UserID:    userID,
	})
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("Answer:"))
	fmt.Println()
	fmt.Println(answerStyle.Render(resp.Data))
	fmt.Println()

	for _, w := range resp.Warnings {
		fmt.Println(warningStyle.Render("⚠ " + w))
	}
	for _, tip := range resp.Tips {
		fmt.Println(tipStyle.Render("→ " + tip))
	}

	if verbose && resp.Explanation != nil {
		e := resp.Explanation
		fmt.Println()
		fmt.Println(contextStyle.Render(fmt.Sprintf(
			"intent=%s confidence=%.2f track=%s sources=%v error=%s trace=%s",
			e.Intent, e.Confidence, e.Track, e.SourcesUsed, resp.ErrorCode, resp.TraceID)))
	}

	return nil
}

// buildPipeline wires every configured backend into the pipeline. Missing
// backends are logged and skipped; the pipeline degrades rather than fail.
func buildPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*pipeline.Pipeline, func(), error) {
	fast, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		Model:     cfg.LLM.FastModel,
		Timeout:   cfg.LLM.Timeout,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, nil, err
	}
	quality, err := llm.NewOpenAIClient(llm.OpenAIConfig{
		Model:     cfg.LLM.QualityModel,
		Timeout:   cfg.LLM.Timeout,
		MaxTokens: cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, nil, err
	}
	router, err := llm.NewRouter(fast, quality)
	if err != nil {
		return nil, nil, err
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var primary cache.Store
	if cfg.Backends.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Backends.RedisAddr})
		breaker := cache.NewCircuitBreaker(
			cfg.Cache.BreakerFailures, cfg.Cache.BreakerWindow, cfg.Cache.BreakerCooldown)
		primary = cache.NewRedisStore(rdb, breaker, cfg.Cache.OpBudget)
		closers = append(closers, func() { _ = rdb.Close() })
	}
	tiered := cache.NewTiered(primary, cache.NewMemoryStore(cfg.Cache.MemoryCapacity), cache.TTLs{
		Normalization:  cfg.Cache.NormalizationTTL,
		Negative:       cfg.Cache.NegativeTTL,
		Classification: cfg.Cache.ClassificationTTL,
	})

	tuner := tuning.NewTuner(cfg.Normalize.FuzzyThreshold)
	if err := loadThresholds(tuner); err != nil {
		logger.Warn("could not load promoted thresholds", zap.Error(err))
	}

	normConfig := normalize.DefaultConfig()
	normConfig.DefaultThreshold = cfg.Normalize.FuzzyThreshold
	normConfig.L3PerSession = cfg.Normalize.L3PerSessionLimit
	normConfig.L3Global = cfg.Normalize.L3GlobalLimit

	var status retrieval.StatusExecutor
	var snapshots snapshot.Provider
	if cfg.Backends.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.Backends.PostgresDSN)
		if err != nil {
			logger.Warn("postgres unavailable, status queries disabled", zap.Error(err))
		} else {
			registry, err := statusquery.LoadRegistry()
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			executor, err := statusquery.NewExecutor(registry, pool)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			status = executor
			snapshots = snapshot.NewPostgresProvider(pool)
			closers = append(closers, pool.Close)
		}
	}

	var graph graphstore.Reader
	if cfg.Backends.Neo4jURI != "" && cfg.Backends.Neo4jUser != "" {
		driver, err := neo4j.NewDriverWithContext(cfg.Backends.Neo4jURI,
			neo4j.BasicAuth(cfg.Backends.Neo4jUser, cfg.Backends.Neo4jPassword, ""))
		if err != nil {
			logger.Warn("neo4j unavailable, graph evidence disabled", zap.Error(err))
		} else {
			graph = graphstore.NewNeo4jReader(driver)
			closers = append(closers, func() { _ = driver.Close(ctx) })
		}
	}

	var docs docstore.Searcher
	if cfg.Backends.MilvusAddr != "" {
		embedder, err := docstore.NewOpenAIEmbedder(cfg.Backends.EmbedModel, cfg.Backends.EmbedDim)
		if err != nil {
			logger.Warn("embedder unavailable, document evidence disabled", zap.Error(err))
		} else {
			store, err := docstore.NewMilvusStore(ctx, docstore.MilvusConfig{
				Address:        cfg.Backends.MilvusAddr,
				CollectionName: cfg.Backends.MilvusColl,
				Dimension:      cfg.Backends.EmbedDim,
				Ef:             64,
			}, embedder)
			if err != nil {
				logger.Warn("milvus unavailable, document evidence disabled", zap.Error(err))
			} else {
				docs = store
				closers = append(closers, func() { _ = store.Close() })
			}
		}
	}

	emitter := events.NewEmitter(events.NewRing(cfg.Events.RingCapacity), logger, cfg.Events.ProvenanceSample)
	closers = append(closers, emitter.Close)

	nodes := pipeline.Nodes{
		Normalizer: normalize.New(normConfig, tuner, router.Fast, tiered),
		Classifier: classify.New(classify.Config{
			LowConfidence:              cfg.Classify.LowConfidence,
			MaxClarificationsPerIntent: cfg.Classify.MaxClarificationsPerIntent,
		}, tiered),
		Policy:     policy.NewEngine(),
		Analyst:    analyst.New(router.Quality),
		Dispatcher: retrieval.NewDispatcher(retrieval.Config{
			TopK:            cfg.Retrieval.TopK,
			ConfidenceFloor: cfg.Retrieval.ConfidenceFloor,
			RRFConstant:     cfg.Retrieval.RRFConstant,
			DocWeight:       cfg.Retrieval.DocWeight,
			GraphWeight:     cfg.Retrieval.GraphWeight,
		}, status, graph, docs),
		Architect: architect.New(router.Quality),
		Generator: generate.New(router),
		Guardian: guardian.New(guardian.Config{
			MaxRetries:       cfg.Guardian.MaxRetries,
			EscalationSample: cfg.Guardian.EscalationSample,
			MinEvidenceItems: cfg.Guardian.MinEvidenceItems,
			MinSources:       cfg.Guardian.MinSources,
			MinAvgConfidence: cfg.Guardian.MinAvgConfidence,
			MinDraftLength:   cfg.Guardian.MinDraftLength,
		}),
		Recovery:  recovery.NewPlanner(recovery.NewAttemptTracker(cfg.Recovery.MaxAttemptsPerAction)),
		Snapshots: snapshots,
		Emitter:   emitter,
		Metrics:   metrics.NewRegistry(),
		Shadow:    tuning.NewShadowCollector(),
	}

	return pipeline.New(cfg, logger, nodes), cleanup, nil
}
