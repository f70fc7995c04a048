// Package snapshot builds the Now/Next/Why context block injected into
// QUALITY prompts: the active sprint state, upcoming milestones, and recent
// decisions, read live from Postgres and bounded by a token budget.
package snapshot

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Snapshot is the three-part context block.
type Snapshot struct {
	// Now: active sprint, today's tasks, current blockers.
	Now []string `json:"now"`

	// Next: upcoming milestones and pending decisions.
	Next []string `json:"next"`

	// Why: the last few decisions and notable changes.
	Why []string `json:"why"`
}

// Render formats the snapshot for prompt injection.
func (s *Snapshot) Render() string {
	var b strings.Builder
	writeSection(&b, "## Now", s.Now)
	writeSection(&b, "## Next", s.Next)
	writeSection(&b, "## Why", s.Why)
	return b.String()
}

func writeSection(b *strings.Builder, header string, lines []string) {
	if len(lines) == 0 {
		return
	}
	b.WriteString(header)
	b.WriteString("\n")
	for _, line := range lines {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// Provider produces a snapshot for a project within a token budget.
type Provider interface {
	Snapshot(ctx context.Context, projectID string, tokenBudget int) (*Snapshot, error)
}

// Querier is the read-only database contract. *pgxpool.Pool satisfies it.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresProvider reads the snapshot from live project data.
type PostgresProvider struct {
	db Querier
}

// NewPostgresProvider wraps a database pool.
func NewPostgresProvider(db Querier) *PostgresProvider {
	return &PostgresProvider{db: db}
}

const (
	nowQuery = `
SELECT 'sprint ' || name || ' (' || status || ')' FROM sprints
WHERE project_id = $1 AND status = 'ACTIVE'
UNION ALL
SELECT key || ': ' || title FROM issues
WHERE project_id = $1 AND priority = 'BLOCKER' AND status NOT IN ('DONE', 'CANCELLED')
LIMIT 10`

	nextQuery = `
SELECT name || ' due ' || to_char(due_date, 'YYYY-MM-DD') FROM milestones
WHERE project_id = $1 AND due_date > now()
ORDER BY due_date
LIMIT 5`

	whyQuery = `
SELECT title FROM decisions
WHERE project_id = $1
ORDER BY decided_at DESC
LIMIT 10`
)

// Snapshot assembles Now/Next/Why, trimming lines to fit the token budget.
func (p *PostgresProvider) Snapshot(ctx context.Context, projectID string, tokenBudget int) (*Snapshot, error) {
	now, err := p.lines(ctx, nowQuery, projectID)
	if err != nil {
		return nil, fmt.Errorf("snapshot now query failed: %w", err)
	}
	next, err := p.lines(ctx, nextQuery, projectID)
	if err != nil {
		return nil, fmt.Errorf("snapshot next query failed: %w", err)
	}
	why, err := p.lines(ctx, whyQuery, projectID)
	if err != nil {
		return nil, fmt.Errorf("snapshot why query failed: %w", err)
	}

	snap := &Snapshot{Now: now, Next: next, Why: why}
	Trim(snap, tokenBudget)
	return snap, nil
}

func (p *PostgresProvider) lines(ctx context.Context, query, projectID string) ([]string, error) {
	rows, err := p.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, rows.Err()
}

// Trim drops lines from the least important section (Why first, then Next,
// then Now) until the estimated token count fits the budget.
func Trim(s *Snapshot, tokenBudget int) {
	if tokenBudget <= 0 {
		return
	}
	for estimateTokens(s) > tokenBudget {
		switch {
		case len(s.Why) > 0:
			s.Why = s.Why[:len(s.Why)-1]
		case len(s.Next) > 0:
			s.Next = s.Next[:len(s.Next)-1]
		case len(s.Now) > 1:
			s.Now = s.Now[:len(s.Now)-1]
		default:
			return
		}
	}
}

// estimateTokens approximates tokens as runes/2, conservative for Korean.
func estimateTokens(s *Snapshot) int {
	total := 0
	for _, section := range [][]string{s.Now, s.Next, s.Why} {
		for _, line := range section {
			total += len([]rune(line))/2 + 2
		}
	}
	return total
}
