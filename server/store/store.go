package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

// Run outcomes recorded by CompleteRun.
const (
	OutcomeCleared = "cleared"
	OutcomeDead    = "dead"
	OutcomeStuck   = "stuck"
)

type RunStart struct {
	Key     string
	AgentID int64
	Seed    int64
	Mode    string
}

type ActionLog struct {
	ID            int64     `json:"id"`
	RunID         int64     `json:"run_id"`
	Turn          int       `json:"turn"`
	Action        string    `json:"action"`
	Index         int       `json:"index"`
	Mode          string    `json:"mode,omitempty"`
	Card          string    `json:"card,omitempty"`
	Label         string    `json:"label"`
	Choice        int       `json:"choice"`
	LegalCount    int       `json:"legal_count"`
	HealthBefore  int       `json:"health_before"`
	HealthAfter   int       `json:"health_after"`
	Room          []string  `json:"room"`
	Weapon        string    `json:"weapon,omitempty"`
	DeckRemaining int       `json:"deck_remaining"`
	CreatedAt     time.Time `json:"created_at"`
}

type ActionEval struct {
	ActionLogID int64
	Solver      string
	Samples     int
	BestLabel   string
	BestEV      float64
	ChosenEV    float64
	Gap         float64
	IsTop       bool
}

type RunResult struct {
	RunID   int64
	Score   int
	Health  int
	Turns   int
	Outcome string
}

type Run struct {
	ID        int64       `json:"id"`
	Key       string      `json:"key"`
	Agent     string      `json:"agent"`
	Seed      int64       `json:"seed"`
	Mode      string      `json:"mode"`
	Score     *int        `json:"score,omitempty"`
	Health    *int        `json:"health,omitempty"`
	Turns     int         `json:"turns"`
	Outcome   string      `json:"outcome,omitempty"`
	StartedAt time.Time   `json:"started_at"`
	EndedAt   *time.Time  `json:"ended_at,omitempty"`
	Actions   []ActionLog `json:"actions,omitempty"`
}

type AgentRating struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	Elo        float64 `json:"elo"`
	Rated      int     `json:"rated_runs"`
	Runs       int     `json:"runs"`
	Alive      int     `json:"alive"`
	AvgScore   float64 `json:"avg_score"`
	BestScore  *int    `json:"best_score,omitempty"`
	JudgeTop   int     `json:"judge_top"`
	JudgeTotal int     `json:"judge_total"`
}

// JudgeRatio is the share of judged decisions that matched the top action.
func (r AgentRating) JudgeRatio() float64 {
	if r.JudgeTotal <= 0 {
		return 0
	}
	return float64(r.JudgeTop) / float64(r.JudgeTotal)
}

// Store records runs, their decisions and agent ratings.
type Store interface {
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()

	UpsertAgent(ctx context.Context, name string) (int64, error)
	// GetOrInitRating returns the agent's Elo and rated run count, creating
	// the row at start when missing.
	GetOrInitRating(ctx context.Context, agentID int64, start float64) (float64, int, error)
	UpdateAgentRating(ctx context.Context, agentID int64, elo float64, runsInc int) error

	CreateRun(ctx context.Context, r RunStart) (int64, error)
	InsertActionLog(ctx context.Context, l ActionLog) (int64, error)
	InsertActionEval(ctx context.Context, e ActionEval) error
	CompleteRun(ctx context.Context, r RunResult) error

	ListRuns(ctx context.Context, limit int) ([]Run, error)
	GetRun(ctx context.Context, id int64) (Run, error)
	Leaderboard(ctx context.Context) ([]AgentRating, error)
}

// Open picks the backend from the DSN: postgres:// and postgresql:// use
// pgx, sqlite: prefixes or bare paths use SQLite.
func Open(ctx context.Context, dsn string) (Store, error) {
	dsn = strings.TrimSpace(dsn)
	lower := strings.ToLower(dsn)
	switch {
	case dsn == "":
		return nil, errors.New("empty DSN")
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	case strings.HasPrefix(lower, "sqlite://"):
		return OpenSQLite(dsn[len("sqlite://"):])
	case strings.HasPrefix(lower, "sqlite:"):
		return OpenSQLite(dsn[len("sqlite:"):])
	case strings.Contains(dsn, "://"):
		return nil, fmt.Errorf("unsupported DSN scheme in %q", dsn)
	}
	return OpenSQLite(dsn)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 500 {
		return 500
	}
	return limit
}
