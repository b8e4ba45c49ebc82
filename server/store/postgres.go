package store

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema embed.FS

// Postgres is the pgx-backed Store.
type Postgres struct{ *pgxpool.Pool }

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Postgres{p}, nil
}

func (db *Postgres) Close()                         { db.Pool.Close() }
func (db *Postgres) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func (db *Postgres) Migrate(ctx context.Context) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

/* -----------------------------
   Agents and ratings
------------------------------*/

func (db *Postgres) UpsertAgent(ctx context.Context, name string) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, `
        INSERT INTO agents(name) VALUES ($1)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING id
    `, name).Scan(&id)
	return id, err
}

func (db *Postgres) GetOrInitRating(ctx context.Context, agentID int64, start float64) (elo float64, runs int, err error) {
	if _, err = db.Exec(ctx, `
		INSERT INTO agent_ratings(agent_id, elo) VALUES ($1, $2)
		ON CONFLICT (agent_id) DO NOTHING
	`, agentID, start); err != nil {
		return 0, 0, err
	}
	err = db.QueryRow(ctx, `SELECT elo, runs FROM agent_ratings WHERE agent_id = $1`, agentID).Scan(&elo, &runs)
	return
}

func (db *Postgres) UpdateAgentRating(ctx context.Context, agentID int64, elo float64, runsInc int) error {
	_, err := db.Exec(ctx, `
		INSERT INTO agent_ratings(agent_id, elo, runs) VALUES ($1, $2, $3)
		ON CONFLICT (agent_id) DO UPDATE
		   SET elo = EXCLUDED.elo,
		       runs = agent_ratings.runs + EXCLUDED.runs,
		       updated_at = now()
	`, agentID, elo, runsInc)
	return err
}

/* -----------------------------
   Runs and decisions
------------------------------*/

func (db *Postgres) CreateRun(ctx context.Context, r RunStart) (int64, error) {
	var id int64
	err := db.QueryRow(ctx, `
		INSERT INTO runs(run_key, agent_id, seed, mode)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, r.Key, r.AgentID, r.Seed, r.Mode).Scan(&id)
	return id, err
}

func (db *Postgres) InsertActionLog(ctx context.Context, l ActionLog) (int64, error) {
	room := l.Room
	if room == nil {
		room = []string{}
	}
	var id int64
	err := db.QueryRow(ctx, `
		INSERT INTO action_logs(run_id, turn, action, idx, mode, card, label, choice, legal_count,
		                        health_before, health_after, room, weapon, deck_remaining)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id
	`, l.RunID, l.Turn, l.Action, l.Index, l.Mode, l.Card, l.Label, l.Choice, l.LegalCount,
		l.HealthBefore, l.HealthAfter, room, l.Weapon, l.DeckRemaining).Scan(&id)
	return id, err
}

func (db *Postgres) InsertActionEval(ctx context.Context, e ActionEval) error {
	_, err := db.Exec(ctx, `
		INSERT INTO action_evals(action_log_id, solver, samples, best_label, best_ev, chosen_ev, gap, is_top)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (action_log_id, solver) DO UPDATE
		   SET samples = EXCLUDED.samples,
		       best_label = EXCLUDED.best_label,
		       best_ev = EXCLUDED.best_ev,
		       chosen_ev = EXCLUDED.chosen_ev,
		       gap = EXCLUDED.gap,
		       is_top = EXCLUDED.is_top
	`, e.ActionLogID, e.Solver, e.Samples, e.BestLabel, e.BestEV, e.ChosenEV, e.Gap, e.IsTop)
	return err
}

func (db *Postgres) CompleteRun(ctx context.Context, r RunResult) error {
	tag, err := db.Exec(ctx, `
		UPDATE runs
		   SET score = $2, health = $3, turns = $4, outcome = $5, ended_at = now()
		 WHERE id = $1
	`, r.RunID, r.Score, r.Health, r.Turns, r.Outcome)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %d: %w", r.RunID, ErrNotFound)
	}
	return nil
}

/* -----------------------------
   Read side
------------------------------*/

const pgRunColumns = `
	SELECT r.id, r.run_key, a.name, r.seed, r.mode, r.score, r.health, r.turns,
	       COALESCE(r.outcome, ''), r.started_at, r.ended_at
	  FROM runs r
	  JOIN agents a ON a.id = r.agent_id`

func scanPGRun(row pgx.Row) (Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Key, &r.Agent, &r.Seed, &r.Mode, &r.Score, &r.Health, &r.Turns,
		&r.Outcome, &r.StartedAt, &r.EndedAt)
	return r, err
}

func (db *Postgres) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := db.Query(ctx, pgRunColumns+` ORDER BY r.id DESC LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		r, err := scanPGRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (db *Postgres) GetRun(ctx context.Context, id int64) (Run, error) {
	r, err := scanPGRun(db.QueryRow(ctx, pgRunColumns+` WHERE r.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Run{}, fmt.Errorf("run %d: %w", id, ErrNotFound)
		}
		return Run{}, err
	}
	rows, err := db.Query(ctx, `
		SELECT id, run_id, turn, action, idx, mode, card, label, choice, legal_count,
		       health_before, health_after, room, weapon, deck_remaining, created_at
		  FROM action_logs
		 WHERE run_id = $1
		 ORDER BY turn, id
	`, id)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l ActionLog
		if err := rows.Scan(&l.ID, &l.RunID, &l.Turn, &l.Action, &l.Index, &l.Mode, &l.Card, &l.Label,
			&l.Choice, &l.LegalCount, &l.HealthBefore, &l.HealthAfter, &l.Room, &l.Weapon,
			&l.DeckRemaining, &l.CreatedAt); err != nil {
			return Run{}, err
		}
		r.Actions = append(r.Actions, l)
	}
	return r, rows.Err()
}

func (db *Postgres) Leaderboard(ctx context.Context) ([]AgentRating, error) {
	rows, err := db.Query(ctx, `
		SELECT a.id, a.name,
		       COALESCE(rt.elo, 0), COALESCE(rt.runs, 0),
		       COUNT(r.id),
		       COALESCE(SUM(CASE WHEN r.outcome <> 'dead' THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(r.score), 0)::float8,
		       MAX(r.score),
		       (SELECT COUNT(*) FILTER (WHERE e.is_top)
		          FROM action_evals e
		          JOIN action_logs l ON l.id = e.action_log_id
		          JOIN runs x ON x.id = l.run_id
		         WHERE x.agent_id = a.id),
		       (SELECT COUNT(*)
		          FROM action_evals e
		          JOIN action_logs l ON l.id = e.action_log_id
		          JOIN runs x ON x.id = l.run_id
		         WHERE x.agent_id = a.id)
		  FROM agents a
		  LEFT JOIN agent_ratings rt ON rt.agent_id = a.id
		  LEFT JOIN runs r ON r.agent_id = a.id AND r.ended_at IS NOT NULL
		 GROUP BY a.id, a.name, rt.elo, rt.runs
		 ORDER BY COALESCE(rt.elo, 0) DESC, 7 DESC, a.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AgentRating{}
	for rows.Next() {
		var ar AgentRating
		if err := rows.Scan(&ar.ID, &ar.Name, &ar.Elo, &ar.Rated, &ar.Runs, &ar.Alive, &ar.AvgScore,
			&ar.BestScore, &ar.JudgeTop, &ar.JudgeTotal); err != nil {
			return nil, err
		}
		out = append(out, ar)
	}
	return out, rows.Err()
}
