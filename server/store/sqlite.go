package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationTable = "schema_migrations"

var (
	_ Store = (*Postgres)(nil)
	_ Store = (*SQLite)(nil)
)

// SQLite is the file-backed Store used when no Postgres is around.
type SQLite struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens the database at path and applies embedded migrations.
// It migrates on every open regardless of AUTO_MIGRATE, which only gates
// Postgres.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	s := &SQLite{sqlDB: sqlDB}
	if err := s.Migrate(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() {
	if s == nil || s.sqlDB == nil {
		return
	}
	_ = s.sqlDB.Close()
}

func (s *SQLite) Ping(ctx context.Context) error { return s.sqlDB.PingContext(ctx) }

// Migrate executes each embedded migration at most once, tracked in
// schema_migrations.
func (s *SQLite) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	if _, err := s.sqlDB.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
);`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var found int
		err := s.sqlDB.QueryRowContext(ctx, "SELECT 1 FROM "+migrationTable+" WHERE name = ?", file).Scan(&found)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		content, err := migrationFS.ReadFile("migrations/" + file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		up := upMigration(string(content))
		if strings.TrimSpace(up) == "" {
			continue
		}

		tx, err := s.sqlDB.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO "+migrationTable+" (name, applied_at) VALUES (?, ?)",
			file, toMillis(time.Now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

// upMigration returns the SQL between "-- +migrate Up" and "-- +migrate Down".
func upMigration(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	i := strings.Index(content, up)
	if i == -1 {
		return content
	}
	content = content[i+len(up):]
	if j := strings.Index(content, down); j != -1 {
		content = content[:j]
	}
	return content
}

func (s *SQLite) UpsertAgent(ctx context.Context, name string) (int64, error) {
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("agent name is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO agents(name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, toMillis(time.Now()),
	); err != nil {
		return 0, err
	}
	var id int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT id FROM agents WHERE name = ?`, name).Scan(&id)
	return id, err
}

func (s *SQLite) GetOrInitRating(ctx context.Context, agentID int64, start float64) (elo float64, runs int, err error) {
	if _, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO agent_ratings(agent_id, elo, runs, updated_at) VALUES (?, ?, 0, ?)
		 ON CONFLICT(agent_id) DO NOTHING`,
		agentID, start, toMillis(time.Now()),
	); err != nil {
		return 0, 0, err
	}
	err = s.sqlDB.QueryRowContext(ctx, `SELECT elo, runs FROM agent_ratings WHERE agent_id = ?`, agentID).Scan(&elo, &runs)
	return
}

func (s *SQLite) UpdateAgentRating(ctx context.Context, agentID int64, elo float64, runsInc int) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO agent_ratings(agent_id, elo, runs, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE
		    SET elo = excluded.elo,
		        runs = agent_ratings.runs + excluded.runs,
		        updated_at = excluded.updated_at`,
		agentID, elo, runsInc, toMillis(time.Now()),
	)
	return err
}

func (s *SQLite) CreateRun(ctx context.Context, r RunStart) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO runs(run_key, agent_id, seed, mode, started_at) VALUES (?, ?, ?, ?, ?)`,
		r.Key, r.AgentID, r.Seed, r.Mode, toMillis(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLite) InsertActionLog(ctx context.Context, l ActionLog) (int64, error) {
	res, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO action_logs(run_id, turn, action, idx, mode, card, label, choice, legal_count,
		                         health_before, health_after, room, weapon, deck_remaining, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.RunID, l.Turn, l.Action, l.Index, l.Mode, l.Card, l.Label, l.Choice, l.LegalCount,
		l.HealthBefore, l.HealthAfter, strings.Join(l.Room, " "), l.Weapon, l.DeckRemaining,
		toMillis(time.Now()),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLite) InsertActionEval(ctx context.Context, e ActionEval) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR REPLACE INTO action_evals(action_log_id, solver, samples, best_label, best_ev, chosen_ev, gap, is_top)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ActionLogID, e.Solver, e.Samples, e.BestLabel, e.BestEV, e.ChosenEV, e.Gap, e.IsTop,
	)
	return err
}

func (s *SQLite) CompleteRun(ctx context.Context, r RunResult) error {
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE runs SET score = ?, health = ?, turns = ?, outcome = ?, ended_at = ? WHERE id = ?`,
		r.Score, r.Health, r.Turns, r.Outcome, toMillis(time.Now()), r.RunID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %d: %w", r.RunID, ErrNotFound)
	}
	return nil
}

const sqliteRunColumns = `
	SELECT r.id, r.run_key, a.name, r.seed, r.mode, r.score, r.health, r.turns,
	       COALESCE(r.outcome, ''), r.started_at, r.ended_at
	  FROM runs r
	  JOIN agents a ON a.id = r.agent_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(row rowScanner) (Run, error) {
	var (
		r             Run
		score, health sql.NullInt64
		started       int64
		ended         sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Key, &r.Agent, &r.Seed, &r.Mode, &score, &health, &r.Turns,
		&r.Outcome, &started, &ended); err != nil {
		return Run{}, err
	}
	if score.Valid {
		v := int(score.Int64)
		r.Score = &v
	}
	if health.Valid {
		v := int(health.Int64)
		r.Health = &v
	}
	r.StartedAt = fromMillis(started)
	if ended.Valid {
		t := fromMillis(ended.Int64)
		r.EndedAt = &t
	}
	return r, nil
}

func (s *SQLite) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.sqlDB.QueryContext(ctx, sqliteRunColumns+` ORDER BY r.id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) GetRun(ctx context.Context, id int64) (Run, error) {
	r, err := scanSQLiteRun(s.sqlDB.QueryRowContext(ctx, sqliteRunColumns+` WHERE r.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %d: %w", id, ErrNotFound)
		}
		return Run{}, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, run_id, turn, action, idx, mode, card, label, choice, legal_count,
		        health_before, health_after, room, weapon, deck_remaining, created_at
		   FROM action_logs
		  WHERE run_id = ?
		  ORDER BY turn, id`, id)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			l       ActionLog
			room    string
			created int64
		)
		if err := rows.Scan(&l.ID, &l.RunID, &l.Turn, &l.Action, &l.Index, &l.Mode, &l.Card, &l.Label,
			&l.Choice, &l.LegalCount, &l.HealthBefore, &l.HealthAfter, &room, &l.Weapon,
			&l.DeckRemaining, &created); err != nil {
			return Run{}, err
		}
		l.Room = strings.Fields(room)
		l.CreatedAt = fromMillis(created)
		r.Actions = append(r.Actions, l)
	}
	return r, rows.Err()
}

func (s *SQLite) Leaderboard(ctx context.Context) ([]AgentRating, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT a.id, a.name,
		       COALESCE(rt.elo, 0), COALESCE(rt.runs, 0),
		       COUNT(r.id),
		       COALESCE(SUM(CASE WHEN r.outcome <> 'dead' THEN 1 ELSE 0 END), 0),
		       COALESCE(AVG(r.score), 0.0),
		       MAX(r.score),
		       (SELECT COUNT(*)
		          FROM action_evals e
		          JOIN action_logs l ON l.id = e.action_log_id
		          JOIN runs x ON x.id = l.run_id
		         WHERE x.agent_id = a.id AND e.is_top = 1),
		       (SELECT COUNT(*)
		          FROM action_evals e
		          JOIN action_logs l ON l.id = e.action_log_id
		          JOIN runs x ON x.id = l.run_id
		         WHERE x.agent_id = a.id)
		  FROM agents a
		  LEFT JOIN agent_ratings rt ON rt.agent_id = a.id
		  LEFT JOIN runs r ON r.agent_id = a.id AND r.ended_at IS NOT NULL
		 GROUP BY a.id, a.name, rt.elo, rt.runs
		 ORDER BY COALESCE(rt.elo, 0) DESC, 7 DESC, a.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []AgentRating{}
	for rows.Next() {
		var (
			ar   AgentRating
			best sql.NullInt64
		)
		if err := rows.Scan(&ar.ID, &ar.Name, &ar.Elo, &ar.Rated, &ar.Runs, &ar.Alive, &ar.AvgScore,
			&best, &ar.JudgeTop, &ar.JudgeTotal); err != nil {
			return nil, err
		}
		if best.Valid {
			v := int(best.Int64)
			ar.BestScore = &v
		}
		out = append(out, ar)
	}
	return out, rows.Err()
}
