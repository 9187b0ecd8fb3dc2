// Package sqlite archives bot matches in a local SQLite file, for headless
// arena runs that have no Postgres at hand.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/freeeve/hexwar/internal/model"
)

// MatchRepo implements repository.MatchRepository on SQLite.
type MatchRepo struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*MatchRepo, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer at a time; botmatch workers share this handle.
	conn.SetMaxOpenConns(1)

	r := &MatchRepo{conn: conn}
	if err := r.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

// Close closes the database connection.
func (r *MatchRepo) Close() error {
	return r.conn.Close()
}

func (r *MatchRepo) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS matches (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		creator_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		winner INTEGER NOT NULL DEFAULT 0,
		board_cols INTEGER NOT NULL,
		board_rows INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		turn INTEGER NOT NULL,
		autoplay INTEGER NOT NULL DEFAULT 0,
		final_state TEXT,
		created_at INTEGER NOT NULL,
		finished_at INTEGER
	);

	CREATE TABLE IF NOT EXISTS match_players (
		match_id TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
		player INTEGER NOT NULL,
		brain TEXT NOT NULL,
		PRIMARY KEY (match_id, player)
	);

	CREATE TABLE IF NOT EXISTS match_actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id TEXT NOT NULL REFERENCES matches(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		turn INTEGER NOT NULL,
		player INTEGER NOT NULL,
		kind TEXT NOT NULL,
		unit_id INTEGER NOT NULL DEFAULT 0,
		detail TEXT,
		created_at INTEGER NOT NULL,
		UNIQUE (match_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_matches_status ON matches(status);
	CREATE INDEX IF NOT EXISTS idx_matches_created ON matches(created_at);
	`
	_, err := r.conn.Exec(schema)
	return err
}

type matchRow struct {
	ID         string         `db:"id"`
	Name       string         `db:"name"`
	CreatorID  string         `db:"creator_id"`
	Status     string         `db:"status"`
	Winner     int            `db:"winner"`
	Cols       int            `db:"board_cols"`
	Rows       int            `db:"board_rows"`
	Seed       int64          `db:"seed"`
	Turn       int            `db:"turn"`
	Autoplay   bool           `db:"autoplay"`
	FinalState sql.NullString `db:"final_state"`
	CreatedAt  int64          `db:"created_at"`
	FinishedAt sql.NullInt64  `db:"finished_at"`
}

func (row matchRow) model() model.Match {
	m := model.Match{
		ID:        row.ID,
		Name:      row.Name,
		CreatorID: row.CreatorID,
		Status:    row.Status,
		Winner:    row.Winner,
		Cols:      row.Cols,
		Rows:      row.Rows,
		Seed:      row.Seed,
		Turn:      row.Turn,
		Autoplay:  row.Autoplay,
		CreatedAt: time.UnixMilli(row.CreatedAt),
	}
	if row.FinalState.Valid {
		m.FinalState = json.RawMessage(row.FinalState.String)
	}
	if row.FinishedAt.Valid {
		t := time.UnixMilli(row.FinishedAt.Int64)
		m.FinishedAt = &t
	}
	return m
}

type playerRow struct {
	MatchID string `db:"match_id"`
	Player  int    `db:"player"`
	Brain   string `db:"brain"`
}

type actionRow struct {
	ID        int64          `db:"id"`
	MatchID   string         `db:"match_id"`
	Seq       int            `db:"seq"`
	Turn      int            `db:"turn"`
	Player    int            `db:"player"`
	Kind      string         `db:"kind"`
	UnitID    int            `db:"unit_id"`
	Detail    sql.NullString `db:"detail"`
	CreatedAt int64          `db:"created_at"`
}

const matchColumns = `id, name, creator_id, status, winner, board_cols, board_rows, seed, turn, autoplay,
	final_state, created_at, finished_at`

// Create inserts a match and its players in one transaction.
func (r *MatchRepo) Create(ctx context.Context, m *model.Match) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	tx, err := r.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO matches (id, name, creator_id, status, board_cols, board_rows, seed, turn, autoplay, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Name, m.CreatorID, m.Status, m.Cols, m.Rows, m.Seed, m.Turn, m.Autoplay, m.CreatedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("create match: %w", err)
	}
	for _, p := range m.Players {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO match_players (match_id, player, brain) VALUES (?, ?, ?)`,
			m.ID, p.Player, p.Brain,
		); err != nil {
			return fmt.Errorf("insert match player %d: %w", p.Player, err)
		}
	}
	return tx.Commit()
}

// FindByID returns a match by ID with its players, nil when absent.
func (r *MatchRepo) FindByID(ctx context.Context, id string) (*model.Match, error) {
	var row matchRow
	err := r.conn.GetContext(ctx, &row, `SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find match: %w", err)
	}
	m := row.model()

	var players []playerRow
	if err := r.conn.SelectContext(ctx, &players,
		`SELECT match_id, player, brain FROM match_players WHERE match_id = ? ORDER BY player`, id,
	); err != nil {
		return nil, fmt.Errorf("list match players: %w", err)
	}
	for _, p := range players {
		m.Players = append(m.Players, model.MatchPlayer{MatchID: p.MatchID, Player: p.Player, Brain: p.Brain})
	}
	return &m, nil
}

// ListRecent returns the newest matches without their final state.
func (r *MatchRepo) ListRecent(ctx context.Context, limit int) ([]model.Match, error) {
	return r.list(ctx, `SELECT `+matchColumns+` FROM matches ORDER BY created_at DESC LIMIT ?`, limit)
}

// ListActive returns every match still in play.
func (r *MatchRepo) ListActive(ctx context.Context) ([]model.Match, error) {
	return r.list(ctx, `SELECT `+matchColumns+` FROM matches WHERE status = ? ORDER BY created_at`, model.MatchActive)
}

func (r *MatchRepo) list(ctx context.Context, query string, args ...any) ([]model.Match, error) {
	var rows []matchRow
	if err := r.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	out := make([]model.Match, len(rows))
	for i, row := range rows {
		out[i] = row.model()
		out[i].FinalState = nil
	}
	return out, nil
}

// SetFinished marks a match as finished and stores its final snapshot.
func (r *MatchRepo) SetFinished(ctx context.Context, id string, winner, turn int, finalState json.RawMessage) error {
	var final sql.NullString
	if len(finalState) > 0 {
		final = sql.NullString{String: string(finalState), Valid: true}
	}
	_, err := r.conn.ExecContext(ctx,
		`UPDATE matches SET status = ?, winner = ?, turn = ?, final_state = ?, finished_at = ? WHERE id = ?`,
		model.MatchFinished, winner, turn, final, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("set finished: %w", err)
	}
	return nil
}

// SaveActions appends action records in one transaction.
func (r *MatchRepo) SaveActions(ctx context.Context, actions []model.ActionRecord) error {
	if len(actions) == 0 {
		return nil
	}
	tx, err := r.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO match_actions (match_id, seq, turn, player, kind, unit_id, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert action: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, a := range actions {
		var detail sql.NullString
		if len(a.Detail) > 0 {
			detail = sql.NullString{String: string(a.Detail), Valid: true}
		}
		created := now
		if !a.CreatedAt.IsZero() {
			created = a.CreatedAt.UnixMilli()
		}
		if _, err := stmt.ExecContext(ctx, a.MatchID, a.Seq, a.Turn, a.Player, a.Kind, a.UnitID, detail, created); err != nil {
			return fmt.Errorf("insert action %d: %w", a.Seq, err)
		}
	}
	return tx.Commit()
}

// ActionsByMatch returns a match's action log in order.
func (r *MatchRepo) ActionsByMatch(ctx context.Context, matchID string) ([]model.ActionRecord, error) {
	var rows []actionRow
	if err := r.conn.SelectContext(ctx, &rows,
		`SELECT id, match_id, seq, turn, player, kind, unit_id, detail, created_at
		 FROM match_actions WHERE match_id = ? ORDER BY seq`, matchID,
	); err != nil {
		return nil, fmt.Errorf("actions by match: %w", err)
	}
	out := make([]model.ActionRecord, len(rows))
	for i, row := range rows {
		out[i] = model.ActionRecord{
			ID:        fmt.Sprint(row.ID),
			MatchID:   row.MatchID,
			Seq:       row.Seq,
			Turn:      row.Turn,
			Player:    row.Player,
			Kind:      row.Kind,
			UnitID:    row.UnitID,
			CreatedAt: time.UnixMilli(row.CreatedAt),
		}
		if row.Detail.Valid {
			out[i].Detail = json.RawMessage(row.Detail.String)
		}
	}
	return out, nil
}
