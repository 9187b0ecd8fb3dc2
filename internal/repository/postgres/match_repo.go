package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/hexwar/internal/model"
)

// MatchRepo handles match, match_player and match_action database operations.
type MatchRepo struct {
	db *sql.DB
}

// NewMatchRepo creates a MatchRepo.
func NewMatchRepo(db *sql.DB) *MatchRepo {
	return &MatchRepo{db: db}
}

const matchColumns = `id, name, creator_id, status, winner, board_cols, board_rows, seed, turn, autoplay,
	final_state, created_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*model.Match, error) {
	var (
		m       model.Match
		creator sql.NullString
		final   []byte
	)
	if err := row.Scan(&m.ID, &m.Name, &creator, &m.Status, &m.Winner, &m.Cols, &m.Rows, &m.Seed, &m.Turn,
		&m.Autoplay, &final, &m.CreatedAt, &m.FinishedAt); err != nil {
		return nil, err
	}
	m.CreatorID = creator.String
	if len(final) > 0 {
		m.FinalState = json.RawMessage(final)
	}
	return &m, nil
}

// Create inserts a match and its players in one transaction.
func (r *MatchRepo) Create(ctx context.Context, m *model.Match) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO matches (id, name, creator_id, status, board_cols, board_rows, seed, turn, autoplay)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		m.ID, m.Name, nullStr(m.CreatorID), m.Status, m.Cols, m.Rows, m.Seed, m.Turn, m.Autoplay,
	).Scan(&m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create match: %w", err)
	}

	for _, p := range m.Players {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO match_players (match_id, player, brain) VALUES ($1, $2, $3)`,
			m.ID, p.Player, p.Brain,
		); err != nil {
			return fmt.Errorf("insert match player %d: %w", p.Player, err)
		}
	}
	return tx.Commit()
}

// FindByID returns a match by ID with its players.
func (r *MatchRepo) FindByID(ctx context.Context, id string) (*model.Match, error) {
	m, err := scanMatch(r.db.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find match: %w", err)
	}

	players, err := r.listPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	m.Players = players
	return m, nil
}

// ListRecent returns the newest matches without their final state.
func (r *MatchRepo) ListRecent(ctx context.Context, limit int) ([]model.Match, error) {
	return r.list(ctx, "list recent matches",
		`SELECT `+matchColumns+` FROM matches ORDER BY created_at DESC LIMIT $1`, limit)
}

// ListActive returns every match still in play.
func (r *MatchRepo) ListActive(ctx context.Context) ([]model.Match, error) {
	return r.list(ctx, "list active matches",
		`SELECT `+matchColumns+` FROM matches WHERE status = 'active' ORDER BY created_at`)
}

func (r *MatchRepo) list(ctx context.Context, what, query string, args ...any) ([]model.Match, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		m.FinalState = nil
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func (r *MatchRepo) listPlayers(ctx context.Context, matchID string) ([]model.MatchPlayer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT match_id, player, brain FROM match_players WHERE match_id = $1 ORDER BY player`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list match players: %w", err)
	}
	defer rows.Close()

	var players []model.MatchPlayer
	for rows.Next() {
		var p model.MatchPlayer
		if err := rows.Scan(&p.MatchID, &p.Player, &p.Brain); err != nil {
			return nil, fmt.Errorf("scan match player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

// SetFinished marks a match as finished and stores its final snapshot.
func (r *MatchRepo) SetFinished(ctx context.Context, id string, winner, turn int, finalState json.RawMessage) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE matches SET status = 'finished', winner = $1, turn = $2, final_state = $3, finished_at = now()
		 WHERE id = $4`,
		winner, turn, nullJSON(finalState), id,
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
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO match_actions (match_id, seq, turn, player, kind, unit_id, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`)
	if err != nil {
		return fmt.Errorf("prepare insert action: %w", err)
	}
	defer stmt.Close()

	for _, a := range actions {
		if _, err := stmt.ExecContext(ctx, a.MatchID, a.Seq, a.Turn, a.Player, a.Kind, a.UnitID, nullJSON(a.Detail)); err != nil {
			return fmt.Errorf("insert action %d: %w", a.Seq, err)
		}
	}
	return tx.Commit()
}

// ActionsByMatch returns a match's action log in order.
func (r *MatchRepo) ActionsByMatch(ctx context.Context, matchID string) ([]model.ActionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, match_id, seq, turn, player, kind, unit_id, detail, created_at
		 FROM match_actions WHERE match_id = $1 ORDER BY seq`, matchID)
	if err != nil {
		return nil, fmt.Errorf("actions by match: %w", err)
	}
	defer rows.Close()

	var actions []model.ActionRecord
	for rows.Next() {
		var (
			a      model.ActionRecord
			detail []byte
		)
		if err := rows.Scan(&a.ID, &a.MatchID, &a.Seq, &a.Turn, &a.Player, &a.Kind, &a.UnitID, &detail, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		if len(detail) > 0 {
			a.Detail = json.RawMessage(detail)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullJSON maps an empty document to SQL NULL.
func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
