package model

import (
	"encoding/json"
	"time"
)

// Match statuses.
const (
	MatchActive   = "active"
	MatchFinished = "finished"
)

// User represents a registered user.
type User struct {
	ID          string    `json:"id"`
	Provider    string    `json:"provider"`
	ProviderID  string    `json:"provider_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Match is the archived record of a bot match.
type Match struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	CreatorID  string          `json:"creator_id,omitempty"`
	Status     string          `json:"status"` // active, finished
	Winner     int             `json:"winner,omitempty"`
	Cols       int             `json:"cols"`
	Rows       int             `json:"rows"`
	Seed       int64           `json:"seed"`
	Turn       int             `json:"turn"`
	Autoplay   bool            `json:"autoplay"`
	FinalState json.RawMessage `json:"final_state,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Players    []MatchPlayer   `json:"players,omitempty"`
}

// MatchPlayer is one side of a match and the brain driving it.
type MatchPlayer struct {
	MatchID string `json:"match_id"`
	Player  int    `json:"player"`
	Brain   string `json:"brain"`
}

// ActionRecord is one executed brain action.
type ActionRecord struct {
	ID        string          `json:"id"`
	MatchID   string          `json:"match_id"`
	Seq       int             `json:"seq"`
	Turn      int             `json:"turn"`
	Player    int             `json:"player"`
	Kind      string          `json:"kind"` // move, summon, attack, end_turn
	UnitID    int             `json:"unit_id,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
