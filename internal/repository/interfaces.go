package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/freeeve/hexwar/internal/model"
)

// UserRepository defines user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByProviderID(ctx context.Context, provider, providerID string) (*model.User, error)
	Upsert(ctx context.Context, provider, providerID, displayName string) (*model.User, error)
}

// MatchRepository archives matches and their action logs.
// Implemented by the postgres and sqlite packages.
type MatchRepository interface {
	Create(ctx context.Context, m *model.Match) error
	FindByID(ctx context.Context, id string) (*model.Match, error)
	ListRecent(ctx context.Context, limit int) ([]model.Match, error)
	ListActive(ctx context.Context) ([]model.Match, error)
	SetFinished(ctx context.Context, id string, winner, turn int, finalState json.RawMessage) error
	SaveActions(ctx context.Context, actions []model.ActionRecord) error
	ActionsByMatch(ctx context.Context, matchID string) ([]model.ActionRecord, error)
}

// MatchCache defines live match state operations (Redis).
type MatchCache interface {
	SetMatchState(ctx context.Context, matchID string, state json.RawMessage) error
	GetMatchState(ctx context.Context, matchID string) (json.RawMessage, error)
	PushEvent(ctx context.Context, matchID string, event json.RawMessage) error
	RecentEvents(ctx context.Context, matchID string, n int64) ([]json.RawMessage, error)
	SetTickTimer(ctx context.Context, matchID string, deadline time.Time) error
	ClearTickTimer(ctx context.Context, matchID string) error
	DeleteMatchData(ctx context.Context, matchID string) error
}
