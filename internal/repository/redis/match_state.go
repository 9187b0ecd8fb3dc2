package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key patterns for Redis match state.
func stateKey(matchID string) string  { return "match:" + matchID + ":state" }
func eventsKey(matchID string) string { return "match:" + matchID + ":events" }
func timerKey(matchID string) string  { return "match:" + matchID + ":timer" }

// maxEvents is how many recent events are kept per match for late spectators.
const maxEvents = 200

// timerGracePeriod lets the key outlive the deadline slightly so expiry
// never fires before the turn is due.
const timerGracePeriod = 100 * time.Millisecond

// stateTTL expires snapshots of matches that were abandoned without
// finishing.
const stateTTL = 7 * 24 * time.Hour

// SetMatchState stores the live match snapshot.
func (c *Client) SetMatchState(ctx context.Context, matchID string, state json.RawMessage) error {
	return c.rdb.Set(ctx, stateKey(matchID), []byte(state), stateTTL).Err()
}

// GetMatchState retrieves the live match snapshot, nil if there is none.
func (c *Client) GetMatchState(ctx context.Context, matchID string) (json.RawMessage, error) {
	data, err := c.rdb.Get(ctx, stateKey(matchID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get match state: %w", err)
	}
	return json.RawMessage(data), nil
}

// PushEvent prepends an event to the match's capped event list.
func (c *Client) PushEvent(ctx context.Context, matchID string, event json.RawMessage) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, eventsKey(matchID), []byte(event))
		pipe.LTrim(ctx, eventsKey(matchID), 0, maxEvents-1)
		pipe.Expire(ctx, eventsKey(matchID), stateTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}

// RecentEvents returns up to n of the latest events, oldest first.
func (c *Client) RecentEvents(ctx context.Context, matchID string, n int64) ([]json.RawMessage, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := c.rdb.LRange(ctx, eventsKey(matchID), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	out := make([]json.RawMessage, len(vals))
	for i, v := range vals {
		out[len(vals)-1-i] = json.RawMessage(v)
	}
	return out, nil
}

// SetTickTimer creates a timer key with a TTL. When the key expires,
// Redis keyspace notifications trigger the next autoplay turn.
func (c *Client) SetTickTimer(ctx context.Context, matchID string, deadline time.Time) error {
	ttl := time.Until(deadline) + timerGracePeriod
	if ttl <= 0 {
		ttl = timerGracePeriod
	}
	return c.rdb.Set(ctx, timerKey(matchID), deadline.UnixMilli(), ttl).Err()
}

// ClearTickTimer removes the timer for a match.
func (c *Client) ClearTickTimer(ctx context.Context, matchID string) error {
	return c.rdb.Del(ctx, timerKey(matchID)).Err()
}

// DeleteMatchData removes every key of a finished match.
func (c *Client) DeleteMatchData(ctx context.Context, matchID string) error {
	return c.rdb.Del(ctx, stateKey(matchID), eventsKey(matchID), timerKey(matchID)).Err()
}
