package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// TimerListener drives autoplay matches. It listens for Redis keyspace
// notifications on expired tick timers and also polls the registry in
// case notifications are unavailable.
type TimerListener struct {
	rdb      *redis.Client
	matchSvc *MatchService
	poll     time.Duration
}

// NewTimerListener creates a TimerListener. rdb may be nil, leaving only
// the poller.
func NewTimerListener(rdb *redis.Client, matchSvc *MatchService) *TimerListener {
	return &TimerListener{rdb: rdb, matchSvc: matchSvc, poll: time.Second}
}

// Start begins listening for expired key events and runs the polling fallback.
func (t *TimerListener) Start(ctx context.Context) {
	if t.rdb != nil {
		go t.listenKeyspace(ctx)
	}
	t.pollDueMatches(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (t *TimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@0__:expired")
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

// pollDueMatches periodically plays autoplay turns that are overdue.
func (t *TimerListener) pollDueMatches(ctx context.Context) {
	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	log.Info().Dur("interval", t.poll).Msg("Autoplay poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Autoplay poller stopped")
			return
		case now := <-ticker.C:
			t.playDue(ctx, now)
		}
	}
}

func (t *TimerListener) playDue(ctx context.Context, now time.Time) {
	for _, id := range t.matchSvc.DueMatches(now) {
		if err := t.matchSvc.PlayTurn(ctx, id); err != nil {
			log.Error().Err(err).Str("matchId", id).Msg("Autoplay turn failed from poller")
		}
	}
}

// handleExpiry processes an expired key. Only acts on match timer keys.
func (t *TimerListener) handleExpiry(ctx context.Context, key string) {
	id, ok := timerMatchID(key)
	if !ok {
		return
	}
	log.Debug().Str("matchId", id).Msg("Tick timer expired, playing turn")
	if err := t.matchSvc.PlayTurn(ctx, id); err != nil {
		log.Error().Err(err).Str("matchId", id).Msg("Autoplay turn failed after timer expiry")
	}
}

// timerMatchID extracts the match ID from a "match:{id}:timer" key.
func timerMatchID(key string) (string, bool) {
	if !strings.HasPrefix(key, "match:") || !strings.HasSuffix(key, ":timer") {
		return "", false
	}
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
