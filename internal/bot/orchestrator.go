package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// OrchestratorConfig describes a match to drive on a remote server.
type OrchestratorConfig struct {
	Name     string
	Players  int
	Brains   string
	Seed     int64
	Autoplay bool          // let the server's timer play it instead of ticking
	Batch    int           // ticks per request when not autoplaying
	Timeout  time.Duration // give up if no event arrives for this long
}

// Orchestrator creates a match on a hexwar server and follows it to the end.
type Orchestrator struct {
	baseURL string
	cfg     OrchestratorConfig
	client  *Client
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(baseURL string, cfg OrchestratorConfig) *Orchestrator {
	if cfg.Batch <= 0 {
		cfg.Batch = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Name == "" {
		cfg.Name = "Bot Match"
	}
	return &Orchestrator{baseURL: baseURL, cfg: cfg}
}

// Run logs in, creates the match, subscribes to it and plays it out. It
// returns the final match record.
func (o *Orchestrator) Run(ctx context.Context) (*RemoteMatch, error) {
	log.Info().Str("server", o.baseURL).Int("players", o.cfg.Players).Bool("autoplay", o.cfg.Autoplay).Msg("Starting remote match")

	o.client = NewClient("orchestrator", o.baseURL)
	if err := o.client.Login(); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if err := o.client.ConnectWS(); err != nil {
		return nil, fmt.Errorf("ws connect: %w", err)
	}
	defer o.client.CloseWS()

	m, err := o.client.CreateMatch(o.cfg.Name, o.cfg.Players, o.cfg.Brains, o.cfg.Seed, o.cfg.Autoplay)
	if err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	log.Info().Str("matchId", m.ID).Msg("Match created")

	if err := o.client.SubscribeMatch(m.ID); err != nil {
		return nil, fmt.Errorf("ws subscribe: %w", err)
	}

	if o.cfg.Autoplay {
		return o.awaitEnd(ctx, m.ID)
	}
	return o.tickLoop(ctx, m.ID)
}

// tickLoop advances a manual match batch by batch until it finishes.
func (o *Orchestrator) tickLoop(ctx context.Context, matchID string) (*RemoteMatch, error) {
	for {
		if err := ctx.Err(); err != nil {
			log.Info().Msg("Context cancelled, stopping")
			return nil, err
		}
		out, err := o.client.Tick(matchID, o.cfg.Batch)
		if err != nil {
			return nil, fmt.Errorf("tick: %w", err)
		}
		o.drainEvents()
		log.Debug().Int("turn", out.Match.Turn).Int("current", out.Match.Current).Int("actions", len(out.Results)).Msg("Batch played")
		if out.Match.Status == "finished" {
			log.Info().Int("winner", out.Match.Winner).Int("turn", out.Match.Turn).Msg("Match ended")
			return &out.Match, nil
		}
	}
}

// drainEvents logs whatever the server pushed since the last batch.
func (o *Orchestrator) drainEvents() {
	for {
		select {
		case ev, ok := <-o.client.Events():
			if !ok {
				return
			}
			log.Debug().Str("type", ev.Type).Interface("data", ev.Data).Msg("Event")
		default:
			return
		}
	}
}

// pollInterval is how often awaitEnd checks the match record. A short
// autoplay match can end before the subscription lands, and a finished
// match has no events left to replay.
const pollInterval = 5 * time.Second

// awaitEnd waits for the server to finish an autoplay match.
func (o *Orchestrator) awaitEnd(ctx context.Context, matchID string) (*RemoteMatch, error) {
	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	idle := time.NewTimer(o.cfg.Timeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-idle.C:
			return nil, fmt.Errorf("match %s: no progress in %s", matchID, o.cfg.Timeout)
		case ev, ok := <-o.client.Events():
			if !ok {
				return nil, fmt.Errorf("ws connection closed")
			}
			if ev.Type == "match_ended" {
				log.Info().Interface("winner", ev.Data["winner"]).Msg("Match ended")
				return o.client.GetMatch(matchID)
			}
			log.Debug().Str("type", ev.Type).Msg("Event")
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(o.cfg.Timeout)
		case <-poll.C:
			m, err := o.client.GetMatch(matchID)
			if err != nil {
				return nil, err
			}
			if m.Status == "finished" {
				return m, nil
			}
		}
	}
}
