package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/hexwar/internal/bot"
	"github.com/freeeve/hexwar/internal/logger"
)

func main() {
	url := flag.String("url", "http://localhost:3009", "server base URL")
	players := flag.Int("players", 2, "number of players (2-4)")
	brains := flag.String("brains", "", "brain config (e.g. 1=default,*=idle)")
	seed := flag.Int64("seed", 0, "board seed (0 = random)")
	autoplay := flag.Bool("autoplay", false, "let the server play the match on its timer")
	batch := flag.Int("batch", 20, "ticks per request when not autoplaying")
	timeout := flag.Duration("timeout", 2*time.Minute, "give up after this long without progress")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := "info"
	if *debug {
		level = "debug"
	}
	logger.Setup(logger.Options{Level: level, Out: os.Stderr, TimeFormat: "15:04:05"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	orch := bot.NewOrchestrator(*url, bot.OrchestratorConfig{
		Players:  *players,
		Brains:   *brains,
		Seed:     *seed,
		Autoplay: *autoplay,
		Batch:    *batch,
		Timeout:  *timeout,
	})
	m, err := orch.Run(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Bot orchestrator failed")
	}
	log.Info().Str("matchId", m.ID).Int("winner", m.Winner).Int("turn", m.Turn).Msg("Bot match completed")
}
