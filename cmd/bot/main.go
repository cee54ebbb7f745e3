// Package main contains the entrypoint for the webot application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mozi2244/webot/internal/bot"
	"github.com/mozi2244/webot/internal/command"
	"github.com/mozi2244/webot/internal/config"
	"github.com/mozi2244/webot/internal/deepseek"
	"github.com/mozi2244/webot/internal/dispatch"
	"github.com/mozi2244/webot/internal/logger"
	"github.com/mozi2244/webot/internal/onebot"
	"github.com/mozi2244/webot/internal/policy"
	"github.com/mozi2244/webot/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all application components (config, logger, stores,
// clients, dispatcher, orchestrator), starts the bot, and returns an exit
// code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Format == "json")
	log.Info("Logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	policyStore, err := policy.NewStore(cfg.Bot.PolicyFile, cfg.Bot.BootstrapUsers, log)
	if err != nil {
		log.Error("Failed to load policy store", "path", cfg.Bot.PolicyFile, "error", err)
		return 1
	}

	sessions := session.NewStore(cfg.Bot.MaxHistory, cfg.Bot.SessionTimeout, log)
	router := command.NewRouter(cfg.Bot.AdminID, policyStore, sessions, log)
	completion := deepseek.NewClient(cfg.AI, log)
	client := onebot.NewClient(cfg.OneBot, log)

	dispatcher := dispatch.NewDispatcher(router, sessions, policyStore, completion, cfg.AI.DefaultPrompt, log)

	app, err := bot.New(log, cfg, client, dispatcher, sessions)
	if err != nil {
		log.Error("Failed to initialize bot", "error", err)
		return 1
	}

	log.Info("Starting bot...", "api_url", cfg.OneBot.APIURL)
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Bot stopped due to error", "error", err)
		return 1
	}
	return 0
}
