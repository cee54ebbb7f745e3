// Package bot implements the core bot lifecycle: the event poll loop, the
// bounded per-event worker group, and the background sweep scheduler.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mozi2244/webot/internal/config"
	"github.com/mozi2244/webot/internal/dispatch"
	"github.com/mozi2244/webot/internal/logger"
	"github.com/mozi2244/webot/internal/onebot"
	"github.com/mozi2244/webot/internal/session"
)

// Bot ties the transport, dispatcher, and scheduler together and manages
// their lifecycle.
type Bot struct {
	logger     *slog.Logger
	cfg        *config.Config
	client     *onebot.Client
	dispatcher *dispatch.Dispatcher
	sessions   *session.Store
	scheduler  *Scheduler
}

// New creates the bot orchestrator. The session sweep task is registered
// here so the scheduler shares the same store the dispatcher mutates.
func New(
	log *slog.Logger,
	cfg *config.Config,
	client *onebot.Client,
	dispatcher *dispatch.Dispatcher,
	sessions *session.Store,
) (*Bot, error) {
	b := &Bot{
		logger:     log.With("component", "bot"),
		cfg:        cfg,
		client:     client,
		dispatcher: dispatcher,
		sessions:   sessions,
	}

	sched, err := NewScheduler(log, []Task{
		{
			Name:     "session_sweep",
			Interval: cfg.Bot.SweepInterval,
			Run:      b.sweepSessions,
		},
	})
	if err != nil {
		return nil, err
	}
	b.scheduler = sched
	return b, nil
}

// Run starts the bot and blocks until the context is cancelled or a
// component fails. Failure to reach the OneBot API at startup aborts the
// run; it is the only process-level failure.
func (b *Bot) Run(ctx context.Context) error {
	info, err := b.client.GetSelfInfo(ctx)
	if err != nil {
		return fmt.Errorf("cannot reach OneBot API: %w", err)
	}
	b.logger.Info("Connected to OneBot API",
		"bot_user_id", info.UserID, "bot_user_name", info.UserName)

	b.snapshotFriendList(ctx)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return b.pollLoop(gCtx)
	})

	g.Go(func() error {
		if err := b.scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		<-gCtx.Done()
		if err := b.scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	b.logger.Info("Bot stopped gracefully")
	return nil
}

// pollLoop pulls event batches from the OneBot API and hands each event to
// a bounded worker group. On shutdown it stops polling and waits for
// in-flight handlers to finish naturally.
func (b *Bot) pollLoop(ctx context.Context) error {
	workers := &errgroup.Group{}
	workers.SetLimit(b.cfg.Bot.MaxRoutines)

	pollTimeout := int(b.cfg.OneBot.PollTimeout / time.Second)

	for ctx.Err() == nil {
		events, err := b.client.GetLatestEvents(ctx, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			b.logger.Error("Failed to fetch events", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(b.cfg.OneBot.ErrorBackoff):
			}
			continue
		}

		for _, ev := range events {
			ev := ev
			workers.Go(func() error {
				// In-flight handlers are allowed to finish their outbound
				// calls during shutdown instead of being aborted mid-write.
				b.handleEvent(context.WithoutCancel(ctx), &ev)
				return nil
			})
		}

		// Pause a full interval after every cycle, slow ones included, so
		// a long poll never rolls straight into the next request.
		select {
		case <-ctx.Done():
		case <-time.After(b.cfg.OneBot.PollInterval):
		}
	}

	b.logger.Info("Poll loop stopping, waiting for in-flight handlers")
	_ = workers.Wait()
	return ctx.Err()
}

// handleEvent dispatches one event and delivers the reply, if any.
func (b *Bot) handleEvent(ctx context.Context, ev *onebot.Event) {
	reply := b.dispatcher.HandleEvent(ctx, ev)
	if reply == nil {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, b.cfg.OneBot.RequestTimeout)
	defer cancel()

	if err := b.client.SendMessage(sendCtx, reply); err != nil {
		b.logger.ErrorContext(ctx, "Failed to deliver reply",
			"user_id", reply.UserID, "error", err)
		return
	}
	b.logger.InfoContext(ctx, "Reply delivered",
		"user_id", reply.UserID,
		"text_preview", logger.TruncateForLog(reply.PlainText(), 50))
}

// sweepSessions reclaims expired conversation sessions.
func (b *Bot) sweepSessions(ctx context.Context) error {
	purged := b.sessions.SweepExpired()
	if purged > 0 {
		b.logger.InfoContext(ctx, "Cleared expired sessions", "count", purged)
	}
	return nil
}

// snapshotFriendList fetches the friend list and writes the raw payload to
// the data directory. Best effort: failures are logged and do not block
// startup.
func (b *Bot) snapshotFriendList(ctx context.Context) {
	friends, err := b.client.GetFriendList(ctx)
	if err != nil {
		b.logger.Warn("Failed to fetch friend list", "error", err)
		return
	}

	if err := os.MkdirAll(b.cfg.Bot.DataDir, 0o755); err != nil {
		b.logger.Warn("Failed to create data directory", "path", b.cfg.Bot.DataDir, "error", err)
		return
	}

	path := filepath.Join(b.cfg.Bot.DataDir, "friends.json")
	if err := os.WriteFile(path, friends, 0o644); err != nil {
		b.logger.Warn("Failed to write friend list snapshot", "path", path, "error", err)
		return
	}
	b.logger.Info("Friend list snapshot saved", "path", path)
}
