package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rxtech-lab/indicator-bot/internal/broker"
	"github.com/rxtech-lab/indicator-bot/internal/clock"
	"github.com/rxtech-lab/indicator-bot/internal/config"
	"github.com/rxtech-lab/indicator-bot/internal/indicator"
	"github.com/rxtech-lab/indicator-bot/internal/journal"
	"github.com/rxtech-lab/indicator-bot/internal/logger"
	"github.com/rxtech-lab/indicator-bot/internal/metrics"
	"github.com/rxtech-lab/indicator-bot/internal/notify"
	"github.com/rxtech-lab/indicator-bot/internal/order"
	"github.com/rxtech-lab/indicator-bot/internal/session"
	indicatorsignal "github.com/rxtech-lab/indicator-bot/internal/signal"
	"github.com/rxtech-lab/indicator-bot/internal/trading"
	"github.com/rxtech-lab/indicator-bot/internal/version"
	"go.uber.org/zap"
)

// shutdownTimeout bounds draining notifications and stopping the status server.
const shutdownTimeout = 15 * time.Second

func run(ctx context.Context, cfg config.Config) error {
	log, err := logger.NewLoggerWithLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	symbol := cfg.Symbol.Symbol()
	clk := clock.New()

	notifier, err := buildNotifier(cfg, log)
	if err != nil {
		return err
	}

	async := notify.NewAsync(notifier, notify.AsyncConfig{
		QueueSize:   cfg.Notify.QueueSize,
		SendTimeout: notify.DefaultAsyncConfig().SendTimeout,
	}, log.Named("notify"))

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := async.Close(closeCtx); err != nil {
			log.Warn("Pending notifications were not delivered", zap.Error(err))
		}
	}()

	m := metrics.New()
	board := trading.NewStatusBoard(symbol)

	venue, err := broker.NewBroker(cfg.Provider, cfg.Binance)
	if err != nil {
		return fmt.Errorf("failed to create broker: %w", err)
	}

	guarded := broker.NewGuarded(venue, cfg.GuardedConfig(), trading.NewGuardedCallbacks(m, board, async, log.Named("broker")))

	var recorder trading.Journal

	if cfg.Journal.Enabled {
		j, sess, err := openJournal(cfg, clk.Now(), log)
		if err != nil {
			return err
		}

		recorder = j

		defer func() {
			if cfg.Journal.ExportParquet {
				if err := j.ExportParquet(sess.ExportPath()); err != nil {
					log.Warn("Failed to export journal", zap.Error(err))
				}
			}

			if err := j.Close(); err != nil {
				log.Warn("Failed to close journal", zap.Error(err))
			}
		}()
	}

	if cfg.Status.Enabled {
		server := metrics.NewServer(metrics.ServerConfig{
			Addr:       cfg.Status.Addr,
			StaleAfter: cfg.Status.StaleAfter,
		}, m, board, log.Named("status"))

		if _, err := server.Start(); err != nil {
			return err
		}

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn("Failed to stop status server", zap.Error(err))
			}
		}()
	}

	engine, err := indicator.NewEngine(cfg.IndicatorConfig())
	if err != nil {
		return err
	}

	evaluator, err := indicatorsignal.NewEvaluator(cfg.SignalConfig())
	if err != nil {
		return err
	}

	driver, err := trading.NewDriver(driverConfig(cfg), trading.Dependencies{
		Broker:    guarded,
		Engine:    engine,
		Evaluator: evaluator,
		Notifier:  async,
		Journal:   recorder,
		Metrics:   m,
		Board:     board,
		Clock:     clk,
		Logger:    log.Named("trading"),
	})
	if err != nil {
		return err
	}

	return driver.Run(ctx)
}

func driverConfig(cfg config.Config) trading.Config {
	driverConfig := trading.DefaultConfig(cfg.Symbol.Base, cfg.Symbol.Quote)
	driverConfig.Schedule = trading.Schedule{
		CycleMinutes: cfg.Schedule.CycleMinutes,
		ActiveSleep:  cfg.Schedule.ActiveSleep,
		IdleSleep:    cfg.Schedule.IdleSleep,
	}
	driverConfig.HeartbeatInterval = cfg.Schedule.HeartbeatInterval
	driverConfig.SeedLookback = cfg.Schedule.SeedLookback
	driverConfig.SeedStride = cfg.Schedule.SeedStride
	driverConfig.SeedRetries = cfg.Schedule.SeedRetries
	driverConfig.SeedBackoff = cfg.Schedule.SeedBackoff
	driverConfig.AdoptExistingBalance = cfg.AdoptExistingBalance
	driverConfig.MinimumCoin = cfg.Order.MinimumCoin
	driverConfig.Order = order.Config{
		Symbol:            cfg.Symbol.Symbol(),
		MinimumCash:       cfg.Order.MinimumCash,
		QuantityPrecision: cfg.Order.QuantityPrecision,
	}

	return driverConfig
}

// buildNotifier fans out to the log and every configured channel.
func buildNotifier(cfg config.Config, log *logger.Logger) (notify.Notifier, error) {
	notifiers := []notify.Notifier{notify.NewLog(log.Named("alert"))}

	if cfg.Notify.Telegram != nil {
		telegram, err := notify.NewTelegram(*cfg.Notify.Telegram)
		if err != nil {
			return nil, fmt.Errorf("failed to create telegram notifier: %w", err)
		}

		notifiers = append(notifiers, telegram)
	}

	if cfg.Notify.Webhook != nil {
		notifiers = append(notifiers, notify.NewWebhook(*cfg.Notify.Webhook, "indicator-bot"))
	}

	if cfg.Notify.SMTP != nil {
		notifiers = append(notifiers, notify.NewSMTP(*cfg.Notify.SMTP))
	}

	log.Info("Notifications configured", zap.Int("channels", len(notifiers)))

	return notify.NewMulti(notifiers...), nil
}

func openJournal(cfg config.Config, startedAt time.Time, log *logger.Logger) (*journal.Journal, *session.Session, error) {
	sess, err := session.Start(cfg.Journal.DataDir, startedAt, session.RunInfo{
		RunID:     "",
		RunName:   "",
		Symbol:    cfg.Symbol.Symbol(),
		Provider:  string(cfg.Provider),
		Version:   version.GetVersion(),
		StartedAt: startedAt,
	}, log.Named("session"))
	if err != nil {
		return nil, nil, err
	}

	j, err := journal.Open(sess.JournalPath())
	if err != nil {
		return nil, nil, err
	}

	return j, sess, nil
}
