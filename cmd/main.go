package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"price-alert-bot/config"
	"price-alert-bot/internal/alert"
	"price-alert-bot/internal/commands"
	"price-alert-bot/internal/database"
	"price-alert-bot/internal/market"
	"price-alert-bot/internal/metrics"
	"price-alert-bot/internal/notify"
	"price-alert-bot/internal/price"
	"price-alert-bot/internal/resolver"
	"price-alert-bot/internal/telegram"
	"price-alert-bot/lib/translation"
)

func init() {
	config.InitConfig()
	setupLogging()
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	if raw := config.GetString("log_level"); raw != "" {
		level, err := log.ParseLevel(raw)
		if err != nil {
			log.Warnf("ignoring LOG_LEVEL %q: %v", raw, err)
		} else {
			log.SetLevel(level)
		}
	}
	log.Debug("Starting telegram bot...")
}

func openStore(db *database.DB) database.Store {
	if config.GetString("store_backend") == "sqlite" {
		return database.NewSQLiteStore(db)
	}
	return database.NewFileStore(config.GetString("data_file"))
}

func run() error {
	if err := config.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	allowed, err := config.AllowedChatIDs()
	if err != nil {
		return err
	}

	translation.Configure(config.GetString("locales_dir"), config.GetString("bot_lang"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(config.GetString("db_path"))
	if err != nil {
		return errors.Wrap(err, "failed to initialize database")
	}
	defer db.Close()

	m := metrics.New(prometheus.DefaultRegisterer)
	m.Load(db)

	markets := market.NewDefaultSet(&market.Options{
		Timeout:           config.GetDuration("provider_timeout"),
		RequestsPerSecond: config.GetFloat64("provider_rps"),
	})
	prices := price.NewService(markets,
		price.NewCache(config.GetDuration("price_cache_ttl"), nil),
		config.GetDuration("provider_timeout"), m)
	res := resolver.New(prices, config.GetInt("fetch_concurrency"))

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          config.GetString("telegram_bot_token"),
		Debug:          config.GetBool("debug"),
		UpdatesTimeout: 60,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create bot")
	}
	log.Infof("Authorized on account %s", bot.Bot.Self.UserName)

	notifier := notify.New(telegram.NewTransport(bot), notify.Options{
		Repeat:      config.GetInt("alarm_repeat"),
		Gap:         config.GetDuration("alarm_gap"),
		MaxAttempts: config.GetInt("send_max_attempts"),
		SendRate:    config.GetFloat64("send_rate"),
	}, m)
	defer notifier.Close()

	svc := alert.NewService(openStore(db), res, notifier, m)
	if dropped, err := svc.Migrate(ctx); err != nil {
		return errors.Wrap(err, "failed to load alerts")
	} else if dropped > 0 {
		log.Warnf("Dropped %d unusable alert records.", dropped)
	}

	engine := alert.NewEngine(svc, prices, alert.Options{
		Interval:           config.GetDuration("check_interval"),
		MaxConcurrentTicks: int64(config.GetInt("max_concurrent_ticks")),
		FetchConcurrency:   config.GetInt("fetch_concurrency"),
		Policy: alert.Policy{
			Gap:      decimal.NewFromFloat(config.GetFloat64("rearm_gap_pct")),
			Cooldown: config.GetDuration("alarm_cooldown"),
		},
		Format: commands.FormatAlert,
	})

	cmds := commands.New(svc, res, commands.NewPaprika(config.GetString("api_pro_key"), nil))
	handler := telegram.NewHandler(bot, cmds, allowed, m, 0)
	if err := bot.SetCommands(commands.Menu()); err != nil {
		log.Warn(err)
	}

	updates, err := bot.GetUpdatesChannel()
	if err != nil {
		return errors.Wrap(err, "failed to get updates channel")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return engine.Run(gctx)
	})
	g.Go(func() error {
		handler.Run(gctx, updates)
		return nil
	})
	g.Go(func() error {
		return metrics.Serve(gctx, config.GetInt("metrics_port"), prometheus.DefaultGatherer)
	})
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := m.Save(db); err != nil {
					log.Errorf("Failed to save metrics: %v", err)
				}
			}
		}
	})

	<-gctx.Done()
	bot.StopUpdates()
	err = g.Wait()

	if serr := m.Save(db); serr != nil {
		log.Errorf("Failed to save metrics: %v", serr)
	} else {
		log.Info("Metrics saved, shutting down...")
	}
	return err
}
