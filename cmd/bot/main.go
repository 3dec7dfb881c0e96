package main

import (
	"context"
	"flag"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"vpn-shop-bot/internal/bot"
	"vpn-shop-bot/internal/bot/middleware"
	"vpn-shop-bot/internal/bot/services"
	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/internal/loyalty"
	"vpn-shop-bot/internal/panel"
	"vpn-shop-bot/internal/renewal"
	"vpn-shop-bot/internal/shutdown"
	"vpn-shop-bot/internal/storage"
	"vpn-shop-bot/internal/wallet"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.GetLogger().FatalErr(err, "Failed to load configuration")
	}

	log := logger.Init(cfg.Log.Level, cfg.Log.Pretty)

	loc, err := time.LoadLocation(cfg.Jobs.Timezone)
	if err != nil {
		log.Warnf("Unknown timezone %q, using UTC", cfg.Jobs.Timezone)
		loc = time.UTC
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		log.FatalErr(err, "Failed to open database")
	}

	tgBot, err := bot.NewTelegoBot(cfg.Telegram, log)
	if err != nil {
		_ = store.Close()
		log.FatalErr(err, "Failed to create Telegram client")
	}

	walletService := wallet.NewService(store.DB(), log)
	loyaltyService := loyalty.NewService(store.DB(), loyalty.Options{
		DailyLoginPoints: cfg.Loyalty.DailyLoginPoints,
		BirthdayPoints:   cfg.Loyalty.BirthdayPoints,
		TomanPerPoint:    cfg.Loyalty.TomanPerPoint,
		Location:         loc,
	}, log)

	panels := panel.NewRegistry(store, log)
	renewals := renewal.NewService(store, panels, log)
	provisioner := renewal.NewProvisioner(store, panels, renewals, walletService, loyaltyService, log)
	provisioner.SetNotifier(services.NewLogNotifier(tgBot, cfg.LogChats(), log))

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.MaxRequestsPerMinute, cfg.RateLimit.Burst)
	broadcast := services.NewBroadcastService(store, tgBot, log)
	backup := services.NewBackupService(store, tgBot, cfg.Telegram.AdminIDs, cfg.Database.BackupDir, log)

	window, err := services.SpecInterval(cfg.Jobs.ExpirySpec, loc)
	if err != nil {
		_ = store.Close()
		log.FatalErr(err, "Invalid expiry schedule")
	}
	expiry := services.NewExpiryNotifierService(store, tgBot, log, cfg.Jobs.ExpiryWarnDays, window)

	scheduler := services.NewScheduler(loc, log.Component("scheduler"))
	jobs := []struct {
		name string
		spec string
		job  services.Job
	}{
		{"backup", cfg.Jobs.BackupSpec, func(ctx context.Context) error {
			_, err := backup.PerformBackup(ctx)
			return err
		}},
		{"expiry", cfg.Jobs.ExpirySpec, func(ctx context.Context) error {
			n, err := expiry.CheckAndNotify(ctx)
			if n > 0 {
				log.Infof("Sent %d expiry warnings", n)
			}
			return err
		}},
		{"state_cleanup", cfg.Jobs.CleanupSpec, services.StateCleanupJob(store, rateLimiter,
			time.Duration(cfg.Jobs.StateMaxAgeHours)*time.Hour, log)},
	}
	for _, j := range jobs {
		if err := scheduler.Add(j.name, j.spec, j.job); err != nil {
			_ = store.Close()
			log.FatalErr(err, "Failed to schedule job")
		}
	}

	b := bot.NewBot(bot.Deps{
		Config:      cfg,
		Telegram:    tgBot,
		Logger:      log,
		Store:       store,
		States:      store,
		Wallet:      walletService,
		Loyalty:     loyaltyService,
		Panels:      panels,
		Provisioner: provisioner,
		Broadcast:   broadcast,
		Backup:      backup,
		RateLimiter: rateLimiter,
	})

	manager := shutdown.NewManager(log, 30*time.Second)
	manager.Register("database", func(context.Context) error {
		return store.Close()
	})

	log.Info("Bot started successfully")
	err = manager.Run(context.Background(), func(ctx context.Context) error {
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return b.Run(ctx) })
		g.Go(func() error { return scheduler.Run(ctx) })
		return g.Wait()
	})
	if err != nil {
		log.ErrorErr(err, "Bot stopped with error")
		os.Exit(1)
	}
	log.Info("Bot stopped")
}
