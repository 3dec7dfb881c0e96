package bot

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpproxy"

	"vpn-shop-bot/internal/bot/middleware"
	"vpn-shop-bot/internal/bot/services"
	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/logger"
	"vpn-shop-bot/internal/loyalty"
	"vpn-shop-bot/internal/panel"
	"vpn-shop-bot/internal/renewal"
	"vpn-shop-bot/internal/storage"
	"vpn-shop-bot/internal/wallet"
)

// Store is the catalog the handlers read and write
type Store interface {
	UpsertUser(ctx context.Context, u *storage.User) error
	ListActivePlans(ctx context.Context) ([]*storage.Plan, error)
	GetPlan(ctx context.Context, id int64) (*storage.Plan, error)
	AddPlan(ctx context.Context, p *storage.Plan) (int64, error)
	GetPanel(ctx context.Context, id int64) (*storage.Panel, error)
	ListPanels(ctx context.Context) ([]*storage.Panel, error)
	GetOrder(ctx context.Context, id int64) (*storage.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]*storage.Order, error)
	CountOrders(ctx context.Context) (map[string]int, error)
}

// Deps are the collaborators a Bot dispatches to
type Deps struct {
	Config      *config.Config
	Telegram    *telego.Bot
	Logger      *logger.Logger
	Store       Store
	States      storage.StateStore
	Wallet      *wallet.Service
	Loyalty     *loyalty.Service
	Panels      *panel.Registry
	Provisioner *renewal.Provisioner
	Broadcast   *services.BroadcastService
	Backup      *services.BackupService
	RateLimiter *middleware.RateLimiter
}

// Bot represents the Telegram bot
type Bot struct {
	config   *config.Config
	bot      *telego.Bot
	handler  *th.BotHandler
	logger   *logger.Logger
	store    Store
	states   storage.StateStore
	wallet   *wallet.Service
	loyalty  *loyalty.Service
	panels   *panel.Registry
	shop     *renewal.Provisioner

	authMiddleware      *middleware.AuthMiddleware
	rateLimiter         *middleware.RateLimiter
	recovery            *middleware.Recovery
	broadcastService    *services.BroadcastService
	backupService       *services.BackupService
	subscriptionService *services.SubscriptionService
}

// NewTelegoBot creates a telego bot, through a SOCKS5 proxy or a custom API server when configured
func NewTelegoBot(cfg config.TelegramConfig, log *logger.Logger) (*telego.Bot, error) {
	if cfg.Proxy != "" {
		if !strings.HasPrefix(cfg.Proxy, "socks5://") {
			log.Warn("Invalid socks5 URL, using direct connection")
			return telego.NewBot(cfg.Token)
		}
		if _, err := url.Parse(cfg.Proxy); err != nil {
			log.Warnf("Can't parse proxy URL, using direct connection: %v", err)
			return telego.NewBot(cfg.Token)
		}
		return telego.NewBot(cfg.Token, telego.WithFastHTTPClient(&fasthttp.Client{
			Dial: fasthttpproxy.FasthttpSocksDialer(cfg.Proxy),
		}))
	}

	if cfg.APIServer != "" {
		if !strings.HasPrefix(cfg.APIServer, "http") {
			log.Warn("Invalid API server URL, using default")
			return telego.NewBot(cfg.Token)
		}
		return telego.NewBot(cfg.Token, telego.WithAPIServer(cfg.APIServer))
	}

	return telego.NewBot(cfg.Token)
}

// NewBot creates a new Bot instance
func NewBot(d Deps) *Bot {
	limiter := d.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(d.Config.RateLimit.MaxRequestsPerMinute, d.Config.RateLimit.Burst)
	}
	log := d.Logger.Component("bot")

	return &Bot{
		config:              d.Config,
		bot:                 d.Telegram,
		logger:              log,
		store:               d.Store,
		states:              d.States,
		wallet:              d.Wallet,
		loyalty:             d.Loyalty,
		panels:              d.Panels,
		shop:                d.Provisioner,
		authMiddleware:      middleware.NewAuthMiddleware(d.Config),
		rateLimiter:         limiter,
		recovery:            middleware.NewRecovery(log),
		broadcastService:    d.Broadcast,
		backupService:       d.Backup,
		subscriptionService: services.NewSubscriptionService(),
	}
}

// Run polls for updates and dispatches them until ctx is cancelled
func (b *Bot) Run(ctx context.Context) error {
	b.setCommands(ctx)

	updates, err := b.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: 30,
	})
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.bot, updates)
	if err != nil {
		return fmt.Errorf("failed to create update handler: %w", err)
	}
	b.handler = handler

	handler.Use(b.recovery.Handler())

	// Handle commands
	handler.HandleMessage(b.handleCommand, th.AnyCommand())

	// Handle text messages (keyboard buttons) and receipts
	handler.HandleMessage(b.handleTextMessage, th.AnyMessage())

	// Handle callback queries
	handler.HandleCallbackQuery(b.handleCallback, th.AnyCallbackQueryWithMessage())

	go func() {
		<-ctx.Done()
		b.Stop()
	}()

	b.logger.Info("Bot started")
	handler.Start()
	b.logger.Info("Bot stopped")
	return nil
}

// Stop stops the update handler
func (b *Bot) Stop() {
	if b.handler != nil {
		b.handler.Stop()
	}
}

func (b *Bot) setCommands(ctx context.Context) {
	err := b.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: []telego.BotCommand{
			{Command: "start", Description: "شروع"},
			{Command: "buy", Description: "خرید سرویس"},
			{Command: "services", Description: "سرویس‌های من"},
			{Command: "wallet", Description: "کیف پول"},
			{Command: "points", Description: "امتیازها و سطح وفاداری"},
			{Command: "birthday", Description: "ثبت تاریخ تولد (MM-DD)"},
			{Command: "help", Description: "راهنما"},
		},
	})
	if err != nil {
		b.logger.Warnf("Failed to set bot commands: %v", err)
	}
}
