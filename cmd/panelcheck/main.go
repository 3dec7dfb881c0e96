package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"vpn-shop-bot/internal/config"
	"vpn-shop-bot/internal/panel"
	"vpn-shop-bot/internal/storage"
	"vpn-shop-bot/pkg/marzban"
	"vpn-shop-bot/pkg/xui"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to the YAML config file")
	username := flag.String("user", "", "panel username (3x-ui email) to show usage for")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	panels, err := store.ListPanels(ctx)
	if err != nil {
		log.Fatalf("Failed to list panels: %v", err)
	}

	fmt.Printf("Found %d panels\n\n", len(panels))

	for _, p := range panels {
		fmt.Printf("=== Panel %d (%s, %s) ===\n", p.ID, p.Name, p.PanelType)
		if !p.Active {
			fmt.Println("inactive, skipped")
			fmt.Println()
			continue
		}

		kind, err := panel.ParseKind(p.PanelType)
		if err != nil {
			fmt.Printf("ERROR: %v\n\n", err)
			continue
		}

		switch kind {
		case panel.KindXUI:
			checkXUI(ctx, p, *username)
		case panel.KindMarzban:
			checkMarzban(ctx, p, *username)
		}
		fmt.Println()
	}
}

func checkXUI(ctx context.Context, p *storage.Panel, username string) {
	api := xui.NewClient(p.URL, p.Username, p.Password)
	if err := api.Login(ctx); err != nil {
		fmt.Printf("ERROR login: %v\n", err)
		return
	}

	inbounds, err := api.GetInbounds(ctx)
	if err != nil {
		fmt.Printf("ERROR getting inbounds: %v\n", err)
		return
	}
	for _, in := range inbounds {
		clients, err := in.Clients()
		if err != nil {
			fmt.Printf("  inbound %d (%s): bad settings: %v\n", in.ID, in.Remark, err)
			continue
		}
		fmt.Printf("  inbound %d (%s) %s:%d enabled=%t clients=%d\n",
			in.ID, in.Remark, in.Protocol, in.Port, in.Enable, len(clients))
	}

	if username == "" {
		return
	}
	traffic, err := api.GetClientTraffics(ctx, username)
	if err != nil {
		fmt.Printf("ERROR getting traffic for %s: %v\n", username, err)
		return
	}
	fmt.Printf("  %s: inbound=%d up=%s down=%s total=%s expires=%s\n",
		username, traffic.InboundID, gb(traffic.Up), gb(traffic.Down), gb(traffic.Total), millis(traffic.ExpiryTime))
}

func checkMarzban(ctx context.Context, p *storage.Panel, username string) {
	api := marzban.NewClient(p.URL, p.Username, p.Password)
	if err := api.Login(ctx); err != nil {
		fmt.Printf("ERROR login: %v\n", err)
		return
	}
	fmt.Println("  login ok")

	if username == "" {
		return
	}
	u, err := api.GetUser(ctx, username)
	if err != nil {
		fmt.Printf("ERROR getting user %s: %v\n", username, err)
		return
	}
	expires := "never"
	if t := u.ExpiresAt(); !t.IsZero() {
		expires = t.Format(time.RFC3339)
	}
	fmt.Printf("  %s: status=%s used=%s limit=%s expires=%s\n",
		u.Username, u.Status, gb(u.UsedTraffic), gb(u.DataLimit), expires)
}

func gb(bytes int64) string {
	if bytes == 0 {
		return "0"
	}
	return fmt.Sprintf("%.2fGB", float64(bytes)/(1<<30))
}

func millis(ms int64) string {
	if ms <= 0 {
		return "never"
	}
	return time.UnixMilli(ms).Format(time.RFC3339)
}
