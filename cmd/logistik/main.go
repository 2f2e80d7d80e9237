// Package main is a small operational tool over the back-office API:
// list categories at or below their reorder point, or print the dashboard
// stat cards.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/jofan-cah/logistik-core/internal/api"
	appctx "github.com/jofan-cah/logistik-core/internal/core/context"
	"github.com/jofan-cah/logistik-core/internal/domain/category"
	"github.com/jofan-cah/logistik-core/internal/domain/dashboard"
	"github.com/jofan-cah/logistik-core/pkg/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	client, err := buildClient()
	if err != nil {
		log.Fatalw("failed to build api client", "error", err)
	}

	switch os.Args[1] {
	case "low-stock":
		err = runLowStock(ctx, client)
	case "dashboard":
		err = runDashboard(ctx, client)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalw("command failed", "command", os.Args[1], "error", err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: logistik <low-stock|dashboard>")
}

func buildClient() (*api.Client, error) {
	cfg := api.Config{
		BaseURL: mustEnv("API_BASE_URL"),
		Timeout: getEnvDuration("API_TIMEOUT", 30*time.Second),
	}
	if token := os.Getenv("API_TOKEN"); token != "" {
		src, err := api.NewStaticTokenSource(token)
		if err != nil {
			return nil, err
		}
		cfg.TokenSource = src
	}
	return api.New(cfg)
}

// runLowStock walks every category page and prints the ones at or below
// their reorder point.
func runLowStock(ctx context.Context, client *api.Client) error {
	categories := client.Categories()
	tracked := true
	low := true
	query := category.Query{HasStock: &tracked, LowStock: &low}

	page := 1
	count := 0
	for {
		result, err := categories.List(ctx, query, page, 50)
		if err != nil {
			return err
		}
		for _, cat := range result.Items {
			fmt.Printf("%-4s %-30s stock %d / reorder at %d (%s)\n",
				cat.Code, cat.Name, cat.CurrentStock, cat.ReorderPoint, cat.Unit)
			count++
		}
		if !result.Pagination.HasNext {
			break
		}
		page++
	}
	fmt.Printf("%d categories at or below reorder point\n", count)
	return nil
}

// runDashboard prints the stat card row the back-office header shows.
func runDashboard(ctx context.Context, client *api.Client) error {
	stats, err := client.Dashboard().Stats(ctx)
	if err != nil {
		return err
	}
	for _, card := range dashboard.FormatStatCards(stats) {
		fmt.Printf("%-22s %s\n", card.Label, card.Value)
	}
	return nil
}

// --- env helpers ---

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		fmt.Fprintf(os.Stderr, "missing required environment variable %s\n", key)
		os.Exit(1)
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
