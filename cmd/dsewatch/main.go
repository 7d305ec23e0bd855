// dsewatch — Dhaka Stock Exchange market-data service
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rkabir/dsewatch/api"
	"github.com/rkabir/dsewatch/internal/config"
	"github.com/rkabir/dsewatch/internal/scrape"
	"github.com/rkabir/dsewatch/internal/store"
	"github.com/rkabir/dsewatch/pkg/utils"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dsewatch",
	Short: "dsewatch — Dhaka Stock Exchange market-data service",
	Long: `dsewatch scrapes the public DSE website, normalizes quotes,
fundamentals and price history, and serves them over a JSON API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(quoteCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("dsewatch %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		fmt.Printf("dsewatch %s listening on %s (market: %s)\n", version, addr, utils.MarketStatus())
		return api.NewServer(cfg).ListenAndServe(addr)
	},
}

// --- Snapshot Command ---

// snapshotCmd captures today's market snapshot into the daily-bar store.
// Meant to run once per trading day shortly after the session close.
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture today's market snapshot into the daily bar store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		dse := scrape.NewDSEWithOptions(scrape.Options{BaseURL: cfg.DSE.BaseURL})
		snap, err := dse.MarketSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("market snapshot: %w", err)
		}

		bars := make([]store.DailyBar, 0, len(snap.Stocks))
		today := utils.FormatDateBDT(utils.NowBDT())
		for _, raw := range snap.Stocks {
			// After close CloseP is the authoritative close; YCP stands in
			// for the open, which the scroll page does not publish.
			bars = append(bars, store.DailyBar{
				Symbol: raw.Symbol,
				Date:   today,
				Open:   raw.YCP,
				High:   raw.High,
				Low:    raw.Low,
				Close:  raw.CloseP,
				Volume: raw.Volume,
			})
		}

		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.UpsertAll(ctx, bars); err != nil {
			return err
		}
		fmt.Printf("stored %d bars for %s\n", len(bars), today)
		return nil
	},
}

// --- Quote Command ---

var quoteCmd = &cobra.Command{
	Use:   "quote [symbol]",
	Short: "Print the live quote for a trading code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
		defer cancel()

		dse := scrape.NewDSEWithOptions(scrape.Options{BaseURL: cfg.DSE.BaseURL})
		snap, err := dse.MarketSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("market snapshot: %w", err)
		}

		symbol := strings.ToUpper(strings.TrimSpace(args[0]))
		marketOpen := utils.IsMarketOpen()
		for _, raw := range snap.Stocks {
			if raw.Symbol != symbol {
				continue
			}
			st := scrape.ComputeStock(raw, marketOpen)
			fmt.Printf("%s (%s)\n", st.Symbol, st.Name)
			fmt.Printf("  LTP:     %.2f\n", st.LTP)
			fmt.Printf("  Change:  %.2f (%.2f%%)\n", st.Change, st.ChangePercent)
			fmt.Printf("  High:    %.2f  Low: %.2f\n", st.High, st.Low)
			fmt.Printf("  Volume:  %d  Trades: %d\n", st.Volume, st.Trades)
			fmt.Printf("  Market:  %s\n", utils.MarketStatus())
			return nil
		}
		return fmt.Errorf("symbol %s not found in snapshot", symbol)
	},
}
