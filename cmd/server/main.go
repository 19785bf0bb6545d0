// Command server runs the classroom trading simulator: the read API, the
// clock scheduler, and the sqlite-backed historical and room stores.
//
// Boot sequence (serve):
//  1. config.Load()        – hydrate runtime Config from the process env
//  2. logging.New(level)   – build the base zerolog logger
//  3. wire historicalstore / gameslice / room / scheduler
//  4. start the Prometheus metrics server on cfg.MetricsAddr
//  5. start the gin API server on cfg.ListenAddr
//  6. run until SIGINT/SIGTERM, then shut both servers down gracefully
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/classroomsim/market-engine/internal/api"
	"github.com/classroomsim/market-engine/internal/config"
	"github.com/classroomsim/market-engine/internal/gameslice"
	"github.com/classroomsim/market-engine/internal/historicalstore"
	"github.com/classroomsim/market-engine/internal/logging"
	"github.com/classroomsim/market-engine/internal/room"
	"github.com/classroomsim/market-engine/internal/scheduler"
)

func requireNoError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err.Error())
		os.Exit(1)
	}
}

func main() {
	cobra.OnInitialize()

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedMarketDataCmd)

	seedMarketDataCmd.Flags().StringVar(&seedTicker, "ticker", "", "Ticker symbol to seed")
	seedMarketDataCmd.Flags().StringVar(&seedCSVPath, "csv", "", "Path to a CSV of (ticker,date,open,high,low,close,volume) rows")
	seedMarketDataCmd.MarkFlagRequired("ticker")
	seedMarketDataCmd.MarkFlagRequired("csv")

	requireNoError(rootCmd.Execute())
}

var rootCmd = &cobra.Command{
	Use:   "market-engine",
	Short: "market-engine runs the classroom trading simulator's server",
	Long:  "market-engine runs the classroom trading simulator's server",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the API server, the room store, and the clock scheduler",
	Run: func(cmd *cobra.Command, args []string) {
		runServe()
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Creates or upgrades the sqlite schemas for the historical and room stores, then exits",
	Run: func(cmd *cobra.Command, args []string) {
		runMigrate()
	},
}

var (
	seedTicker  string
	seedCSVPath string
)

var seedMarketDataCmd = &cobra.Command{
	Use:   "seed-market-data",
	Short: "Loads a CSV of daily candles into the historical store for one ticker",
	Run: func(cmd *cobra.Command, args []string) {
		runSeedMarketData(seedTicker, seedCSVPath)
	},
}

func runServe() {
	config.LoadDotEnv()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	store, err := historicalstore.OpenSQLiteGateway(cfg.DatabaseDSN, cfg.EarliestAllowedDate)
	requireNoError(err)
	defer store.Close()

	roomStore, err := room.OpenStore(cfg.DatabaseDSN)
	requireNoError(err)
	defer roomStore.Close()

	slices := gameslice.New(store)
	registry := room.NewRegistry(roomStore, slices)

	clock := scheduler.New(registry, logging.Component(log, "scheduler"))
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	go clock.Run(schedulerCtx)

	engine := api.New(store, slices, registry, logging.Component(log, "api"), cfg.DefaultTickers)
	apiSrv := &http.Server{Addr: cfg.ListenAddr, Handler: engine}

	metricsMux := http.NewServeMux()
	metricsMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux}

	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("serving metrics")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("metrics server")
		}
	}()

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("serving api")
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("api server")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	log.Info().Msg("shutting down")

	clock.Stop()
	stopScheduler()

	shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
	defer c()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}

func runMigrate() {
	config.LoadDotEnv()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	store, err := historicalstore.OpenSQLiteGateway(cfg.DatabaseDSN, cfg.EarliestAllowedDate)
	requireNoError(err)
	defer store.Close()

	roomStore, err := room.OpenStore(cfg.DatabaseDSN)
	requireNoError(err)
	defer roomStore.Close()

	log.Info().Str("dsn", cfg.DatabaseDSN).Msg("schemas up to date")
}

func runSeedMarketData(ticker, csvPath string) {
	config.LoadDotEnv()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	store, err := historicalstore.OpenSQLiteGateway(cfg.DatabaseDSN, cfg.EarliestAllowedDate)
	requireNoError(err)
	defer store.Close()

	days, err := historicalstore.LoadCSV(csvPath)
	requireNoError(err)

	ctx := context.Background()
	requireNoError(historicalstore.SeedFromPrices(ctx, store, ticker, days))

	log.Info().Str("ticker", ticker).Int("days", len(days)).Msg("seeded market data")
}
