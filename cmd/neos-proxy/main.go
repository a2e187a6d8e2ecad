package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mtc-tools/neos-proxy/internal/config"
	"github.com/mtc-tools/neos-proxy/internal/logging"
	"github.com/mtc-tools/neos-proxy/internal/neosapi"
	"github.com/mtc-tools/neos-proxy/internal/report"
	"github.com/mtc-tools/neos-proxy/internal/server"
	"github.com/mtc-tools/neos-proxy/internal/sessionwatch"
	"github.com/mtc-tools/neos-proxy/internal/telemetry"
	"github.com/mtc-tools/neos-proxy/internal/usercache"
)

var (
	version = "0.1.0"
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "neos-proxy",
	Short: "Neos session report proxy",
	Long:  `neos-proxy polls the Neos session directory and serves filtered, host-annotated session reports over HTTP`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the proxy server",
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("neos-proxy v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is /etc/neos-proxy/neos-proxy.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServer() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.LogFormat, cfg.LogLevel, nil)
	log := logging.L("main")
	log.Info("starting neos-proxy", "version", version, "listen", cfg.ListenAddr, "api", cfg.APIBaseURL)

	client := neosapi.NewClient(cfg.APIBaseURL, cfg.RequestTimeout())
	cache := usercache.New(cfg.CacheFile, client)
	watcher := sessionwatch.New(cache)
	formatter := report.New(client)
	collector := telemetry.NewCollector()

	srv := server.New(client, cache, watcher, formatter, collector)
	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Router(),
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpSrv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		log.Error("server failed", logging.KeyError, err)
		os.Exit(1)
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn("shutdown incomplete", logging.KeyError, err)
	}
}
