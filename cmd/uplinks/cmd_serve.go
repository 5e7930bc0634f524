package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gustycube/uplinks/internal/logging"
	"github.com/gustycube/uplinks/internal/server"
)

func newCmdServe() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve uplink trees over HTTP",
		Long: "serve exposes GET /v1/uplinks/{asn-or-ip}?deep=N&format=json|text|jsonl|csv\n" +
			"together with /metrics, /health, /ready and /live.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("listen", "", "listen address (default :8080)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := checkDeep(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// serve logs requests at info unless a level was asked for
	if !cmd.Flags().Changed("log-level") && os.Getenv("LOG_LEVEL") == "" && cfg.LogLevel == "warn" {
		cfg.LogLevel = "info"
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return usageErrorf("%v", err)
	}
	defer log.Sync()

	ctx := cmd.Context()
	defer initTelemetry(ctx, cfg, log)()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(a.builder, a.healthHandler(log), server.Options{
		Deep:    cfg.Deep,
		Timeout: 2 * time.Minute,
		Log:     log,
	})
	return srv.ListenAndServe(ctx, cfg.Listen)
}
