package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gustycube/uplinks/internal/config"
	"github.com/gustycube/uplinks/internal/logging"
	"github.com/gustycube/uplinks/internal/output"
	"github.com/gustycube/uplinks/internal/server"
	"github.com/gustycube/uplinks/internal/telemetry"
	"github.com/gustycube/uplinks/internal/uplinks"
)

// flagKeys maps command line flags onto config keys
var flagKeys = map[string]string{
	"deep":          "deep",
	"output":        "output",
	"stat-url":      "stat_url",
	"registry-url":  "registry_url",
	"timeout":       "timeout_sec",
	"retries":       "retries",
	"breaker":       "breaker",
	"ip-lookup":     "ip_lookup",
	"mmdb":          "mmdb_path",
	"dns-server":    "dns_server",
	"cache-size":    "cache_size",
	"redis":         "redis_addr",
	"log-level":     "log_level",
	"log-format":    "log_format",
	"listen":        "listen",
	"otel-endpoint": "otel_endpoint",
	"otel-insecure": "otel_insecure",
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uplinks -a ASN|IP [-d 1|2|3]",
		Short: "Build the uplink tree of an autonomous system",
		Long: "uplinks builds a tree of uplinks of an autonomous system from the\n" +
			"\"from ASn accept ANY\" import lines of its RIPE aut-num object.",
		Example: "  uplinks -a 3333\n" +
			"  uplinks -a 193.0.6.139 -d 2\n" +
			"  uplinks -a 3333 -d 3 -o json\n" +
			"  uplinks serve --listen :8080",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return usageErrorf("unrecognized arguments: %s", strings.Join(args, " "))
			}
			return nil
		},
		RunE: runTree,
	}

	pf := cmd.PersistentFlags()
	pf.String("config", "", "path to config file (YAML or JSON)")
	pf.IntP("deep", "d", 1, "recursion depth (1, 2 or 3)")
	pf.Int("timeout", 0, "per request timeout in seconds (default 30)")
	pf.Int("retries", 0, "retries for failed lookups")
	pf.Bool("breaker", false, "stop calling a RIPE endpoint after repeated failures")
	pf.String("ip-lookup", "", "IP to AS source: ripestat, cymru or mmdb")
	pf.String("mmdb", "", "path to a GeoLite2-ASN database for --ip-lookup mmdb")
	pf.String("dns-server", "", "nameserver for --ip-lookup cymru (default 8.8.8.8:53)")
	pf.Int("cache-size", 0, "in-memory lookup cache entries (0 disables)")
	pf.String("redis", "", "redis address for a shared lookup cache (env REDIS_ADDR)")
	pf.String("log-level", "", "log level: debug, info, warn, error (env LOG_LEVEL)")
	pf.String("log-format", "", "log format: json or console")
	pf.String("otel-endpoint", "", "OTLP HTTP endpoint (host:port)")
	pf.Bool("otel-insecure", false, "OTLP without TLS")
	pf.String("stat-url", "", "RIPEstat data API base URL")
	pf.String("registry-url", "", "RIPE Database REST API base URL")
	pf.MarkHidden("stat-url")
	pf.MarkHidden("registry-url")

	f := cmd.Flags()
	f.StringP("asn", "a", "", "AS number or IP address")
	f.StringP("output", "o", "", "output format: text, json, jsonl or csv (default text)")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{msg: err.Error()}
	})

	cmd.AddCommand(newCmdServe())
	cmd.AddCommand(newCmdVersion())
	return cmd
}

func runTree(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	if f.NFlag() == 0 {
		return cmd.Usage()
	}
	if !f.Changed("asn") {
		return usageErrorf("the following arguments are required: --asn/-a")
	}
	if err := checkDeep(f); err != nil {
		return err
	}
	query, _ := f.GetString("asn")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
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

	err = writeTree(ctx, a.builder, cfg.Output, cfg.Deep, query, cmd.OutOrStdout())
	if err != nil {
		log.Debugw("no tree", "query", query, "err", err)
	}
	return err
}

// writeTree streams text as the tree is walked; other formats are written
// once the tree is complete.
func writeTree(ctx context.Context, b server.Runner, format string, deep int, query string, w io.Writer) error {
	f, err := output.ParseFormat(format)
	if err != nil {
		return usageErrorf("%v", err)
	}
	if f.Streams() {
		sink := output.NewText(w)
		err := b.Run(ctx, query, deep, sink)
		if werr := sink.Err(); werr != nil {
			return werr
		}
		return err
	}

	col := uplinks.NewCollector(query, deep)
	runErr := b.Run(ctx, query, deep, col)
	if runErr != nil && !errors.Is(runErr, uplinks.ErrUnresolved) {
		return runErr
	}
	ow, err := output.NewWriter(format, w)
	if err != nil {
		return err
	}
	if err := ow.WriteTree(col.Tree()); err != nil {
		return err
	}
	if err := ow.Flush(); err != nil {
		return err
	}
	return runErr
}

func checkDeep(f *pflag.FlagSet) error {
	if !f.Changed("deep") {
		return nil
	}
	deep, _ := f.GetInt("deep")
	if deep < 1 || deep > uplinks.MaxDeep {
		return usageErrorf("argument --deep/-d: invalid choice: %d (choose from 1, 2, 3)", deep)
	}
	return nil
}

// loadConfig layers defaults or the config file, then env, then set flags
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	f := cmd.Flags()
	var cfg *config.Config
	if path, _ := f.GetString("config"); path != "" {
		c, err := config.LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
		cfg = c
	} else {
		cfg = &config.Config{}
		cfg.SetDefaults()
	}
	cfg.LoadFromEnv()

	flags := make(map[string]interface{})
	f.Visit(func(fl *pflag.Flag) {
		key, ok := flagKeys[fl.Name]
		if !ok {
			return
		}
		switch fl.Value.Type() {
		case "int":
			v, _ := f.GetInt(fl.Name)
			flags[key] = v
		case "bool":
			v, _ := f.GetBool(fl.Name)
			flags[key] = v
		default:
			flags[key] = fl.Value.String()
		}
	})
	cfg.MergeWithFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, usageErrorf("invalid configuration: %v", err)
	}
	return cfg, nil
}

func initTelemetry(ctx context.Context, cfg *config.Config, log *logging.Logger) func() {
	shutdown, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint:    cfg.OTELEndpoint,
		Insecure:    cfg.OTELInsecure,
		Service:     cfg.OTELService,
		Version:     version,
		IPLookup:    cfg.IPLookup,
		StatURL:     cfg.StatURL,
		RegistryURL: cfg.RegistryURL,
	})
	if err != nil {
		log.Warnw("otel init failed", "err", err)
		return func() {}
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdown(ctx)
	}
}

func execute(ctx context.Context, root *cobra.Command, args []string, stderr io.Writer) int {
	root.SetArgs(args)
	executed, err := root.ExecuteContextC(ctx)
	code := exitCode(err)
	switch code {
	case exitUsage:
		if executed == nil {
			executed = root
		}
		fmt.Fprintf(stderr, "usage: %s\n%s: error: %v\n", executed.UseLine(), root.Name(), err)
	case exitError:
		fmt.Fprintf(stderr, "%s: %v\n", root.Name(), err)
	}
	return code
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, newRootCmd(), os.Args[1:], os.Stderr)
	cancel()
	os.Exit(code)
}
