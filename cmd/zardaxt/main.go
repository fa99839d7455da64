package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Xxx-Bin/zardaxt/internal/config"
)

// version is set at build time: -ldflags "-X main.version=1.2.0"
var version = "dev"

// shutdownSignals end the capture. ctrl+z behaves like ctrl+c: flush, then exit.
var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGTSTP}

// cliFlags mirrors the config file; a flag only wins when it was set.
type cliFlags struct {
	configFile string

	iface      string
	read       string
	filter     string
	replayPPS  int
	ignore     []string
	classify   bool
	db         string
	top        int
	out        string
	writeAfter int
	clearAfter int
	eviction   string
	api        string
	results    string
	csv        string
	stdout     bool
	webhook    string
	verbose    bool
	quiet      bool
	noTUI      bool
	logFile    string
	logLevel   string
	logFormat  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "zardaxt:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	return newRootCommandWith(&cliFlags{})
}

func newRootCommandWith(f *cliFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zardaxt (-i interface | -r file.pcap) [flags]",
		Short: "Passive TCP/IP OS fingerprinting of incoming SYN packets",
		Long: `
zardaxt listens for TCP SYN packets, records a header fingerprint per
source endpoint and, with --classify, scores each fingerprint against a
reference database to guess the sender's operating system.`,
		Example: `
  zardaxt -i eth0 -c --db database/combined.json
  zardaxt -r capture.pcap -c --results results.jsonl --no-tui
  zardaxt -i eth0 -c --api 127.0.0.1:8249 --filter "tcp port 443"`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if f.configFile != "" {
				loaded, err := config.LoadConfig(f.configFile)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if err := applyFlags(cfg, cmd.Flags(), f); err != nil {
				return err
			}
			if cfg.Capture.Interface == "" && cfg.Capture.Read == "" {
				cmd.Usage()
				return errors.New("an interface (-i) or a capture file (-r) is required")
			}
			return run(cmd.Context(), cfg, os.Stdout, os.Stderr)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.configFile, "config", "", "Config file (YAML)")
	flags.StringVarP(&f.iface, "interface", "i", "", "Interface to listen on")
	flags.StringVarP(&f.read, "read", "r", "", "Read packets from a pcap/pcapng file")
	flags.StringVar(&f.filter, "filter", "tcp port 80 or tcp port 443", "BPF filter")
	flags.StringSliceVar(&f.ignore, "ignore", nil, "Drop SYNs from these sources (IP, CIDR or first-last range; repeatable)")
	flags.IntVar(&f.replayPPS, "replay-pps", 0, "Replay a capture file at this many packets/s (0 = unpaced)")
	flags.BoolVarP(&f.classify, "classify", "c", false, "Classify fingerprints against the database")
	flags.StringVar(&f.db, "db", "database/combined.json", "Reference fingerprint database")
	flags.IntVar(&f.top, "top", 3, "Number of best guesses to keep")
	flags.StringVarP(&f.out, "out", "o", "fingerprints.json", "Fingerprint log file")
	flags.IntVarP(&f.writeAfter, "write-after", "n", 40, "Write the fingerprint log every N fingerprints")
	flags.IntVar(&f.clearAfter, "clear-after", 3000, "Bound of the classification cache")
	flags.StringVar(&f.eviction, "eviction", "clear", "Classification cache eviction: clear or lru")
	flags.StringVar(&f.api, "api", "", "Serve the HTTP API on this address (e.g. :8249)")
	flags.StringVar(&f.results, "results", "", "Append JSONL results to this file")
	flags.StringVar(&f.csv, "csv", "", "Append CSV results to this file")
	flags.BoolVar(&f.stdout, "stdout", false, "Stream JSONL results to stdout")
	flags.StringVar(&f.webhook, "webhook", "", "Webhook URL (HTTP POST batched JSONL)")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Log every SYN with its decoded fields")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "Silent mode (no terminal output)")
	flags.BoolVar(&f.noTUI, "no-tui", false, "Disable TUI (text mode)")
	flags.StringVar(&f.logFile, "log-file", "", "Write logs to this file (rotated)")
	flags.StringVar(&f.logLevel, "log-level", "info", "Log level")
	flags.StringVar(&f.logFormat, "log-format", "text", "Log format: text or json")

	cmd.MarkFlagsMutuallyExclusive("interface", "read")
	cmd.MarkFlagsMutuallyExclusive("quiet", "no-tui")
	return cmd
}

// applyFlags copies every explicitly set flag over the loaded config.
func applyFlags(cfg *config.Config, fs *pflag.FlagSet, f *cliFlags) error {
	set := fs.Changed

	if set("interface") {
		cfg.Capture.Interface = f.iface
		cfg.Capture.Read = ""
	}
	if set("read") {
		cfg.Capture.Read = f.read
		cfg.Capture.Interface = ""
	}
	if set("filter") {
		cfg.Capture.Filter = f.filter
	}
	if set("ignore") {
		cfg.Capture.Ignore = f.ignore
	}
	if set("replay-pps") {
		cfg.Capture.ReplayPPS = f.replayPPS
	}
	if set("classify") {
		cfg.Classify.Enabled = f.classify
	}
	if set("db") {
		cfg.Classify.Database = f.db
	}
	if set("top") {
		cfg.Classify.Top = f.top
	}
	if set("out") {
		cfg.Session.Fingerprints = f.out
	}
	if set("write-after") {
		cfg.Session.WriteAfter = f.writeAfter
	}
	if set("clear-after") {
		cfg.Session.ClearAfter = f.clearAfter
	}
	if set("eviction") {
		cfg.Session.Eviction = f.eviction
	}
	if set("api") {
		cfg.API.Listen = f.api
	}
	if set("results") {
		cfg.Output.Results = f.results
	}
	if set("csv") {
		cfg.Output.CSV = f.csv
	}
	if set("stdout") {
		cfg.Output.Stdout = f.stdout
	}
	if set("webhook") {
		if cfg.Output.Webhook == nil {
			cfg.Output.Webhook = &config.WebhookOutput{}
		}
		cfg.Output.Webhook.URL = f.webhook
	}
	if set("verbose") {
		cfg.Output.Verbose = f.verbose
	}
	if set("quiet") {
		cfg.Output.Quiet = f.quiet
	}
	if set("no-tui") {
		cfg.Output.NoTUI = f.noTUI
	}
	if set("log-file") {
		cfg.Log.File = f.logFile
	}
	if set("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if set("log-format") {
		cfg.Log.Format = f.logFormat
	}

	return cfg.Validate()
}
