package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.yaml.in/yaml/v3"

	"github.com/theimaginaryfoundation/chat-rewind/rewind"
	"github.com/theimaginaryfoundation/chat-rewind/rewind/config"
	"github.com/theimaginaryfoundation/chat-rewind/rewind/fileutils"
	"github.com/theimaginaryfoundation/chat-rewind/rewind/privacy"
	"github.com/theimaginaryfoundation/chat-rewind/rewind/provider"
	"github.com/theimaginaryfoundation/chat-rewind/rewind/store"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	var app *config.Config
	if !cfg.Schema {
		app, err = config.Load(cfg.ConfigPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
		cfg.applyTo(app)
		if err := app.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(2)
		}
		config.SetupLogger(app.App.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, app, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()

	// Avoid mutating the global FlagSet if called from tests.
	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Path to the export: a .zip archive or conversations.json")
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Path to a YAML config file (default: ./config/rewind.yaml or ./rewind.yaml if present)")
	fs.StringVar(&cfg.OutPath, "out", cfg.OutPath, "Write output to this file instead of stdout")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "Output format: json, yaml or md")
	fs.StringVar(&cfg.Spice, "spice", cfg.Spice, "Banger tone: mild, spicy or savage (default from config)")
	fs.BoolVar(&cfg.Sensitive, "sensitive", cfg.Sensitive, "Allow bangers to quote nickname terms")
	fs.BoolVar(&cfg.Sanitized, "sanitized", cfg.Sanitized, "Emit the sanitized copy of the summary")
	fs.BoolVar(&cfg.Store, "store", cfg.Store, "Persist the sanitized summary to storage.db_path")
	fs.StringVar(&cfg.ClientID, "client-id", cfg.ClientID, "Client id to store the summary under")
	fs.BoolVar(&cfg.Polish, "polish", cfg.Polish, "Ask the model for a friendlier closing line (needs OPENAI_API_KEY)")
	fs.BoolVar(&cfg.Schema, "schema", cfg.Schema, "Print the JSON schema of the summary and exit")
	fs.StringVar(&cfg.MetricsFile, "metrics-file", cfg.MetricsFile, "Write pipeline metrics in Prometheus text format to this file")
	fs.IntVar(&cfg.LookbackDays, "lookback-days", cfg.LookbackDays, "Only count messages from the last N days (0 = whole export; default from config)")
	fs.StringVar(&cfg.Timezone, "timezone", cfg.Timezone, "IANA timezone for day/hour buckets (default from config)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/rewind -in export.zip -format md")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/rewind -in conversations.json -sanitized -spice mild -out rewind.json")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/rewind -in export.zip -store -client-id alex")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.InputPath != "" {
		cfg.InputPath = filepath.Clean(cfg.InputPath)
	}
	if cfg.OutPath != "" {
		cfg.OutPath = filepath.Clean(cfg.OutPath)
	}
	return cfg, nil
}

// output is what the json and yaml formats emit.
type output struct {
	Summary rewind.RewindSummary `json:"summary"`
	Bangers rewind.BangerSet     `json:"bangers"`
}

func run(ctx context.Context, cfg Config, app *config.Config, stdout io.Writer) error {
	if cfg.Schema {
		b, err := provider.DocumentSchema[rewind.RewindSummary]()
		if err != nil {
			return err
		}
		return writeOutput(cfg.OutPath, stdout, b)
	}
	if app == nil {
		app = config.Default()
	}
	logger := slog.Default()

	opts, err := app.PipelineOptions()
	if err != nil {
		return err
	}
	reg := prometheus.NewRegistry()
	opts.Logger = logger
	opts.Metrics = rewind.NewMetrics(reg)
	opts.Progress = progressLogger(logger)

	f, err := os.Open(cfg.InputPath)
	if err != nil {
		return fmt.Errorf("open export: %w", err)
	}
	defer f.Close()
	var size int64
	if st, err := f.Stat(); err == nil {
		size = st.Size()
	}

	job, err := rewind.New(opts).Start(ctx, rewind.Source{Name: filepath.Base(cfg.InputPath), Size: size, Body: f})
	if err != nil {
		return err
	}
	summary, err := job.Wait(ctx)
	if cfg.MetricsFile != "" {
		if werr := prometheus.WriteToTextfile(cfg.MetricsFile, reg); werr != nil {
			logger.Warn("metrics file not written", "path", cfg.MetricsFile, "error", werr)
		}
	}
	if err != nil {
		return fmt.Errorf("rewind %s: %w", cfg.InputPath, err)
	}

	redactor, err := app.Redactor()
	if err != nil {
		return err
	}
	sanitized := rewind.Sanitize(summary, redactor)

	if app.AI.Enabled {
		polishClosingLine(ctx, logger, app, redactor, &summary, &sanitized)
	}

	if app.Storage.Enabled {
		st, err := store.Open(app.Storage.DBPath)
		if err != nil {
			return err
		}
		rec, err := st.Save(ctx, cfg.ClientID, sanitized)
		_ = st.Close()
		if err != nil {
			return err
		}
		logger.Info("summary stored", "run_id", rec.RunID, "client_id", rec.ClientID, "db", app.Storage.DBPath)
	}

	emit := summary
	if cfg.Sanitized {
		emit = sanitized
	}
	bopts, err := app.BangerOptions()
	if err != nil {
		return err
	}
	bangers := rewind.GenerateBangers(emit, bopts)

	switch cfg.Format {
	case formatMD:
		return writeOutput(cfg.OutPath, stdout, []byte(rewind.RenderMarkdown(emit, bangers)))
	case formatYAML:
		doc, err := jsonShaped(output{Summary: emit, Bangers: bangers})
		if err != nil {
			return err
		}
		if cfg.OutPath != "" {
			return fileutils.WriteYAMLFileAtomic(cfg.OutPath, doc)
		}
		b, err := yaml.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		return writeOutput("", stdout, b)
	default:
		out := output{Summary: emit, Bangers: bangers}
		if cfg.OutPath != "" {
			return fileutils.WriteJSONFileAtomic(cfg.OutPath, out, true)
		}
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		return writeOutput("", stdout, append(b, '\n'))
	}
}

// newResponder builds the model client for -polish.
var newResponder = func(apiKey string) provider.Responder {
	return provider.NewResponder(apiKey)
}

// polishClosingLine replaces the rule-based closing line when the model
// returns a usable one. Failures only log. The sanitized copy gets the
// redacted line so it stays a fixed point of Sanitize.
func polishClosingLine(ctx context.Context, logger *slog.Logger, app *config.Config, redactor privacy.Redactor, summary, sanitized *rewind.RewindSummary) {
	if sanitized.Wrapped == nil || summary.Wrapped == nil {
		return
	}
	p := provider.CaptionPolisher{
		Client: newResponder(app.AI.APIKey),
		Model:  app.AI.Model,
		Retry:  provider.DefaultRetryPolicy,
	}
	line, err := p.Polish(ctx, *sanitized)
	if err != nil {
		logger.Warn("closing line not polished, keeping the rule-based one", "error", err)
		return
	}
	summary.Wrapped.ClosingLine = line
	if redacted := redactor.Redact(line); redacted != "" {
		sanitized.Wrapped.ClosingLine = redacted
	}
}

func progressLogger(logger *slog.Logger) func(rewind.Progress) {
	var last rewind.Phase
	return func(p rewind.Progress) {
		if p.Phase == last {
			return
		}
		last = p.Phase
		logger.Debug("rewind progress", "phase", string(p.Phase), "bytes_read", p.BytesRead,
			"total_bytes", p.TotalBytes, "conversations", p.ConversationsProcessed)
	}
}

// jsonShaped round-trips v through JSON so YAML output uses the same field
// names as the JSON output.
func jsonShaped(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal json: %w", err)
	}
	return doc, nil
}

func writeOutput(path string, stdout io.Writer, b []byte) error {
	if path == "" {
		_, err := stdout.Write(b)
		return err
	}
	return fileutils.WriteFileAtomicSameDir(path, b, 0o644)
}
