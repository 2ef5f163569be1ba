package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/theimaginaryfoundation/chat-rewind/rewind"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.Ingest.TargetFile != "conversations.json" {
		t.Fatalf("target_file=%q", cfg.Ingest.TargetFile)
	}
	if cfg.Ingest.HighWaterBytes != 16<<20 || cfg.Ingest.LowWaterBytes != 8<<20 {
		t.Fatalf("water marks=%d/%d", cfg.Ingest.HighWaterBytes, cfg.Ingest.LowWaterBytes)
	}
	if cfg.Summary.TopN != 10 || cfg.Summary.MinPhraseCount != 3 || cfg.Summary.MinNicknameCount != 2 {
		t.Fatalf("summary=%+v", cfg.Summary)
	}
	if cfg.Bangers.Spice != "spicy" || cfg.Storage.Enabled || cfg.AI.Enabled {
		t.Fatalf("bangers=%+v storage=%+v ai=%+v", cfg.Bangers, cfg.Storage, cfg.AI)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate defaults: %v", err)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewind.yaml")
	doc := `
app:
  log_level: debug
classify:
  lookback_days: 365
bangers:
  spice: mild
privacy:
  patterns:
    - "ACME-\\d+"
ai:
  enabled: true
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REWIND_BANGERS_SPICE", "savage")
	t.Setenv("REWIND_SUMMARY_TOP_N", "7")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.App.LogLevel != "debug" || cfg.Classify.LookbackDays != 365 {
		t.Fatalf("file values not applied: %+v %+v", cfg.App, cfg.Classify)
	}
	if cfg.Bangers.Spice != "savage" || cfg.Summary.TopN != 7 {
		t.Fatalf("env overrides not applied: spice=%q top_n=%d", cfg.Bangers.Spice, cfg.Summary.TopN)
	}
	if cfg.AI.APIKey != "sk-test" || !cfg.AI.Enabled {
		t.Fatalf("ai=%+v", cfg.AI)
	}
	if len(cfg.Privacy.Patterns) != 1 || cfg.Privacy.Patterns[0] != `ACME-\d+` {
		t.Fatalf("patterns=%q", cfg.Privacy.Patterns)
	}
	if cfg.Ingest.ChunkBytes != 64<<10 {
		t.Fatalf("unset keys should keep defaults: chunk_bytes=%d", cfg.Ingest.ChunkBytes)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	r, err := cfg.Redactor()
	if err != nil {
		t.Fatalf("Redactor: %v", err)
	}
	if got := r.Redact("ticket ACME-42"); strings.Contains(got, "ACME-42") {
		t.Fatalf("extra pattern not applied: %q", got)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for a missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"log level":   func(c *Config) { c.App.LogLevel = "loud" },
		"water marks": func(c *Config) { c.Ingest.LowWaterBytes = c.Ingest.HighWaterBytes },
		"chunk":       func(c *Config) { c.Ingest.ChunkBytes = 0 },
		"timezone":    func(c *Config) { c.Classify.Timezone = "Mars/Olympus_Mons" },
		"lookback":    func(c *Config) { c.Classify.LookbackDays = -1 },
		"spice":       func(c *Config) { c.Bangers.Spice = "nuclear" },
		"pattern":     func(c *Config) { c.Privacy.Patterns = []string{"("} },
		"storage path": func(c *Config) {
			c.Storage.Enabled = true
			c.Storage.DBPath = " "
		},
		"ai without key": func(c *Config) {
			c.AI.Enabled = true
			c.AI.APIKey = ""
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestPipelineAndBangerOptions(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Classify.LookbackDays = 30
	cfg.Bangers.Spice = "MILD"
	cfg.Bangers.IncludeSensitive = true

	opts, err := cfg.PipelineOptions()
	if err != nil {
		t.Fatalf("PipelineOptions: %v", err)
	}
	if opts.LookbackDays != 30 || opts.TopN != 10 || opts.MaxVocabulary != 50000 {
		t.Fatalf("options=%+v", opts)
	}
	if opts.Location == nil || opts.Location.String() != "UTC" {
		t.Fatalf("location=%v", opts.Location)
	}
	if opts.Anonymizer == nil {
		t.Fatalf("anonymizer not set")
	}

	bopts, err := cfg.BangerOptions()
	if err != nil {
		t.Fatalf("BangerOptions: %v", err)
	}
	if bopts.Spice != rewind.SpiceMild || !bopts.IncludeSensitive {
		t.Fatalf("banger options=%+v", bopts)
	}
}

func TestWriteFile_RoundTripsWithoutSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "rewind.yaml")
	cfg := Default()
	cfg.App.LogLevel = "warn"
	cfg.Storage.Enabled = true
	cfg.AI.APIKey = "sk-very-secret"

	if err := WriteFile(path, cfg); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(b), "sk-very-secret") {
		t.Fatalf("api key written in clear:\n%s", b)
	}

	t.Setenv("OPENAI_API_KEY", "from-env")
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.App.LogLevel != "warn" || !got.Storage.Enabled || got.Storage.DBPath != cfg.Storage.DBPath {
		t.Fatalf("round trip lost values: app=%+v storage=%+v", got.App, got.Storage)
	}
	if got.AI.APIKey != "from-env" {
		t.Fatalf("api key=%q, want placeholder expansion", got.AI.APIKey)
	}
	if got.Ingest != cfg.Ingest || got.Summary != cfg.Summary {
		t.Fatalf("ingest/summary changed: %+v %+v", got.Ingest, got.Summary)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	for in, wantErr := range map[string]bool{"debug": false, "INFO": false, "": false, "warning": false, "error": false, "trace": true} {
		if _, err := ParseLevel(in); (err != nil) != wantErr {
			t.Fatalf("ParseLevel(%q) err=%v, wantErr=%v", in, err, wantErr)
		}
	}
}
