package config

import (
	"errors"

	"github.com/theimaginaryfoundation/chat-rewind/rewind/fileutils"
)

const apiKeyPlaceholder = "${OPENAI_API_KEY}"

// WriteFile dumps cfg as YAML in the layout Load reads. A configured API key
// is written back as its environment placeholder, never in clear.
func WriteFile(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config.WriteFile: cfg is nil")
	}
	if path == "" {
		return errors.New("config.WriteFile: path is empty")
	}

	apiKey := ""
	if cfg.AI.APIKey != "" {
		apiKey = apiKeyPlaceholder
	}
	patterns := cfg.Privacy.Patterns
	if patterns == nil {
		patterns = []string{}
	}

	payload := map[string]any{
		"app": map[string]any{
			"log_level": cfg.App.LogLevel,
		},
		"ingest": map[string]any{
			"target_file":      cfg.Ingest.TargetFile,
			"high_water_bytes": cfg.Ingest.HighWaterBytes,
			"low_water_bytes":  cfg.Ingest.LowWaterBytes,
			"chunk_bytes":      cfg.Ingest.ChunkBytes,
			"yield_every":      cfg.Ingest.YieldEvery,
		},
		"classify": map[string]any{
			"timezone":       cfg.Classify.Timezone,
			"lookback_days":  cfg.Classify.LookbackDays,
			"max_vocabulary": cfg.Classify.MaxVocabulary,
		},
		"summary": map[string]any{
			"top_n":              cfg.Summary.TopN,
			"min_phrase_count":   cfg.Summary.MinPhraseCount,
			"min_nickname_count": cfg.Summary.MinNicknameCount,
		},
		"bangers": map[string]any{
			"spice":             cfg.Bangers.Spice,
			"include_sensitive": cfg.Bangers.IncludeSensitive,
		},
		"privacy": map[string]any{
			"patterns": patterns,
		},
		"storage": map[string]any{
			"enabled": cfg.Storage.Enabled,
			"db_path": cfg.Storage.DBPath,
		},
		"ai": map[string]any{
			"enabled": cfg.AI.Enabled,
			"model":   cfg.AI.Model,
			"api_key": apiKey,
		},
	}
	return fileutils.WriteYAMLFileAtomic(path, payload)
}
