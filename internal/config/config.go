// Package config loads SchedulerOptions and the four persisted-state
// database file paths from a JSON preferences document, following the
// Config/DefaultConfig convention used throughout the domain layer.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/trane-project/scheduler-core/internal/domain"
)

// StorePaths locates the four SQLite databases the scheduler persists to.
type StorePaths struct {
	PracticeStatsDB   string `json:"practice_stats_db"`
	PracticeRewardsDB string `json:"practice_rewards_db"`
	BlacklistDB       string `json:"blacklist_db"`
	ReviewListDB      string `json:"review_list_db"`
}

// Config is the top-level, JSON-loaded configuration for a scheduler
// process: tunable options plus where its durable state lives.
type Config struct {
	Options domain.SchedulerOptions `json:"options"`
	Stores  StorePaths              `json:"stores"`

	// API is the debug/ops HTTP listen address.
	API struct {
		Addr string `json:"addr"`
	} `json:"api"`
}

// DefaultConfig returns production defaults: SchedulerOptions' own
// defaults, four databases under ./data, and a loopback API address.
func DefaultConfig() Config {
	return Config{
		Options: domain.DefaultSchedulerOptions(),
		Stores: StorePaths{
			PracticeStatsDB:   filepath.Join("data", "practice_stats.db"),
			PracticeRewardsDB: filepath.Join("data", "practice_rewards.db"),
			BlacklistDB:       filepath.Join("data", "blacklist.db"),
			ReviewListDB:      filepath.Join("data", "review_list.db"),
		},
		API: struct {
			Addr string `json:"addr"`
		}{Addr: "127.0.0.1:8080"},
	}
}

// Load reads a user_preferences.json document from path, applying it over
// DefaultConfig. A missing file is not an error — DefaultConfig is
// returned unchanged, so a fresh install can start without first writing
// a preferences file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as indented JSON, creating parent directories as
// needed.
func Save(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: creating %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", path, err)
	}
	return nil
}
