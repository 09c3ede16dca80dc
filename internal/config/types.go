package config

import "fmt"

// Config is the daemon configuration file.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging    LoggingConfig    `json:"logging"`
	Storage    StorageConfig    `json:"storage,omitempty"`
	Translator TranslatorConfig `json:"translator"`
	Translate  TranslateConfig  `json:"translate,omitempty"`
	AutoSync   AutoSyncConfig   `json:"autosync,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the settings persistence layer.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./lingod_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type TranslatorConfig struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"` // do not log
	Timeout  string `json:"timeout,omitempty"`
}

type TranslateConfig struct {
	// ChunkSize is the maximum chunk length in runes. 0 keeps the default.
	ChunkSize int `json:"chunk_size,omitempty"`
	// RateLimitHold is how long dispatch pauses after an unhinted throttle.
	RateLimitHold string `json:"rate_limit_hold,omitempty"`
}

// AutoSyncConfig controls the scheduled re-translation job. Dir is the
// directory whose documents are re-translated on each tick.
type AutoSyncConfig struct {
	Enabled   bool     `json:"enabled"`
	Schedule  string   `json:"schedule,omitempty"` // standard cron spec
	Dir       string   `json:"dir,omitempty"`
	Languages []string `json:"languages,omitempty"`
}

// Validate performs the structural checks that don't need collaborators.
// Duration fields are validated where they are parsed.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "", "none", "file", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if (c.Storage.Driver == "file" || c.Storage.Driver == "sqlite" || c.Storage.Driver == "sqlite3") && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver)
	}
	if c.Translate.ChunkSize < 0 {
		return fmt.Errorf("translate.chunk_size must be >= 0")
	}
	if c.AutoSync.Enabled && c.AutoSync.Schedule == "" {
		return fmt.Errorf("autosync.schedule is required when autosync is enabled")
	}
	if c.AutoSync.Enabled && c.AutoSync.Dir == "" {
		return fmt.Errorf("autosync.dir is required when autosync is enabled")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("translator.timeout", c.Translator.Timeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("translate.rate_limit_hold", c.Translate.RateLimitHold); err != nil {
		return err
	}
	return nil
}
