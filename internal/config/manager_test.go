package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{
		"logging": {"level": "debug", "console": true},
		"storage": {"driver": "file", "path": "./store"},
		"translator": {"endpoint": "https://api.example.com", "api_key": "k", "timeout": "10s"},
		"translate": {"chunk_size": 1500, "rate_limit_hold": "3s"},
		"autosync": {"enabled": true, "schedule": "0 * * * *", "dir": "./content", "languages": ["en", "fr"]}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path != "./store" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Translate.ChunkSize != 1500 {
		t.Fatalf("chunk_size = %d, want 1500", cfg.Translate.ChunkSize)
	}
	if len(cfg.AutoSync.Languages) != 2 {
		t.Fatalf("autosync.languages = %v", cfg.AutoSync.Languages)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.yaml", `
logging:
  level: info
  console: true
translator:
  endpoint: https://api.example.com
  api_key: secret
translate:
  chunk_size: 800
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if cfg.Translator.APIKey != "secret" {
		t.Fatalf("api_key = %q", cfg.Translator.APIKey)
	}
	if cfg.Translate.ChunkSize != 800 {
		t.Fatalf("chunk_size = %d, want 800", cfg.Translate.ChunkSize)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"translator": {"endpoint": "e", "api_key": "k", "tyypo": 1}}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("Parse accepted an unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"translator": {"endpoint": "e", "api_key": "k"}}{"x": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("Parse accepted trailing data")
	}
}

func TestParseValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "unknown storage driver",
			body: `{"storage": {"driver": "redis", "path": "x"}}`,
			want: "storage.driver",
		},
		{
			name: "file driver without path",
			body: `{"storage": {"driver": "file"}}`,
			want: "storage.path",
		},
		{
			name: "bad duration",
			body: `{"translator": {"endpoint": "e", "api_key": "k", "timeout": "soon"}}`,
			want: "translator.timeout",
		},
		{
			name: "autosync enabled without schedule",
			body: `{"autosync": {"enabled": true}}`,
			want: "autosync.schedule",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, "config.json", tt.body)
			_, err := NewManager(path).Parse()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Parse error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty = (%v, %v), want (0, nil)", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative duration accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", 5); err != nil || d != 5 {
		t.Fatalf("default = (%v, %v), want (5, nil)", d, err)
	}
}

func TestLoadCommitsAndGet(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"translator": {"endpoint": "e", "api_key": "k"}}`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if m.Get() != cfg {
		t.Fatal("Get did not return the committed config")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "config.json", `{"translator": {"endpoint": "e", "api_key": "k"}}`)
	m := NewManager(path)

	ch := m.Subscribe(1)
	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatal("subscriber received a different config")
		}
	default:
		t.Fatal("subscriber did not receive the published config")
	}

	m.Unsubscribe(ch)
	if _, open := <-ch; open {
		t.Fatal("channel not closed by Unsubscribe")
	}
	m.Unsubscribe(ch) // second call is a no-op
}
