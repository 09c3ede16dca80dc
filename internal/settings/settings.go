// Package settings persists the operator-chosen execution settings for the
// translation dispatcher: parallelism mode, concurrency ceiling, and pacing
// delay. Reads are forgiving (missing or corrupt values fall back to
// documented defaults); writes are partial and validated.
package settings

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"lingod/internal/storage"
	logx "lingod/pkg/logx"
)

// Mode selects how a document's translation work is parallelized.
type Mode string

const (
	// ModeSequential runs every chunk one at a time.
	ModeSequential Mode = "sequential"
	// ModeByLanguage runs languages in parallel, each language's chunks in order.
	ModeByLanguage Mode = "parallel-by-language"
	// ModeByChunk runs languages in order, each language's chunks in parallel.
	ModeByChunk Mode = "parallel-by-chunk"
	// ModeFull runs every chunk of every language in one parallel batch.
	ModeFull Mode = "full-parallel"
)

func (m Mode) Valid() bool {
	switch m {
	case ModeSequential, ModeByLanguage, ModeByChunk, ModeFull:
		return true
	}
	return false
}

// Store keys. These are a contract with whatever wrote the store previously;
// do not rename without a migration.
const (
	keyMode          = "parallel-mode"
	keyMaxConcurrent = "max-concurrent"
	keyRequestDelay  = "request-delay-ms"
)

const (
	DefaultMode          = ModeSequential
	DefaultMaxConcurrent = 3
	DefaultRequestDelay  = 200 * time.Millisecond
)

// Settings is the executor configuration loaded once per caller session.
// It has no relationship to any in-flight task list.
type Settings struct {
	Mode          Mode
	MaxConcurrent int
	RequestDelay  time.Duration
}

func Defaults() Settings {
	return Settings{
		Mode:          DefaultMode,
		MaxConcurrent: DefaultMaxConcurrent,
		RequestDelay:  DefaultRequestDelay,
	}
}

// Patch updates only the fields that are non-nil; absent fields are left
// untouched in the store.
type Patch struct {
	Mode          *Mode
	MaxConcurrent *int
	RequestDelay  *time.Duration
}

// Load reads the three settings keys. Any missing, unreadable, or unparsable
// value is silently replaced by its default; decode problems are logged at
// debug level only, never surfaced.
func Load(ctx context.Context, st storage.Store, log logx.Logger) Settings {
	s := Defaults()
	if st == nil {
		return s
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	if raw, ok := get(ctx, st, log, keyMode); ok {
		if m := Mode(raw); m.Valid() {
			s.Mode = m
		} else {
			log.Debug("ignoring invalid stored mode", logx.String("value", raw))
		}
	}
	if raw, ok := get(ctx, st, log, keyMaxConcurrent); ok {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
			s.MaxConcurrent = n
		} else {
			log.Debug("ignoring invalid stored max-concurrent", logx.String("value", raw))
		}
	}
	if raw, ok := get(ctx, st, log, keyRequestDelay); ok {
		if ms, err := strconv.Atoi(raw); err == nil && ms >= 0 {
			s.RequestDelay = time.Duration(ms) * time.Millisecond
		} else {
			log.Debug("ignoring invalid stored request-delay-ms", logx.String("value", raw))
		}
	}
	return s
}

func get(ctx context.Context, st storage.Store, log logx.Logger, key string) (string, bool) {
	v, ok, err := st.Get(ctx, key)
	if err != nil {
		log.Debug("settings read failed", logx.String("key", key), logx.Err(err))
		return "", false
	}
	return v, ok
}

// Save validates and writes only the fields present in p.
func Save(ctx context.Context, st storage.Store, p Patch) error {
	if st == nil {
		return storage.ErrDisabled
	}

	if p.Mode != nil && !p.Mode.Valid() {
		return fmt.Errorf("settings: unknown mode %q", *p.Mode)
	}
	if p.MaxConcurrent != nil && *p.MaxConcurrent < 1 {
		return fmt.Errorf("settings: max concurrent must be >= 1 (got %d)", *p.MaxConcurrent)
	}
	if p.RequestDelay != nil && *p.RequestDelay < 0 {
		return fmt.Errorf("settings: request delay must be >= 0 (got %v)", *p.RequestDelay)
	}

	if p.Mode != nil {
		if err := st.Set(ctx, keyMode, string(*p.Mode)); err != nil {
			return fmt.Errorf("settings: save mode: %w", err)
		}
	}
	if p.MaxConcurrent != nil {
		if err := st.Set(ctx, keyMaxConcurrent, strconv.Itoa(*p.MaxConcurrent)); err != nil {
			return fmt.Errorf("settings: save max-concurrent: %w", err)
		}
	}
	if p.RequestDelay != nil {
		ms := int(p.RequestDelay.Milliseconds())
		if err := st.Set(ctx, keyRequestDelay, strconv.Itoa(ms)); err != nil {
			return fmt.Errorf("settings: save request-delay-ms: %w", err)
		}
	}
	return nil
}
