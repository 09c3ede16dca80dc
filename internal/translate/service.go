// Package translate drives content translation through the bounded-concurrency
// dispatcher. It owns the two shared gates: the cancel flag (operator stop)
// and the rate-limit flag, which it raises when the provider throttles and
// clears after a hold period.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"lingod/internal/dispatch"
	"lingod/internal/eventbus"
	"lingod/internal/settings"
	"lingod/internal/storage"
	logx "lingod/pkg/logx"
)

const defaultRateLimitHold = 2 * time.Second

var errCanceled = errors.New("translation canceled")

type Config struct {
	// ChunkSize is the maximum chunk length in runes.
	ChunkSize int
	// RateLimitHold is how long dispatch stays paused after a throttling
	// error that carries no retry-after hint.
	RateLimitHold time.Duration
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.RateLimitHold <= 0 {
		c.RateLimitHold = defaultRateLimitHold
	}
	return c
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	client Client
	store  storage.Store
	bus    eventbus.Bus
	log    logx.Logger

	cancel    dispatch.Flag
	limited   dispatch.Flag
	holdTimer *time.Timer
}

func New(cfg Config, client Client, store storage.Store, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg.withDefaults(),
		client: client,
		store:  store,
		bus:    bus,
		log:    log,
	}
}

// Apply swaps the service configuration. Safe during hot-reload.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.withDefaults()
	s.mu.Unlock()
}

// Cancel stops admission of new work in the current batch. Tasks already
// started drain to completion.
func (s *Service) Cancel() {
	s.cancel.Set()
}

// LanguageReport is one target language's outcome.
type LanguageReport struct {
	Language string
	// Text is the assembled translation; set only when every chunk succeeded.
	Text string
	Errs []error
}

func (r LanguageReport) OK() bool { return len(r.Errs) == 0 }

type Report struct {
	Document  string
	Mode      settings.Mode
	Languages []LanguageReport
}

// BatchEvent is published on the bus for batch lifecycle events.
type BatchEvent struct {
	Document  string   `json:"document"`
	Mode      string   `json:"mode"`
	Languages []string `json:"languages"`
	Chunks    int      `json:"chunks"`
	Failed    int      `json:"failed,omitempty"`
}

// ProgressEvent is published once per completed task.
type ProgressEvent struct {
	Document  string                `json:"document"`
	Completed int                   `json:"completed"`
	Active    []dispatch.ActiveTask `json:"active"`
}

// Translate dispatches doc to the provider for every language in langs,
// shaped by the stored executor settings. Per-chunk failures are isolated
// into the report; the only hard error is a misconfigured dispatcher.
func (s *Service) Translate(ctx context.Context, doc Document, langs []string) (*Report, error) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	sett := settings.Load(ctx, s.store, s.log)
	chunks := splitChunks(doc.Body, cfg.ChunkSize)

	rep := &Report{Document: doc.ID, Mode: sett.Mode}
	if len(chunks) == 0 || len(langs) == 0 {
		for _, lang := range langs {
			rep.Languages = append(rep.Languages, LanguageReport{Language: lang})
		}
		return rep, nil
	}

	// Each batch starts with a clear cancel gate; Cancel() applies to the
	// batch in flight.
	s.cancel.Clear()

	s.log.Info("translation batch started",
		logx.String("doc", doc.ID),
		logx.String("mode", string(sett.Mode)),
		logx.Int("languages", len(langs)),
		logx.Int("chunks", len(chunks)),
	)
	s.publish("translate.batch.started", BatchEvent{
		Document: doc.ID, Mode: string(sett.Mode), Languages: langs, Chunks: len(chunks),
	})

	opts := dispatch.Options{
		MaxConcurrent: sett.MaxConcurrent,
		Delay:         sett.RequestDelay,
		Cancel:        &s.cancel,
		RateLimited:   &s.limited,
		Log:           s.log,
		OnProgress: func(completed int, active []dispatch.ActiveTask) {
			s.publish("translate.progress", ProgressEvent{Document: doc.ID, Completed: completed, Active: active})
		},
	}

	switch sett.Mode {
	case settings.ModeSequential:
		opts.MaxConcurrent = 1
		res, err := dispatch.Run(ctx, s.chunkTasks(langs, chunks), opts)
		if err != nil {
			return nil, err
		}
		rep.Languages = assembleChunked(langs, chunks, res)

	case settings.ModeFull:
		res, err := dispatch.Run(ctx, s.chunkTasks(langs, chunks), opts)
		if err != nil {
			return nil, err
		}
		rep.Languages = assembleChunked(langs, chunks, res)

	case settings.ModeByLanguage:
		res, err := dispatch.Run(ctx, s.languageTasks(langs, chunks), opts)
		if err != nil {
			return nil, err
		}
		rep.Languages = assembleByLanguage(langs, res)

	case settings.ModeByChunk:
		for i, lang := range langs {
			if s.cancel.IsSet() || ctx.Err() != nil {
				for _, skipped := range langs[i:] {
					rep.Languages = append(rep.Languages, LanguageReport{Language: skipped, Errs: []error{errCanceled}})
				}
				break
			}
			res, err := dispatch.Run(ctx, s.chunkTasks([]string{lang}, chunks), opts)
			if err != nil {
				return nil, err
			}
			rep.Languages = append(rep.Languages, assembleChunked([]string{lang}, chunks, res)...)
		}

	default:
		// Load never returns an unknown mode, but keep the zero-value path sane.
		opts.MaxConcurrent = 1
		res, err := dispatch.Run(ctx, s.chunkTasks(langs, chunks), opts)
		if err != nil {
			return nil, err
		}
		rep.Languages = assembleChunked(langs, chunks, res)
	}

	failed := 0
	for _, lr := range rep.Languages {
		if !lr.OK() {
			failed++
		}
	}
	s.log.Info("translation batch finished",
		logx.String("doc", doc.ID),
		logx.Int("languages", len(rep.Languages)),
		logx.Int("failed", failed),
	)
	s.publish("translate.batch.finished", BatchEvent{
		Document: doc.ID, Mode: string(sett.Mode), Languages: langs, Chunks: len(chunks), Failed: failed,
	})
	return rep, nil
}

func (s *Service) publish(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// chunkTasks builds one task per (language, chunk) pair, languages outermost,
// so result index li*len(chunks)+ci maps back to its slot.
func (s *Service) chunkTasks(langs, chunks []string) []dispatch.Task[string] {
	tasks := make([]dispatch.Task[string], 0, len(langs)*len(chunks))
	for _, lang := range langs {
		for i, chunk := range chunks {
			id := lang
			if len(chunks) > 1 {
				id = fmt.Sprintf("%s-%d", lang, i)
			}
			lang, chunk := lang, chunk
			tasks = append(tasks, dispatch.Task[string]{
				ID: id,
				Run: func(ctx context.Context) (string, error) {
					return s.translateOne(ctx, lang, chunk)
				},
			})
		}
	}
	return tasks
}

// languageTasks builds one task per language that walks its chunks in order.
func (s *Service) languageTasks(langs, chunks []string) []dispatch.Task[string] {
	tasks := make([]dispatch.Task[string], 0, len(langs))
	for _, lang := range langs {
		lang := lang
		tasks = append(tasks, dispatch.Task[string]{
			ID: lang,
			Run: func(ctx context.Context) (string, error) {
				parts := make([]string, 0, len(chunks))
				for i, chunk := range chunks {
					out, err := s.translateOne(ctx, lang, chunk)
					if err != nil {
						return "", fmt.Errorf("chunk %d: %w", i, err)
					}
					parts = append(parts, out)
				}
				return strings.Join(parts, "\n\n"), nil
			},
		})
	}
	return tasks
}

func (s *Service) translateOne(ctx context.Context, lang, text string) (string, error) {
	out, err := s.client.Translate(ctx, lang, text)
	if err != nil {
		s.noteProviderError(err)
		return "", err
	}
	return out, nil
}

// noteProviderError raises the rate-limit gate on throttling errors and
// schedules the release. Overlapping throttles extend the hold.
func (s *Service) noteProviderError(err error) {
	after, ok := IsRateLimited(err)
	if !ok {
		return
	}

	s.mu.Lock()
	hold := after
	if hold <= 0 {
		hold = s.cfg.RateLimitHold
	}
	s.limited.Set()
	if s.holdTimer != nil {
		s.holdTimer.Stop()
	}
	s.holdTimer = time.AfterFunc(hold, s.limited.Clear)
	s.mu.Unlock()

	s.log.Warn("provider throttling detected; pausing dispatch",
		logx.Duration("hold", hold),
		logx.Err(err),
	)
}

func assembleChunked(langs, chunks []string, res []dispatch.Result[string]) []LanguageReport {
	reports := make([]LanguageReport, 0, len(langs))
	for li, lang := range langs {
		lr := LanguageReport{Language: lang}
		parts := make([]string, 0, len(chunks))
		for ci := range chunks {
			r := res[li*len(chunks)+ci]
			switch {
			case !r.Started:
				lr.Errs = append(lr.Errs, fmt.Errorf("chunk %d: %w", ci, errCanceled))
			case !r.OK:
				lr.Errs = append(lr.Errs, fmt.Errorf("chunk %d: %w", ci, r.Err))
			default:
				parts = append(parts, r.Value)
			}
		}
		if lr.OK() {
			lr.Text = strings.Join(parts, "\n\n")
		}
		reports = append(reports, lr)
	}
	return reports
}

func assembleByLanguage(langs []string, res []dispatch.Result[string]) []LanguageReport {
	reports := make([]LanguageReport, 0, len(langs))
	for i, lang := range langs {
		lr := LanguageReport{Language: lang}
		r := res[i]
		switch {
		case !r.Started:
			lr.Errs = append(lr.Errs, errCanceled)
		case !r.OK:
			lr.Errs = append(lr.Errs, r.Err)
		default:
			lr.Text = r.Value
		}
		reports = append(reports, lr)
	}
	return reports
}
