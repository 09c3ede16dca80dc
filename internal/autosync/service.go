// Package autosync re-translates pending documents on a cron schedule.
package autosync

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"lingod/internal/translate"
	logx "lingod/pkg/logx"
)

// Source lists the documents that still need translation.
type Source interface {
	Pending(ctx context.Context) ([]translate.Document, error)
}

type Config struct {
	Enabled   bool
	Schedule  string // standard 5-field cron spec; seconds field optional
	Languages []string
}

type Service struct {
	mu  sync.Mutex
	cfg Config

	translator *translate.Service
	source     Source
	log        logx.Logger
	parser     cron.Parser

	c       *cron.Cron
	runCtx  context.Context
	cancel  context.CancelFunc
	running atomic.Bool // one sync at a time; overlapping ticks are skipped
}

func New(cfg Config, translator *translate.Service, source Source, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:        cfg,
		translator: translator,
		source:     source,
		log:        log,
		// SecondOptional allows both 5-field and 6-field cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// ValidateSchedule reports whether spec is a cron expression the service accepts.
func (s *Service) ValidateSchedule(spec string) error {
	_, err := s.parser.Parse(spec)
	return err
}

// Start registers the schedule and begins ticking. No-op when disabled.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.c != nil {
		return nil
	}

	sched, err := s.parser.Parse(s.cfg.Schedule)
	if err != nil {
		return err
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser))
	s.c.Schedule(sched, cron.FuncJob(s.tick))
	s.c.Start()
	s.log.Info("autosync started",
		logx.String("schedule", s.cfg.Schedule),
		logx.Int("languages", len(s.cfg.Languages)),
	)
	return nil
}

// Stop halts the schedule and waits for a tick in flight.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	<-c.Stop().Done()
	s.log.Info("autosync stopped")
}

// Apply swaps the config. A schedule or enable change takes effect by
// restarting the cron instance.
func (s *Service) Apply(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	unchanged := s.cfg.Enabled == cfg.Enabled && s.cfg.Schedule == cfg.Schedule
	s.cfg = cfg
	started := s.c != nil
	s.mu.Unlock()

	if unchanged || (!started && !cfg.Enabled) {
		return nil
	}
	s.Stop()
	return s.Start(ctx)
}

func (s *Service) tick() {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("autosync tick skipped; previous run still active")
		return
	}
	defer s.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in autosync run", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()

	s.mu.Lock()
	ctx := s.runCtx
	langs := s.cfg.Languages
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.runOnce(ctx, langs)
}

// RunNow performs one sync pass outside the schedule.
func (s *Service) RunNow(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("autosync run skipped; another run is active")
		return nil
	}
	defer s.running.Store(false)

	s.mu.Lock()
	langs := s.cfg.Languages
	s.mu.Unlock()
	return s.runOnce(ctx, langs)
}

func (s *Service) runOnce(ctx context.Context, langs []string) error {
	docs, err := s.source.Pending(ctx)
	if err != nil {
		s.log.Error("autosync: listing pending documents failed", logx.Err(err))
		return err
	}
	if len(docs) == 0 {
		s.log.Debug("autosync: nothing pending")
		return nil
	}

	s.log.Info("autosync run started", logx.Int("documents", len(docs)))
	failed := 0
	for _, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		rep, err := s.translator.Translate(ctx, doc, langs)
		if err != nil {
			failed++
			s.log.Error("autosync: document dispatch failed", logx.String("doc", doc.ID), logx.Err(err))
			continue
		}
		for _, lr := range rep.Languages {
			if !lr.OK() {
				failed++
				break
			}
		}
	}
	s.log.Info("autosync run finished", logx.Int("documents", len(docs)), logx.Int("failed", failed))
	return nil
}
