package translate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "lingod/pkg/logx"
)

// kvStore is an in-memory settings store for tests.
type kvStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newKVStore(values map[string]string) *kvStore {
	if values == nil {
		values = map[string]string{}
	}
	return &kvStore{values: values}
}

func (s *kvStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *kvStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *kvStore) Close() error { return nil }

type clientFunc func(ctx context.Context, lang, text string) (string, error)

func (f clientFunc) Translate(ctx context.Context, lang, text string) (string, error) {
	return f(ctx, lang, text)
}

func echoClient() clientFunc {
	return func(_ context.Context, lang, text string) (string, error) {
		return "[" + lang + "]" + text, nil
	}
}

func TestTranslateSequentialDefault(t *testing.T) {
	t.Parallel()

	var cur, peak int32
	client := clientFunc(func(_ context.Context, lang, text string) (string, error) {
		c := atomic.AddInt32(&cur, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if c <= p || atomic.CompareAndSwapInt32(&peak, p, c) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&cur, -1)
		return "[" + lang + "]" + text, nil
	})

	// Empty store: mode defaults to sequential, delay to 200ms. Override the
	// delay so the test stays fast; the mode default is what matters here.
	st := newKVStore(map[string]string{"request-delay-ms": "0"})
	svc := New(Config{ChunkSize: 6}, client, st, nil, logx.Nop())

	rep, err := svc.Translate(context.Background(), Document{ID: "post-1", Body: "aaaa\n\nbbbb"}, []string{"en", "fr"})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if got := atomic.LoadInt32(&peak); got > 1 {
		t.Fatalf("peak concurrency = %d, want 1 in sequential mode", got)
	}
	if len(rep.Languages) != 2 {
		t.Fatalf("len(Languages) = %d, want 2", len(rep.Languages))
	}
	want := map[string]string{
		"en": "[en]aaaa\n\n[en]bbbb",
		"fr": "[fr]aaaa\n\n[fr]bbbb",
	}
	for _, lr := range rep.Languages {
		if !lr.OK() {
			t.Fatalf("lang %s failed: %v", lr.Language, lr.Errs)
		}
		if lr.Text != want[lr.Language] {
			t.Fatalf("lang %s text = %q, want %q", lr.Language, lr.Text, want[lr.Language])
		}
	}
}

func TestTranslateFullParallelRunsConcurrently(t *testing.T) {
	t.Parallel()

	// Both language tasks must be in flight at once, otherwise this blocks
	// and the test times out.
	var entered int32
	both := make(chan struct{})
	client := clientFunc(func(ctx context.Context, lang, text string) (string, error) {
		if atomic.AddInt32(&entered, 1) == 2 {
			close(both)
		}
		select {
		case <-both:
		case <-time.After(5 * time.Second):
			return "", errors.New("peer never started; executor is not parallel")
		}
		return "[" + lang + "]" + text, nil
	})

	st := newKVStore(map[string]string{
		"parallel-mode":    "full-parallel",
		"max-concurrent":   "4",
		"request-delay-ms": "0",
	})
	svc := New(Config{}, client, st, nil, logx.Nop())

	rep, err := svc.Translate(context.Background(), Document{ID: "post-2", Body: "hello"}, []string{"en", "fr"})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	for _, lr := range rep.Languages {
		if !lr.OK() {
			t.Fatalf("lang %s failed: %v", lr.Language, lr.Errs)
		}
	}
}

func TestTranslateByLanguageKeepsChunkOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	calls := map[string][]string{}
	client := clientFunc(func(_ context.Context, lang, text string) (string, error) {
		mu.Lock()
		calls[lang] = append(calls[lang], text)
		mu.Unlock()
		return "[" + lang + "]" + text, nil
	})

	st := newKVStore(map[string]string{
		"parallel-mode":    "parallel-by-language",
		"max-concurrent":   "3",
		"request-delay-ms": "0",
	})
	svc := New(Config{ChunkSize: 6}, client, st, nil, logx.Nop())

	rep, err := svc.Translate(context.Background(), Document{ID: "post-3", Body: "aaaa\n\nbbbb\n\ncccc"}, []string{"en", "fr"})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, lang := range []string{"en", "fr"} {
		got := calls[lang]
		if len(got) != 3 || got[0] != "aaaa" || got[1] != "bbbb" || got[2] != "cccc" {
			t.Fatalf("lang %s chunk order = %q, want aaaa bbbb cccc", lang, got)
		}
	}
	for _, lr := range rep.Languages {
		if lr.Text != fmt.Sprintf("[%s]aaaa\n\n[%s]bbbb\n\n[%s]cccc", lr.Language, lr.Language, lr.Language) {
			t.Fatalf("lang %s text = %q", lr.Language, lr.Text)
		}
	}
}

func TestTranslateFailureIsolatedPerLanguage(t *testing.T) {
	t.Parallel()

	client := clientFunc(func(_ context.Context, lang, text string) (string, error) {
		if lang == "fr" {
			return "", errors.New("timeout")
		}
		return "[" + lang + "]" + text, nil
	})

	st := newKVStore(map[string]string{
		"parallel-mode":    "full-parallel",
		"max-concurrent":   "2",
		"request-delay-ms": "0",
	})
	svc := New(Config{}, client, st, nil, logx.Nop())

	rep, err := svc.Translate(context.Background(), Document{ID: "post-4", Body: "hello"}, []string{"en", "fr", "de"})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}

	for _, lr := range rep.Languages {
		if lr.Language == "fr" {
			if lr.OK() || len(lr.Errs) != 1 {
				t.Fatalf("fr report = %+v, want one captured failure", lr)
			}
			continue
		}
		if !lr.OK() {
			t.Fatalf("lang %s failed: %v (failures must be isolated)", lr.Language, lr.Errs)
		}
	}
}

func TestCancelSkipsRemainingLanguages(t *testing.T) {
	t.Parallel()

	var svc *Service
	client := clientFunc(func(_ context.Context, lang, text string) (string, error) {
		if lang == "en" {
			svc.Cancel()
		}
		return "[" + lang + "]" + text, nil
	})

	st := newKVStore(map[string]string{
		"parallel-mode":    "parallel-by-chunk",
		"max-concurrent":   "2",
		"request-delay-ms": "0",
	})
	svc = New(Config{}, client, st, nil, logx.Nop())

	rep, err := svc.Translate(context.Background(), Document{ID: "post-5", Body: "hello"}, []string{"en", "fr", "de"})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if len(rep.Languages) != 3 {
		t.Fatalf("len(Languages) = %d, want 3 (skipped languages keep their slots)", len(rep.Languages))
	}
	if !rep.Languages[0].OK() {
		t.Fatalf("en report = %+v, want completed (started work drains)", rep.Languages[0])
	}
	for _, lr := range rep.Languages[1:] {
		if lr.OK() || !errors.Is(lr.Errs[0], errCanceled) {
			t.Fatalf("lang %s report = %+v, want canceled", lr.Language, lr)
		}
	}
}

func TestThrottleRaisesAndReleasesGate(t *testing.T) {
	t.Parallel()

	svc := New(Config{RateLimitHold: 60 * time.Millisecond}, echoClient(), newKVStore(nil), nil, logx.Nop())

	svc.noteProviderError(RateLimited(errors.New("status 429"), 0))
	if !svc.limited.IsSet() {
		t.Fatal("gate not raised on throttling error")
	}

	deadline := time.Now().Add(2 * time.Second)
	for svc.limited.IsSet() {
		if time.Now().After(deadline) {
			t.Fatal("gate never released")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestThrottleIgnoresOrdinaryErrors(t *testing.T) {
	t.Parallel()

	svc := New(Config{}, echoClient(), newKVStore(nil), nil, logx.Nop())
	svc.noteProviderError(errors.New("boom"))
	if svc.limited.IsSet() {
		t.Fatal("gate raised for a non-throttling error")
	}
}

func TestRateLimitedErrorHint(t *testing.T) {
	t.Parallel()

	base := errors.New("status 429")
	err := RateLimited(base, 3*time.Second)
	after, ok := IsRateLimited(err)
	if !ok || after != 3*time.Second {
		t.Fatalf("IsRateLimited = (%v, %v), want (3s, true)", after, ok)
	}
	if !errors.Is(err, base) {
		t.Fatal("wrapped error lost its cause")
	}
	if _, ok := IsRateLimited(errors.New("plain")); ok {
		t.Fatal("plain error reported as rate limited")
	}
	if RateLimited(nil, time.Second) != nil {
		t.Fatal("RateLimited(nil) must be nil")
	}
}

func TestTranslateEmptyBody(t *testing.T) {
	t.Parallel()

	calls := int32(0)
	client := clientFunc(func(_ context.Context, lang, text string) (string, error) {
		atomic.AddInt32(&calls, 1)
		return text, nil
	})
	svc := New(Config{}, client, newKVStore(nil), nil, logx.Nop())

	rep, err := svc.Translate(context.Background(), Document{ID: "post-6"}, []string{"en"})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("provider called for an empty document")
	}
	if len(rep.Languages) != 1 || !rep.Languages[0].OK() {
		t.Fatalf("report = %+v, want one empty ok language", rep.Languages)
	}
}
