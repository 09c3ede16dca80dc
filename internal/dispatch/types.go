package dispatch

import (
	"context"
	"strconv"
	"strings"
	"time"

	logx "lingod/pkg/logx"
)

// Task is a unit of asynchronous work with a stable identifier.
//
// ID encodes the task's origin as "<lang>" or "<lang>-<zero-based-chunk>"
// (e.g. "fr", "en-2"). Uniqueness is recommended but not enforced; IDs are
// only decoded for progress display.
type Task[T any] struct {
	ID  string
	Run func(ctx context.Context) (T, error)
}

// Result is a task's outcome, stored at the same index as its task.
//
// Started reports whether the task was ever admitted. When admission stops
// early (cancel gate, context), the slice keeps its original length and
// never-admitted slots stay zero-valued.
type Result[T any] struct {
	Started bool
	OK      bool
	Value   T
	Err     error
}

// ActiveTask is the human-readable identity of an in-flight task, decoded
// from its ID. Chunk is 1-based; 0 means the ID carried no chunk suffix.
type ActiveTask struct {
	Language string
	Chunk    int
}

// ProgressFunc is invoked once per task completion with the running completed
// count and the tasks still in flight, ordered by submission index.
type ProgressFunc func(completed int, active []ActiveTask)

// Options controls a single Run invocation.
type Options struct {
	// MaxConcurrent bounds started-but-unfinished tasks. Must be >= 1.
	MaxConcurrent int

	// Delay is the minimum gap between successive admissions.
	// The first admission is never delayed.
	Delay time.Duration

	OnProgress ProgressFunc

	// Cancel stops further admission once set; in-flight tasks drain.
	Cancel *Flag

	// RateLimited pauses the start of admitted tasks' work while set.
	// It does not release concurrency slots.
	RateLimited *Flag

	Log logx.Logger
}

// DecodeTaskID splits a task ID into its display identity.
//
// The chunk suffix is the digits after the last '-'; anything else (including
// region-tagged languages like "pt-BR") is treated as a bare language.
func DecodeTaskID(id string) ActiveTask {
	if i := strings.LastIndex(id, "-"); i > 0 && i < len(id)-1 {
		if n, err := strconv.Atoi(id[i+1:]); err == nil && n >= 0 {
			return ActiveTask{Language: id[:i], Chunk: n + 1}
		}
	}
	return ActiveTask{Language: id}
}
