package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/time/rate"

	logx "lingod/pkg/logx"
)

// ErrMaxConcurrent is returned (wrapped with the offending value) when
// Options.MaxConcurrent is below 1. It is the only error Run returns;
// task-level failures are data in the result slice.
var ErrMaxConcurrent = errors.New("dispatch: max concurrent must be >= 1")

// gatePollInterval bounds how often the rate-limit gate is re-checked.
// Throttle events are second-scale, so a sleepy poll is fine here.
const gatePollInterval = 100 * time.Millisecond

type outcome[T any] struct {
	index int
	res   Result[T]
}

// Run executes tasks in submission order under opts and returns one result
// per submitted task, keyed to submission index.
//
// Admission of task i waits for: the pacing delay (except the first
// admission), a clear cancel gate, and a free concurrency slot. The
// rate-limit gate is checked by each admitted task immediately before its
// work starts. After admission stops (list exhausted, cancel gate, or ctx
// done) all in-flight tasks drain before Run returns.
//
// Cancellation is cooperative: started tasks are never force-aborted. Task
// functions receive a context detached from ctx's cancellation so a canceled
// batch still drains gracefully.
func Run[T any](ctx context.Context, tasks []Task[T], opts Options) ([]Result[T], error) {
	if opts.MaxConcurrent < 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrMaxConcurrent, opts.MaxConcurrent)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}

	results := make([]Result[T], len(tasks))
	if len(tasks) == 0 {
		return results, nil
	}

	var limiter *rate.Limiter
	if opts.Delay > 0 {
		// Burst 1 with a full bucket: first admission is immediate,
		// successive admissions are at least Delay apart.
		limiter = rate.NewLimiter(rate.Every(opts.Delay), 1)
	}

	// All bookkeeping below is owned by this goroutine; workers only send
	// their outcome once on done.
	done := make(chan outcome[T])
	inflight := make(map[int]struct{}, opts.MaxConcurrent)
	completed := 0

	settle := func(o outcome[T]) {
		results[o.index] = o.res
		delete(inflight, o.index)
		completed++
		log.Debug("task completed",
			logx.String("id", tasks[o.index].ID),
			logx.Bool("ok", o.res.OK),
			logx.Int("completed", completed),
			logx.Int("in_flight", len(inflight)),
		)
		if opts.OnProgress != nil {
			opts.OnProgress(completed, activeTasks(tasks, inflight))
		}
	}

	// Started tasks must drain even when ctx is canceled mid-batch.
	runCtx := context.WithoutCancel(ctx)

	admitted := 0
admission:
	for i := range tasks {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		if opts.Cancel.IsSet() || ctx.Err() != nil {
			log.Debug("admission stopped",
				logx.Int("admitted", admitted),
				logx.Int("remaining", len(tasks)-i),
			)
			break
		}

		// Opportunistically record finished work so progress stays fresh.
		for {
			select {
			case o := <-done:
				settle(o)
				continue
			default:
			}
			break
		}

		// Concurrency gate: block until a slot frees up.
		for len(inflight) == opts.MaxConcurrent {
			settle(<-done)
			// A slot is free now, but the cancel gate may have flipped
			// while we were blocked.
			if opts.Cancel.IsSet() || ctx.Err() != nil {
				break admission
			}
		}

		inflight[i] = struct{}{}
		admitted++
		go execute(runCtx, i, tasks[i], opts.RateLimited, done)
	}

	for len(inflight) > 0 {
		settle(<-done)
	}

	log.Debug("dispatch finished",
		logx.Int("submitted", len(tasks)),
		logx.Int("admitted", admitted),
		logx.Int("completed", completed),
	)
	return results, nil
}

func execute[T any](ctx context.Context, index int, t Task[T], gate *Flag, done chan<- outcome[T]) {
	waitWhileSet(gate)

	res := Result[T]{Started: true}
	// Guard against task panics: one bad task must not take down the batch.
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.OK = false
				res.Err = fmt.Errorf("panic: %v", r)
			}
		}()
		v, err := t.Run(ctx)
		if err != nil {
			res.Err = err
			return
		}
		res.OK = true
		res.Value = v
	}()

	done <- outcome[T]{index: index, res: res}
}

// waitWhileSet blocks while the gate is raised. The gate only delays the
// start of work; it is released solely by the caller clearing the flag.
func waitWhileSet(f *Flag) {
	if !f.IsSet() {
		return
	}
	t := time.NewTicker(gatePollInterval)
	defer t.Stop()
	for range t.C {
		if !f.IsSet() {
			return
		}
	}
}

func activeTasks[T any](tasks []Task[T], inflight map[int]struct{}) []ActiveTask {
	if len(inflight) == 0 {
		return nil
	}
	idx := make([]int, 0, len(inflight))
	for i := range inflight {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	out := make([]ActiveTask, 0, len(idx))
	for _, i := range idx {
		out = append(out, DecodeTaskID(tasks[i].ID))
	}
	return out
}
