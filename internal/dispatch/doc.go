package dispatch

// Package dispatch runs many independent translation tasks under three
// simultaneous constraints:
//
//   - a ceiling on the number of started-but-unfinished tasks,
//   - a minimum pacing delay between successive admissions,
//   - a shared rate-limit gate that pauses the start of new work.
//
// A single driver goroutine walks the task list in submission order and owns
// all bookkeeping; per-task worker goroutines report back over a channel.
// Results are keyed to submission index, so the returned slice is
// deterministic regardless of completion order.
