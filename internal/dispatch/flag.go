package dispatch

import "sync/atomic"

// Flag is a shared boolean handle flipped by the caller and read by the
// dispatcher. The caller raises it on provider throttling (rate-limit gate)
// or user-initiated stop (cancel gate).
//
// A nil *Flag reads as not set, so optional gates need no special casing.
type Flag struct {
	v atomic.Bool
}

func (f *Flag) Set() {
	if f != nil {
		f.v.Store(true)
	}
}

func (f *Flag) Clear() {
	if f != nil {
		f.v.Store(false)
	}
}

func (f *Flag) IsSet() bool {
	return f != nil && f.v.Load()
}
