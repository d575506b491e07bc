// Package cell implements the propagation engine described in SPEC_FULL.md:
// the cell/observer contract, the state registry, the two-phase
// glitch-free update protocol, mutable cells with batching, dynamic
// computed cells, watchers, and the async await/wait cells.
package cell

import (
	"runtime"
	"sync"
)

// goroutineID extracts the numeric goroutine id from the runtime stack
// trace. Ported from the teacher's internal/reactive/tracking.go
// getGoroutineID, which used the same parse-the-stack-header trick to key
// a goroutine-local effect stack. Here it keys a goroutine-local argument
// tracker stack instead of an effect stack, since the tracker must be
// shared by computed cells, watchers and the async compute path alike.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	inNumber := false
	for i := 0; i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			inNumber = true
			id = id*10 + uint64(buf[i]-'0')
		} else if inNumber {
			break
		}
	}
	return id
}

// trackFunc records a cell as a dependency of whatever computation is
// currently running. It mirrors ArgumentTracker.track in
// original_source/live_cells/tracking.py.
type trackFunc func(c AnyCell)

type trackerFrame struct {
	track trackFunc
	prev  *trackerFrame
}

var (
	trackerStacks   = map[uint64]*trackerFrame{}
	trackerStacksMu sync.Mutex
)

// pushTracker installs track as the active dependency recorder for the
// calling goroutine, returning a function that restores the previous
// tracker. track may be nil, meaning "record nothing" (used by
// WithoutTracker).
func pushTracker(track trackFunc) (pop func()) {
	gid := goroutineID()

	trackerStacksMu.Lock()
	prev := trackerStacks[gid]
	trackerStacks[gid] = &trackerFrame{track: track, prev: prev}
	trackerStacksMu.Unlock()

	return func() {
		trackerStacksMu.Lock()
		defer trackerStacksMu.Unlock()

		if prev == nil {
			delete(trackerStacks, gid)
		} else {
			trackerStacks[gid] = prev
		}
	}
}

// currentTracker returns the dependency recorder active on the calling
// goroutine, or nil if none is installed.
func currentTracker() trackFunc {
	gid := goroutineID()

	trackerStacksMu.Lock()
	defer trackerStacksMu.Unlock()

	if frame := trackerStacks[gid]; frame != nil {
		return frame.track
	}
	return nil
}

// WithTracker runs fn with track installed as the dependency recorder,
// restoring whatever was previously installed (including nil) on return.
// This is the Go equivalent of original_source's ArgumentTracker context
// manager, generalized so any component — computed cells, the watcher,
// the dynamic-argument compute state — can share one stack.
func WithTracker(track func(c AnyCell), fn func()) {
	pop := pushTracker(track)
	defer pop()
	fn()
}

// WithoutTracker runs fn with dependency tracking suspended, so reads of
// Cell.Value inside fn never leak as dependencies to an enclosing
// computation. Ports without_tracker from tracking.py.
func WithoutTracker(fn func()) {
	pop := pushTracker(nil)
	defer pop()
	fn()
}

// track notifies the active tracker, if any, that c was referenced via
// Call(). It is the Go analogue of ArgumentTracker.track.
func track(c AnyCell) {
	if t := currentTracker(); t != nil {
		t(c)
	}
}
