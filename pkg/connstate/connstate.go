// Package connstate implements the Connection-State Loop: a
// pure transition function over (found_group, should_broadcast,
// should_scan, active_peer_count), driven by a periodic recompute task.
//
// The transition function itself carries no side effects and no lock, the
// same shape as a BFD-style pure finite state machine: given an input, it
// always returns the same output, so it is trivially unit-testable without
// standing up a Loop at all.
package connstate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Kind names a connection state.
type Kind uint8

const (
	KindOffline Kind = iota
	KindSearching
	KindConnected
	KindReconnecting
	KindDisconnected // reachable only via an explicit Disconnect call, never the periodic table
	KindInvalid
)

// String renders the state kind for logging.
func (k Kind) String() string {
	switch k {
	case KindOffline:
		return "offline"
	case KindSearching:
		return "searching"
	case KindConnected:
		return "connected"
	case KindReconnecting:
		return "reconnecting"
	case KindDisconnected:
		return "disconnected"
	default:
		return "invalid"
	}
}

// State is the output of Compute: a Kind plus, for Connected, the peer
// count it was computed from.
type State struct {
	Kind      Kind
	PeerCount int
}

// Input is the periodic recompute table's input.
type Input struct {
	FoundGroup      bool
	ShouldBroadcast bool
	ShouldScan      bool
	ActivePeerCount int
}

// Compute is the pure transition function:
//
//	(false, false, false, _)    -> Offline
//	(false, true,  true,  0)    -> Searching
//	(true,  _,     false, n>0)  -> Connected(n)
//	(true,  _,     false, 0)    -> Reconnecting
//	otherwise                   -> Invalid
func Compute(in Input) State {
	switch {
	case !in.FoundGroup && !in.ShouldBroadcast && !in.ShouldScan:
		return State{Kind: KindOffline}
	case !in.FoundGroup && in.ShouldBroadcast && in.ShouldScan && in.ActivePeerCount == 0:
		return State{Kind: KindSearching}
	case in.FoundGroup && !in.ShouldScan && in.ActivePeerCount > 0:
		return State{Kind: KindConnected, PeerCount: in.ActivePeerCount}
	case in.FoundGroup && !in.ShouldScan && in.ActivePeerCount == 0:
		return State{Kind: KindReconnecting}
	default:
		return State{Kind: KindInvalid}
	}
}

// recomputeInterval is the periodic re-evaluation period.
const recomputeInterval = 5 * time.Second

// InputFunc supplies the current input snapshot. The Loop never holds its
// own copy of found_group/should_scan/etc.; the caller (Nearby Service)
// owns that state and is read through this function each tick.
type InputFunc func() Input

// Loop periodically recomputes connection state and notifies a listener on
// every change.
type Loop struct {
	input    InputFunc
	onChange func(prev, next State)

	mu      sync.Mutex
	current State

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLoop constructs a Loop. onChange is invoked outside any lock whenever
// the computed state changes (including the very first computation), with
// both the state being left and the state being entered, so a caller can
// detect a specific edge (such as Connected -> Reconnecting) without
// keeping its own copy of the previous state.
func NewLoop(input InputFunc, onChange func(prev, next State)) *Loop {
	return &Loop{input: input, onChange: onChange}
}

// Start begins the periodic recompute task. Stop via ctx cancellation or
// by calling Close.
func (l *Loop) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel

	l.Recompute() // run on entry as well as periodically

	l.wg.Add(1)
	go l.run(runCtx)
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()
	ticker := time.NewTicker(recomputeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Recompute()
		}
	}
}

// Recompute re-evaluates state immediately. Call this on every radio-flag
// toggle and every found_group change, in addition to the ticker.
func (l *Loop) Recompute() {
	next := Compute(l.input())
	l.mu.Lock()
	prev := l.current
	changed := next != l.current
	l.current = next
	l.mu.Unlock()
	if changed {
		slog.Debug("connstate: transition", "from", prev.Kind, "state", next.Kind, "peers", next.PeerCount)
		if l.onChange != nil {
			l.onChange(prev, next)
		}
	}
}

// Disconnect forces KindDisconnected, bypassing Compute entirely: the only
// path into this state, surfaced for host-application use such as a user
// force-quitting networking.
func (l *Loop) Disconnect() {
	next := State{Kind: KindDisconnected}
	l.mu.Lock()
	prev := l.current
	changed := next != l.current
	l.current = next
	l.mu.Unlock()
	if changed && l.onChange != nil {
		l.onChange(prev, next)
	}
}

// Current returns the last computed state.
func (l *Loop) Current() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current
}

// Close stops the periodic task and waits for it to exit.
func (l *Loop) Close() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}
