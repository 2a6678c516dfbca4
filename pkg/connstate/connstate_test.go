package connstate

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// TestCompute_TransitionTable covers every named row of the periodic
// recompute table plus the otherwise->Invalid catch-all.
func TestCompute_TransitionTable(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want State
	}{
		{
			name: "not broadcasting, not scanning, no group -> Offline",
			in:   Input{FoundGroup: false, ShouldBroadcast: false, ShouldScan: false, ActivePeerCount: 0},
			want: State{Kind: KindOffline},
		},
		{
			name: "broadcasting and scanning, no group, no peers -> Searching",
			in:   Input{FoundGroup: false, ShouldBroadcast: true, ShouldScan: true, ActivePeerCount: 0},
			want: State{Kind: KindSearching},
		},
		{
			name: "found group, stopped scanning, peers present -> Connected(n)",
			in:   Input{FoundGroup: true, ShouldBroadcast: false, ShouldScan: false, ActivePeerCount: 3},
			want: State{Kind: KindConnected, PeerCount: 3},
		},
		{
			name: "found group, stopped scanning, no peers -> Reconnecting",
			in:   Input{FoundGroup: true, ShouldBroadcast: true, ShouldScan: false, ActivePeerCount: 0},
			want: State{Kind: KindReconnecting},
		},
		{
			name: "found group but still scanning -> Invalid",
			in:   Input{FoundGroup: true, ShouldBroadcast: false, ShouldScan: true, ActivePeerCount: 2},
			want: State{Kind: KindInvalid},
		},
		{
			name: "no group, broadcasting only, not scanning -> Invalid",
			in:   Input{FoundGroup: false, ShouldBroadcast: true, ShouldScan: false, ActivePeerCount: 0},
			want: State{Kind: KindInvalid},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(tt.in)
			if got != tt.want {
				t.Fatalf("Compute(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoop_RecomputeNotifiesOnlyOnChange(t *testing.T) {
	var mu sync.Mutex
	var calls []State
	input := Input{FoundGroup: false, ShouldBroadcast: false, ShouldScan: false}

	l := NewLoop(func() Input {
		mu.Lock()
		defer mu.Unlock()
		return input
	}, func(prev, next State) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, next)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Close()

	l.Recompute() // same input, should not notify again
	l.Recompute()

	mu.Lock()
	n := len(calls)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("got %d onChange calls for an unchanged input, want 1 (initial)", n)
	}

	mu.Lock()
	input = Input{FoundGroup: false, ShouldBroadcast: true, ShouldScan: true, ActivePeerCount: 0}
	mu.Unlock()
	l.Recompute()

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 2 {
		t.Fatalf("got %d onChange calls after a real transition, want 2", len(calls))
	}
	if calls[1].Kind != KindSearching {
		t.Fatalf("calls[1].Kind = %v, want Searching", calls[1].Kind)
	}
}

func TestLoop_Disconnect(t *testing.T) {
	l := NewLoop(func() Input {
		return Input{FoundGroup: true, ShouldScan: false, ActivePeerCount: 1}
	}, func(prev, next State) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Close()

	if l.Current().Kind != KindConnected {
		t.Fatalf("Current = %v, want Connected", l.Current().Kind)
	}
	l.Disconnect()
	if l.Current().Kind != KindDisconnected {
		t.Fatalf("Current = %v, want Disconnected", l.Current().Kind)
	}
}

func TestLoop_OnChangeReportsPrevForEdgeDetection(t *testing.T) {
	var mu sync.Mutex
	var edges [][2]Kind
	peers := 1

	l := NewLoop(func() Input {
		mu.Lock()
		defer mu.Unlock()
		return Input{FoundGroup: true, ShouldScan: false, ActivePeerCount: peers}
	}, func(prev, next State) {
		mu.Lock()
		defer mu.Unlock()
		edges = append(edges, [2]Kind{prev.Kind, next.Kind})
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Close()

	if l.Current().Kind != KindConnected {
		t.Fatalf("Current = %v, want Connected", l.Current().Kind)
	}

	mu.Lock()
	peers = 0
	mu.Unlock()
	l.Recompute()

	if l.Current().Kind != KindReconnecting {
		t.Fatalf("Current = %v, want Reconnecting", l.Current().Kind)
	}

	mu.Lock()
	defer mu.Unlock()
	last := edges[len(edges)-1]
	if last[0] != KindConnected || last[1] != KindReconnecting {
		t.Fatalf("last edge = %v -> %v, want Connected -> Reconnecting", last[0], last[1])
	}
}

func TestLoop_TicksPeriodically(t *testing.T) {
	calls := make(chan State, 8)
	toggled := false
	var mu sync.Mutex

	l := NewLoop(func() Input {
		mu.Lock()
		defer mu.Unlock()
		if toggled {
			return Input{FoundGroup: false, ShouldBroadcast: true, ShouldScan: true, ActivePeerCount: 0}
		}
		return Input{}
	}, func(prev, next State) { calls <- next })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)
	defer l.Close()

	<-calls // initial Offline

	mu.Lock()
	toggled = true
	mu.Unlock()

	select {
	case s := <-calls:
		if s.Kind != KindSearching {
			t.Fatalf("Kind = %v, want Searching", s.Kind)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("timed out waiting for periodic recompute to observe the toggle")
	}
}
