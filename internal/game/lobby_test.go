package game

import (
	"context"
	"errors"
	"testing"
	"time"

	"bargetrader/internal/domain"
)

func TestLobbyRotatesRounds(t *testing.T) {
	rec := &fakeRecorder{}
	lobby := NewLobby(LobbyConfig{
		Round: RoundConfig{
			Duration:     30 * time.Millisecond,
			InitialPrice: d("70"),
			ClockTick:    2 * time.Millisecond,
			NewsInterval: time.Hour,
		},
		Intermission: 5 * time.Millisecond,
		AutoRotate:   true,
		KeepFinished: 10,
	}, rec, quietLogger())

	started := make(chan string, 16)
	lobby.OnRoundStart(func(r *Round) { started <- r.ID })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lobby.Run(ctx) }()

	var first, second string
	select {
	case first = <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first round not started")
	}
	select {
	case second = <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("second round not started")
	}
	if first == second {
		t.Fatal("rotation reused the round id")
	}

	old, err := lobby.Get(first)
	if err != nil {
		t.Fatalf("finished round not addressable: %v", err)
	}
	if old.Status().State != StateEnded {
		t.Errorf("first round should have ended, got %s", old.Status().State)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("lobby did not stop")
	}

	if rec.count() < 2 {
		t.Errorf("expected at least 2 archived rounds, got %d", rec.count())
	}
	if _, err := lobby.Get("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestLobbyWithoutRotation(t *testing.T) {
	lobby := NewLobby(LobbyConfig{
		Round:      RoundConfig{Duration: time.Minute, InitialPrice: d("70"), NewsInterval: time.Hour},
		AutoRotate: false,
	}, nil, quietLogger())

	r, err := lobby.StartRound()
	if err != nil {
		t.Fatalf("StartRound: %v", err)
	}
	if lobby.Current() != r {
		t.Fatal("new round should be current")
	}
	if !r.End() {
		t.Fatal("expected End to close the round")
	}
	<-r.Closed()
	r.Wait()

	time.Sleep(20 * time.Millisecond)
	if lobby.Current() != r {
		t.Error("no rotation expected")
	}
}

func TestLobbyShutdownRacingExpiry(t *testing.T) {
	for i := 0; i < 20; i++ {
		lobby := NewLobby(LobbyConfig{
			Round: RoundConfig{
				Duration:     time.Duration(1+i%3) * time.Millisecond,
				InitialPrice: d("70"),
				ClockTick:    time.Millisecond,
				NewsInterval: time.Hour,
			},
			AutoRotate: true,
		}, nil, quietLogger())

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- lobby.Run(ctx) }()
		time.Sleep(time.Duration(i%4) * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Fatalf("Run returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("lobby did not stop")
		}

		last := lobby.Current()
		time.Sleep(5 * time.Millisecond)
		if lobby.Current() != last {
			t.Fatal("a round started after Run returned")
		}
		if last != nil && last.Status().State != StateEnded {
			t.Errorf("current round left %s after shutdown", last.Status().State)
		}
	}
}
