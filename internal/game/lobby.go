package game

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bargetrader/internal/domain"
)

// LobbyConfig configures round rotation
type LobbyConfig struct {
	Round        RoundConfig
	Intermission time.Duration
	AutoRotate   bool
	KeepFinished int
}

// Lobby manages the round lifecycle and automatic rotation. Finished rounds
// stay addressable by id so late pollers can still read them.
type Lobby struct {
	mu sync.RWMutex

	cfg      LobbyConfig
	recorder Recorder
	logger   *slog.Logger

	current  *Round
	rounds   map[string]*Round
	finished []string

	ctx     context.Context
	running bool
	wg      sync.WaitGroup

	onRoundStart []func(*Round)
	onRoundEnd   []func(*Round)
}

func NewLobby(cfg LobbyConfig, recorder Recorder, logger *slog.Logger) *Lobby {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.KeepFinished < 1 {
		cfg.KeepFinished = 1
	}
	return &Lobby{
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
		rounds:   make(map[string]*Round),
	}
}

// Run opens the first round and rotates rounds until ctx is cancelled. On
// shutdown the current round is ended, so it is archived.
func (l *Lobby) Run(ctx context.Context) error {
	l.mu.Lock()
	l.ctx = ctx
	l.running = true
	l.mu.Unlock()

	if _, err := l.StartRound(); err != nil {
		return err
	}

	<-ctx.Done()

	l.mu.Lock()
	l.running = false
	cur := l.current
	l.mu.Unlock()

	if cur != nil {
		cur.End()
	}
	l.wg.Wait()
	return nil
}

// StartRound opens a new round and makes it current.
func (l *Lobby) StartRound() (*Round, error) {
	l.mu.RLock()
	ctx := l.ctx
	l.mu.RUnlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := NewRound(l.cfg.Round, l.recorder, l.logger)
	if err != nil {
		return nil, err
	}
	r.OnEnd(l.handleRoundEnd)

	l.mu.Lock()
	l.current = r
	l.rounds[r.ID] = r
	hooks := append([]func(*Round){}, l.onRoundStart...)
	l.wg.Add(1)
	l.mu.Unlock()

	for _, fn := range hooks {
		fn(r)
	}

	if err := r.Start(ctx); err != nil {
		l.wg.Done()
		return nil, err
	}
	// Run may have ended the previous current round while this one was
	// being created.
	if ctx.Err() != nil {
		r.End()
	}

	go func() {
		defer l.wg.Done()
		r.Wait()
	}()
	return r, nil
}

// handleRoundEnd records the finished round and schedules the next one
// after the intermission.
func (l *Lobby) handleRoundEnd(r *Round) {
	l.mu.Lock()
	l.finished = append(l.finished, r.ID)
	for len(l.finished) > l.cfg.KeepFinished {
		evict := l.finished[0]
		l.finished = l.finished[1:]
		if evict != l.current.ID {
			delete(l.rounds, evict)
		}
	}
	// Run stops the rotation under the same lock before it waits, so this
	// Add never races its Wait.
	rotate := l.running && l.cfg.AutoRotate
	if rotate {
		l.wg.Add(1)
	}
	ctx := l.ctx
	hooks := append([]func(*Round){}, l.onRoundEnd...)
	l.mu.Unlock()

	for _, fn := range hooks {
		fn(r)
	}

	if !rotate {
		return
	}

	go func() {
		defer l.wg.Done()
		select {
		case <-time.After(l.cfg.Intermission):
			if _, err := l.StartRound(); err != nil {
				l.logger.Error("failed to start next round", "error", err)
			}
		case <-ctx.Done():
		}
	}()
}

// Current returns the newest round, which may already have ended during an
// intermission.
func (l *Lobby) Current() *Round {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Get returns a live or recently finished round.
func (l *Lobby) Get(id string) (*Round, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.rounds[id]
	if !ok {
		return nil, domain.NotFoundf("round %s not found", id)
	}
	return r, nil
}

// OnRoundStart registers fn to run for each new round before it starts.
func (l *Lobby) OnRoundStart(fn func(*Round)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRoundStart = append(l.onRoundStart, fn)
}

// OnRoundEnd registers fn to run after each round is archived.
func (l *Lobby) OnRoundEnd(fn func(*Round)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onRoundEnd = append(l.onRoundEnd, fn)
}
