package bots

import (
	"context"
	"sync"

	"bargetrader/internal/eventlog"
)

// Manager runs a round's AIs.
type Manager struct {
	mu  sync.Mutex
	ais []*AI
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) Add(ai *AI) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ais = append(m.ais, ai)
}

func (m *Manager) AIs() []*AI {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*AI, len(m.ais))
	copy(out, m.ais)
	return out
}

// Run starts every AI and blocks until ctx is cancelled and all have
// stopped.
func (m *Manager) Run(ctx context.Context, log *eventlog.Log) {
	var wg sync.WaitGroup
	for _, ai := range m.AIs() {
		wg.Add(1)
		go func(ai *AI) {
			defer wg.Done()
			ai.Run(ctx, log)
		}(ai)
	}
	wg.Wait()
}
