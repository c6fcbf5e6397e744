// Package news releases catalogue headlines into a round's event log.
package news

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bargetrader/internal/domain"
	"bargetrader/internal/eventlog"
)

type FeedConfig struct {
	Items    []domain.News
	Interval time.Duration
	// Repeat cycles the catalogue instead of stopping after the last item.
	Repeat bool
}

// Feed publishes one item immediately and then one per interval.
type Feed struct {
	cfg    FeedConfig
	log    *eventlog.Log
	logger *slog.Logger

	mu        sync.Mutex
	next      int
	published int
}

func NewFeed(cfg FeedConfig, log *eventlog.Log, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{cfg: cfg, log: log, logger: logger}
}

// Run publishes until the catalogue is exhausted or ctx is cancelled.
func (f *Feed) Run(ctx context.Context) {
	if !f.publishNext() {
		return
	}

	ticker := time.NewTicker(f.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !f.publishNext() {
				return
			}
		}
	}
}

// publishNext appends the next item and reports whether more remain.
func (f *Feed) publishNext() bool {
	f.mu.Lock()
	if len(f.cfg.Items) == 0 || (f.next >= len(f.cfg.Items) && !f.cfg.Repeat) {
		f.mu.Unlock()
		return false
	}
	item := f.cfg.Items[f.next%len(f.cfg.Items)]
	f.next++
	f.published++
	more := f.cfg.Repeat || f.next < len(f.cfg.Items)
	f.mu.Unlock()

	seq := f.log.Append(eventlog.NewsEvent(item))
	f.logger.Info("news published", "seq", seq, "content", item.Content, "impact", item.Impact)
	return more
}

// Published is the number of items released so far.
func (f *Feed) Published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published
}
