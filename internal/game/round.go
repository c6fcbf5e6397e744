package game

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bargetrader/internal/book"
	"bargetrader/internal/bots"
	"bargetrader/internal/domain"
	"bargetrader/internal/eventlog"
	"bargetrader/internal/matcher"
	"bargetrader/internal/news"
	"bargetrader/internal/session"
	"bargetrader/internal/store"
	"bargetrader/internal/summary"
)

// ClosingHeadline is appended to the event log when a round ends.
const ClosingHeadline = "Round closed"

// RoundConfig contains configuration for a round
type RoundConfig struct {
	Duration     time.Duration
	InitialPrice decimal.Decimal
	ClockTick    time.Duration

	News         []domain.News
	NewsInterval time.Duration
	NewsRepeat   bool

	AIs []bots.Config

	Now func() time.Time
}

// Round is one timed trading session. It owns the book, event log, matcher
// and clock, and is the only way request handlers reach them.
type Round struct {
	ID  string
	cfg RoundConfig

	log     *eventlog.Log
	book    *book.Book
	matcher *matcher.Matcher
	clock   *session.Clock
	calc    *summary.Calculator
	feed    *news.Feed
	bots    *bots.Manager

	recorder Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	onEnd   []func(*Round)
	results []summary.Standing

	wg     sync.WaitGroup
	closed chan struct{}
}

// NewRound builds a pending round with its AI participants seated.
func NewRound(cfg RoundConfig, recorder Recorder, logger *slog.Logger) (*Round, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ClockTick <= 0 {
		cfg.ClockTick = 250 * time.Millisecond
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Round{
		ID:       uuid.New().String(),
		cfg:      cfg,
		recorder: recorder,
		closed:   make(chan struct{}),
		cancel:   func() {},
	}
	r.logger = logger.With("session_id", r.ID)
	r.log = eventlog.New(cfg.Now)
	r.book = book.New(r.log)
	r.clock = session.NewClock(cfg.Duration, cfg.Now)
	r.matcher = matcher.New(matcher.Config{
		Book:   r.book,
		Log:    r.log,
		Logger: r.logger,
		Now:    cfg.Now,
		Gate:   r.tradingOpen,
	})
	r.calc = summary.NewCalculator(r.book)
	r.feed = news.NewFeed(news.FeedConfig{
		Items:    cfg.News,
		Interval: cfg.NewsInterval,
		Repeat:   cfg.NewsRepeat,
	}, r.log, r.logger)

	r.bots = bots.NewManager()
	for _, aiCfg := range cfg.AIs {
		snap, err := r.book.Add(aiCfg.Name, true, string(aiCfg.Style))
		if err != nil {
			return nil, err
		}
		r.bots.Add(bots.NewAI(aiCfg, snap.ID, cfg.InitialPrice, r.book, r.logger))
	}

	r.clock.OnEnd(r.finish)
	return r, nil
}

// Start opens trading and starts the clock watcher, news feed and AIs.
// They stop when the round ends or ctx is cancelled.
func (r *Round) Start(ctx context.Context) error {
	if err := r.clock.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(3)
	go func() {
		defer r.wg.Done()
		r.clock.Run(ctx, r.cfg.ClockTick)
	}()
	go func() {
		defer r.wg.Done()
		r.feed.Run(ctx)
	}()
	go func() {
		defer r.wg.Done()
		r.bots.Run(ctx, r.log)
	}()

	r.logger.Info("round started", "duration", r.cfg.Duration, "ais", len(r.cfg.AIs))
	return nil
}

// End closes the round early. It reports whether this call closed it.
func (r *Round) End() bool {
	return r.clock.End()
}

// Wait blocks until the round's background goroutines have stopped.
func (r *Round) Wait() {
	r.wg.Wait()
}

// Closed is closed once the round-end side effects have completed.
func (r *Round) Closed() <-chan struct{} {
	return r.closed
}

// OnEnd registers fn to run after the round is archived.
func (r *Round) OnEnd(fn func(*Round)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEnd = append(r.onEnd, fn)
}

// finish runs exactly once, on the goroutine that ended the clock. Closing
// the book first waits out any fill in flight, so the closing headline,
// trade list and standings all describe the same final state.
func (r *Round) finish(reason session.Reason) {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	cancel()
	r.book.Close()

	r.log.Append(eventlog.NewsEvent(domain.News{Content: ClosingHeadline, Impact: domain.Neutral}))

	trades := r.matcher.Trades()
	mark := r.markPrice(trades)
	standings := summary.Rank(r.calc.All(), mark)

	r.mu.Lock()
	r.results = standings
	hooks := r.onEnd
	r.onEnd = nil
	r.mu.Unlock()

	record := store.RoundRecord{
		ID:               r.ID,
		Duration:         r.cfg.Duration,
		InitialPrice:     r.cfg.InitialPrice,
		FinalMark:        mark,
		ParticipantCount: len(standings),
		TradeCount:       len(trades),
		EndReason:        reason.String(),
		StartedAt:        r.clock.StartedAt(),
		EndedAt:          r.clock.EndedAt(),
	}
	results := make([]store.RoundResult, len(standings))
	for i, s := range standings {
		snap, _ := r.book.Snapshot(s.ParticipantID)
		results[i] = store.RoundResult{
			RoundID:       r.ID,
			ParticipantID: s.ParticipantID,
			Name:          s.Name,
			AI:            snap.AI,
			Position:      s.Position,
			CashFlow:      s.CashFlow,
			BuyTrades:     s.BuyTrades,
			SellTrades:    s.SellTrades,
			PnL:           s.PnL,
			Rank:          s.Rank,
		}
	}
	if err := r.recorder.SaveRound(record, results, trades, r.newsItems()); err != nil {
		r.logger.Error("failed to archive round", "error", err)
	}

	r.logger.Info("round ended",
		"reason", reason.String(),
		"trades", len(trades),
		"participants", len(standings),
		"mark", domain.FormatPrice(mark),
	)

	for _, fn := range hooks {
		fn(r)
	}
	close(r.closed)
}

// markPrice is the last traded price, or the initial price if nothing
// traded.
func (r *Round) markPrice(trades []domain.Trade) decimal.Decimal {
	if len(trades) == 0 {
		return r.cfg.InitialPrice
	}
	return trades[len(trades)-1].Price
}

func (r *Round) newsItems() []domain.News {
	events, _ := r.log.ReadSince(0)
	var out []domain.News
	for _, ev := range events {
		if ev.Type == eventlog.TypeNews {
			out = append(out, *ev.News)
		}
	}
	return out
}

// tradingOpen refuses trades once the countdown has run out. It runs with
// participant locks held, so it must not end the clock itself.
func (r *Round) tradingOpen() error {
	if r.clock.Open() {
		return nil
	}
	if r.clock.StartedAt().IsZero() {
		return domain.RoundClosedf("round %s has not started", r.ID)
	}
	return domain.RoundClosedf("round %s has ended", r.ID)
}

// checkOpen observes the clock, ending the round if time is up, then
// reports whether trading is still allowed.
func (r *Round) checkOpen() error {
	r.clock.Remaining()
	return r.tradingOpen()
}

func (r *Round) requireHuman(id, field string) error {
	snap, err := r.book.Snapshot(id)
	if err != nil {
		return err
	}
	if snap.AI {
		return domain.Validationf("%s: %s is an AI participant", field, snap.Name)
	}
	return nil
}

// Join seats a new human participant.
func (r *Round) Join(name string) (book.Snapshot, error) {
	if err := r.checkOpen(); err != nil {
		return book.Snapshot{}, err
	}
	snap, err := r.book.Add(name, false, "")
	if err != nil {
		return book.Snapshot{}, err
	}
	r.logger.Info("participant joined", "participant_id", snap.ID, "name", snap.Name)
	return snap, nil
}

// SubmitQuote changes a human participant's bid and offer.
func (r *Round) SubmitQuote(participantID string, bid, offer book.SideChange) (book.Quote, error) {
	if err := r.checkOpen(); err != nil {
		return book.Quote{}, err
	}
	if err := r.requireHuman(participantID, "participant_id"); err != nil {
		return book.Quote{}, err
	}
	return r.book.SetQuote(participantID, bid, offer)
}

// ExecuteTrade hits or lifts a counterparty's quote for the requester.
func (r *Round) ExecuteTrade(req matcher.Request) (domain.Trade, error) {
	if err := r.checkOpen(); err != nil {
		return domain.Trade{}, err
	}
	if err := r.requireHuman(req.RequesterID, "requester_id"); err != nil {
		return domain.Trade{}, err
	}
	return r.matcher.Execute(req)
}

func (r *Round) GetQuote(participantID string) (book.Quote, error) {
	return r.book.GetQuote(participantID)
}

func (r *Round) ListQuotes() []book.Quote {
	return r.book.ListQuotes()
}

// Summarize returns a participant's running totals. It works during and
// after the round.
func (r *Round) Summarize(participantID string) (summary.Summary, error) {
	return r.calc.Summarize(participantID)
}

// Results returns the final standings, or nil while the round is running.
func (r *Round) Results() []summary.Standing {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.results
}

func (r *Round) Trades() []domain.Trade {
	return r.matcher.Trades()
}

// Log exposes the event log for push subscribers.
func (r *Round) Log() *eventlog.Log {
	return r.log
}

// Status is a round's public state.
type Status struct {
	SessionID    string          `json:"session_id"`
	State        State           `json:"state"`
	RemainingSec float64         `json:"remaining_sec"`
	Duration     float64         `json:"duration_sec"`
	InitialPrice decimal.Decimal `json:"initial_price"`
	Participants int             `json:"participants"`
	Cursor       uint64          `json:"cursor"`
	StartedAt    time.Time       `json:"started_at"`
	EndedAt      *time.Time      `json:"ended_at,omitempty"`
}

func (r *Round) Status() Status {
	remaining := r.clock.Remaining()
	s := Status{
		SessionID:    r.ID,
		State:        r.clock.State(),
		RemainingSec: remaining.Seconds(),
		Duration:     r.cfg.Duration.Seconds(),
		InitialPrice: r.cfg.InitialPrice,
		Participants: r.book.Len(),
		Cursor:       r.log.HighWater(),
		StartedAt:    r.clock.StartedAt(),
	}
	if s.State == StateEnded {
		ended := r.clock.EndedAt()
		s.EndedAt = &ended
	}
	return s
}
