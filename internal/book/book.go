// Package book is the quote store: every participant's standing bid and
// offer plus the running position and cash flow the matcher updates.
package book

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bargetrader/internal/domain"
	"bargetrader/internal/eventlog"
)

// MaxNameLength bounds participant names.
const MaxNameLength = 200

// Action says what SetQuote does to one side of a quote.
type Action int

const (
	Keep  Action = iota // leave the side as it is
	Set                 // replace the side with Price
	Clear               // withdraw the side
)

// SideChange is the requested change to a bid or an offer.
type SideChange struct {
	Action Action
	Price  decimal.Decimal
}

func KeepSide() SideChange                    { return SideChange{Action: Keep} }
func ClearSide() SideChange                   { return SideChange{Action: Clear} }
func SetSide(price decimal.Decimal) SideChange { return SideChange{Action: Set, Price: price} }

func (c SideChange) apply(cur decimal.NullDecimal) decimal.NullDecimal {
	switch c.Action {
	case Set:
		return decimal.NewNullDecimal(c.Price)
	case Clear:
		return decimal.NullDecimal{}
	default:
		return cur
	}
}

// Book holds the participant registry. The registry lock is only taken to
// add or look up participants; quote and fill updates lock the participant.
type Book struct {
	mu           sync.RWMutex
	participants map[string]*Participant
	names        map[string]string
	closed       atomic.Bool

	log *eventlog.Log
}

// New returns an empty book. Quote changes are appended to log when it is
// not nil.
func New(log *eventlog.Log) *Book {
	return &Book{
		participants: make(map[string]*Participant),
		names:        make(map[string]string),
		log:          log,
	}
}

// Add registers a participant under a unique name.
func (b *Book) Add(name string, ai bool, style string) (Snapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Snapshot{}, domain.Validationf("name: this field is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return Snapshot{}, domain.Validationf("name: ensure this value has at most %d characters", MaxNameLength)
	}

	key := strings.ToLower(name)
	p := &Participant{
		ID:    uuid.New().String(),
		Name:  name,
		AI:    ai,
		Style: style,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, taken := b.names[key]; taken {
		return Snapshot{}, domain.Validationf("name: %q is already taken", name)
	}
	b.participants[p.ID] = p
	b.names[key] = p.ID
	return p.snapshotLocked(), nil
}

func (b *Book) lookup(id string) (*Participant, error) {
	b.mu.RLock()
	p, ok := b.participants[id]
	b.mu.RUnlock()
	if !ok {
		return nil, domain.NotFoundf("participant %s not found", id)
	}
	return p, nil
}

// SetQuote changes a participant's bid and offer. Set prices must be valid;
// nothing changes if either side is rejected.
func (b *Book) SetQuote(id string, bid, offer SideChange) (Quote, error) {
	var errs []error
	if bid.Action == Set {
		errs = append(errs, domain.ValidatePrice("bid", bid.Price))
	}
	if offer.Action == Set {
		errs = append(errs, domain.ValidatePrice("offer", offer.Price))
	}
	if err := domain.Join(errs...); err != nil {
		return Quote{}, err
	}

	p, err := b.lookup(id)
	if err != nil {
		return Quote{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if b.closed.Load() {
		return Quote{}, errClosed()
	}
	p.bid = bid.apply(p.bid)
	p.offer = offer.apply(p.offer)
	p.version++
	q := p.quoteLocked()

	if b.log != nil {
		b.log.Append(eventlog.QuoteEvent(eventlog.QuoteUpdate{
			ParticipantID: q.ParticipantID,
			Name:          q.Name,
			AI:            q.AI,
			Bid:           q.Bid,
			Offer:         q.Offer,
		}))
	}
	return q, nil
}

func (b *Book) GetQuote(id string) (Quote, error) {
	p, err := b.lookup(id)
	if err != nil {
		return Quote{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.quoteLocked(), nil
}

// ListQuotes returns every participant's quote ordered by name.
func (b *Book) ListQuotes() []Quote {
	ps := b.all()
	out := make([]Quote, 0, len(ps))
	for _, p := range ps {
		p.mu.Lock()
		out = append(out, p.quoteLocked())
		p.mu.Unlock()
	}
	return out
}

func (b *Book) Snapshot(id string) (Snapshot, error) {
	p, err := b.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked(), nil
}

// Snapshots returns every participant ordered by name.
func (b *Book) Snapshots() []Snapshot {
	ps := b.all()
	out := make([]Snapshot, 0, len(ps))
	for _, p := range ps {
		p.mu.Lock()
		out = append(out, p.snapshotLocked())
		p.mu.Unlock()
	}
	return out
}

func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.participants)
}

func (b *Book) all() []*Participant {
	b.mu.RLock()
	ps := make([]*Participant, 0, len(b.participants))
	for _, p := range b.participants {
		ps = append(ps, p)
	}
	b.mu.RUnlock()
	sort.Slice(ps, func(i, j int) bool { return ps[i].Name < ps[j].Name })
	return ps
}

// WithPair locks two distinct participants in id order and runs fn with
// both held. first and second are passed to fn in the order requested.
func (b *Book) WithPair(firstID, secondID string, fn func(first, second *Participant) error) error {
	if firstID == secondID {
		return domain.Validationf("cannot trade with yourself")
	}
	first, err := b.lookup(firstID)
	if err != nil {
		return err
	}
	second, err := b.lookup(secondID)
	if err != nil {
		return err
	}

	lo, hi := first, second
	if hi.ID < lo.ID {
		lo, hi = hi, lo
	}
	lo.mu.Lock()
	defer lo.mu.Unlock()
	hi.mu.Lock()
	defer hi.mu.Unlock()

	if b.closed.Load() {
		return errClosed()
	}

	first.held, second.held = true, true
	defer func() { first.held, second.held = false, false }()

	return fn(first, second)
}

// Close stops all further quote changes and fills. It takes and releases
// every participant lock in turn, so an update already holding a lock has
// finished when Close returns and every later one is refused.
func (b *Book) Close() {
	b.closed.Store(true)
	for _, p := range b.all() {
		p.mu.Lock()
		p.mu.Unlock()
	}
}

func (b *Book) Closed() bool {
	return b.closed.Load()
}

func errClosed() error {
	return domain.RoundClosedf("trading has closed")
}
