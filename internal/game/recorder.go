package game

import (
	"bargetrader/internal/domain"
	"bargetrader/internal/store"
)

// Recorder archives finished rounds. *store.Store implements it.
type Recorder interface {
	SaveRound(round store.RoundRecord, results []store.RoundResult, trades []domain.Trade, news []domain.News) error
}

// NopRecorder discards rounds when no store is configured.
type NopRecorder struct{}

func (NopRecorder) SaveRound(store.RoundRecord, []store.RoundResult, []domain.Trade, []domain.News) error {
	return nil
}
