package store

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bargetrader/internal/domain"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	f, err := os.CreateTemp("", "bargetrader-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	dbPath := f.Name()
	f.Close()

	store, err := New(dbPath)
	if err != nil {
		os.Remove(dbPath)
		t.Fatalf("failed to create store: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.Remove(dbPath)
		os.Remove(dbPath + "-wal")
		os.Remove(dbPath + "-shm")
	}

	return store, cleanup
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleRound(id string, ended time.Time) (RoundRecord, []RoundResult, []domain.Trade, []domain.News) {
	round := RoundRecord{
		ID:               id,
		Duration:         3 * time.Minute,
		InitialPrice:     d("70.00"),
		FinalMark:        d("12"),
		ParticipantCount: 2,
		TradeCount:       1,
		EndReason:        "expired",
		StartedAt:        ended.Add(-3 * time.Minute),
		EndedAt:          ended,
	}
	results := []RoundResult{
		{ParticipantID: "b", Name: "B", Position: 1, CashFlow: d("-12"), BuyTrades: 1, PnL: d("0"), Rank: 1},
		{ParticipantID: "a", Name: "A", Position: -1, CashFlow: d("12"), SellTrades: 1, PnL: d("0"), Rank: 1},
		{ParticipantID: "ai", Name: "ai_tight", AI: true, PnL: d("0"), Rank: 1},
	}
	trades := []domain.Trade{{
		ID: id + "-t1", BuyerID: "b", BuyerName: "B", SellerID: "a", SellerName: "A",
		Price: d("12"), Quantity: 1, Timestamp: ended.Add(-time.Minute),
	}}
	news := []domain.News{
		{Content: "Oil terminal strike announced", Impact: domain.Bearish, ImpactValue: d("5.00"), Timestamp: ended.Add(-2 * time.Minute)},
		{Content: "Round closed", Impact: domain.Neutral, ImpactValue: decimal.Zero, Timestamp: ended},
	}
	return round, results, trades, news
}

// ==================== ROUND TESTS ====================

func TestSaveAndGetRound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ended := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	round, results, trades, news := sampleRound("r1", ended)
	if err := store.SaveRound(round, results, trades, news); err != nil {
		t.Fatalf("SaveRound failed: %v", err)
	}

	got, err := store.GetRound("r1")
	if err != nil {
		t.Fatalf("GetRound failed: %v", err)
	}
	if got.Duration != 3*time.Minute || !got.InitialPrice.Equal(d("70")) || got.TradeCount != 1 {
		t.Errorf("unexpected round %+v", got)
	}
	if !got.EndedAt.Equal(ended) {
		t.Errorf("expected ended_at %v, got %v", ended, got.EndedAt)
	}

	gotResults, err := store.GetRoundResults("r1")
	if err != nil {
		t.Fatalf("GetRoundResults failed: %v", err)
	}
	if len(gotResults) != 3 {
		t.Fatalf("expected 3 results, got %d", len(gotResults))
	}
	if gotResults[0].Name != "A" || !gotResults[0].CashFlow.Equal(d("12")) {
		t.Errorf("unexpected first result %+v", gotResults[0])
	}
	if !gotResults[2].AI {
		t.Errorf("expected AI flag on %s", gotResults[2].Name)
	}

	gotTrades, err := store.GetRoundTrades("r1")
	if err != nil {
		t.Fatalf("GetRoundTrades failed: %v", err)
	}
	if len(gotTrades) != 1 || !gotTrades[0].Price.Equal(d("12")) || gotTrades[0].BuyerName != "B" {
		t.Errorf("unexpected trades %+v", gotTrades)
	}

	gotNews, err := store.GetRoundNews("r1")
	if err != nil {
		t.Fatalf("GetRoundNews failed: %v", err)
	}
	if len(gotNews) != 2 || gotNews[0].Impact != domain.Bearish || gotNews[1].Content != "Round closed" {
		t.Errorf("unexpected news %+v", gotNews)
	}
}

func TestGetRoundNotFound(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	_, err := store.GetRound("missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestSaveRoundIsAtomic(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	ended := time.Now().UTC()
	round, results, trades, news := sampleRound("r1", ended)
	// duplicate participant violates UNIQUE(round_id, participant_id)
	results = append(results, results[0])

	if err := store.SaveRound(round, results, trades, news); err == nil {
		t.Fatal("expected SaveRound to fail")
	}
	if _, err := store.GetRound("r1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("partial round persisted: %v", err)
	}
	stats, err := store.GetPlayerStats("B")
	if err != nil {
		t.Fatalf("GetPlayerStats failed: %v", err)
	}
	if stats.RoundsPlayed != 0 {
		t.Errorf("stats updated by rolled back save: %+v", stats)
	}
}

func TestRecentRounds(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		round, results, trades, news := sampleRound(id, base.Add(time.Duration(i)*time.Hour))
		if err := store.SaveRound(round, results, trades, news); err != nil {
			t.Fatalf("SaveRound %s failed: %v", id, err)
		}
	}

	rounds, err := store.RecentRounds(2)
	if err != nil {
		t.Fatalf("RecentRounds failed: %v", err)
	}
	if len(rounds) != 2 || rounds[0].ID != "r3" || rounds[1].ID != "r2" {
		t.Errorf("unexpected order %+v", rounds)
	}
}

func TestPlayerStatsAccumulate(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	pnls := []struct {
		pnl  string
		rank int
	}{{"5", 1}, {"2.50", 1}, {"-3", 2}}

	for i, p := range pnls {
		round := RoundRecord{ID: string(rune('a' + i)), InitialPrice: d("70"), FinalMark: d("70"), EndReason: "expired", StartedAt: base, EndedAt: base}
		results := []RoundResult{{ParticipantID: "p", Name: "alice", CashFlow: d(p.pnl), PnL: d(p.pnl), Rank: p.rank}}
		if err := store.SaveRound(round, results, nil, nil); err != nil {
			t.Fatalf("SaveRound failed: %v", err)
		}
	}

	stats, err := store.GetPlayerStats("alice")
	if err != nil {
		t.Fatalf("GetPlayerStats failed: %v", err)
	}
	if stats.RoundsPlayed != 3 || stats.RoundsWon != 2 {
		t.Errorf("expected 3 played / 2 won, got %d / %d", stats.RoundsPlayed, stats.RoundsWon)
	}
	if !stats.TotalPnL.Equal(d("4.5")) || !stats.BestPnL.Equal(d("5")) || !stats.WorstPnL.Equal(d("-3")) {
		t.Errorf("unexpected pnl stats %+v", stats)
	}
	if stats.CurrentStreak != 0 || stats.BestStreak != 2 {
		t.Errorf("unexpected streaks current=%d best=%d", stats.CurrentStreak, stats.BestStreak)
	}

	ai, err := store.GetPlayerStats("ai_tight")
	if err != nil {
		t.Fatalf("GetPlayerStats failed: %v", err)
	}
	if ai.RoundsPlayed != 0 {
		t.Errorf("AI participants should not get stats: %+v", ai)
	}
}

// ==================== MIGRATION TESTS ====================

func TestSchemaVersion(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	version, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if err := store.Migrate(); err != nil {
		t.Fatalf("second Migrate() failed: %v", err)
	}

	version, err := store.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("schema version after re-run = %d, want %d", version, len(migrations))
	}

	round, results, trades, news := sampleRound("r1", time.Now().UTC())
	if err := store.SaveRound(round, results, trades, news); err != nil {
		t.Fatalf("SaveRound failed after migration re-run: %v", err)
	}
}

func TestMigrationVersionsAreSequential(t *testing.T) {
	for i, m := range migrations {
		expectedVersion := i + 1
		if m.Version != expectedVersion {
			t.Errorf("migration %d has version %d, expected %d", i, m.Version, expectedVersion)
		}
	}
}
