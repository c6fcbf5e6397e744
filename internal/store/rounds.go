package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"bargetrader/internal/domain"
)

// RoundRecord represents a finished round
type RoundRecord struct {
	ID               string          `json:"session_id"`
	Duration         time.Duration   `json:"-"`
	InitialPrice     decimal.Decimal `json:"initial_price"`
	FinalMark        decimal.Decimal `json:"final_mark"`
	ParticipantCount int             `json:"participant_count"`
	TradeCount       int             `json:"trade_count"`
	EndReason        string          `json:"end_reason"`
	StartedAt        time.Time       `json:"started_at"`
	EndedAt          time.Time       `json:"ended_at"`
	CreatedAt        time.Time       `json:"created_at"`
}

// RoundResult represents one participant's final standing in a round
type RoundResult struct {
	ID            int64           `json:"-"`
	RoundID       string          `json:"session_id"`
	ParticipantID string          `json:"participant_id"`
	Name          string          `json:"name"`
	AI            bool            `json:"ai"`
	Position      int64           `json:"position"`
	CashFlow      decimal.Decimal `json:"cash_flow"`
	BuyTrades     int             `json:"buy_trades_count"`
	SellTrades    int             `json:"sell_trades_count"`
	PnL           decimal.Decimal `json:"pnl"`
	Rank          int             `json:"rank"`
	CreatedAt     time.Time       `json:"-"`
}

// PlayerStats aggregates a human player's results across rounds, keyed by
// name
type PlayerStats struct {
	Name          string          `json:"name"`
	RoundsPlayed  int             `json:"rounds_played"`
	RoundsWon     int             `json:"rounds_won"`
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	BestPnL       decimal.Decimal `json:"best_pnl"`
	WorstPnL      decimal.Decimal `json:"worst_pnl"`
	CurrentStreak int             `json:"current_streak"`
	BestStreak    int             `json:"best_streak"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SaveRound saves a finished round with its results, trades and news in
// one transaction
func (s *Store) SaveRound(round RoundRecord, results []RoundResult, trades []domain.Trade, news []domain.News) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO rounds (id, duration_seconds, initial_price, final_mark, participant_count, trade_count,
			end_reason, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, round.ID, int64(round.Duration/time.Second), round.InitialPrice.String(), round.FinalMark.String(),
		round.ParticipantCount, round.TradeCount, round.EndReason, round.StartedAt.UTC(), round.EndedAt.UTC())
	if err != nil {
		return err
	}

	for _, r := range results {
		_, err = tx.Exec(`
			INSERT INTO round_results (round_id, participant_id, name, ai, position, cash_flow,
				buy_trades, sell_trades, pnl, rank)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, round.ID, r.ParticipantID, r.Name, r.AI, r.Position, r.CashFlow.String(),
			r.BuyTrades, r.SellTrades, r.PnL.String(), r.Rank)
		if err != nil {
			return err
		}

		if r.AI {
			continue
		}
		if err := s.updatePlayerStatsInTx(tx, r.Name, r.PnL, r.Rank == 1); err != nil {
			return err
		}
	}

	for _, t := range trades {
		_, err = tx.Exec(`
			INSERT INTO trades (id, round_id, buyer_id, buyer_name, seller_id, seller_name, price, quantity, executed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, round.ID, t.BuyerID, t.BuyerName, t.SellerID, t.SellerName, t.Price.String(), t.Quantity, t.Timestamp.UTC())
		if err != nil {
			return err
		}
	}

	for i, n := range news {
		_, err = tx.Exec(`
			INSERT INTO news_events (round_id, seq, content, impact_type, impact_value, published_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, round.ID, i+1, n.Content, string(n.Impact), n.ImpactValue.String(), n.Timestamp.UTC())
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// updatePlayerStatsInTx updates a player's stats within a transaction
func (s *Store) updatePlayerStatsInTx(tx *sql.Tx, name string, pnl decimal.Decimal, won bool) error {
	stats := PlayerStats{Name: name}
	err := tx.QueryRow(`
		SELECT rounds_played, rounds_won, total_pnl, best_pnl, worst_pnl, current_streak, best_streak
		FROM player_stats WHERE name = ?
	`, name).Scan(
		&stats.RoundsPlayed, &stats.RoundsWon, &stats.TotalPnL, &stats.BestPnL, &stats.WorstPnL,
		&stats.CurrentStreak, &stats.BestStreak,
	)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	stats.RoundsPlayed++
	stats.TotalPnL = stats.TotalPnL.Add(pnl)
	if stats.RoundsPlayed == 1 || pnl.GreaterThan(stats.BestPnL) {
		stats.BestPnL = pnl
	}
	if stats.RoundsPlayed == 1 || pnl.LessThan(stats.WorstPnL) {
		stats.WorstPnL = pnl
	}

	if won {
		stats.RoundsWon++
		stats.CurrentStreak++
		if stats.CurrentStreak > stats.BestStreak {
			stats.BestStreak = stats.CurrentStreak
		}
	} else {
		stats.CurrentStreak = 0
	}

	_, err = tx.Exec(`
		INSERT INTO player_stats (name, rounds_played, rounds_won, total_pnl, best_pnl, worst_pnl, current_streak, best_streak, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			rounds_played = excluded.rounds_played,
			rounds_won = excluded.rounds_won,
			total_pnl = excluded.total_pnl,
			best_pnl = excluded.best_pnl,
			worst_pnl = excluded.worst_pnl,
			current_streak = excluded.current_streak,
			best_streak = excluded.best_streak,
			updated_at = CURRENT_TIMESTAMP
	`, stats.Name, stats.RoundsPlayed, stats.RoundsWon, stats.TotalPnL.String(),
		stats.BestPnL.String(), stats.WorstPnL.String(), stats.CurrentStreak, stats.BestStreak)
	return err
}

// GetPlayerStats returns stats for a player, empty if they never finished a
// round
func (s *Store) GetPlayerStats(name string) (*PlayerStats, error) {
	stats := PlayerStats{Name: name}
	err := s.db.QueryRow(`
		SELECT rounds_played, rounds_won, total_pnl, best_pnl, worst_pnl, current_streak, best_streak, updated_at
		FROM player_stats WHERE name = ?
	`, name).Scan(
		&stats.RoundsPlayed, &stats.RoundsWon, &stats.TotalPnL, &stats.BestPnL, &stats.WorstPnL,
		&stats.CurrentStreak, &stats.BestStreak, &stats.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &stats, nil
	}
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetRound returns a finished round
func (s *Store) GetRound(id string) (*RoundRecord, error) {
	rows, err := s.db.Query(roundSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rounds, err := scanRounds(rows)
	if err != nil {
		return nil, err
	}
	if len(rounds) == 0 {
		return nil, domain.NotFoundf("round %s not found", id)
	}
	return &rounds[0], nil
}

// RecentRounds returns the most recently finished rounds
func (s *Store) RecentRounds(limit int) ([]RoundRecord, error) {
	rows, err := s.db.Query(roundSelect+` ORDER BY ended_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRounds(rows)
}

const roundSelect = `
	SELECT id, duration_seconds, initial_price, final_mark, participant_count, trade_count,
		end_reason, started_at, ended_at, created_at
	FROM rounds`

func scanRounds(rows *sql.Rows) ([]RoundRecord, error) {
	var rounds []RoundRecord
	for rows.Next() {
		var r RoundRecord
		var seconds int64
		if err := rows.Scan(
			&r.ID, &seconds, &r.InitialPrice, &r.FinalMark, &r.ParticipantCount, &r.TradeCount,
			&r.EndReason, &r.StartedAt, &r.EndedAt, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(seconds) * time.Second
		rounds = append(rounds, r)
	}
	return rounds, rows.Err()
}

// GetRoundResults returns a round's standings, best rank first
func (s *Store) GetRoundResults(roundID string) ([]RoundResult, error) {
	rows, err := s.db.Query(`
		SELECT id, round_id, participant_id, name, ai, position, cash_flow, buy_trades, sell_trades,
			pnl, rank, created_at
		FROM round_results
		WHERE round_id = ?
		ORDER BY rank ASC, name ASC
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RoundResult
	for rows.Next() {
		var r RoundResult
		if err := rows.Scan(
			&r.ID, &r.RoundID, &r.ParticipantID, &r.Name, &r.AI, &r.Position, &r.CashFlow,
			&r.BuyTrades, &r.SellTrades, &r.PnL, &r.Rank, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetRoundTrades returns a round's trades in execution order
func (s *Store) GetRoundTrades(roundID string) ([]domain.Trade, error) {
	rows, err := s.db.Query(`
		SELECT id, buyer_id, buyer_name, seller_id, seller_name, price, quantity, executed_at
		FROM trades
		WHERE round_id = ?
		ORDER BY executed_at ASC, rowid ASC
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(
			&t.ID, &t.BuyerID, &t.BuyerName, &t.SellerID, &t.SellerName, &t.Price, &t.Quantity, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// GetRoundNews returns the news released during a round in order
func (s *Store) GetRoundNews(roundID string) ([]domain.News, error) {
	rows, err := s.db.Query(`
		SELECT content, impact_type, impact_value, published_at
		FROM news_events
		WHERE round_id = ?
		ORDER BY seq ASC
	`, roundID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.News
	for rows.Next() {
		var n domain.News
		var impact string
		if err := rows.Scan(&n.Content, &impact, &n.ImpactValue, &n.Timestamp); err != nil {
			return nil, err
		}
		n.Impact = domain.Impact(impact)
		out = append(out, n)
	}
	return out, rows.Err()
}
