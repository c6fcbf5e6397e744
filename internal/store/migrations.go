package store

import "fmt"

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// migrations are applied in order; Version must equal index+1
var migrations = []Migration{
	{
		Version:     1,
		Description: "Round archive",
		SQL: `
		CREATE TABLE IF NOT EXISTS rounds (
			id TEXT PRIMARY KEY,
			duration_seconds INTEGER NOT NULL,
			initial_price TEXT NOT NULL,
			final_mark TEXT NOT NULL,
			participant_count INTEGER NOT NULL,
			trade_count INTEGER NOT NULL,
			end_reason TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			ended_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS round_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			round_id TEXT NOT NULL REFERENCES rounds(id),
			participant_id TEXT NOT NULL,
			name TEXT NOT NULL,
			ai BOOLEAN NOT NULL DEFAULT FALSE,
			position INTEGER NOT NULL,
			cash_flow TEXT NOT NULL,
			buy_trades INTEGER NOT NULL,
			sell_trades INTEGER NOT NULL,
			pnl TEXT NOT NULL,
			rank INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(round_id, participant_id)
		);

		CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			round_id TEXT NOT NULL REFERENCES rounds(id),
			buyer_id TEXT NOT NULL,
			buyer_name TEXT NOT NULL,
			seller_id TEXT NOT NULL,
			seller_name TEXT NOT NULL,
			price TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			executed_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS news_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			round_id TEXT NOT NULL REFERENCES rounds(id),
			seq INTEGER NOT NULL,
			content TEXT NOT NULL,
			impact_type TEXT NOT NULL,
			impact_value TEXT NOT NULL,
			published_at DATETIME NOT NULL,
			UNIQUE(round_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_rounds_ended ON rounds(ended_at);
		CREATE INDEX IF NOT EXISTS idx_round_results_round ON round_results(round_id);
		CREATE INDEX IF NOT EXISTS idx_trades_round ON trades(round_id, executed_at);
		CREATE INDEX IF NOT EXISTS idx_news_events_round ON news_events(round_id);
		`,
	},
	{
		Version:     2,
		Description: "Player stats",
		SQL: `
		CREATE TABLE IF NOT EXISTS player_stats (
			name TEXT PRIMARY KEY,
			rounds_played INTEGER NOT NULL DEFAULT 0,
			rounds_won INTEGER NOT NULL DEFAULT 0,
			total_pnl TEXT NOT NULL DEFAULT '0',
			best_pnl TEXT NOT NULL DEFAULT '0',
			worst_pnl TEXT NOT NULL DEFAULT '0',
			current_streak INTEGER NOT NULL DEFAULT 0,
			best_streak INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_round_results_name ON round_results(name);
		`,
	},
}

const migrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`

// SchemaVersion returns the highest applied migration version, 0 for an
// empty database.
func (s *Store) SchemaVersion() (int, error) {
	if _, err := s.db.Exec(migrationsTable); err != nil {
		return 0, fmt.Errorf("failed to init migrations table: %w", err)
	}
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Migrate applies every migration newer than the schema version, each in its
// own transaction.
func (s *Store) Migrate() error {
	current, err := s.SchemaVersion()
	if err != nil {
		return err
	}
	for _, m := range migrations[min(current, len(migrations)):] {
		if err := s.applyMigration(m); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
	}
	return nil
}

func (s *Store) applyMigration(m Migration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
		m.Version, m.Description,
	); err != nil {
		return err
	}
	return tx.Commit()
}
