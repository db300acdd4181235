package portfolio

import (
	"database/sql"
	"fmt"
)

func initDatabase(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS import_batches (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			row_count INTEGER NOT NULL DEFAULT 0,
			imported INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			instrument_key TEXT NOT NULL,
			action TEXT NOT NULL CHECK(action IN ('BUY', 'SELL', 'SPLIT', 'DIVIDEND', 'INTEREST', 'OTHER')),
			shares REAL NOT NULL DEFAULT 0,
			price REAL,
			fees REAL NOT NULL DEFAULT 0,
			taxes REAL NOT NULL DEFAULT 0,
			amount REAL NOT NULL DEFAULT 0,
			quote_currency TEXT NOT NULL DEFAULT '',
			occurred_at TEXT NOT NULL DEFAULT '',
			split_ratio REAL NOT NULL DEFAULT 0,
			FOREIGN KEY(batch_id) REFERENCES import_batches(id) ON DELETE CASCADE
		)
	`); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS latest_prices (
			instrument_key TEXT PRIMARY KEY,
			currency TEXT NOT NULL DEFAULT '',
			price REAL NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS valuation_snapshots (
			snapshot_date TEXT NOT NULL,
			currency TEXT NOT NULL,
			market_value REAL NOT NULL,
			net_flows REAL NOT NULL,
			incomplete INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (snapshot_date, currency)
		)
	`); err != nil {
		return err
	}

	if err := exec(tx, `
		CREATE TABLE IF NOT EXISTS operation_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			operation_type TEXT NOT NULL,
			instrument_key TEXT,
			currency TEXT,
			details TEXT,
			price_fetched REAL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return err
	}

	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_transactions_key ON transactions(instrument_key)",
		"CREATE INDEX IF NOT EXISTS idx_transactions_batch ON transactions(batch_id, seq)",
		"CREATE INDEX IF NOT EXISTS idx_operation_logs_created ON operation_logs(created_at)",
	} {
		if err := exec(tx, idx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func exec(tx *sql.Tx, query string) error {
	_, err := tx.Exec(query)
	return err
}

func tableExists(db *sql.DB, table string) (bool, error) {
	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup table %s: %w", table, err)
	}
	return true, nil
}
