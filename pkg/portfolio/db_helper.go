package portfolio

import (
	"context"
	"database/sql"
)

// WithTx runs fn inside a database transaction. It rolls back when fn returns
// an error or panics and commits otherwise.
func (c *Core) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return WrapError(ErrCodeDatabase, "failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				c.logger.Error("transaction rollback failed on panic", "error", rbErr, "panic_value", p)
			}
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error("transaction rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return WrapError(ErrCodeDatabase, "failed to commit transaction", err)
	}
	return nil
}

// logOperation records an audit entry. Failures are logged, not returned.
func (c *Core) logOperation(ctx context.Context, entry OperationLog) {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO operation_logs (operation_type, instrument_key, currency, details, price_fetched)
		VALUES (?, ?, ?, ?, ?)
	`, entry.Operation, entry.InstrumentKey, entry.Currency, entry.Details, entry.PriceFetched)
	if err != nil {
		c.logger.Warn("operation log write failed", "operation", entry.Operation, "err", err)
	}
}

// OperationLogs returns recent audit entries, newest first.
func (c *Core) OperationLogs(ctx context.Context, limit, offset int) ([]OperationLog, error) {
	limit, offset = normalizeLimitOffset(limit, offset, 50)
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, operation_type, instrument_key, currency, details, price_fetched, created_at
		FROM operation_logs ORDER BY id DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query operation logs", err)
	}
	defer rows.Close()

	logs := []OperationLog{}
	for rows.Next() {
		var entry OperationLog
		var key, currency, details, createdAt sql.NullString
		var price sql.NullFloat64
		if err := rows.Scan(&entry.ID, &entry.Operation, &key, &currency, &details, &price, &createdAt); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan operation log", err)
		}
		entry.InstrumentKey = nullStringPtr(key)
		entry.Currency = nullStringPtr(currency)
		entry.Details = nullStringPtr(details)
		entry.CreatedAt = nullStringPtr(createdAt)
		if price.Valid {
			entry.PriceFetched = floatPtr(price.Float64)
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
