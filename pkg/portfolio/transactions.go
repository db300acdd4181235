package portfolio

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"costbasis/pkg/costbasis"
)

// ImportRows normalizes raw broker rows and stores the accepted ones as a new
// import batch. Rejected rows are counted, not reported individually.
func (c *Core) ImportRows(ctx context.Context, source string, rows []costbasis.Row) (*ImportResult, error) {
	if len(rows) == 0 {
		return nil, NewError(ErrCodeInvalidInput, "no rows to import")
	}
	txs := costbasis.NormalizeRows(rows)
	return c.storeBatch(ctx, source, len(rows), txs)
}

// ImportTransactions stores already normalized transactions as a new batch.
// Entries without an instrument key are skipped.
func (c *Core) ImportTransactions(ctx context.Context, source string, txs []costbasis.Transaction) (*ImportResult, error) {
	if len(txs) == 0 {
		return nil, NewError(ErrCodeInvalidInput, "no transactions to import")
	}
	accepted := make([]costbasis.Transaction, 0, len(txs))
	for _, tx := range txs {
		tx = tx.Canonical()
		if tx.InstrumentKey == "" {
			continue
		}
		accepted = append(accepted, tx)
	}
	return c.storeBatch(ctx, source, len(txs), accepted)
}

func (c *Core) storeBatch(ctx context.Context, source string, rowCount int, txs []costbasis.Transaction) (*ImportResult, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		source = "manual"
	}
	result := &ImportResult{
		BatchID:  uuid.New().String(),
		Source:   source,
		Rows:     rowCount,
		Imported: len(txs),
		Skipped:  rowCount - len(txs),
	}

	err := c.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO import_batches (id, source, row_count, imported, skipped)
			VALUES (?, ?, ?, ?, ?)
		`, result.BatchID, result.Source, result.Rows, result.Imported, result.Skipped); err != nil {
			return WrapError(ErrCodeDatabase, "insert import batch", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transactions (
				batch_id, seq, instrument_key, action, shares, price, fees, taxes,
				amount, quote_currency, occurred_at, split_ratio
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return WrapError(ErrCodeDatabase, "prepare transaction insert", err)
		}
		defer stmt.Close()
		for i, t := range txs {
			if _, err := stmt.ExecContext(ctx,
				result.BatchID, i, t.InstrumentKey, string(t.Action), t.Shares, nullFloat(t.Price),
				t.Fees, t.Taxes, t.Amount, t.QuoteCurrency, formatTimestamp(t.Timestamp), t.SplitRatio,
			); err != nil {
				return WrapError(ErrCodeDatabase, fmt.Sprintf("insert transaction %d", i), err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.reports.invalidate()
	c.logOperation(ctx, OperationLog{
		Operation: OpImport,
		Details: stringPtr(fmt.Sprintf("batch %s from %s: %d imported, %d skipped",
			result.BatchID, result.Source, result.Imported, result.Skipped)),
	})
	c.logger.Info("import stored", "batch", result.BatchID, "source", result.Source,
		"imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}

// ListBatches returns all import batches, newest first.
func (c *Core) ListBatches(ctx context.Context) ([]ImportBatch, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, source, row_count, imported, skipped, created_at
		FROM import_batches ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query import batches", err)
	}
	defer rows.Close()

	batches := []ImportBatch{}
	for rows.Next() {
		var b ImportBatch
		var createdAt sql.NullString
		if err := rows.Scan(&b.ID, &b.Source, &b.RowCount, &b.Imported, &b.Skipped, &createdAt); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan import batch", err)
		}
		b.CreatedAt = createdAt.String
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// DeleteBatch removes an import batch and its transactions.
func (c *Core) DeleteBatch(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return NewError(ErrCodeInvalidInput, "batch id is required")
	}
	err := c.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM transactions WHERE batch_id = ?", id); err != nil {
			return WrapError(ErrCodeDatabase, "delete batch transactions", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM import_batches WHERE id = ?", id)
		if err != nil {
			return WrapError(ErrCodeDatabase, "delete import batch", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return WrapError(ErrCodeDatabase, "delete import batch", err)
		}
		if n == 0 {
			return NewError(ErrCodeNotFound, fmt.Sprintf("import batch %s not found", id))
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.reports.invalidate()
	c.logOperation(ctx, OperationLog{Operation: OpDeleteImport, Details: stringPtr(id)})
	return nil
}

// Transactions returns stored transactions in import order.
func (c *Core) Transactions(ctx context.Context, filter TransactionFilter) ([]StoredTransaction, error) {
	limit, offset := normalizeLimitOffset(filter.Limit, filter.Offset, 100)

	query := strings.Builder{}
	query.WriteString(`
		SELECT id, batch_id, seq, instrument_key, action, shares, price, fees, taxes,
			amount, quote_currency, occurred_at, split_ratio
		FROM transactions
		WHERE 1=1
	`)
	params := []any{}
	if filter.InstrumentKey != "" {
		query.WriteString(" AND instrument_key = ?")
		params = append(params, costbasis.NormalizeKey(filter.InstrumentKey))
	}
	if filter.BatchID != "" {
		query.WriteString(" AND batch_id = ?")
		params = append(params, filter.BatchID)
	}
	if filter.Action != "" {
		query.WriteString(" AND action = ?")
		params = append(params, strings.ToUpper(strings.TrimSpace(filter.Action)))
	}
	query.WriteString(" ORDER BY id LIMIT ? OFFSET ?")
	params = append(params, limit, offset)

	return c.queryTransactions(ctx, query.String(), params...)
}

// allTransactions loads the full book in import order.
func (c *Core) allTransactions(ctx context.Context) ([]costbasis.Transaction, error) {
	stored, err := c.queryTransactions(ctx, `
		SELECT id, batch_id, seq, instrument_key, action, shares, price, fees, taxes,
			amount, quote_currency, occurred_at, split_ratio
		FROM transactions ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	txs := make([]costbasis.Transaction, len(stored))
	for i, s := range stored {
		txs[i] = s.Transaction
	}
	return txs, nil
}

func (c *Core) queryTransactions(ctx context.Context, query string, params ...any) ([]StoredTransaction, error) {
	rows, err := c.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query transactions", err)
	}
	defer rows.Close()

	results := []StoredTransaction{}
	for rows.Next() {
		var s StoredTransaction
		var action, occurredAt string
		var price sql.NullFloat64
		if err := rows.Scan(
			&s.ID, &s.BatchID, &s.Seq, &s.InstrumentKey, &action, &s.Shares, &price, &s.Fees, &s.Taxes,
			&s.Amount, &s.QuoteCurrency, &occurredAt, &s.SplitRatio,
		); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan transaction", err)
		}
		s.Action = costbasis.Action(action)
		if price.Valid {
			s.Price = floatPtr(price.Float64)
		}
		s.Timestamp = parseTimestamp(occurredAt)
		results = append(results, s)
	}
	return results, rows.Err()
}
