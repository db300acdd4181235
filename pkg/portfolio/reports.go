package portfolio

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"costbasis/pkg/costbasis"
)

// RealizedReport replays the stored book and returns realized results.
func (c *Core) RealizedReport(ctx context.Context) (costbasis.RealizedPnLSummary, error) {
	if cached, ok := c.reports.realized(); ok {
		return cached, nil
	}
	txs, err := c.allTransactions(ctx)
	if err != nil {
		return costbasis.RealizedPnLSummary{}, err
	}
	summary := costbasis.ComputeRealizedPnL(txs)
	if len(summary.Unmatched) > 0 {
		c.logger.Warn("sells exceeded open lots", "count", len(summary.Unmatched))
	}
	c.reports.setRealized(summary)
	return summary, nil
}

// Positions returns the open lot snapshot of the stored book.
func (c *Core) Positions(ctx context.Context) ([]costbasis.Position, error) {
	if cached, ok := c.reports.positions(); ok {
		return cached, nil
	}
	txs, err := c.allTransactions(ctx)
	if err != nil {
		return nil, err
	}
	positions := costbasis.OpenPositions(txs)
	c.reports.setPositions(positions)
	return positions, nil
}

// UnrealizedReport values open positions against stored latest prices.
func (c *Core) UnrealizedReport(ctx context.Context) (*UnrealizedReport, error) {
	if cached, ok := c.reports.unrealized(); ok {
		return cached, nil
	}
	positions, err := c.Positions(ctx)
	if err != nil {
		return nil, err
	}
	quotes, err := c.Quotes(ctx, costbasis.PositionKeys(positions))
	if err != nil {
		return nil, err
	}
	report := NewUnrealizedReport(costbasis.ValuePositions(positions, quotes))
	c.reports.setUnrealized(report)
	return report, nil
}

// NewUnrealizedReport aggregates valued rows per currency.
func NewUnrealizedReport(rows []costbasis.UnrealizedPnLRow) *UnrealizedReport {
	report := &UnrealizedReport{
		Rows:        rows,
		TotalsByCcy: map[string]UnrealizedTotals{},
	}
	for _, row := range rows {
		t := report.TotalsByCcy[row.Currency]
		t.TotalCost = t.TotalCost.Add(costbasis.NewAmount(row.TotalCost))
		t.MarketValue = t.MarketValue.Add(costbasis.NewAmount(row.MarketValue))
		t.PnL = t.PnL.Add(costbasis.NewAmount(row.PnL))
		t.Positions++
		if row.Incomplete {
			t.Incomplete = true
			report.Incomplete = true
		}
		report.TotalsByCcy[row.Currency] = t
	}
	return report
}

// TakeSnapshot records, per currency, the market value of positions opened
// up to asOf and the net flows since the previous snapshot.
func (c *Core) TakeSnapshot(ctx context.Context, asOf time.Time) ([]Snapshot, error) {
	if asOf.IsZero() {
		asOf = c.now()
	}
	cutoff := endOfDay(asOf)
	date := cutoff.Format(dateLayout)

	txs, err := c.allTransactions(ctx)
	if err != nil {
		return nil, err
	}
	var upTo []costbasis.Transaction
	for _, tx := range txs {
		if !tx.Timestamp.After(cutoff) {
			upTo = append(upTo, tx)
		}
	}

	v, err := c.valueBook(ctx, upTo)
	if err != nil {
		return nil, err
	}

	var snapshots []Snapshot
	err = c.WithTx(ctx, func(tx *sql.Tx) error {
		for ccy, value := range v.values {
			from, err := previousSnapshotDate(ctx, tx, ccy, date)
			if err != nil {
				return err
			}
			snap := Snapshot{
				Date:        date,
				Currency:    ccy,
				MarketValue: costbasis.NewAmount(value),
				NetFlows:    costbasis.NewAmount(costbasis.NetFlowBetween(v.flows[ccy], from, cutoff)),
				Incomplete:  v.incomplete[ccy],
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO valuation_snapshots (snapshot_date, currency, market_value, net_flows, incomplete)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT(snapshot_date, currency) DO UPDATE SET
					market_value = excluded.market_value,
					net_flows = excluded.net_flows,
					incomplete = excluded.incomplete,
					created_at = CURRENT_TIMESTAMP
			`, snap.Date, snap.Currency, snap.MarketValue, snap.NetFlows, snap.Incomplete); err != nil {
				return WrapError(ErrCodeDatabase, "store snapshot", err)
			}
			snapshots = append(snapshots, snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Currency < snapshots[j].Currency })
	c.logOperation(ctx, OperationLog{Operation: OpSnapshot, Details: stringPtr(date)})
	return snapshots, nil
}

// previousSnapshotDate returns the end of the latest snapshot day before
// date, or the zero time when there is none.
func previousSnapshotDate(ctx context.Context, tx *sql.Tx, ccy, date string) (time.Time, error) {
	var prev sql.NullString
	err := tx.QueryRowContext(ctx,
		"SELECT MAX(snapshot_date) FROM valuation_snapshots WHERE currency = ? AND snapshot_date < ?",
		ccy, date).Scan(&prev)
	if err != nil {
		return time.Time{}, WrapError(ErrCodeDatabase, "query previous snapshot", err)
	}
	if !prev.Valid {
		return time.Time{}, nil
	}
	d, err := parseDate(prev.String)
	if err != nil {
		return time.Time{}, WrapError(ErrCodeInternal, "parse snapshot date", err)
	}
	return endOfDay(d), nil
}

// Snapshots returns stored snapshots ordered by date. An empty currency
// returns all currencies.
func (c *Core) Snapshots(ctx context.Context, currency string) ([]Snapshot, error) {
	query := "SELECT snapshot_date, currency, market_value, net_flows, incomplete FROM valuation_snapshots"
	var params []any
	if currency != "" {
		query += " WHERE currency = ?"
		params = append(params, costbasis.NormalizeCurrency(currency))
	}
	query += " ORDER BY currency, snapshot_date"
	rows, err := c.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query snapshots", err)
	}
	defer rows.Close()

	snapshots := []Snapshot{}
	for rows.Next() {
		var s Snapshot
		if err := rows.Scan(&s.Date, &s.Currency, &s.MarketValue, &s.NetFlows, &s.Incomplete); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan snapshot", err)
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

// ReturnsReport computes per currency the TWR over stored snapshots and the
// XIRR of trade cashflows closed by the current market value at asOf.
func (c *Core) ReturnsReport(ctx context.Context, asOf time.Time) ([]CurrencyReturns, error) {
	if asOf.IsZero() {
		asOf = c.now()
	}
	txs, err := c.allTransactions(ctx)
	if err != nil {
		return nil, err
	}
	snapshots, err := c.Snapshots(ctx, "")
	if err != nil {
		return nil, err
	}
	v, err := c.valueBook(ctx, txs)
	if err != nil {
		return nil, err
	}

	bySnapshotCcy := map[string][]Snapshot{}
	for _, s := range snapshots {
		bySnapshotCcy[s.Currency] = append(bySnapshotCcy[s.Currency], s)
	}
	currencies := map[string]struct{}{}
	for ccy := range bySnapshotCcy {
		currencies[ccy] = struct{}{}
	}
	for ccy := range v.values {
		currencies[ccy] = struct{}{}
	}

	out := make([]CurrencyReturns, 0, len(currencies))
	for ccy := range currencies {
		r := CurrencyReturns{Currency: ccy}
		r.MarketValue = v.values[ccy]
		r.Incomplete = v.incomplete[ccy]

		series := bySnapshotCcy[ccy]
		if len(series) > 1 {
			periods := make([]costbasis.TwrPeriod, 0, len(series)-1)
			for i := 1; i < len(series); i++ {
				periods = append(periods, costbasis.TwrPeriod{
					Starting: series[i-1].MarketValue.Float(),
					Flows:    series[i].NetFlows.Float(),
					Ending:   series[i].MarketValue.Float(),
				})
				r.Incomplete = r.Incomplete || series[i].Incomplete
			}
			r.Periods = len(periods)
			r.TWR = costbasis.ComputeTWR(periods)
			r.From = series[0].Date
			r.To = series[len(series)-1].Date
			first, errFirst := parseDate(r.From)
			last, errLast := parseDate(r.To)
			if r.TWR != nil && errFirst == nil && errLast == nil {
				r.AnnualizedTWR = costbasis.AnnualizeReturn(*r.TWR, last.Sub(first).Hours()/24)
			}
		}

		if ccyFlows := v.flows[ccy]; len(ccyFlows) > 0 {
			cashflows := append([]costbasis.Cashflow(nil), ccyFlows...)
			if r.MarketValue > 0 {
				cashflows = append(cashflows, costbasis.Cashflow{Date: asOf, Amount: r.MarketValue})
			}
			r.XIRR = costbasis.XIRR(cashflows)
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}
