package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/Rhymond/go-money"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"costbasis/pkg/costbasis"
	"costbasis/pkg/portfolio"
)

// formatMoney renders amount in the display format of currency. Codes that
// go-money does not know fall back to two decimals and the raw code.
func formatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return fmt.Sprintf("%s %s", amount.StringFixed(2), currency)
	}
	factor := decimal.NewFromInt(10).Pow(decimal.NewFromInt(int64(cur.Fraction)))
	return money.New(amount.Mul(factor).Round(0).IntPart(), cur.Code).Display()
}

func formatFloatMoney(amount float64, currency string) string {
	return formatMoney(decimal.NewFromFloat(amount), currency)
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func formatPercent(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printRealized(out io.Writer, summary costbasis.RealizedPnLSummary) {
	if len(summary.ByInstrument) == 0 {
		fmt.Fprintln(out, "No realized sells.")
	} else {
		table := tablewriter.NewWriter(out)
		table.Header("Date", "Instrument", "Qty", "Proceeds", "Cost", "Fees+Taxes", "PnL")
		for _, row := range summary.ByInstrument {
			table.Append(
				row.Timestamp.Format("2006-01-02"),
				row.InstrumentKey,
				formatQty(row.Quantity),
				formatFloatMoney(row.Proceeds, row.Currency),
				formatFloatMoney(row.Cost, row.Currency),
				formatFloatMoney(row.FeesTaxes, row.Currency),
				formatFloatMoney(row.PnL, row.Currency),
			)
		}
		table.Render()
	}

	for _, ccy := range sortedKeys(summary.TotalsByCcy) {
		t := summary.TotalsByCcy[ccy]
		fmt.Fprintf(out, "%s: %d sells, proceeds %s, cost %s, pnl %s\n",
			ccy, t.Sells,
			formatMoney(t.Proceeds.Decimal, ccy),
			formatMoney(t.Cost.Decimal, ccy),
			formatMoney(t.PnL.Decimal, ccy))
	}
	for _, u := range summary.Unmatched {
		fmt.Fprintf(out, "warning: %s sell of %s on %s exceeded open lots by %s\n",
			u.InstrumentKey, formatQty(u.Requested), u.Timestamp.Format("2006-01-02"), formatQty(u.Unmatched))
	}
}

func printUnrealized(out io.Writer, report *portfolio.UnrealizedReport) {
	if report == nil || len(report.Rows) == 0 {
		fmt.Fprintln(out, "No open positions.")
		return
	}
	table := tablewriter.NewWriter(out)
	table.Header("Instrument", "Qty", "Avg cost", "Cost", "Last", "Value", "PnL")
	for _, row := range report.Rows {
		last, value, pnl := "n/a", "n/a", "n/a"
		if !row.Incomplete {
			last = formatFloatMoney(row.LastPrice, row.Currency)
			value = formatFloatMoney(row.MarketValue, row.Currency)
			pnl = formatFloatMoney(row.PnL, row.Currency)
		}
		table.Append(
			row.InstrumentKey,
			formatQty(row.Quantity),
			formatFloatMoney(row.AvgCost, row.Currency),
			formatFloatMoney(row.TotalCost, row.Currency),
			last,
			value,
			pnl,
		)
	}
	table.Render()

	for _, ccy := range sortedKeys(report.TotalsByCcy) {
		t := report.TotalsByCcy[ccy]
		line := fmt.Sprintf("%s: %d positions, cost %s, value %s, pnl %s",
			ccy, t.Positions,
			formatMoney(t.TotalCost.Decimal, ccy),
			formatMoney(t.MarketValue.Decimal, ccy),
			formatMoney(t.PnL.Decimal, ccy))
		if t.Incomplete {
			line += " (incomplete: missing prices)"
		}
		fmt.Fprintln(out, line)
	}
}

func printReturns(out io.Writer, returns []portfolio.CurrencyReturns) {
	if len(returns) == 0 {
		fmt.Fprintln(out, "No cashflows.")
		return
	}
	table := tablewriter.NewWriter(out)
	table.Header("Currency", "Periods", "TWR", "Annualized TWR", "XIRR", "Market value")
	for _, r := range returns {
		value := formatFloatMoney(r.MarketValue, r.Currency)
		if r.Incomplete {
			value += " *"
		}
		table.Append(
			r.Currency,
			strconv.Itoa(r.Periods),
			formatPercent(r.TWR),
			formatPercent(r.AnnualizedTWR),
			formatPercent(r.XIRR),
			value,
		)
	}
	table.Render()
}
