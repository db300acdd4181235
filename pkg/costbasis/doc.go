// Package costbasis computes cost basis and performance figures for a list of
// brokerage transactions.
//
// Every entry point is a pure function of its inputs. Transactions are
// replayed in timestamp order through per-instrument FIFO lot ledgers to
// produce realized results per sell and the open lot snapshot used for
// unrealized valuation. TWR and XIRR work on caller supplied periods and
// cashflows.
//
// Data quality problems never produce errors: malformed rows are skipped,
// over-sells are clamped and reported as diagnostics, and missing prices
// mark a row incomplete.
package costbasis
