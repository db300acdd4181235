package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/subcommands"

	"costbasis/internal/config"
	"costbasis/internal/importer"
	"costbasis/internal/logging"
	"costbasis/pkg/costbasis"
	"costbasis/pkg/portfolio"
)

func commands(out io.Writer) []subcommands.Command {
	return []subcommands.Command{
		&importCmd{out: out},
		&realizedCmd{out: out},
		&unrealizedCmd{out: out},
		&returnsCmd{out: out},
	}
}

// source selects where transactions come from: a CSV file processed in
// memory, or the configured book.
type source struct {
	config string
	file   string
}

func (s *source) setFlags(f *flag.FlagSet) {
	f.StringVar(&s.config, "config", "", "Path to config.yaml")
	f.StringVar(&s.file, "file", "", "Broker CSV export to process without touching the book")
}

func (s *source) readFile() ([]costbasis.Transaction, error) {
	rows, err := readCSV(s.file)
	if err != nil {
		return nil, err
	}
	return costbasis.NormalizeRows(rows), nil
}

func readCSV(path string) ([]costbasis.Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return importer.ParseCSV(file)
}

// openBook opens the configured book. The returned func closes it.
func (s *source) openBook() (*portfolio.Core, func(), error) {
	cfg, err := config.Load(s.config)
	if err != nil {
		return nil, nil, err
	}
	dbPath, err := cfg.GetDBPath()
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logging.ParseLevel(cfg.Log.Level, slog.LevelWarn),
	}))
	core, err := portfolio.OpenWithOptions(portfolio.Options{
		DBPath:                 dbPath,
		Logger:                 logger,
		PriceRequestsPerSecond: cfg.Prices.RequestsPerSecond,
		HTTPTimeout:            config.Seconds(cfg.Prices.HTTPTimeoutSeconds),
	})
	if err != nil {
		return nil, nil, err
	}
	return core, func() { _ = core.Close() }, nil
}

// parsePrices reads "KEY=PRICE[:CCY]" pairs separated by commas.
func parsePrices(list string) (costbasis.PriceMap, error) {
	prices := costbasis.PriceMap{}
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("price %q: expected KEY=PRICE", part)
		}
		value, ccy, _ := strings.Cut(value, ":")
		price, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", part, err)
		}
		prices[costbasis.NormalizeKey(key)] = costbasis.Quote{LastPrice: price, CcyPrice: costbasis.NormalizeCurrency(ccy)}
	}
	return prices, nil
}

type importCmd struct {
	out io.Writer
	source
	name string
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import a broker CSV export into the book" }
func (*importCmd) Usage() string {
	return `import -file <export.csv> [-source <name>] [-config <config.yaml>]

  Normalizes every row of the export and stores the result as one import
  batch. Rows without an instrument are skipped.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	c.setFlags(f)
	f.StringVar(&c.name, "source", "", "Batch source label (defaults to the file name)")
}

func (c *importCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.file == "" {
		fmt.Fprintln(os.Stderr, "Error: -file is required")
		return subcommands.ExitUsageError
	}
	rows, err := readCSV(c.file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", c.file, err)
		return subcommands.ExitFailure
	}
	core, closeBook, err := c.openBook()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening book: %v\n", err)
		return subcommands.ExitFailure
	}
	defer closeBook()

	name := c.name
	if name == "" {
		name = filepath.Base(c.file)
	}
	result, err := core.ImportRows(ctx, name, rows)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error importing: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Fprintf(c.out, "batch %s: %d rows, %d imported, %d skipped\n", result.BatchID, result.Rows, result.Imported, result.Skipped)
	return subcommands.ExitSuccess
}

type realizedCmd struct {
	out io.Writer
	source
}

func (*realizedCmd) Name() string     { return "realized" }
func (*realizedCmd) Synopsis() string { return "print realized profit and loss per sell" }
func (*realizedCmd) Usage() string {
	return `realized [-file <export.csv>] [-config <config.yaml>]

  Matches every sell against the oldest open lots and prints one line per
  sell with per-currency totals.
`
}

func (c *realizedCmd) SetFlags(f *flag.FlagSet) { c.setFlags(f) }

func (c *realizedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var summary costbasis.RealizedPnLSummary
	if c.file != "" {
		txs, err := c.readFile()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", c.file, err)
			return subcommands.ExitFailure
		}
		summary = costbasis.ComputeRealizedPnL(txs)
	} else {
		core, closeBook, err := c.openBook()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening book: %v\n", err)
			return subcommands.ExitFailure
		}
		defer closeBook()
		if summary, err = core.RealizedReport(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error computing report: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	printRealized(c.out, summary)
	return subcommands.ExitSuccess
}

type unrealizedCmd struct {
	out io.Writer
	source
	prices string
}

func (*unrealizedCmd) Name() string     { return "unrealized" }
func (*unrealizedCmd) Synopsis() string { return "value open positions against last prices" }
func (*unrealizedCmd) Usage() string {
	return `unrealized [-file <export.csv> -prices KEY=PRICE[:CCY],...] [-config <config.yaml>]

  Prints the open lots of every instrument valued at its last price. With
  -file, prices come from -prices; otherwise from the book.
`
}

func (c *unrealizedCmd) SetFlags(f *flag.FlagSet) {
	c.setFlags(f)
	f.StringVar(&c.prices, "prices", "", "Last prices for -file mode, e.g. AAPL=187.5,SAP=140:EUR")
}

func (c *unrealizedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	var report *portfolio.UnrealizedReport
	if c.file != "" {
		txs, err := c.readFile()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", c.file, err)
			return subcommands.ExitFailure
		}
		prices, err := parsePrices(c.prices)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
		rows, err := costbasis.ComputeUnrealizedPnL(ctx, txs, prices)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error valuing positions: %v\n", err)
			return subcommands.ExitFailure
		}
		report = portfolio.NewUnrealizedReport(rows)
	} else {
		core, closeBook, err := c.openBook()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening book: %v\n", err)
			return subcommands.ExitFailure
		}
		defer closeBook()
		if report, err = core.UnrealizedReport(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error computing report: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	printUnrealized(c.out, report)
	return subcommands.ExitSuccess
}

type returnsCmd struct {
	out io.Writer
	source
	prices   string
	asOf     string
	snapshot bool
}

func (*returnsCmd) Name() string     { return "returns" }
func (*returnsCmd) Synopsis() string { return "print time-weighted and money-weighted returns" }
func (*returnsCmd) Usage() string {
	return `returns [-as-of YYYY-MM-DD] [-snapshot] [-config <config.yaml>]
returns -file <export.csv> -prices KEY=PRICE[:CCY],... [-as-of YYYY-MM-DD]

  Prints per currency the TWR over stored valuation snapshots and the XIRR
  of trade cashflows closed by the current market value. -snapshot records
  a snapshot at -as-of first. With -file only the XIRR is available.
`
}

func (c *returnsCmd) SetFlags(f *flag.FlagSet) {
	c.setFlags(f)
	f.StringVar(&c.prices, "prices", "", "Last prices for -file mode")
	f.StringVar(&c.asOf, "as-of", "", "Valuation date (defaults to today)")
	f.BoolVar(&c.snapshot, "snapshot", false, "Record a valuation snapshot before reporting")
}

func (c *returnsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	asOf := time.Now()
	if c.asOf != "" {
		t, err := time.Parse("2006-01-02", c.asOf)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -as-of %q\n", c.asOf)
			return subcommands.ExitUsageError
		}
		asOf = t
	}

	var returns []portfolio.CurrencyReturns
	if c.file != "" {
		txs, err := c.readFile()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", c.file, err)
			return subcommands.ExitFailure
		}
		prices, err := parsePrices(c.prices)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return subcommands.ExitUsageError
		}
		if returns, err = fileReturns(ctx, txs, prices, asOf); err != nil {
			fmt.Fprintf(os.Stderr, "Error computing returns: %v\n", err)
			return subcommands.ExitFailure
		}
	} else {
		core, closeBook, err := c.openBook()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening book: %v\n", err)
			return subcommands.ExitFailure
		}
		defer closeBook()
		if c.snapshot {
			if _, err := core.TakeSnapshot(ctx, asOf); err != nil {
				fmt.Fprintf(os.Stderr, "Error taking snapshot: %v\n", err)
				return subcommands.ExitFailure
			}
		}
		if returns, err = core.ReturnsReport(ctx, asOf); err != nil {
			fmt.Fprintf(os.Stderr, "Error computing returns: %v\n", err)
			return subcommands.ExitFailure
		}
	}
	printReturns(c.out, returns)
	return subcommands.ExitSuccess
}

// fileReturns computes per currency the XIRR of txs closed by the market
// value of open positions at asOf.
func fileReturns(ctx context.Context, txs []costbasis.Transaction, prices costbasis.PriceSource, asOf time.Time) ([]portfolio.CurrencyReturns, error) {
	rows, err := costbasis.ComputeUnrealizedPnL(ctx, txs, prices)
	if err != nil {
		return nil, err
	}
	report := portfolio.NewUnrealizedReport(rows)
	flows := costbasis.TradeCashflows(txs)

	out := make([]portfolio.CurrencyReturns, 0, len(flows))
	for ccy, ccyFlows := range flows {
		totals := report.TotalsByCcy[ccy]
		r := portfolio.CurrencyReturns{
			Currency:    ccy,
			MarketValue: totals.MarketValue.Float(),
			Incomplete:  totals.Incomplete,
		}
		cashflows := append([]costbasis.Cashflow(nil), ccyFlows...)
		if r.MarketValue > 0 {
			cashflows = append(cashflows, costbasis.Cashflow{Date: asOf, Amount: r.MarketValue})
		}
		r.XIRR = costbasis.XIRR(cashflows)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}
