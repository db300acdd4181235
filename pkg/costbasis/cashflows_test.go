package costbasis

import "testing"

func TestTradeCashflows(t *testing.T) {
	b := buy("A", 0, 10, 100)
	b.Fees = 5
	s := sell("A", 365, 10, 110)
	s.Taxes = 5
	div := Transaction{InstrumentKey: "A", Action: ActionDividend, Amount: 20, Taxes: 3, QuoteCurrency: "usd", Timestamp: at(200)}
	eur := buy("SAP", 10, 1, 50)
	eur.QuoteCurrency = "EUR"
	noPrice := sell("A", 300, 1, 0)
	noPrice.Price = nil

	flows := TradeCashflows([]Transaction{s, div, b, eur, noPrice, split("A", 100, 2)})
	usd := flows["USD"]
	if len(usd) != 3 {
		t.Fatalf("expected 3 usd flows, got %+v", usd)
	}
	assertFloatEquals(t, usd[0].Amount, -1005, "buy outflow")
	assertFloatEquals(t, usd[1].Amount, 17, "net dividend")
	assertFloatEquals(t, usd[2].Amount, 1095, "sell inflow")
	if len(flows["EUR"]) != 1 {
		t.Fatalf("expected 1 eur flow, got %+v", flows["EUR"])
	}
}

func TestTradeCashflowsFeedXIRR(t *testing.T) {
	flows := TradeCashflows([]Transaction{
		buy("A", 0, 10, 100),
		sell("A", 365, 10, 110),
	})
	assertPtrFloat(t, XIRR(flows["USD"]), 0.10, 1e-4, "xirr")
}

func TestNetFlowBetween(t *testing.T) {
	flows := []Cashflow{
		{Date: at(0), Amount: -1000},
		{Date: at(10), Amount: -500},
		{Date: at(20), Amount: 200},
	}
	assertFloatEquals(t, NetFlowBetween(flows, at(0), at(20)), 300, "after first snapshot")
	assertFloatEquals(t, NetFlowBetween(flows, at(0).AddDate(0, 0, -1), at(5)), 1000, "initial deposit")

	unordered := []Cashflow{flows[2], flows[0], flows[1]}
	SortCashflows(unordered)
	if !unordered[0].Date.Equal(at(0)) {
		t.Fatalf("expected sorted flows")
	}
}

func TestTradeCashflowsBy(t *testing.T) {
	unpriced := buy("aapl", 0, 10, 100)
	unpriced.QuoteCurrency = ""
	flows := TradeCashflowsBy([]Transaction{unpriced, buy("SAP", 1, 1, 50)}, func(tx Transaction) string {
		if tx.InstrumentKey == "AAPL" {
			return "EUR"
		}
		return "OTHER"
	})
	if len(flows["EUR"]) != 1 || len(flows["OTHER"]) != 1 || len(flows[""]) != 0 {
		t.Fatalf("unexpected grouping %+v", flows)
	}
	assertFloatEquals(t, flows["EUR"][0].Amount, -1000, "aapl outflow")
}
