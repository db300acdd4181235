package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"costbasis/pkg/costbasis"
)

// Price fetcher errors. Use errors.Is to check for these conditions.
var (
	// ErrInvalidSymbol indicates the key cannot be mapped to a quote symbol.
	ErrInvalidSymbol = errors.New("invalid symbol format")
	// ErrNoData indicates the data source returned no price.
	ErrNoData = errors.New("no price data available")
	// ErrCircuitOpen indicates every source is cooling down after failures.
	ErrCircuitOpen = errors.New("price sources cooling down")
)

var (
	reSixDigit = regexp.MustCompile(`^\d{6}$`)
	reISIN     = regexp.MustCompile(`^[A-Z]{2}[A-Z0-9]{9}\d$`)
	reTicker   = regexp.MustCompile(`^[A-Z0-9^=.\-]{1,20}$`)
)

const (
	yahooChartPrimary  = "https://query1.finance.yahoo.com/v8/finance/chart/%s?interval=1d&range=1d"
	yahooChartFallback = "https://query2.finance.yahoo.com/v8/finance/chart/%s?interval=1d&range=1d"
	// maxResponseSize limits external API responses to 1MB.
	maxResponseSize = 1 << 20
)

// HTTPDoer is an interface for making HTTP requests. Tests inject fakes.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

type priceFetcherOptions struct {
	Logger            *slog.Logger
	CacheTTL          time.Duration
	FailThreshold     int
	FailWindow        time.Duration
	Cooldown          time.Duration
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	HTTPClient        HTTPDoer
}

type priceFetcher struct {
	logger  *slog.Logger
	client  HTTPDoer
	limiter *rate.Limiter
	cache   *cache.Cache
	breaker *circuitBreaker
}

type cachedQuote struct {
	price    float64
	currency string
	source   string
}

func newPriceFetcher(opts priceFetcherOptions) *priceFetcher {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.HTTPTimeout}
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &priceFetcher{
		logger:  logger,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		cache:   cache.New(opts.CacheTTL, 2*opts.CacheTTL),
		breaker: newCircuitBreaker(opts.FailThreshold, opts.FailWindow, opts.Cooldown),
	}
}

// FetchPrice fetches the latest price for an instrument key.
func (c *Core) FetchPrice(ctx context.Context, key, currency string) (PriceResult, error) {
	quote, message, err := c.price.fetch(ctx, key, currency)
	if err != nil {
		return PriceResult{Message: message}, err
	}
	return PriceResult{Price: floatPtr(quote.LastPrice), Message: message}, nil
}

type fetchAttempt struct {
	name string
	fn   func(ctx context.Context) (*costbasis.Quote, error)
}

func (pf *priceFetcher) fetch(ctx context.Context, key, currency string) (costbasis.Quote, string, error) {
	key = costbasis.NormalizeKey(key)
	currency = costbasis.NormalizeCurrency(currency)

	if v, ok := pf.cache.Get(cacheKey(key, currency)); ok {
		cq := v.(cachedQuote)
		return costbasis.Quote{LastPrice: cq.price, CcyPrice: cq.currency},
			fmt.Sprintf("price fetched (cached, source: %s)", cq.source), nil
	}

	symbol, err := buildYahooSymbol(key, currency)
	if err != nil {
		return costbasis.Quote{}, fmt.Sprintf("cannot map %s to a quote symbol", key), err
	}
	pf.logger.Info("fetching price", "key", key, "currency", currency, "symbol", symbol)

	attempts := []fetchAttempt{
		{"Yahoo Finance", func(ctx context.Context) (*costbasis.Quote, error) {
			return pf.yahooFetchChart(ctx, yahooChartPrimary, symbol)
		}},
		{"Yahoo Finance (query2)", func(ctx context.Context) (*costbasis.Quote, error) {
			return pf.yahooFetchChart(ctx, yahooChartFallback, symbol)
		}},
	}

	var errorsList []string
	tried := 0
	for _, attempt := range attempts {
		service := attempt.name
		if !pf.breaker.allow(service) {
			errorsList = append(errorsList, fmt.Sprintf("%s: cooling down", service))
			continue
		}
		tried++
		if err := pf.limiter.Wait(ctx); err != nil {
			return costbasis.Quote{}, "price fetch cancelled", err
		}
		quote, err := attempt.fn(ctx)
		if err == nil && quote != nil {
			pf.breaker.success(service)
			if quote.CcyPrice == "" {
				quote.CcyPrice = currency
			}
			pf.cache.SetDefault(cacheKey(key, currency), cachedQuote{price: quote.LastPrice, currency: quote.CcyPrice, source: service})
			return *quote, fmt.Sprintf("price fetched (source: %s)", service), nil
		}
		if err != nil {
			errorsList = append(errorsList, fmt.Sprintf("%s: %v", service, err))
		} else {
			errorsList = append(errorsList, fmt.Sprintf("%s: no data", service))
		}
		if until := pf.breaker.failure(service); !until.IsZero() {
			pf.logger.Warn("price source cooling down", "service", service, "until", until)
		}
	}

	msg := fmt.Sprintf("price fetch failed: %s", strings.Join(errorsList, "; "))
	if tried == 0 {
		return costbasis.Quote{}, msg, ErrCircuitOpen
	}
	return costbasis.Quote{}, msg, fmt.Errorf("%w: %s", ErrNoData, strings.Join(errorsList, "; "))
}

func cacheKey(key, currency string) string {
	return key + "|" + currency
}

// buildYahooSymbol maps an instrument key to a Yahoo symbol. Keys that
// already carry an exchange suffix pass through. ISINs and free-text names
// cannot be quoted.
func buildYahooSymbol(key, currency string) (string, error) {
	code := costbasis.NormalizeKey(key)
	currency = costbasis.NormalizeCurrency(currency)
	if code == "" || strings.ContainsAny(code, " /") || reISIN.MatchString(code) || !reTicker.MatchString(code) {
		return "", ErrInvalidSymbol
	}
	if strings.Contains(code, ".") {
		return code, nil
	}
	switch currency {
	case "CNY":
		if (strings.HasPrefix(code, "SH") || strings.HasPrefix(code, "SZ")) && reSixDigit.MatchString(code[2:]) {
			code = code[2:]
		}
		if strings.HasPrefix(code, "6") && reSixDigit.MatchString(code) {
			return code + ".SS", nil
		}
		if reSixDigit.MatchString(code) {
			return code + ".SZ", nil
		}
	case "HKD":
		code = strings.TrimPrefix(code, "HK")
		code = strings.TrimLeft(code, "0")
		if len(code) < 4 {
			code = strings.Repeat("0", 4-len(code)) + code
		}
		return code + ".HK", nil
	case "GBP", "GBX":
		return code + ".L", nil
	}
	return code, nil
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string   `json:"currency"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

func (pf *priceFetcher) yahooFetchChart(ctx context.Context, urlFormat, symbol string) (*costbasis.Quote, error) {
	body, err := pf.httpGet(ctx, fmt.Sprintf(urlFormat, symbol), map[string]string{"User-Agent": "Mozilla/5.0"})
	if err != nil {
		return nil, err
	}
	var payload yahooChart
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	if len(payload.Chart.Result) == 0 {
		return nil, nil
	}
	result := payload.Chart.Result[0]
	ccy := costbasis.NormalizeCurrency(result.Meta.Currency)
	if p := result.Meta.RegularMarketPrice; p != nil && *p > 0 {
		return &costbasis.Quote{LastPrice: *p, CcyPrice: ccy}, nil
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	closes := result.Indicators.Quote[0].Close
	for i := len(closes) - 1; i >= 0; i-- {
		if closes[i] != nil && *closes[i] > 0 {
			return &costbasis.Quote{LastPrice: *closes[i], CcyPrice: ccy}, nil
		}
	}
	return nil, nil
}

func (pf *priceFetcher) httpGet(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := pf.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
}
