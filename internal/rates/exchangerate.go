package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultExchangeRateURL is the ExchangeRate-API v6 base.
const DefaultExchangeRateURL = "https://v6.exchangerate-api.com/v6"

// ExchangeRateFetcher reads the primary→secondary fiat rate from ExchangeRate-API.
type ExchangeRateFetcher struct {
	BaseURL string
	APIKey  string
	From    string
	To      string
	Client  *http.Client
}

// NewExchangeRateFetcher creates a fetcher for the from→to pair.
func NewExchangeRateFetcher(baseURL, apiKey, from, to, proxyURL string) *ExchangeRateFetcher {
	if baseURL == "" {
		baseURL = DefaultExchangeRateURL
	}
	return &ExchangeRateFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		From:    from,
		To:      to,
		Client:  newHTTPClient(proxyURL),
	}
}

func (f *ExchangeRateFetcher) Name() string { return "exchangerate-api" }

func (f *ExchangeRateFetcher) FetchRate(ctx context.Context) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/%s/latest/%s", f.BaseURL, f.APIKey, f.From)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch exchange rate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decimal.Zero, fmt.Errorf("fetch exchange rate: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Result          string                     `json:"result"`
		ConversionRates map[string]decimal.Decimal `json:"conversion_rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("decode exchange rate: %w", err)
	}
	rate, ok := result.ConversionRates[f.To]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("exchange rate %s/%s: %w", f.From, f.To, ErrRateUnavailable)
	}
	return rate, nil
}
