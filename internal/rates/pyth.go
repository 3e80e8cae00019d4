package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultPythURL is the public Hermes endpoint.
const DefaultPythURL = "https://hermes.pyth.network"

// SOLUSDFeedID is the Pyth price feed for SOL/USD.
const SOLUSDFeedID = "0xef0d8b6fda2ceba41da15d4095d1da392a0d2f8ed0c6c7bc0f4cfac8c280b56d"

// PythFetcher reads the native asset price in the primary fiat from Pyth Hermes.
type PythFetcher struct {
	BaseURL string
	FeedID  string
	Client  *http.Client
}

// NewPythFetcher creates a Pyth fetcher with optional proxy support.
func NewPythFetcher(baseURL, feedID, proxyURL string) *PythFetcher {
	if baseURL == "" {
		baseURL = DefaultPythURL
	}
	if feedID == "" {
		feedID = SOLUSDFeedID
	}
	return &PythFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		FeedID:  feedID,
		Client:  newHTTPClient(proxyURL),
	}
}

func (f *PythFetcher) Name() string { return "pyth" }

// pythFeed is one element of the latest_price_feeds response.
type pythFeed struct {
	ID    string `json:"id"`
	Price *struct {
		Price string `json:"price"`
		Expo  int32  `json:"expo"`
	} `json:"price"`
}

func (f *PythFetcher) FetchRate(ctx context.Context) (decimal.Decimal, error) {
	u := fmt.Sprintf("%s/api/latest_price_feeds?ids[]=%s", f.BaseURL, url.QueryEscape(f.FeedID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pyth fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pyth read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("pyth: status %d, body: %s", resp.StatusCode, string(body))
	}

	var feeds []pythFeed
	if err := json.Unmarshal(body, &feeds); err != nil {
		return decimal.Zero, fmt.Errorf("pyth decode: %w", err)
	}
	if len(feeds) == 0 || feeds[0].Price == nil {
		return decimal.Zero, fmt.Errorf("pyth: %w: malformed feed", ErrRateUnavailable)
	}

	mantissa, err := decimal.NewFromString(feeds[0].Price.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pyth: parse price %q: %w", feeds[0].Price.Price, err)
	}
	// price × 10^expo; Shift keeps the result exact.
	rate := mantissa.Shift(feeds[0].Price.Expo)
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("pyth: %w: non-positive price %s", ErrRateUnavailable, rate)
	}
	return rate, nil
}
