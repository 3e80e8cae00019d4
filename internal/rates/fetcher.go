package rates

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// ErrRateUnavailable is returned when a provider answers without a usable rate.
var ErrRateUnavailable = errors.New("rate unavailable")

// Fetcher retrieves one exchange rate from an external provider.
type Fetcher interface {
	FetchRate(ctx context.Context) (decimal.Decimal, error)
	Name() string
}

// StaticFetcher returns a fixed rate, for development and tests.
type StaticFetcher struct {
	Label string
	Rate  decimal.Decimal
	Err   error
}

func (s *StaticFetcher) Name() string {
	if s.Label == "" {
		return "static"
	}
	return s.Label
}

func (s *StaticFetcher) FetchRate(_ context.Context) (decimal.Decimal, error) {
	if s.Err != nil {
		return decimal.Zero, s.Err
	}
	return s.Rate, nil
}

func newHTTPClient(proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{
		Timeout:   15 * time.Second,
		Transport: transport,
	}
}
