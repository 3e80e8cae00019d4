package rates

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
)

// Conversion holds the fiat values of a native amount. A field is null when its rate was unavailable.
type Conversion struct {
	Primary   decimal.NullDecimal
	Secondary decimal.NullDecimal
}

// FiatValues is a fiat amount expressed in the native asset and both fiat currencies.
type FiatValues struct {
	Native    decimal.NullDecimal
	Primary   decimal.NullDecimal
	Secondary decimal.NullDecimal
}

// Converter turns native amounts into the tracked fiat currencies.
type Converter struct {
	Cache      *Cache
	NativeRate Fetcher // native → primary
	FiatRate   Fetcher // primary → secondary
	Currencies model.Currencies
}

// NewConverter wires a converter to its two rate sources.
func NewConverter(cache *Cache, nativeRate, fiatRate Fetcher, cur model.Currencies) *Converter {
	return &Converter{Cache: cache, NativeRate: nativeRate, FiatRate: fiatRate, Currencies: cur}
}

// rates fetches both rates in parallel. Either result may be null.
func (c *Converter) rates(ctx context.Context) (nativeRate, fiatRate decimal.NullDecimal) {
	var g errgroup.Group
	g.Go(func() error {
		r, err := c.Cache.Get(ctx, c.NativeRate)
		if err != nil {
			logger.Warn("%s→%s rate unavailable: %v", c.Currencies.Native, c.Currencies.Primary, err)
			return nil
		}
		nativeRate = decimal.NewNullDecimal(r)
		return nil
	})
	g.Go(func() error {
		r, err := c.Cache.Get(ctx, c.FiatRate)
		if err != nil {
			logger.Warn("%s→%s rate unavailable: %v", c.Currencies.Primary, c.Currencies.Secondary, err)
			return nil
		}
		fiatRate = decimal.NewNullDecimal(r)
		return nil
	})
	_ = g.Wait()
	return nativeRate, fiatRate
}

// Convert values a native amount in both fiat currencies. It never fails; missing
// rates produce null fields.
func (c *Converter) Convert(ctx context.Context, native decimal.Decimal) Conversion {
	nativeRate, fiatRate := c.rates(ctx)
	var out Conversion
	if nativeRate.Valid {
		out.Primary = decimal.NewNullDecimal(native.Mul(nativeRate.Decimal))
		if fiatRate.Valid {
			out.Secondary = decimal.NewNullDecimal(out.Primary.Decimal.Mul(fiatRate.Decimal))
		}
	}
	return out
}

// NativePrice returns the native asset's price in the primary fiat currency.
func (c *Converter) NativePrice(ctx context.Context) (decimal.Decimal, error) {
	return c.Cache.Get(ctx, c.NativeRate)
}

// ErrUnknownCurrency is returned by FromFiat for a currency that is neither tracked fiat nor native.
var ErrUnknownCurrency = errors.New("unknown currency")

// FromFiat expresses amount, given in currency, in every tracked unit that the
// available rates allow.
func (c *Converter) FromFiat(ctx context.Context, amount decimal.Decimal, currency string) (FiatValues, error) {
	nativeRate, fiatRate := c.rates(ctx)
	var v FiatValues

	switch currency {
	case c.Currencies.Native:
		v.Native = decimal.NewNullDecimal(amount)
		if nativeRate.Valid {
			v.Primary = decimal.NewNullDecimal(amount.Mul(nativeRate.Decimal))
		}
	case c.Currencies.Primary:
		v.Primary = decimal.NewNullDecimal(amount)
	case c.Currencies.Secondary:
		v.Secondary = decimal.NewNullDecimal(amount)
		if fiatRate.Valid {
			v.Primary = decimal.NewNullDecimal(amount.Div(fiatRate.Decimal))
		}
	default:
		return v, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}

	if v.Primary.Valid {
		if !v.Secondary.Valid && fiatRate.Valid {
			v.Secondary = decimal.NewNullDecimal(v.Primary.Decimal.Mul(fiatRate.Decimal))
		}
		if !v.Native.Valid && nativeRate.Valid {
			v.Native = decimal.NewNullDecimal(v.Primary.Decimal.Div(nativeRate.Decimal))
		}
	}
	return v, nil
}
