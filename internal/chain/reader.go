package chain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"WalletSentinel/internal/model"
)

// ErrTxNotFound is returned when the chain has no record of a signature yet.
var ErrTxNotFound = errors.New("transaction not found")

// ErrInvalidSignature is returned for signatures that can never resolve.
var ErrInvalidSignature = errors.New("invalid signature")

// ErrSubscriptionClosed is returned by Recv after Close.
var ErrSubscriptionClosed = errors.New("subscription closed")

// NativeDecimals is the number of base units per native coin, as a power of ten.
const NativeDecimals = 9

// Event is one activity notification for a subscribed address.
type Event struct {
	Signature  string
	Failed     bool
	ReceivedAt time.Time
}

// Subscription is a live activity feed for one address.
type Subscription interface {
	// Recv blocks until the next event. Any error means the feed is broken.
	Recv(ctx context.Context) (Event, error)
	Close()
}

// Reader is the chain-read surface the core depends on.
type Reader interface {
	GetTransaction(ctx context.Context, signature string) (*model.ChainTx, error)
	GetBalance(ctx context.Context, address string) (uint64, error)
	Subscribe(ctx context.Context, address string) (Subscription, error)
}

// ToNative converts base units to native coins.
func ToNative(units int64) decimal.Decimal {
	return decimal.New(units, -NativeDecimals)
}

// FromNative converts native coins to base units, truncating dust.
func FromNative(amount decimal.Decimal) int64 {
	return amount.Shift(NativeDecimals).IntPart()
}
