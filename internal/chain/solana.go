package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"golang.org/x/time/rate"

	"WalletSentinel/internal/logger"
	"WalletSentinel/internal/model"
)

// SolanaReader reads transactions and balances over JSON-RPC and subscribes
// to account activity over the websocket API.
type SolanaReader struct {
	rpc        *rpc.Client
	wsURL      string
	limiter    *rate.Limiter
	commitment rpc.CommitmentType
}

// NewSolanaReader creates a reader. rps caps outgoing RPC calls; zero disables the cap.
func NewSolanaReader(rpcURL, wsURL string, rps float64) *SolanaReader {
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &SolanaReader{
		rpc:        rpc.New(rpcURL),
		wsURL:      wsURL,
		limiter:    rate.NewLimiter(limit, burst),
		commitment: rpc.CommitmentConfirmed,
	}
}

// ValidateAddress checks that address is a base58 encoded 32 byte public key.
func ValidateAddress(address string) error {
	if _, err := solana.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("invalid wallet address %q: %w", address, err)
	}
	return nil
}

// GetBalance returns the address balance in base units.
func (r *SolanaReader) GetBalance(ctx context.Context, address string) (uint64, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("parse address %q: %w", address, err)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	res, err := r.rpc.GetBalance(ctx, pk, r.commitment)
	if err != nil {
		return 0, fmt.Errorf("get balance %s: %w", address, err)
	}
	return res.Value, nil
}

// GetTransaction resolves a signature. It returns ErrTxNotFound while the
// transaction is not visible at the reader's commitment.
func (r *SolanaReader) GetTransaction(ctx context.Context, signature string) (*model.ChainTx, error) {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSignature, signature, err)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	maxVersion := uint64(0)
	res, err := r.rpc.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     r.commitment,
		MaxSupportedTransactionVersion: &maxVersion,
	})
	if errors.Is(err, rpc.ErrNotFound) || (err == nil && res == nil) {
		return nil, fmt.Errorf("%s: %w", signature, ErrTxNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", signature, err)
	}
	if res.Meta == nil || res.Transaction == nil {
		return nil, fmt.Errorf("%s: %w: missing meta", signature, ErrTxNotFound)
	}

	tx, err := res.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", signature, err)
	}

	out := &model.ChainTx{
		Signature:    signature,
		Slot:         res.Slot,
		Fee:          res.Meta.Fee,
		Failed:       res.Meta.Err != nil,
		PreBalances:  res.Meta.PreBalances,
		PostBalances: res.Meta.PostBalances,
		Memo:         memoFromLogs(res.Meta.LogMessages),
	}
	if res.BlockTime != nil {
		out.BlockTime = res.BlockTime.Time().UTC()
	}
	// Balance arrays index static keys first, then loaded writable, then loaded readonly.
	for _, k := range tx.Message.AccountKeys {
		out.AccountKeys = append(out.AccountKeys, k.String())
	}
	for _, k := range res.Meta.LoadedAddresses.Writable {
		out.AccountKeys = append(out.AccountKeys, k.String())
	}
	for _, k := range res.Meta.LoadedAddresses.ReadOnly {
		out.AccountKeys = append(out.AccountKeys, k.String())
	}
	return out, nil
}

// memoFromLogs extracts the memo program text, if any.
func memoFromLogs(logs []string) string {
	const marker = "Program log: Memo"
	for _, l := range logs {
		i := strings.Index(l, marker)
		if i < 0 {
			continue
		}
		rest := l[i+len(marker):]
		if j := strings.Index(rest, ": "); j >= 0 {
			rest = rest[j+2:]
		}
		return strings.Trim(rest, `"`)
	}
	return ""
}

// Subscribe opens a dedicated websocket connection and subscribes to logs
// mentioning address.
func (r *SolanaReader) Subscribe(ctx context.Context, address string) (Subscription, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", address, err)
	}
	client, err := ws.Connect(ctx, r.wsURL)
	if err != nil {
		return nil, fmt.Errorf("ws connect: %w", err)
	}
	sub, err := client.LogsSubscribeMentions(pk, r.commitment)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("logs subscribe %s: %w", address, err)
	}
	logger.Debug("logs subscription opened for %s", address)
	return &logSubscription{client: client, sub: sub}, nil
}

type logSubscription struct {
	client *ws.Client
	sub    *ws.LogSubscription
}

func (s *logSubscription) Recv(ctx context.Context) (Event, error) {
	res, err := s.sub.Recv(ctx)
	if err != nil {
		return Event{}, err
	}
	if res == nil {
		return Event{}, ErrSubscriptionClosed
	}
	return Event{
		Signature:  res.Value.Signature.String(),
		Failed:     res.Value.Err != nil,
		ReceivedAt: time.Now(),
	}, nil
}

func (s *logSubscription) Close() {
	s.sub.Unsubscribe()
	s.client.Close()
}
