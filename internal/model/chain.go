package model

import "time"

// ChainTx is the subset of a resolved chain transaction the core needs.
type ChainTx struct {
	Signature    string
	Slot         uint64
	BlockTime    time.Time
	Fee          uint64
	Failed       bool
	AccountKeys  []string
	PreBalances  []uint64
	PostBalances []uint64
	Memo         string
}

func (tx *ChainTx) accountIndex(address string) int {
	for i, k := range tx.AccountKeys {
		if k == address {
			return i
		}
	}
	return -1
}

// BalanceDelta returns post minus pre balance for address in base units.
// ok is false when the address is not part of the transaction.
func (tx *ChainTx) BalanceDelta(address string) (delta int64, ok bool) {
	i := tx.accountIndex(address)
	if i < 0 || i >= len(tx.PreBalances) || i >= len(tx.PostBalances) {
		return 0, false
	}
	return int64(tx.PostBalances[i]) - int64(tx.PreBalances[i]), true
}

// PostBalance returns the address balance after the transaction.
func (tx *ChainTx) PostBalance(address string) (uint64, bool) {
	i := tx.accountIndex(address)
	if i < 0 || i >= len(tx.PostBalances) {
		return 0, false
	}
	return tx.PostBalances[i], true
}

// Counterparty returns the first account key that is not address.
func (tx *ChainTx) Counterparty(address string) string {
	for _, k := range tx.AccountKeys {
		if k != address {
			return k
		}
	}
	return ""
}
