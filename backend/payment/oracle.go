// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

package payment

import (
	"context"
	"math/big"
)

// Transaction is the oracle's view of an on-chain transaction.
type Transaction struct {
	Hash  string
	From  string
	To    string
	Value *big.Int
	// BlockNumber is nil while the transaction is pending.
	BlockNumber *big.Int
}

// LogEntry is one event log from a transaction receipt.
type LogEntry struct {
	Address string
	Topics  []string
	Data    string
}

// Receipt is the oracle's view of a mined transaction receipt.
type Receipt struct {
	TxHash      string
	Status      uint64
	BlockNumber *big.Int
	Logs        []LogEntry
}

// ChainOracle abstracts blockchain reads. The JSON-RPC client is the
// production implementation; tests substitute a fake. Reads here are
// a security check: callers must fail closed when the oracle errors.
type ChainOracle interface {
	TransactionByHash(ctx context.Context, hash string) (*Transaction, error)
	ReceiptByHash(ctx context.Context, hash string) (*Receipt, error)
	BlockNumber(ctx context.Context) (*big.Int, error)
}
