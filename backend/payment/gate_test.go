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
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moltmail/moltmail/backend/config"
	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/storage/kv"
	"github.com/moltmail/moltmail/backend/storage/kvstore"
	"github.com/moltmail/moltmail/backend/tier"
)

const (
	treasury = "0x00000000000000000000000000000000000000aa"
	token    = "0x00000000000000000000000000000000000000bb"
)

var goodTx = "0x" + strings.Repeat("1", 63) + "b"

// fakeOracle is an in-memory ChainOracle. calls counts chain reads so
// tests can assert the burn ledger short-circuits before any read.
type fakeOracle struct {
	txs      map[string]*Transaction
	receipts map[string]*Receipt
	head     *big.Int
	calls    int
	fail     bool
}

func (f *fakeOracle) TransactionByHash(_ context.Context, hash string) (*Transaction, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("rpc down")
	}
	return f.txs[strings.ToLower(hash)], nil
}

func (f *fakeOracle) ReceiptByHash(_ context.Context, hash string) (*Receipt, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("rpc down")
	}
	return f.receipts[strings.ToLower(hash)], nil
}

func (f *fakeOracle) BlockNumber(_ context.Context) (*big.Int, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("rpc down")
	}
	return f.head, nil
}

func nativePayment(value int64, block int64) (*Transaction, *Receipt) {
	tx := &Transaction{
		Hash:        goodTx,
		From:        "0x00000000000000000000000000000000000000cc",
		To:          treasury,
		Value:       big.NewInt(value),
		BlockNumber: big.NewInt(block),
	}
	rcpt := &Receipt{TxHash: goodTx, Status: 1, BlockNumber: big.NewInt(block)}
	return tx, rcpt
}

func newGateEnv(t *testing.T, oracle ChainOracle) (*Gate, *tier.Machine, *kvstore.Store) {
	t.Helper()
	store := kvstore.New(kv.NewMemoryClient(nil), 100)
	cfg := config.NewForTesting()
	cfg.TreasuryAddress = treasury
	cfg.TokenContract = token
	cfg.MinConfirmations = 3
	machine := tier.NewMachine(store, cfg)
	gate := NewGate(store, machine, oracle, cfg, zerolog.Nop())
	gate.WithClock(func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) })
	return gate, machine, store
}

func TestUpgrade_NativeHappyPath(t *testing.T) {
	ctx := context.Background()
	tx, rcpt := nativePayment(1000, 100)
	oracle := &fakeOracle{
		txs:      map[string]*Transaction{goodTx: tx},
		receipts: map[string]*Receipt{goodTx: rcpt},
		head:     big.NewInt(110),
	}
	gate, machine, store := newGateEnv(t, oracle)
	_, _, err := machine.Provision(ctx, "alice")
	require.NoError(t, err)

	rec, err := gate.Upgrade(ctx, goodTx, models.TierUpgraded, "alice", "0xwallet")
	require.NoError(t, err)
	assert.Equal(t, models.TierUpgraded, rec.Tier)

	// The reference is now burned.
	used, err := gate.CheckUsed(ctx, goodTx)
	require.NoError(t, err)
	assert.True(t, used)

	burn, err := store.GetBurn(ctx, goodTx)
	require.NoError(t, err)
	assert.Equal(t, "alice", burn.Identity)
	assert.Equal(t, models.TierUpgraded, burn.Tier)
}

func TestUpgrade_SameReferenceExactlyOnce(t *testing.T) {
	ctx := context.Background()
	tx, rcpt := nativePayment(100000, 100)
	oracle := &fakeOracle{
		txs:      map[string]*Transaction{goodTx: tx},
		receipts: map[string]*Receipt{goodTx: rcpt},
		head:     big.NewInt(110),
	}
	gate, machine, _ := newGateEnv(t, oracle)
	_, _, err := machine.Provision(ctx, "alice")
	require.NoError(t, err)

	_, err = gate.Upgrade(ctx, goodTx, models.TierUpgraded, "alice", "")
	require.NoError(t, err)

	// Second attempt is "already used" regardless of tier requested,
	// before any chain read is attempted.
	oracle.calls = 0
	_, err = gate.Upgrade(ctx, goodTx, models.TierAnnual, "alice", "")
	assert.ErrorIs(t, err, ErrAlreadyUsed)
	assert.Zero(t, oracle.calls)
}

func TestUpgrade_Denials(t *testing.T) {
	ctx := context.Background()

	t.Run("malformed reference", func(t *testing.T) {
		gate, _, _ := newGateEnv(t, &fakeOracle{})
		_, err := gate.Upgrade(ctx, "not-a-hash", models.TierUpgraded, "alice", "")
		assert.ErrorIs(t, err, ErrMalformedReference)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		oracle := &fakeOracle{head: big.NewInt(1)}
		gate, machine, _ := newGateEnv(t, oracle)
		_, _, err := machine.Provision(ctx, "alice")
		require.NoError(t, err)
		_, err = gate.Upgrade(ctx, goodTx, models.TierUpgraded, "alice", "")
		assert.ErrorIs(t, err, ErrTxNotFound)
	})

	t.Run("wrong recipient", func(t *testing.T) {
		tx, rcpt := nativePayment(100000, 100)
		tx.To = "0x00000000000000000000000000000000000000dd"
		oracle := &fakeOracle{
			txs:      map[string]*Transaction{goodTx: tx},
			receipts: map[string]*Receipt{goodTx: rcpt},
			head:     big.NewInt(110),
		}
		gate, machine, _ := newGateEnv(t, oracle)
		_, _, err := machine.Provision(ctx, "alice")
		require.NoError(t, err)
		_, err = gate.Upgrade(ctx, goodTx, models.TierUpgraded, "alice", "")
		assert.ErrorIs(t, err, ErrWrongRecipient)
	})

	t.Run("insufficient value", func(t *testing.T) {
		tx, rcpt := nativePayment(999, 100) // price is 1000
		oracle := &fakeOracle{
			txs:      map[string]*Transaction{goodTx: tx},
			receipts: map[string]*Receipt{goodTx: rcpt},
			head:     big.NewInt(110),
		}
		gate, machine, _ := newGateEnv(t, oracle)
		_, _, err := machine.Provision(ctx, "alice")
		require.NoError(t, err)
		_, err = gate.Upgrade(ctx, goodTx, models.TierUpgraded, "alice", "")
		assert.ErrorIs(t, err, ErrInsufficientValue)
	})

	t.Run("unconfirmed", func(t *testing.T) {
		tx, rcpt := nativePayment(100000, 100)
		oracle := &fakeOracle{
			txs:      map[string]*Transaction{goodTx: tx},
			receipts: map[string]*Receipt{goodTx: rcpt},
			head:     big.NewInt(101), // depth 2, need 3
		}
		gate, machine, _ := newGateEnv(t, oracle)
		_, _, err := machine.Provision(ctx, "alice")
		require.NoError(t, err)
		_, err = gate.Upgrade(ctx, goodTx, models.TierUpgraded, "alice", "")
		assert.ErrorIs(t, err, ErrUnconfirmed)
	})

	t.Run("no oracle configured fails closed", func(t *testing.T) {
		gate, machine, _ := newGateEnv(t, nil)
		_, _, err := machine.Provision(ctx, "alice")
		require.NoError(t, err)
		_, err = gate.Upgrade(ctx, goodTx, models.TierUpgraded, "alice", "")
		assert.ErrorIs(t, err, ErrNoOracle)
		// And nothing was burned.
		used, err := gate.CheckUsed(ctx, goodTx)
		require.NoError(t, err)
		assert.False(t, used)
	})

	t.Run("chain read failure blocks upgrade", func(t *testing.T) {
		oracle := &fakeOracle{fail: true}
		gate, machine, _ := newGateEnv(t, oracle)
		_, _, err := machine.Provision(ctx, "alice")
		require.NoError(t, err)
		_, err = gate.Upgrade(ctx, goodTx, models.TierUpgraded, "alice", "")
		require.Error(t, err)
		// And nothing was burned.
		used, err := gate.CheckUsed(ctx, goodTx)
		require.NoError(t, err)
		assert.False(t, used)
	})
}

func TestUpgrade_ERC20TransferPath(t *testing.T) {
	ctx := context.Background()
	tx := &Transaction{
		Hash:        goodTx,
		From:        "0x00000000000000000000000000000000000000cc",
		To:          token, // calling the token contract
		Value:       big.NewInt(0),
		BlockNumber: big.NewInt(100),
	}
	rcpt := &Receipt{
		TxHash:      goodTx,
		Status:      1,
		BlockNumber: big.NewInt(100),
		Logs: []LogEntry{{
			Address: token,
			Topics: []string{
				transferTopic,
				"0x000000000000000000000000" + "00000000000000000000000000000000000000cc",
				"0x000000000000000000000000" + treasury[2:],
			},
			Data: "0x00000000000000000000000000000000000000000000000000000000000003e8", // 1000
		}},
	}
	oracle := &fakeOracle{
		txs:      map[string]*Transaction{goodTx: tx},
		receipts: map[string]*Receipt{goodTx: rcpt},
		head:     big.NewInt(200),
	}
	gate, machine, _ := newGateEnv(t, oracle)
	_, _, err := machine.Provision(ctx, "alice")
	require.NoError(t, err)

	rec, err := gate.Upgrade(ctx, goodTx, models.TierUpgraded, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, models.TierUpgraded, rec.Tier)
}

func TestUpgrade_ERC20WrongRecipientRejected(t *testing.T) {
	ctx := context.Background()
	tx := &Transaction{Hash: goodTx, To: token, Value: big.NewInt(0), BlockNumber: big.NewInt(100)}
	rcpt := &Receipt{
		TxHash: goodTx, Status: 1, BlockNumber: big.NewInt(100),
		Logs: []LogEntry{{
			Address: token,
			Topics: []string{
				transferTopic,
				"0x000000000000000000000000" + "00000000000000000000000000000000000000cc",
				"0x000000000000000000000000" + "00000000000000000000000000000000000000dd",
			},
			Data: "0x00000000000000000000000000000000000000000000000000000000000003e8",
		}},
	}
	oracle := &fakeOracle{
		txs:      map[string]*Transaction{goodTx: tx},
		receipts: map[string]*Receipt{goodTx: rcpt},
		head:     big.NewInt(200),
	}
	gate, machine, _ := newGateEnv(t, oracle)
	_, _, err := machine.Provision(ctx, "alice")
	require.NoError(t, err)

	_, err = gate.Upgrade(ctx, goodTx, models.TierUpgraded, "alice", "")
	assert.ErrorIs(t, err, ErrInsufficientValue)
}

func TestRecordUsed_Idempotent(t *testing.T) {
	ctx := context.Background()
	gate, _, _ := newGateEnv(t, &fakeOracle{})

	require.NoError(t, gate.RecordUsed(ctx, goodTx, "alice", models.TierUpgraded))
	require.NoError(t, gate.RecordUsed(ctx, goodTx, "alice", models.TierUpgraded))

	used, err := gate.CheckUsed(ctx, goodTx)
	require.NoError(t, err)
	assert.True(t, used)
}
