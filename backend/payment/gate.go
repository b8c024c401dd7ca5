// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package payment verifies on-chain payments for tier upgrades with
// double-spend protection. Check order is fixed: malformed reference,
// burn ledger, chain fetch, recipient, amount, confirmation depth.
// The reference is burned only after the tier machine has recorded
// the upgrade, so a mid-flight failure leaves it reusable.
package payment

import (
	"context"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/moltmail/moltmail/backend/config"
	"github.com/moltmail/moltmail/backend/models"
	"github.com/moltmail/moltmail/backend/storage"
	"github.com/moltmail/moltmail/backend/tier"
)

// User-visible denial reasons. Each maps to a specific failed check;
// the burn-ledger check runs first so "already used" is never masked
// by (or masking) another failure.
var (
	ErrMalformedReference = errors.New("malformed transaction reference")
	ErrAlreadyUsed        = errors.New("transaction reference already used")
	ErrTxNotFound         = errors.New("transaction not found on chain")
	ErrWrongRecipient     = errors.New("payment recipient is not the treasury")
	ErrInsufficientValue  = errors.New("payment amount below tier price")
	ErrUnconfirmed        = errors.New("insufficient confirmation depth")
	ErrTxFailed           = errors.New("transaction reverted on chain")
	ErrUnknownTier        = errors.New("no price configured for tier")
	// ErrNoOracle: deployment has no RPC endpoint. Paid upgrades fail
	// closed instead of panicking on the missing client.
	ErrNoOracle = errors.New("chain oracle not configured")
)

// transferTopic is the keccak hash of Transfer(address,address,uint256).
const transferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

var txHashRe = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

// Gate verifies payments and drives the tier machine.
type Gate struct {
	ledger   storage.PaymentStore
	tiers    *tier.Machine
	oracle   ChainOracle
	treasury string
	token    string
	minConf  int64
	prices   map[models.Tier]*big.Int
	now      func() time.Time
	log      zerolog.Logger
}

func NewGate(ledger storage.PaymentStore, tiers *tier.Machine, oracle ChainOracle, cfg *config.Config, log zerolog.Logger) *Gate {
	return &Gate{
		ledger:   ledger,
		tiers:    tiers,
		oracle:   oracle,
		treasury: strings.ToLower(cfg.TreasuryAddress),
		token:    strings.ToLower(cfg.TokenContract),
		minConf:  cfg.MinConfirmations,
		prices: map[models.Tier]*big.Int{
			models.TierUpgraded: mustBig(cfg.PriceUpgraded),
			models.TierAnnual:   mustBig(cfg.PriceAnnual),
			models.TierFull:     mustBig(cfg.PriceFull),
		},
		now: time.Now,
		log: log,
	}
}

// WithClock overrides the gate clock, for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

func mustBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return big.NewInt(0)
	}
	return n
}

// Upgrade runs the full verify -> apply tier -> burn sequence and
// returns the updated record. Every denial carries a specific reason.
func (g *Gate) Upgrade(ctx context.Context, txHash string, target models.Tier, identity, wallet string) (*models.TierRecord, error) {
	ref, err := g.normalize(txHash)
	if err != nil {
		return nil, err
	}

	// Burn ledger first: a spent hash is rejected with "already
	// used" before any chain read, and never with a different reason.
	burned, err := g.ledger.IsBurned(ctx, ref)
	if err != nil {
		return nil, errors.Wrap(err, "read burn ledger")
	}
	if burned {
		return nil, ErrAlreadyUsed
	}

	price, ok := g.prices[target]
	if !ok || price.Sign() <= 0 {
		return nil, ErrUnknownTier
	}

	if err := g.verifyOnChain(ctx, ref, price); err != nil {
		return nil, err
	}

	// Apply the tier before burning. If the burn write fails the
	// upgrade is already durable; the reverse order could consume a
	// payment without delivering anything.
	rec, err := g.tiers.Upgrade(ctx, identity, target, wallet)
	if err != nil {
		return nil, err
	}

	burn := &models.BurnRecord{Identity: identity, Tier: target, RecordedAt: g.now().UTC()}
	if err := g.ledger.Burn(ctx, ref, burn); err != nil {
		g.log.Error().Err(err).Str("tx", ref).Str("identity", identity).
			Msg("upgrade applied but burn record write failed; reference remains spendable")
	}
	return rec, nil
}

// verifyOnChain runs the chain-side checks. Oracle failures block the
// upgrade: this is a security check, not best-effort.
func (g *Gate) verifyOnChain(ctx context.Context, ref string, price *big.Int) error {
	if g.oracle == nil {
		return ErrNoOracle
	}
	tx, err := g.oracle.TransactionByHash(ctx, ref)
	if err != nil {
		return errors.Wrap(err, "chain read failed")
	}
	if tx == nil {
		return ErrTxNotFound
	}

	rcpt, err := g.oracle.ReceiptByHash(ctx, ref)
	if err != nil {
		return errors.Wrap(err, "chain read failed")
	}
	if rcpt == nil || rcpt.BlockNumber == nil {
		return ErrUnconfirmed
	}
	if rcpt.Status != 1 {
		return ErrTxFailed
	}

	switch {
	case tx.To == g.treasury:
		// Native-asset transfer, checked by value.
		if tx.Value == nil || tx.Value.Cmp(price) < 0 {
			return ErrInsufficientValue
		}
	case g.token != "" && tx.To == g.token:
		// Token transfer, checked by decoding Transfer events for the
		// configured contract and the treasury recipient.
		if !tokenPaid(rcpt, g.token, g.treasury, price) {
			return ErrInsufficientValue
		}
	default:
		return ErrWrongRecipient
	}

	head, err := g.oracle.BlockNumber(ctx)
	if err != nil {
		return errors.Wrap(err, "chain read failed")
	}
	depth := new(big.Int).Sub(head, rcpt.BlockNumber)
	depth.Add(depth, big.NewInt(1))
	if depth.Cmp(big.NewInt(g.minConf)) < 0 {
		return ErrUnconfirmed
	}
	return nil
}

// tokenPaid scans receipt logs for an ERC-20 Transfer from the
// configured token contract to the treasury of at least price.
func tokenPaid(rcpt *Receipt, token, treasury string, price *big.Int) bool {
	for _, l := range rcpt.Logs {
		if l.Address != token || len(l.Topics) < 3 {
			continue
		}
		if l.Topics[0] != transferTopic {
			continue
		}
		if topicAddress(l.Topics[2]) != treasury {
			continue
		}
		if hexToBig(l.Data).Cmp(price) >= 0 {
			return true
		}
	}
	return false
}

// topicAddress extracts the 20-byte address from a 32-byte log topic.
func topicAddress(topic string) string {
	t := strings.TrimPrefix(topic, "0x")
	if len(t) < 40 {
		return ""
	}
	return "0x" + t[len(t)-40:]
}

// CheckUsed reports whether a reference is already in the burn ledger.
func (g *Gate) CheckUsed(ctx context.Context, txHash string) (bool, error) {
	ref, err := g.normalize(txHash)
	if err != nil {
		return false, err
	}
	return g.ledger.IsBurned(ctx, ref)
}

// RecordUsed burns a reference without an upgrade, for the external
// mint flow. Idempotent.
func (g *Gate) RecordUsed(ctx context.Context, txHash, identity string, target models.Tier) error {
	ref, err := g.normalize(txHash)
	if err != nil {
		return err
	}
	return g.ledger.Burn(ctx, ref, &models.BurnRecord{
		Identity:   identity,
		Tier:       target,
		RecordedAt: g.now().UTC(),
	})
}

func (g *Gate) normalize(txHash string) (string, error) {
	ref := strings.ToLower(strings.TrimSpace(txHash))
	if !txHashRe.MatchString(ref) {
		return "", ErrMalformedReference
	}
	return ref, nil
}
