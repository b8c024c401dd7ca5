// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package nft resolves NFT-collection identities to their current
// owner. Ownership verification is an oracle: the service trusts the
// answer and never interprets chain state beyond it.
package nft

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Oracle answers "who owns token tokenID of this collection contract".
// An empty owner with nil error means the token does not exist.
type Oracle interface {
	VerifyOwner(ctx context.Context, contract, tokenID string) (string, error)
}

// ownerOfSelector is the 4-byte selector of ownerOf(uint256).
const ownerOfSelector = "0x6352211e"

// RPCOracle implements Oracle with an eth_call against the collection
// contract.
type RPCOracle struct {
	http     *resty.Client
	endpoint string
}

func NewRPCOracle(endpoint string) *RPCOracle {
	return &RPCOracle{
		http:     resty.New().SetTimeout(10 * time.Second),
		endpoint: endpoint,
	}
}

func (o *RPCOracle) VerifyOwner(ctx context.Context, contract, tokenID string) (string, error) {
	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return "", errors.Errorf("token id %q is not numeric", tokenID)
	}

	callData := ownerOfSelector + fmt.Sprintf("%064x", id)
	body := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "eth_call",
		"params": []interface{}{
			map[string]string{"to": contract, "data": callData},
			"latest",
		},
		"id": 1,
	}

	var envelope struct {
		Result string `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	resp, err := o.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&envelope).
		Post(o.endpoint)
	if err != nil {
		return "", errors.Wrap(err, "ownerOf call")
	}
	if resp.IsError() {
		return "", errors.Errorf("ownerOf call: http %d", resp.StatusCode())
	}
	if envelope.Error != nil {
		// Nonexistent tokens revert; report "no owner" not failure.
		return "", nil
	}

	result := strings.TrimPrefix(strings.ToLower(envelope.Result), "0x")
	if len(result) < 40 {
		return "", nil
	}
	owner := "0x" + result[len(result)-40:]
	if owner == "0x0000000000000000000000000000000000000000" {
		return "", nil
	}
	return owner, nil
}
