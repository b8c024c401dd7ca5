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
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// EthClient is a minimal JSON-RPC ChainOracle. Safe for concurrent
// use; request ids are allocated atomically.
type EthClient struct {
	http     *resty.Client
	endpoint string
	nextID   atomic.Int64
}

// NewEthClient builds an oracle client with its own independent
// timeout; a slow chain node must never stall message handling.
func NewEthClient(endpoint string) *EthClient {
	return &EthClient{
		http:     resty.New().SetTimeout(10 * time.Second),
		endpoint: endpoint,
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int64         `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *EthClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID.Add(1)}

	var envelope struct {
		Result interface{} `json:"result"`
		Error  *rpcError   `json:"error"`
	}
	envelope.Result = result

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&envelope).
		Post(c.endpoint)
	if err != nil {
		return errors.Wrapf(err, "rpc %s", method)
	}
	if resp.IsError() {
		return errors.Errorf("rpc %s: http %d", method, resp.StatusCode())
	}
	if envelope.Error != nil {
		return errors.Errorf("rpc %s: %s (code %d)", method, envelope.Error.Message, envelope.Error.Code)
	}
	return nil
}

type rpcTransaction struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	BlockNumber string `json:"blockNumber"`
}

type rpcLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

type rpcReceipt struct {
	TransactionHash string   `json:"transactionHash"`
	Status          string   `json:"status"`
	BlockNumber     string   `json:"blockNumber"`
	Logs            []rpcLog `json:"logs"`
}

func (c *EthClient) TransactionByHash(ctx context.Context, hash string) (*Transaction, error) {
	var raw *rpcTransaction
	if err := c.call(ctx, "eth_getTransactionByHash", []interface{}{hash}, &raw); err != nil {
		return nil, err
	}
	if raw == nil || raw.Hash == "" {
		return nil, nil
	}
	tx := &Transaction{
		Hash:        strings.ToLower(raw.Hash),
		From:        strings.ToLower(raw.From),
		To:          strings.ToLower(raw.To),
		Value:       hexToBig(raw.Value),
		BlockNumber: hexToBigOrNil(raw.BlockNumber),
	}
	return tx, nil
}

func (c *EthClient) ReceiptByHash(ctx context.Context, hash string) (*Receipt, error) {
	var raw *rpcReceipt
	if err := c.call(ctx, "eth_getTransactionReceipt", []interface{}{hash}, &raw); err != nil {
		return nil, err
	}
	if raw == nil || raw.TransactionHash == "" {
		return nil, nil
	}
	rcpt := &Receipt{
		TxHash:      strings.ToLower(raw.TransactionHash),
		Status:      hexToBig(raw.Status).Uint64(),
		BlockNumber: hexToBigOrNil(raw.BlockNumber),
	}
	for _, l := range raw.Logs {
		rcpt.Logs = append(rcpt.Logs, LogEntry{
			Address: strings.ToLower(l.Address),
			Topics:  lowerAll(l.Topics),
			Data:    strings.ToLower(l.Data),
		})
	}
	return rcpt, nil
}

func (c *EthClient) BlockNumber(ctx context.Context) (*big.Int, error) {
	var raw string
	if err := c.call(ctx, "eth_blockNumber", nil, &raw); err != nil {
		return nil, err
	}
	return hexToBig(raw), nil
}

func hexToBig(s string) *big.Int {
	n := new(big.Int)
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	if s == "" {
		return n
	}
	n.SetString(s, 16)
	return n
}

func hexToBigOrNil(s string) *big.Int {
	if s == "" || s == "0x" {
		return nil
	}
	return hexToBig(s)
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
