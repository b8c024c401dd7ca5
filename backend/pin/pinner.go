// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package pin mirrors stored envelopes to an IPFS pinning service.
// Pinning is strictly best-effort: failures are logged by the caller
// and never block the primary KV write.
package pin

import (
	"bytes"
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

// Pinner pins an opaque blob and returns its content reference.
type Pinner interface {
	Pin(ctx context.Context, name string, blob []byte) (string, error)
}

// Client is a REST pinning-service Pinner.
type Client struct {
	http     *resty.Client
	endpoint string
}

func NewClient(endpoint, token string) *Client {
	return &Client{
		http: resty.New().
			SetTimeout(15 * time.Second).
			SetAuthToken(token),
		endpoint: endpoint,
	}
}

func (c *Client) Pin(ctx context.Context, name string, blob []byte) (string, error) {
	var out struct {
		CID string `json:"cid"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetFileReader("file", name, bytes.NewReader(blob)).
		SetResult(&out).
		Post(c.endpoint + "/pins")
	if err != nil {
		return "", errors.Wrap(err, "pin blob")
	}
	if resp.IsError() {
		return "", errors.Errorf("pin blob: http %d", resp.StatusCode())
	}
	return out.CID, nil
}
