// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package mailer talks to the third-party cleartext mail provider. It
// is the sweep's message source, the outbound path for direct sends,
// and the cleartext delivery fallback. Every call has its own timeout
// and callers treat failures as degradable: a forwarding failure
// never blocks encrypted blind storage.
package mailer

import (
	"context"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/moltmail/moltmail/backend/models"
)

// Provider is the external mailbox contract.
type Provider interface {
	// ListUnprocessed returns messages waiting in the provider
	// mailbox, oldest first.
	ListUnprocessed(ctx context.Context, limit int) ([]*models.InboundMessage, error)
	// DeleteMessage removes a processed message from the provider.
	// Best-effort: the sweep's idempotency markers make a leftover
	// copy harmless.
	DeleteMessage(ctx context.Context, providerID string) error
	// Send delivers an outbound cleartext message.
	Send(ctx context.Context, from, to, subject, body string) error
}

// Client is a REST Provider implementation.
type Client struct {
	http    *resty.Client
	baseURL string
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		http: resty.New().
			SetTimeout(15 * time.Second).
			SetAuthToken(token),
		baseURL: baseURL,
	}
}

type providerMessage struct {
	ID         string    `json:"id"`
	To         string    `json:"to"`
	From       string    `json:"from"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	ReceivedAt time.Time `json:"received_at"`
}

func (c *Client) ListUnprocessed(ctx context.Context, limit int) ([]*models.InboundMessage, error) {
	var out struct {
		Messages []providerMessage `json:"messages"`
	}
	if limit <= 0 {
		limit = 50
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&out).
		Get(c.baseURL + "/messages")
	if err != nil {
		return nil, errors.Wrap(err, "list provider messages")
	}
	if resp.IsError() {
		return nil, errors.Errorf("list provider messages: http %d", resp.StatusCode())
	}

	msgs := make([]*models.InboundMessage, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, &models.InboundMessage{
			To:         m.To,
			From:       m.From,
			Subject:    m.Subject,
			Body:       m.Body,
			ProviderID: m.ID,
			ReceivedAt: m.ReceivedAt,
		})
	}
	return msgs, nil
}

func (c *Client) DeleteMessage(ctx context.Context, providerID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete(c.baseURL + "/messages/" + providerID)
	if err != nil {
		return errors.Wrap(err, "delete provider message")
	}
	if resp.IsError() {
		return errors.Errorf("delete provider message: http %d", resp.StatusCode())
	}
	return nil
}

func (c *Client) Send(ctx context.Context, from, to, subject, body string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"from":    from,
			"to":      to,
			"subject": subject,
			"body":    body,
		}).
		Post(c.baseURL + "/send")
	if err != nil {
		return errors.Wrap(err, "send message")
	}
	if resp.IsError() {
		return errors.Errorf("send message: http %d", resp.StatusCode())
	}
	return nil
}
