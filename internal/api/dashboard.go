package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// Klines fetches the most recent candles. limit <= 0 means DefaultKlineLimit.
func (c *Client) Klines(ctx context.Context, timeframe Timeframe, limit int) ([]Kline, error) {
	if limit <= 0 {
		limit = DefaultKlineLimit
	}
	query := url.Values{}
	query.Set("timeframe", string(timeframe))
	query.Set("limit", strconv.Itoa(limit))

	var resp itemsResponse[Kline]
	if err := c.get(ctx, "/api/klines", query, &resp); err != nil {
		return nil, fmt.Errorf("get klines: %w", err)
	}
	return orEmpty(resp.Items), nil
}

// Portfolio fetches the current portfolio snapshot.
func (c *Client) Portfolio(ctx context.Context) (*Portfolio, error) {
	var resp Portfolio
	if err := c.get(ctx, "/api/portfolio", nil, &resp); err != nil {
		return nil, fmt.Errorf("get portfolio: %w", err)
	}
	return &resp, nil
}

// Decisions fetches the most recent decisions, newest first.
// limit <= 0 means DefaultDecisionLimit.
func (c *Client) Decisions(ctx context.Context, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = DefaultDecisionLimit
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	var resp itemsResponse[Decision]
	if err := c.get(ctx, "/api/decisions", query, &resp); err != nil {
		return nil, fmt.Errorf("get decisions: %w", err)
	}
	return orEmpty(resp.Items), nil
}

// Signals fetches indicator series. limit <= 0 means DefaultSignalLimit.
func (c *Client) Signals(ctx context.Context, timeframe Timeframe, limit int) (SignalsResponse, error) {
	if limit <= 0 {
		limit = DefaultSignalLimit
	}
	query := url.Values{}
	query.Set("timeframe", string(timeframe))
	query.Set("limit", strconv.Itoa(limit))

	var resp SignalsResponse
	if err := c.get(ctx, "/api/signals", query, &resp); err != nil {
		return nil, fmt.Errorf("get signals: %w", err)
	}
	return resp, nil
}

// Performance fetches the equity curve and summary metrics.
func (c *Client) Performance(ctx context.Context) (*PerformanceResponse, error) {
	var resp PerformanceResponse
	if err := c.get(ctx, "/api/performance", nil, &resp); err != nil {
		return nil, fmt.Errorf("get performance: %w", err)
	}
	return &resp, nil
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
