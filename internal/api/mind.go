package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Defaults for UpdateMarketMind when the caller leaves them empty.
const (
	DefaultChangedBy     = "feedwatch"
	DefaultChangeSummary = "Updated from feedwatch"
)

// MarketMind fetches the current cognitive-state document.
func (c *Client) MarketMind(ctx context.Context) (*MarketMindResponse, error) {
	var resp MarketMindResponse
	if err := c.get(ctx, "/api/mind", nil, &resp); err != nil {
		return nil, fmt.Errorf("get market mind: %w", err)
	}
	return &resp, nil
}

// UpdateMarketMind replaces the cognitive-state document. It is not retried.
// The backend does not echo a prompt preview, so PromptPreview is empty.
func (c *Client) UpdateMarketMind(ctx context.Context, doc MarketMind, changedBy, summary string) (*MarketMindResponse, error) {
	if changedBy == "" {
		changedBy = DefaultChangedBy
	}
	if summary == "" {
		summary = DefaultChangeSummary
	}

	req := MarketMindUpdate{
		MarketMind:    doc,
		ChangedBy:     changedBy,
		ChangeSummary: summary,
	}

	var resp MarketMindResponse
	if err := c.send(ctx, http.MethodPut, "/api/mind", req, &resp); err != nil {
		return nil, fmt.Errorf("update market mind: %w", err)
	}
	resp.PromptPreview = ""
	return &resp, nil
}

// MarketMindHistory fetches past revisions. limit <= 0 means DefaultMindHistoryLimit.
func (c *Client) MarketMindHistory(ctx context.Context, limit int) ([]MarketMindHistoryItem, error) {
	if limit <= 0 {
		limit = DefaultMindHistoryLimit
	}
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	var resp itemsResponse[MarketMindHistoryItem]
	if err := c.get(ctx, "/api/mind/history", query, &resp); err != nil {
		return nil, fmt.Errorf("get market mind history: %w", err)
	}
	return orEmpty(resp.Items), nil
}
