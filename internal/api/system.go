package api

import (
	"context"
	"fmt"
	"net/http"
)

// SystemStatus fetches the trading, scheduler and pipeline status.
func (c *Client) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	var resp SystemStatus
	if err := c.get(ctx, "/api/system/status", nil, &resp); err != nil {
		return nil, fmt.Errorf("get system status: %w", err)
	}
	return &resp, nil
}

// SystemHealth fetches the backend health probe.
func (c *Client) SystemHealth(ctx context.Context) (*SystemHealth, error) {
	var resp SystemHealth
	if err := c.get(ctx, "/api/system/health", nil, &resp); err != nil {
		return nil, fmt.Errorf("get system health: %w", err)
	}
	return &resp, nil
}

// TriggerAnalysis asks the backend to run an analysis cycle now.
func (c *Client) TriggerAnalysis(ctx context.Context) (CommandResult, error) {
	return c.command(ctx, "/api/system/trigger-analysis", "trigger analysis")
}

// Pause suspends trading.
func (c *Client) Pause(ctx context.Context) (CommandResult, error) {
	return c.command(ctx, "/api/system/pause", "pause system")
}

// Resume resumes trading.
func (c *Client) Resume(ctx context.Context) (CommandResult, error) {
	return c.command(ctx, "/api/system/resume", "resume system")
}

func (c *Client) command(ctx context.Context, path, what string) (CommandResult, error) {
	resp := CommandResult{}
	if err := c.send(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	return resp, nil
}
