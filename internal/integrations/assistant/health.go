package assistant

import (
	"context"

	"eitc-assistant/internal/domain"
)

// FetchHealth reads the basic liveness summary at /health/.
func (c *Client) FetchHealth(ctx context.Context) (domain.Health, error) {
	return fetch[domain.Health](ctx, c, c.health, "fetch health", "/health/", nil)
}

// FetchDetailedHealth includes per-dependency status.
func (c *Client) FetchDetailedHealth(ctx context.Context) (domain.Health, error) {
	return fetch[domain.Health](ctx, c, c.health, "fetch detailed health", "/health/detailed", nil)
}

func (c *Client) FetchReadiness(ctx context.Context) (domain.Health, error) {
	return fetch[domain.Health](ctx, c, c.health, "fetch readiness", "/health/ready", nil)
}

func (c *Client) FetchLiveness(ctx context.Context) (domain.Health, error) {
	return fetch[domain.Health](ctx, c, c.health, "fetch liveness", "/health/live", nil)
}
